package scheduling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SlotDuration is the fixed length of every bookable slot.
const SlotDuration = 30 * time.Minute

// ClockTime is a wall-clock time of day, stored as the offset from midnight.
type ClockTime time.Duration

const day = ClockTime(24 * time.Hour)

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	var vals [3]int
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] || len(p) > 2 {
			return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
		}
		vals[i] = v
	}
	return ClockTime(time.Duration(vals[0])*time.Hour +
		time.Duration(vals[1])*time.Minute +
		time.Duration(vals[2])*time.Second), nil
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return ClockTime(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

func (c ClockTime) Duration() time.Duration { return time.Duration(c) }

func (c ClockTime) Valid() bool { return c >= 0 && c < day }

// Add returns c shifted by d.
func (c ClockTime) Add(d time.Duration) ClockTime { return c + ClockTime(d) }

// On returns the instant at time-of-day c on date's calendar day, in date's
// location.
func (c ClockTime) On(date time.Time) time.Time {
	d := time.Duration(c)
	y, m, dd := date.Date()
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	mi := int(d / time.Minute)
	d -= time.Duration(mi) * time.Minute
	sec := int(d / time.Second)
	d -= time.Duration(sec) * time.Second
	return time.Date(y, m, dd, h, mi, sec, int(d), date.Location())
}

func (c ClockTime) String() string {
	d := time.Duration(c)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string like \"09:30\"")
	}
	v, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Window is a recurring weekly availability window for one doctor.
type Window struct {
	ID             uuid.UUID    `json:"id"`
	DoctorID       uuid.UUID    `json:"doctor_id"`
	DoctorName     string       `json:"doctor_name,omitempty"`
	Specialization string       `json:"specialization,omitempty"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	DayName        string       `json:"day_name"`
	Start          ClockTime    `json:"start_time"`
	End            ClockTime    `json:"end_time"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Overlaps reports whether [start, end) intersects the window. Windows that
// only share a boundary do not overlap.
func (w *Window) Overlaps(start, end ClockTime) bool {
	return w.Start < end && start < w.End
}

// Fits reports whether a slot of length d starting at t lies entirely
// inside the window.
func (w *Window) Fits(t ClockTime, d time.Duration) bool {
	return w.Start <= t && w.End >= t.Add(d)
}

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "noshow"
	StatusRescheduled Status = "rescheduled"
)

// allStatuses is in lifecycle order; status sorting follows it.
var allStatuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled}

// ParseStatus is case-insensitive and accepts "no_show"/"no-show" for noshow.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "").Replace(norm)
	for _, st := range allStatuses {
		if string(st) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Active reports whether business transitions (cancel, complete, date
// change) are still accepted.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusRescheduled
}

// Appointment is a booking of one patient with one doctor at a slot start.
// The name and contact fields are filled on reads.
type Appointment struct {
	ID                   uuid.UUID  `json:"id"`
	PatientID            uuid.UUID  `json:"patient_id"`
	PatientName          string     `json:"patient_name,omitempty"`
	PatientEmail         string     `json:"patient_email,omitempty"`
	PatientPhone         string     `json:"patient_phone,omitempty"`
	DoctorID             uuid.UUID  `json:"doctor_id"`
	DoctorName           string     `json:"doctor_name,omitempty"`
	DoctorSpecialization string     `json:"doctor_specialization,omitempty"`
	AppointmentAt        time.Time  `json:"appointment_date"`
	Status               Status     `json:"status"`
	Notes                *string    `json:"notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
}

// Reschedule is one entry of an appointment's date-change history.
type Reschedule struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	PreviousAt    time.Time  `json:"previous_date"`
	NewAt         time.Time  `json:"new_date"`
	ChangedBy     *uuid.UUID `json:"changed_by,omitempty"`
	ChangedAt     time.Time  `json:"changed_at"`
}

// Slot is a derived bookable interval; it is never stored.
type Slot struct {
	At            time.Time `json:"slot_date_time"`
	TimeFormatted string    `json:"time_formatted"`
	IsAvailable   bool      `json:"is_available"`
}

// DaySlots is the slot listing for one doctor on one date.
type DaySlots struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	Date       string    `json:"date"`
	DayOfWeek  string    `json:"day_of_week"`
	Slots      []Slot    `json:"available_slots"`
}
