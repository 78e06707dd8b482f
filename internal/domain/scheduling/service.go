// Package scheduling owns doctor availability windows, slot generation,
// booking validation and the appointment lifecycle.
package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/websocket"
)

type Service struct {
	windows      WindowRepository
	appointments AppointmentRepository
	doctors      DoctorLookup
	patients     PatientLookup
	tx           Serializer
	validator    *Validator
	events       websocket.EventPublisher
	loc          *time.Location
	now          func() time.Time
	logger       zerolog.Logger
}

func NewService(windows WindowRepository, appts AppointmentRepository, doctors DoctorLookup,
	patients PatientLookup, tx Serializer, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		windows:      windows,
		appointments: appts,
		doctors:      doctors,
		patients:     patients,
		tx:           tx,
		loc:          loc,
		now:          time.Now,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
	s.validator = NewValidator(windows, appts, loc, func() time.Time { return s.now() })
	return s
}

// SetEventPublisher enables live feed notifications.
func (s *Service) SetEventPublisher(p websocket.EventPublisher) { s.events = p }

func (s *Service) Validator() *Validator { return s.validator }

func (s *Service) Location() *time.Location { return s.loc }

func doctorKey(id uuid.UUID) string { return "doctor:" + id.String() }

func (s *Service) requireDoctor(ctx context.Context, doctorID uuid.UUID) (string, error) {
	name, ok, err := s.doctors.DoctorName(ctx, doctorID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Validation("doctor not found")
	}
	return name, nil
}

// -- Availability windows --

// WindowInput describes a new availability window.
type WindowInput struct {
	DoctorID  uuid.UUID
	DayOfWeek int
	Start     ClockTime
	End       ClockTime
}

func validateRange(start, end ClockTime) error {
	if !start.Valid() || !end.Valid() {
		return apperr.Validation("start and end time must be within one day")
	}
	if start >= end {
		return apperr.Validation("Start time must be before end time")
	}
	return nil
}

func (s *Service) checkOverlap(ctx context.Context, doctorID uuid.UUID, day time.Weekday, start, end ClockTime, self uuid.UUID) error {
	siblings, err := s.windows.ListByDoctorDay(ctx, doctorID, day)
	if err != nil {
		return err
	}
	for _, w := range siblings {
		if w.ID == self {
			continue
		}
		if w.Overlaps(start, end) {
			return apperr.Conflict("Schedule overlaps with existing schedule for this day (%s-%s)", w.Start, w.End)
		}
	}
	return nil
}

func (s *Service) AddWindow(ctx context.Context, in WindowInput) (*Window, error) {
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		return nil, apperr.Validation("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	}
	if err := validateRange(in.Start, in.End); err != nil {
		return nil, err
	}
	if _, err := s.requireDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	w := &Window{
		DoctorID:  in.DoctorID,
		DayOfWeek: time.Weekday(in.DayOfWeek),
		Start:     in.Start,
		End:       in.End,
	}
	err := s.tx.Serialize(ctx, doctorKey(in.DoctorID), func(ctx context.Context) error {
		if err := s.checkOverlap(ctx, w.DoctorID, w.DayOfWeek, w.Start, w.End, uuid.Nil); err != nil {
			return err
		}
		return s.windows.Create(ctx, w)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.windows.GetByID(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("schedule_id", created.ID.String()).Str("doctor_id", created.DoctorID.String()).
		Str("day", created.DayName).Msg("schedule created")
	s.publishWindow(ctx, "schedule.created", created)
	return created, nil
}

func (s *Service) UpdateWindow(ctx context.Context, id uuid.UUID, start, end ClockTime) (*Window, error) {
	existing, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	err = s.tx.Serialize(ctx, doctorKey(existing.DoctorID), func(ctx context.Context) error {
		if err := s.checkOverlap(ctx, existing.DoctorID, existing.DayOfWeek, start, end, existing.ID); err != nil {
			return err
		}
		existing.Start, existing.End = start, end
		return s.windows.Update(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("schedule_id", id.String()).Msg("schedule updated")
	s.publishWindow(ctx, "schedule.updated", existing)
	return existing, nil
}

// RemoveWindow reports whether a window was deleted.
func (s *Service) RemoveWindow(ctx context.Context, id uuid.UUID) (bool, error) {
	existing, err := s.windows.GetByID(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	removed, err := s.windows.Delete(ctx, id)
	if err != nil || !removed {
		return removed, err
	}
	s.logger.Info().Str("schedule_id", id.String()).Msg("schedule deleted")
	s.publishWindow(ctx, "schedule.deleted", existing)
	return true, nil
}

func (s *Service) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.windows.GetByID(ctx, id)
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]*Window, error) {
	return s.windows.ListByDoctor(ctx, doctorID)
}

// -- Slots --

// GenerateSlots lists the 30-minute slots of doctorID on the calendar day of
// date in the clinic time zone, marking booked ones unavailable.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DaySlots, error) {
	name, err := s.requireDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	y, m, d := date.Date()
	local := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	resp := &DaySlots{
		DoctorID:   doctorID,
		DoctorName: name,
		Date:       local.Format("2006-01-02"),
		DayOfWeek:  local.Weekday().String(),
		Slots:      []Slot{},
	}

	windows, err := s.windows.ListByDoctorDay(ctx, doctorID, local.Weekday())
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return resp, nil
	}

	from, to := dayBounds(local)
	booked, err := s.appointments.ScheduledBetween(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	resp.Slots = BuildSlots(local, windows, booked)
	return resp, nil
}

// -- Live feed --

func (s *Service) publish(ctx context.Context, eventType, resourceType string, id, doctorID uuid.UUID, payload interface{}, topics ...string) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("encode feed event")
		return
	}
	topics = append(topics, websocket.DoctorTopic(doctorID))
	for _, topic := range topics {
		ev := websocket.Event{
			Type:         eventType,
			Topic:        topic,
			ResourceType: resourceType,
			ResourceID:   id.String(),
			Data:         data,
		}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Str("topic", topic).Msg("publish feed event")
		}
	}
}

func (s *Service) publishWindow(ctx context.Context, eventType string, w *Window) {
	s.publish(ctx, eventType, "schedule", w.ID, w.DoctorID, w)
}

func (s *Service) publishAppointment(ctx context.Context, eventType string, a *Appointment) {
	s.publish(ctx, eventType, "appointment", a.ID, a.DoctorID, a, websocket.TopicAppointments)
}
