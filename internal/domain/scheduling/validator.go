package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Validator checks a requested appointment time against the clock, the
// doctor's availability windows and existing bookings.
type Validator struct {
	windows      WindowRepository
	appointments AppointmentRepository
	loc          *time.Location
	now          func() time.Time
}

func NewValidator(windows WindowRepository, appointments AppointmentRepository, loc *time.Location, now func() time.Time) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{windows: windows, appointments: appointments, loc: loc, now: now}
}

func (v *Validator) ValidateFutureDate(at time.Time) error {
	if !at.After(v.now()) {
		return apperr.Validation("Appointment date must be in the future")
	}
	return nil
}

// ValidateWithinAvailability requires a full slot starting at at to fit in
// one of the doctor's windows for that weekday.
func (v *Validator) ValidateWithinAvailability(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	local := at.In(v.loc)
	windows, err := v.windows.ListByDoctorDay(ctx, doctorID, local.Weekday())
	if err != nil {
		return err
	}
	t := ClockOf(local)
	for _, w := range windows {
		if w.Fits(t, SlotDuration) {
			return nil
		}
	}
	return apperr.Conflict("Doctor is not available at the requested time")
}

// ValidateNoDoubleBooking rejects at when another scheduled appointment of
// the doctor starts at exactly the same instant. exclude skips the
// appointment being updated.
func (v *Validator) ValidateNoDoubleBooking(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) error {
	taken, err := v.appointments.ExistsScheduledAt(ctx, doctorID, at, exclude)
	if err != nil {
		return err
	}
	if taken {
		return errSlotTaken
	}
	return nil
}
