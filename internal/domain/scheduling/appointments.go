package scheduling

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type CreateAppointmentInput struct {
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	AppointmentAt time.Time
	Notes         *string
}

type UpdateAppointmentInput struct {
	AppointmentAt time.Time
	Notes         *string
}

// MaxNotesLength caps appointment notes, counted in characters.
const MaxNotesLength = 500

// cleanNotes trims n; blank notes become nil.
func cleanNotes(n *string) (*string, error) {
	if n == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*n)
	if v == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(v) > MaxNotesLength {
		return nil, apperr.Validation("Notes cannot exceed %d characters", MaxNotesLength)
	}
	return &v, nil
}

// CreateAppointment books a scheduled appointment after checking, in order:
// future date, patient, doctor, availability and double booking.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	notes, err := cleanNotes(in.Notes)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateFutureDate(in.AppointmentAt); err != nil {
		return nil, err
	}
	ok, err := s.patients.PatientExists(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation("patient not found")
	}
	if _, err := s.requireDoctor(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		AppointmentAt: in.AppointmentAt,
		Status:        StatusScheduled,
		Notes:         notes,
	}
	err = s.tx.Serialize(ctx, doctorKey(in.DoctorID), func(ctx context.Context) error {
		if err := s.validator.ValidateWithinAvailability(ctx, a.DoctorID, a.AppointmentAt); err != nil {
			return err
		}
		if err := s.validator.ValidateNoDoubleBooking(ctx, a.DoctorID, a.AppointmentAt, nil); err != nil {
			return err
		}
		return s.appointments.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	created, err := s.appointments.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", created.ID.String()).Str("doctor_id", created.DoctorID.String()).
		Time("appointment_at", created.AppointmentAt).Msg("appointment created")
	s.publishAppointment(ctx, "appointment.created", created)
	return created, nil
}

// GetAppointment returns one appointment. Doctors may only read their own.
func (s *Service) GetAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsDoctorOnly() {
		doctorID, err := s.callerDoctorID(ctx, caller)
		if err != nil {
			return nil, err
		}
		if doctorID != a.DoctorID {
			return nil, apperr.Forbidden("You can only view your own appointments")
		}
	}
	return a, nil
}

// UpdateAppointment changes notes and, when the date differs, moves the
// appointment and marks it rescheduled.
func (s *Service) UpdateAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID, in UpdateAppointmentInput) (*Appointment, error) {
	notes, err := cleanNotes(in.Notes)
	if err != nil {
		return nil, err
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateFutureDate(in.AppointmentAt); err != nil {
		return nil, err
	}

	moved := !in.AppointmentAt.Equal(a.AppointmentAt)
	a.Notes = notes

	if !moved {
		if err := s.appointments.Update(ctx, a); err != nil {
			return nil, err
		}
		s.logger.Info().Str("appointment_id", id.String()).Msg("appointment updated")
		s.publishAppointment(ctx, "appointment.updated", a)
		return a, nil
	}

	if !a.Status.Active() {
		return nil, apperr.Conflict("Cannot reschedule an appointment that is %s", a.Status)
	}
	previous := a.AppointmentAt
	err = s.tx.Serialize(ctx, doctorKey(a.DoctorID), func(ctx context.Context) error {
		if err := s.validator.ValidateWithinAvailability(ctx, a.DoctorID, in.AppointmentAt); err != nil {
			return err
		}
		if err := s.validator.ValidateNoDoubleBooking(ctx, a.DoctorID, in.AppointmentAt, &a.ID); err != nil {
			return err
		}
		a.AppointmentAt = in.AppointmentAt
		a.Status = StatusRescheduled
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		changedBy := caller.UserID
		return s.appointments.AddReschedule(ctx, &Reschedule{
			AppointmentID: a.ID,
			PreviousAt:    previous,
			NewAt:         a.AppointmentAt,
			ChangedBy:     &changedBy,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", id.String()).Time("previous_at", previous).
		Time("appointment_at", a.AppointmentAt).Msg("appointment rescheduled")
	s.publishAppointment(ctx, "appointment.rescheduled", a)
	return a, nil
}

// CompleteAppointment is reserved for the doctor who owns the appointment.
func (s *Service) CompleteAppointment(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doctorID, ok, err := s.doctors.DoctorIDByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !ok || doctorID != a.DoctorID {
		return nil, apperr.Forbidden("You can only complete your own appointments")
	}
	return s.transition(ctx, a, StatusCompleted, "appointment.completed")
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, a, StatusCancelled, "appointment.cancelled")
}

func (s *Service) transition(ctx context.Context, a *Appointment, to Status, eventType string) (*Appointment, error) {
	if !a.Status.Active() {
		return nil, apperr.Conflict("Appointment is already %s", a.Status)
	}
	if err := s.appointments.UpdateStatus(ctx, a.ID, to); err != nil {
		return nil, err
	}
	now := s.now()
	a.Status = to
	a.UpdatedAt = &now
	s.logger.Info().Str("appointment_id", a.ID.String()).Str("status", string(to)).Msg("appointment status changed")
	s.publishAppointment(ctx, eventType, a)
	return a, nil
}

// SetStatus overwrites the status without transition checks.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, raw string) (*Appointment, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid status. Valid values are: scheduled, completed, cancelled, noshow, rescheduled")
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	now := s.now()
	a.Status = status
	a.UpdatedAt = &now
	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(status)).Msg("appointment status overwritten")
	s.publishAppointment(ctx, "appointment.status_changed", a)
	return a, nil
}

func (s *Service) AppointmentHistory(ctx context.Context, id uuid.UUID) ([]*Reschedule, error) {
	if _, err := s.appointments.GetByID(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.appointments.ListReschedules(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Reschedule{}
	}
	return items, nil
}

// -- Search --

func (s *Service) callerDoctorID(ctx context.Context, caller auth.Caller) (uuid.UUID, error) {
	doctorID, ok, err := s.doctors.DoctorIDByUser(ctx, caller.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, apperr.Forbidden("No doctor profile is linked to this account")
	}
	return doctorID, nil
}

// SearchAppointments applies f, forcing the doctor filter for doctor callers.
func (s *Service) SearchAppointments(ctx context.Context, caller auth.Caller, f Filter) (pagination.PagedResponse[*Appointment], error) {
	if caller.IsDoctorOnly() {
		doctorID, err := s.callerDoctorID(ctx, caller)
		if err != nil {
			return pagination.PagedResponse[*Appointment]{}, err
		}
		f.DoctorID = &doctorID
	}
	return s.search(ctx, f)
}

// MyAppointments lists the calling doctor's appointments.
func (s *Service) MyAppointments(ctx context.Context, caller auth.Caller, f Filter) (pagination.PagedResponse[*Appointment], error) {
	doctorID, err := s.callerDoctorID(ctx, caller)
	if err != nil {
		return pagination.PagedResponse[*Appointment]{}, err
	}
	f.DoctorID = &doctorID
	return s.search(ctx, f)
}

func (s *Service) PatientAppointments(ctx context.Context, patientID uuid.UUID, f Filter) (pagination.PagedResponse[*Appointment], error) {
	f.PatientID = &patientID
	return s.search(ctx, f)
}

func (s *Service) search(ctx context.Context, f Filter) (pagination.PagedResponse[*Appointment], error) {
	f = f.normalize()
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return pagination.PagedResponse[*Appointment]{}, apperr.Validation("fromDate must not be after toDate")
	}
	items, total, err := s.appointments.Search(ctx, f, s.now())
	if err != nil {
		return pagination.PagedResponse[*Appointment]{}, err
	}
	return pagination.NewPagedResponse(items, total, f.Page), nil
}
