package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WindowRepository interface {
	Create(ctx context.Context, w *Window) error
	GetByID(ctx context.Context, id uuid.UUID) (*Window, error)
	Update(ctx context.Context, w *Window) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Window, error)
	ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]*Window, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// ExistsScheduledAt reports whether a scheduled appointment other than
	// exclude occupies the doctor's slot at exactly at.
	ExistsScheduledAt(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error)
	// ScheduledBetween returns the start times of scheduled appointments in [from, to).
	ScheduledBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
	Search(ctx context.Context, f Filter, now time.Time) ([]*Appointment, int, error)
	CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error)
	// History
	AddReschedule(ctx context.Context, r *Reschedule) error
	ListReschedules(ctx context.Context, appointmentID uuid.UUID) ([]*Reschedule, error)
}

// DoctorLookup resolves doctor profiles owned by the identity domain.
type DoctorLookup interface {
	DoctorName(ctx context.Context, doctorID uuid.UUID) (name string, ok bool, err error)
	DoctorIDByUser(ctx context.Context, userID uuid.UUID) (doctorID uuid.UUID, ok bool, err error)
}

// PatientLookup reports whether a non-deleted patient exists.
type PatientLookup interface {
	PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error)
}

// Serializer runs fn in a transaction that excludes other holders of key.
type Serializer interface {
	Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
