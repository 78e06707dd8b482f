package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/pagination"
)

// PatientFilter narrows a patient listing. DoctorID limits the result to
// patients with at least one appointment with that doctor.
type PatientFilter struct {
	Term     string
	DoctorID *uuid.UUID
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	// GetByID never returns soft-deleted patients.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDeleted(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id uuid.UUID) (bool, error)
	Restore(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, f PatientFilter, page pagination.Page) ([]*Patient, int, error)
	// EmailTaken checks active patients only.
	EmailTaken(ctx context.Context, email string, exclude *uuid.UUID) (bool, error)
	SeenByDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	// Delete removes the doctor together with its user account.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, specialization string, page pagination.Page) ([]*Doctor, int, error)
}

// UserRoleLookup resolves the role of a staff account.
type UserRoleLookup interface {
	UserRole(ctx context.Context, userID uuid.UUID) (role string, ok bool, err error)
}

// AppointmentCounter counts a doctor's appointments in any status.
type AppointmentCounter interface {
	CountByDoctor(ctx context.Context, doctorID uuid.UUID) (int, error)
}
