// Package identity manages the clinic's patient registry and doctor profiles.
package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

var (
	errPatientEmailTaken = apperr.Conflict("A patient with this email already exists")
	errPatientEmailInUse = apperr.Conflict("Another patient with this email already exists")
	errDoctorExists      = apperr.Conflict("Doctor profile already exists for this user")
	errDoctorHasAppts    = apperr.Conflict("Cannot delete doctor with existing appointments. Please reassign or cancel appointments first.")
	errNoDoctorProfile   = apperr.Forbidden("No doctor profile is linked to this account")
)

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
	users    UserRoleLookup
	appts    AppointmentCounter
	now      func() time.Time
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, doctors DoctorRepository, users UserRoleLookup,
	appts AppointmentCounter, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		doctors:  doctors,
		users:    users,
		appts:    appts,
		now:      time.Now,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
}

// -- Patients --

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) validatePatient(in *PatientInput) error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = optional(in.Email)
	in.Address = optional(in.Address)

	switch {
	case in.FirstName == "":
		return apperr.Validation("first_name is required")
	case utf8.RuneCountInString(in.FirstName) > 50:
		return apperr.Validation("first_name must be at most 50 characters")
	case in.LastName == "":
		return apperr.Validation("last_name is required")
	case utf8.RuneCountInString(in.LastName) > 50:
		return apperr.Validation("last_name must be at most 50 characters")
	case in.DateOfBirth.IsZero():
		return apperr.Validation("date_of_birth is required")
	case in.DateOfBirth.After(s.now()):
		return apperr.Validation("date_of_birth cannot be in the future")
	case in.Phone == "":
		return apperr.Validation("phone_number is required")
	case utf8.RuneCountInString(in.Phone) > 20:
		return apperr.Validation("phone_number must be at most 20 characters")
	}
	gender, ok := NormalizeGender(in.Gender)
	if !ok {
		return apperr.Validation("gender must be Male, Female or Other")
	}
	in.Gender = gender
	if in.Email != nil {
		if _, err := mail.ParseAddress(*in.Email); err != nil {
			return apperr.Validation("email is not a valid address")
		}
	}
	if in.Address != nil && utf8.RuneCountInString(*in.Address) > 200 {
		return apperr.Validation("address must be at most 200 characters")
	}
	return nil
}

func (s *Service) withAge(p *Patient) *Patient {
	p.Age = p.DateOfBirth.AgeOn(s.now())
	return p
}

func applyPatient(p *Patient, in PatientInput) {
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.DateOfBirth = in.DateOfBirth
	p.Gender = in.Gender
	p.Phone = in.Phone
	p.Email = in.Email
	p.Address = in.Address
}

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	if err := s.validatePatient(&in); err != nil {
		return nil, err
	}
	if in.Email != nil {
		taken, err := s.patients.EmailTaken(ctx, *in.Email, nil)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, errPatientEmailTaken
		}
	}
	p := &Patient{}
	applyPatient(p, in)
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return s.withAge(p), nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientInput) (*Patient, error) {
	if err := s.validatePatient(&in); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		taken, err := s.patients.EmailTaken(ctx, *in.Email, &id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, errPatientEmailInUse
		}
	}
	applyPatient(p, in)
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.withAge(p), nil
}

// GetPatient returns an active patient. Doctor-only callers may only see
// patients they have an appointment with.
func (s *Service) GetPatient(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsDoctorOnly() {
		doctorID, err := s.callerDoctorID(ctx, caller)
		if err != nil {
			return nil, err
		}
		seen, err := s.patients.SeenByDoctor(ctx, id, doctorID)
		if err != nil {
			return nil, err
		}
		if !seen {
			return nil, apperr.Forbidden("You can only view your own patients")
		}
	}
	return s.withAge(p), nil
}

func (s *Service) ListPatients(ctx context.Context, caller auth.Caller, term string, page pagination.Page) (pagination.PagedResponse[*Patient], error) {
	f := PatientFilter{Term: term}
	if caller.IsDoctorOnly() {
		doctorID, err := s.callerDoctorID(ctx, caller)
		if err != nil {
			return pagination.PagedResponse[*Patient]{}, err
		}
		f.DoctorID = &doctorID
	}
	items, total, err := s.patients.List(ctx, f, page)
	if err != nil {
		return pagination.PagedResponse[*Patient]{}, err
	}
	for _, p := range items {
		s.withAge(p)
	}
	if items == nil {
		items = []*Patient{}
	}
	return pagination.NewPagedResponse(items, total, page), nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.patients.SoftDelete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("patient soft-deleted")
	return true, nil
}

// RestorePatient reactivates a soft-deleted patient. It reports false when
// the patient does not exist or is not deleted.
func (s *Service) RestorePatient(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.patients.GetDeleted(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if p.Email != nil {
		taken, err := s.patients.EmailTaken(ctx, *p.Email, &id)
		if err != nil {
			return false, err
		}
		if taken {
			return false, errPatientEmailInUse
		}
	}
	return s.patients.Restore(ctx, id)
}

// PatientExists reports whether an active patient has the given id.
func (s *Service) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.patients.GetByID(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	return err == nil, err
}

// -- Doctors --

func validateProfile(specialization, license string) error {
	switch {
	case specialization == "":
		return apperr.Validation("specialization is required")
	case utf8.RuneCountInString(specialization) > 100:
		return apperr.Validation("specialization must be at most 100 characters")
	case license == "":
		return apperr.Validation("license_number is required")
	case utf8.RuneCountInString(license) > 50:
		return apperr.Validation("license_number must be at most 50 characters")
	}
	return nil
}

// CreateDoctor attaches a doctor profile to an existing doctor account.
func (s *Service) CreateDoctor(ctx context.Context, in DoctorInput) (*Doctor, error) {
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	if err := validateProfile(in.Specialization, in.LicenseNumber); err != nil {
		return nil, err
	}
	role, ok, err := s.users.UserRole(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	if role != auth.RoleDoctor {
		return nil, apperr.Validation("User does not have the Doctor role")
	}
	if _, err := s.doctors.GetByUserID(ctx, in.UserID); err == nil {
		return nil, errDoctorExists
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	d := &Doctor{UserID: in.UserID, Specialization: in.Specialization, LicenseNumber: in.LicenseNumber}
	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Str("user_id", d.UserID.String()).Msg("doctor profile created")
	return d, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	if err := validateProfile(in.Specialization, in.LicenseNumber); err != nil {
		return nil, err
	}
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Specialization = in.Specialization
	d.LicenseNumber = in.LicenseNumber
	if in.Phone != nil {
		d.Phone = strings.TrimSpace(*in.Phone)
	}
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, specialization string, page pagination.Page) (pagination.PagedResponse[*Doctor], error) {
	items, total, err := s.doctors.List(ctx, specialization, page)
	if err != nil {
		return pagination.PagedResponse[*Doctor]{}, err
	}
	if items == nil {
		items = []*Doctor{}
	}
	return pagination.NewPagedResponse(items, total, page), nil
}

// DeleteDoctor removes a doctor and its account. Doctors with any
// appointment history cannot be deleted.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := s.doctors.GetByID(ctx, id); apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	n, err := s.appts.CountByDoctor(ctx, id)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, errDoctorHasAppts
	}
	ok, err := s.doctors.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info().Str("doctor_id", id.String()).Msg("doctor deleted")
	}
	return ok, nil
}

// DoctorName returns the display name of a doctor profile.
func (s *Service) DoctorName(ctx context.Context, id uuid.UUID) (string, bool, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d.FullName, true, nil
}

// DoctorIDByUser resolves the doctor profile owned by a user account.
func (s *Service) DoctorIDByUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return d.ID, true, nil
}

func (s *Service) callerDoctorID(ctx context.Context, caller auth.Caller) (uuid.UUID, error) {
	id, ok, err := s.DoctorIDByUser(ctx, caller.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	if !ok {
		return uuid.Nil, errNoDoctorProfile
	}
	return id, nil
}
