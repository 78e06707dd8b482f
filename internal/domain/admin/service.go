// Package admin manages staff accounts and issues access tokens.
package admin

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

var errBadCredentials = apperr.Unauthorized("Invalid email or password")

type Service struct {
	users   UserRepository
	doctors identity.DoctorRepository
	tx      Transactor
	issuer  TokenIssuer
	logger  zerolog.Logger
}

func NewService(users UserRepository, doctors identity.DoctorRepository, tx Transactor,
	issuer TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		users:   users,
		doctors: doctors,
		tx:      tx,
		issuer:  issuer,
		logger:  logger.With().Str("component", "admin").Logger(),
	}
}

// -- Authentication --

func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := auth.CheckPassword(u.PasswordHash, req.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn().Str("user_id", u.ID.String()).Msg("login rejected")
		return nil, errBadCredentials
	}

	roles := []string{u.Role}
	token, exp, err := s.issuer.Issue(u.ID, u.Email, u.FullName, roles)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("login")
	return &TokenResponse{Token: token, Email: u.Email, FullName: u.FullName, Roles: roles, Expiration: exp}, nil
}

// -- Users --

func validateAccount(email, fullName, password string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation("email is not a valid address")
	}
	if n := utf8.RuneCountInString(fullName); n < 2 || n > 100 {
		return apperr.Validation("full_name must be between 2 and 100 characters")
	}
	return auth.ValidatePassword(password)
}

// CreateUser creates a doctor or receptionist account. Doctor accounts get
// their profile in the same transaction.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*CreatedUser, error) {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.LicenseNumber = strings.TrimSpace(in.LicenseNumber)

	if err := validateAccount(in.Email, in.FullName, in.Password); err != nil {
		return nil, err
	}
	if in.Role != auth.RoleDoctor && in.Role != auth.RoleReceptionist {
		return nil, apperr.Validation("Role must be either Doctor or Receptionist")
	}
	if in.Role == auth.RoleDoctor && (in.Specialization == "" || in.LicenseNumber == "") {
		return nil, apperr.Validation("Specialization and License Number are required for doctors")
	}
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{Email: in.Email, FullName: in.FullName, Phone: in.Phone, Role: in.Role, PasswordHash: hash}
	out := &CreatedUser{User: u}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if u.Role != auth.RoleDoctor {
			return nil
		}
		d := &identity.Doctor{UserID: u.ID, Specialization: in.Specialization, LicenseNumber: in.LicenseNumber}
		if err := s.doctors.Create(ctx, d); err != nil {
			return err
		}
		out.DoctorID = &d.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user created")
	return out, nil
}

// CreateAdmin bootstraps an administrator account from the command line.
func (s *Service) CreateAdmin(ctx context.Context, email, fullName, password string) (*User, error) {
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if err := validateAccount(email, fullName, password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{Email: email, FullName: fullName, Role: auth.RoleAdmin, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("admin account created")
	return u, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return errEmailTaken
	case apperr.KindOf(err) == apperr.KindNotFound:
		return nil
	default:
		return err
	}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, role string, page pagination.Page) (pagination.PagedResponse[*User], error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" && !auth.ValidRole(role) {
		return pagination.PagedResponse[*User]{}, apperr.Validation("unknown role %q", role)
	}
	items, total, err := s.users.List(ctx, role, page)
	if err != nil {
		return pagination.PagedResponse[*User]{}, err
	}
	if items == nil {
		items = []*User{}
	}
	return pagination.NewPagedResponse(items, total, page), nil
}

// UserRole reports the role of an account; it backs doctor profile checks.
func (s *Service) UserRole(ctx context.Context, id uuid.UUID) (string, bool, error) {
	return s.users.UserRole(ctx, id)
}
