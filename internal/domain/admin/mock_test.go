package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

// -- Mock Repositories --

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, cur := range m.users {
		if strings.EqualFold(cur.Email, u.Email) {
			return errEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, errUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errUserNotFound
}

func (m *mockUserRepo) List(_ context.Context, role string, page pagination.Page) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		if role == "" || u.Role == role {
			cp := *u
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func (m *mockUserRepo) UserRole(_ context.Context, id uuid.UUID) (string, bool, error) {
	u, ok := m.users[id]
	if !ok {
		return "", false, nil
	}
	return u.Role, true, nil
}

// mockDoctorRepo implements identity.DoctorRepository; only Create is
// reached from this package.
type mockDoctorRepo struct {
	doctors map[uuid.UUID]*identity.Doctor
	failing bool
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*identity.Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *identity.Doctor) error {
	if m.failing {
		return errors.New("insert doctor: connection reset")
	}
	d.ID = uuid.New()
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*identity.Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, apperr.NotFound("doctor not found")
}

func (m *mockDoctorRepo) Update(context.Context, *identity.Doctor) error { return nil }

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.doctors[id]
	delete(m.doctors, id)
	return ok, nil
}

func (m *mockDoctorRepo) List(context.Context, string, pagination.Page) ([]*identity.Doctor, int, error) {
	return nil, 0, nil
}

// mockTx restores the user map when fn fails, standing in for a rollback.
type mockTx struct {
	users *mockUserRepo
	calls int
}

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	snapshot := make(map[uuid.UUID]*User, len(m.users.users))
	for k, v := range m.users.users {
		snapshot[k] = v
	}
	if err := fn(ctx); err != nil {
		m.users.users = snapshot
		return err
	}
	return nil
}

// -- Fixture --

var testJWT = auth.JWTConfig{
	Issuer:     "clinic-api",
	Audience:   "clinic-clients",
	SigningKey: []byte("test-signing-key-with-32-bytes!!"),
}

type fixture struct {
	svc     *Service
	users   *mockUserRepo
	doctors *mockDoctorRepo
	tx      *mockTx
}

func newFixture() *fixture {
	f := &fixture{users: newMockUserRepo(), doctors: newMockDoctorRepo()}
	f.tx = &mockTx{users: f.users}
	f.svc = NewService(f.users, f.doctors, f.tx, auth.NewIssuer(testJWT, time.Hour), zerolog.Nop())
	return f
}

func strPtr(s string) *string { return &s }

func receptionistInput() CreateUserInput {
	return CreateUserInput{
		Email:    "Front.Desk@Clinic.test",
		FullName: "Front Desk",
		Password: "Welcome123",
		Role:     "Receptionist",
	}
}

func doctorInput() CreateUserInput {
	return CreateUserInput{
		Email:          "house@clinic.test",
		FullName:       "Gregory House",
		Password:       "Diagnose42",
		Phone:          strPtr("555-0142"),
		Role:           "Doctor",
		Specialization: "Diagnostics",
		LicenseNumber:  "MD-42",
	}
}
