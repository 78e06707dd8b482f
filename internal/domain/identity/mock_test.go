package identity

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
	// seen records patient -> doctors with an appointment.
	seen map[uuid.UUID]map[uuid.UUID]bool
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{
		patients: make(map[uuid.UUID]*Patient),
		seen:     make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *mockPatientRepo) link(patientID, doctorID uuid.UUID) {
	if m.seen[patientID] == nil {
		m.seen[patientID] = make(map[uuid.UUID]bool)
	}
	m.seen[patientID][doctorID] = true
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	p.FullName = p.FirstName + " " + p.LastName
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || p.IsDeleted {
		return nil, errPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetDeleted(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok || !p.IsDeleted {
		return nil, errPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if cur, ok := m.patients[p.ID]; !ok || cur.IsDeleted {
		return errPatientNotFound
	}
	p.UpdatedAt = time.Now()
	p.FullName = p.FirstName + " " + p.LastName
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) SoftDelete(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.patients[id]
	if !ok || p.IsDeleted {
		return false, nil
	}
	now := time.Now()
	p.IsDeleted = true
	p.DeletedAt = &now
	return true, nil
}

func (m *mockPatientRepo) Restore(_ context.Context, id uuid.UUID) (bool, error) {
	p, ok := m.patients[id]
	if !ok || !p.IsDeleted {
		return false, nil
	}
	p.IsDeleted = false
	p.DeletedAt = nil
	return true, nil
}

func (m *mockPatientRepo) List(_ context.Context, f PatientFilter, page pagination.Page) ([]*Patient, int, error) {
	term := strings.ToLower(strings.TrimSpace(f.Term))
	var all []*Patient
	for _, p := range m.patients {
		if p.IsDeleted {
			continue
		}
		if f.DoctorID != nil && !m.seen[p.ID][*f.DoctorID] {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.FullName), term) && !strings.Contains(p.Phone, term) {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastName < all[j].LastName })
	total := len(all)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit()
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *mockPatientRepo) EmailTaken(_ context.Context, email string, exclude *uuid.UUID) (bool, error) {
	for _, p := range m.patients {
		if p.IsDeleted || p.Email == nil || (exclude != nil && p.ID == *exclude) {
			continue
		}
		if strings.EqualFold(*p.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPatientRepo) SeenByDoctor(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	return m.seen[patientID][doctorID], nil
}

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, cur := range m.doctors {
		if cur.UserID == d.UserID {
			return errDoctorExists
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	if d.FullName == "" {
		d.FullName = "Dr. Test"
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, errDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, errDoctorNotFound
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return errDoctorNotFound
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.doctors[id]
	delete(m.doctors, id)
	return ok, nil
}

func (m *mockDoctorRepo) List(_ context.Context, specialization string, page pagination.Page) ([]*Doctor, int, error) {
	var all []*Doctor
	for _, d := range m.doctors {
		if specialization != "" && !strings.Contains(strings.ToLower(d.Specialization), strings.ToLower(specialization)) {
			continue
		}
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FullName < all[j].FullName })
	return all, len(all), nil
}

type mockUsers map[uuid.UUID]string

func (m mockUsers) UserRole(_ context.Context, userID uuid.UUID) (string, bool, error) {
	role, ok := m[userID]
	return role, ok, nil
}

type mockAppointments map[uuid.UUID]int

func (m mockAppointments) CountByDoctor(_ context.Context, doctorID uuid.UUID) (int, error) {
	return m[doctorID], nil
}

// -- Fixture --

var fixedNow = time.Date(2025, 1, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
	users    mockUsers
	appts    mockAppointments
}

func newFixture() *fixture {
	f := &fixture{
		patients: newMockPatientRepo(),
		doctors:  newMockDoctorRepo(),
		users:    mockUsers{},
		appts:    mockAppointments{},
	}
	f.svc = NewService(f.patients, f.doctors, f.users, f.appts, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// addDoctor creates a doctor account with a profile and returns both ids.
func (f *fixture) addDoctor(name, specialization string) (userID, doctorID uuid.UUID) {
	userID = uuid.New()
	f.users[userID] = auth.RoleDoctor
	d := &Doctor{UserID: userID, FullName: name, Specialization: specialization, LicenseNumber: "LIC-" + name}
	f.doctors.Create(context.Background(), d)
	return userID, d.ID
}

func strPtr(s string) *string { return &s }

func validPatient() PatientInput {
	return PatientInput{
		FirstName:   "Jane",
		LastName:    "Smith",
		DateOfBirth: NewDate(1990, time.April, 21),
		Gender:      "female",
		Phone:       "555-0100",
		Email:       strPtr("jane@example.com"),
	}
}
