package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/websocket"
)

// -- Mock Repositories --

type mockWindowRepo struct {
	windows map[uuid.UUID]*Window
}

func newMockWindowRepo() *mockWindowRepo {
	return &mockWindowRepo{windows: make(map[uuid.UUID]*Window)}
}

func (m *mockWindowRepo) Create(_ context.Context, w *Window) error {
	w.ID = uuid.New()
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	w.DayName = w.DayOfWeek.String()
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *mockWindowRepo) GetByID(_ context.Context, id uuid.UUID) (*Window, error) {
	w, ok := m.windows[id]
	if !ok {
		return nil, errWindowNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *mockWindowRepo) Update(_ context.Context, w *Window) error {
	if _, ok := m.windows[w.ID]; !ok {
		return errWindowNotFound
	}
	w.UpdatedAt = time.Now()
	cp := *w
	m.windows[w.ID] = &cp
	return nil
}

func (m *mockWindowRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.windows[id]
	delete(m.windows, id)
	return ok, nil
}

func (m *mockWindowRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Window, error) {
	var result []*Window
	for _, w := range m.windows {
		if w.DoctorID == doctorID {
			cp := *w
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DayOfWeek != result[j].DayOfWeek {
			return result[i].DayOfWeek < result[j].DayOfWeek
		}
		return result[i].Start < result[j].Start
	})
	return result, nil
}

func (m *mockWindowRepo) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]*Window, error) {
	all, _ := m.ListByDoctor(ctx, doctorID)
	var result []*Window
	for _, w := range all {
		if w.DayOfWeek == day {
			result = append(result, w)
		}
	}
	return result, nil
}

type mockApptRepo struct {
	appts       map[uuid.UUID]*Appointment
	reschedules []*Reschedule
	// deletedPatients hides appointments the way the patient soft-delete join does.
	deletedPatients map[uuid.UUID]bool
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{
		appts:           make(map[uuid.UUID]*Appointment),
		deletedPatients: make(map[uuid.UUID]bool),
	}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	for _, other := range m.appts {
		if other.Status == StatusScheduled && a.Status == StatusScheduled &&
			other.DoctorID == a.DoctorID && other.AppointmentAt.Equal(a.AppointmentAt) {
			return errSlotTaken
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || m.deletedPatients[a.PatientID] {
		return nil, errAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.appts[a.ID]; !ok {
		return errAppointmentNotFound
	}
	now := time.Now()
	a.UpdatedAt = &now
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	a, ok := m.appts[id]
	if !ok {
		return errAppointmentNotFound
	}
	now := time.Now()
	a.Status = status
	a.UpdatedAt = &now
	return nil
}

func (m *mockApptRepo) ExistsScheduledAt(_ context.Context, doctorID uuid.UUID, at time.Time, exclude *uuid.UUID) (bool, error) {
	for _, a := range m.appts {
		if exclude != nil && a.ID == *exclude {
			continue
		}
		if a.DoctorID == doctorID && a.Status == StatusScheduled && a.AppointmentAt.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockApptRepo) ScheduledBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Status == StatusScheduled &&
			!a.AppointmentAt.Before(from) && a.AppointmentAt.Before(to) {
			out = append(out, a.AppointmentAt)
		}
	}
	return out, nil
}

// Search supports the id, status and date filters; text filters are covered
// by the SQL builder tests.
func (m *mockApptRepo) Search(_ context.Context, f Filter, now time.Time) ([]*Appointment, int, error) {
	var matched []*Appointment
	for _, a := range m.appts {
		switch {
		case m.deletedPatients[a.PatientID]:
		case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
		case f.PatientID != nil && a.PatientID != *f.PatientID:
		case f.Status != nil && a.Status != *f.Status:
		case f.From != nil && a.AppointmentAt.Before(*f.From):
		case f.To != nil && a.AppointmentAt.After(*f.To):
		case f.UpcomingOnly && !a.AppointmentAt.After(now):
		default:
			cp := *a
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].AppointmentAt.Equal(matched[j].AppointmentAt) {
			if f.Desc {
				return matched[i].AppointmentAt.After(matched[j].AppointmentAt)
			}
			return matched[i].AppointmentAt.Before(matched[j].AppointmentAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	start := f.Page.Offset()
	if start > total {
		start = total
	}
	end := start + f.Page.Limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *mockApptRepo) CountByDoctor(_ context.Context, doctorID uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.appts {
		if a.DoctorID == doctorID {
			n++
		}
	}
	return n, nil
}

func (m *mockApptRepo) AddReschedule(_ context.Context, r *Reschedule) error {
	r.ID = uuid.New()
	r.ChangedAt = time.Now()
	cp := *r
	m.reschedules = append(m.reschedules, &cp)
	return nil
}

func (m *mockApptRepo) ListReschedules(_ context.Context, appointmentID uuid.UUID) ([]*Reschedule, error) {
	var out []*Reschedule
	for _, r := range m.reschedules {
		if r.AppointmentID == appointmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockDoctors struct {
	names  map[uuid.UUID]string
	byUser map[uuid.UUID]uuid.UUID
}

func (m *mockDoctors) DoctorName(_ context.Context, doctorID uuid.UUID) (string, bool, error) {
	name, ok := m.names[doctorID]
	return name, ok, nil
}

func (m *mockDoctors) DoctorIDByUser(_ context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	id, ok := m.byUser[userID]
	return id, ok, nil
}

type mockPatients struct {
	ids map[uuid.UUID]bool
}

func (m *mockPatients) PatientExists(_ context.Context, patientID uuid.UUID) (bool, error) {
	return m.ids[patientID], nil
}

// inlineTx runs fn directly and records the lock keys it was asked for.
type inlineTx struct {
	keys []string
}

func (t *inlineTx) Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	t.keys = append(t.keys, key)
	return fn(ctx)
}

type recordingPublisher struct {
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type+"@"+ev.Topic)
	}
	return out
}

// -- Fixture --

// monday is a Monday in the test clinic's calendar; the fixture clock sits
// two days earlier.
var (
	monday   = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, time.January, 4, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc        *Service
	windows    *mockWindowRepo
	appts      *mockApptRepo
	doctors    *mockDoctors
	patients   *mockPatients
	tx         *inlineTx
	events     *recordingPublisher
	doctorID   uuid.UUID
	doctorUser uuid.UUID
	patientID  uuid.UUID
}

func newFixture() *fixture {
	return newFixtureIn(time.UTC)
}

func newFixtureIn(loc *time.Location) *fixture {
	f := &fixture{
		windows:    newMockWindowRepo(),
		appts:      newMockApptRepo(),
		tx:         &inlineTx{},
		events:     &recordingPublisher{},
		doctorID:   uuid.New(),
		doctorUser: uuid.New(),
		patientID:  uuid.New(),
	}
	f.doctors = &mockDoctors{
		names:  map[uuid.UUID]string{f.doctorID: "Dr. Ana Ruiz"},
		byUser: map[uuid.UUID]uuid.UUID{f.doctorUser: f.doctorID},
	}
	f.patients = &mockPatients{ids: map[uuid.UUID]bool{f.patientID: true}}
	f.svc = NewService(f.windows, f.appts, f.doctors, f.patients, f.tx, loc, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.SetEventPublisher(f.events)
	return f
}

// addDoctor registers another doctor with a linked user account.
func (f *fixture) addDoctor(name string) (doctorID, userID uuid.UUID) {
	doctorID, userID = uuid.New(), uuid.New()
	f.doctors.names[doctorID] = name
	f.doctors.byUser[userID] = doctorID
	return doctorID, userID
}

func (f *fixture) addPatient() uuid.UUID {
	id := uuid.New()
	f.patients.ids[id] = true
	return id
}

func at(date time.Time, hour, minute int) time.Time {
	return NewClockTime(hour, minute).On(date)
}
