// Package sandbox generates reproducible demo data for development
// environments: doctor and receptionist accounts, patients, weekly
// availability and a spread of upcoming bookings.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	DoctorCount           int    `json:"doctor_count"`
	PatientCount          int    `json:"patient_count"`
	AppointmentsPerDoctor int    `json:"appointments_per_doctor"`
	DaysAhead             int    `json:"days_ahead"`
	Password              string `json:"password"`
	Seed                  int64  `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		DoctorCount:           5,
		PatientCount:          40,
		AppointmentsPerDoctor: 8,
		DaysAhead:             14,
		Password:              "Welcome123",
	}
}

func (c SeedConfig) withDefaults() SeedConfig {
	d := DefaultSeedConfig()
	if c.DoctorCount <= 0 {
		c.DoctorCount = d.DoctorCount
	}
	if c.PatientCount <= 0 {
		c.PatientCount = d.PatientCount
	}
	if c.AppointmentsPerDoctor < 0 {
		c.AppointmentsPerDoctor = 0
	}
	if c.DaysAhead <= 0 {
		c.DaysAhead = d.DaysAhead
	}
	if c.Password == "" {
		c.Password = d.Password
	}
	return c
}

// ---------------------------------------------------------------------------
// Seed records
// ---------------------------------------------------------------------------

type DoctorSeed struct {
	Email          string
	FullName       string
	Phone          string
	Specialization string
	LicenseNumber  string
}

type PatientSeed struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Gender      string
	Phone       string
	Email       string
	Address     string
}

// WindowSeed is a weekly availability window in minutes since midnight.
type WindowSeed struct {
	Day         time.Weekday
	StartMinute int
	EndMinute   int
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Doctors       int           `json:"doctors"`
	Receptionists int           `json:"receptionists"`
	Patients      int           `json:"patients"`
	Windows       int           `json:"windows"`
	Appointments  int           `json:"appointments"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration"`
}

// Sink persists generated records. Implementations go through the regular
// services so every business rule applies to seeded data.
type Sink interface {
	CreateDoctor(ctx context.Context, d DoctorSeed, password string) (uuid.UUID, error)
	CreateReceptionist(ctx context.Context, email, fullName, password string) error
	CreatePatient(ctx context.Context, p PatientSeed) (uuid.UUID, error)
	AddWindow(ctx context.Context, doctorID uuid.UUID, w WindowSeed) error
	Book(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time) error
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

var (
	firstNamesMale = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Joseph", "Thomas", "Daniel", "Matthew", "Anthony", "Andrew", "Samuel",
	}
	firstNamesFemale = []string{
		"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Susan", "Sarah",
		"Karen", "Emily", "Rachel", "Laura", "Anna", "Helen", "Maria",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Martinez", "Wilson", "Anderson", "Taylor", "Moore", "Clark",
		"Lewis", "Walker", "Young", "King", "Wright", "Scott", "Hill", "Adams",
	}
	streets = []string{
		"123 Main St", "456 Oak Ave", "789 Elm St", "321 Pine Rd",
		"654 Maple Dr", "987 Cedar Ln", "147 Birch Blvd", "258 Walnut Way",
	}
	cities = []string{
		"Springfield", "Riverside", "Fairview", "Madison", "Georgetown", "Salem",
	}
	specializations = []string{
		"General Practice", "Cardiology", "Dermatology", "Pediatrics",
		"Orthopedics", "Neurology", "Ophthalmology", "Psychiatry",
	}

	// Morning and afternoon blocks; each doctor works a subset of weekdays.
	shifts = [][2]int{{9 * 60, 12 * 60}, {13 * 60, 17 * 60}}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic seed records.
type DataGenerator struct {
	rng     *rand.Rand
	counter int
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("(%03d) %03d-%04d", 200+g.rng.Intn(800), 200+g.rng.Intn(800), g.rng.Intn(10000))
}

func (g *DataGenerator) person() (first, last, gender string) {
	if g.rng.Intn(2) == 0 {
		first, gender = g.pick(firstNamesMale), "Male"
	} else {
		first, gender = g.pick(firstNamesFemale), "Female"
	}
	return first, g.pick(lastNames), gender
}

// email builds a unique address; the counter keeps repeated names apart.
func (g *DataGenerator) email(first, last, domain string) string {
	g.counter++
	return fmt.Sprintf("%s.%s.%d@%s", strings.ToLower(first), strings.ToLower(last), g.counter, domain)
}

func (g *DataGenerator) GenerateDoctor() DoctorSeed {
	first, last, _ := g.person()
	return DoctorSeed{
		Email:          g.email(first, last, "staff.clinic.test"),
		FullName:       first + " " + last,
		Phone:          g.randomPhone(),
		Specialization: g.pick(specializations),
		LicenseNumber:  fmt.Sprintf("MD-%06d", g.rng.Intn(1000000)),
	}
}

// GeneratePatient returns an adult or child born between 1940 and 2020.
func (g *DataGenerator) GeneratePatient() PatientSeed {
	first, last, gender := g.person()
	dob := time.Date(1940+g.rng.Intn(81), time.Month(1+g.rng.Intn(12)), 1+g.rng.Intn(28), 0, 0, 0, 0, time.UTC)
	return PatientSeed{
		FirstName:   first,
		LastName:    last,
		DateOfBirth: dob,
		Gender:      gender,
		Phone:       g.randomPhone(),
		Email:       g.email(first, last, "patients.clinic.test"),
		Address:     g.pick(streets) + ", " + g.pick(cities),
	}
}

// GenerateWeek returns two to five working days, each with one or both
// shifts. Windows on the same day never overlap.
func (g *DataGenerator) GenerateWeek() []WindowSeed {
	days := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	g.rng.Shuffle(len(days), func(i, j int) { days[i], days[j] = days[j], days[i] })
	days = days[:2+g.rng.Intn(4)]

	var out []WindowSeed
	for _, d := range days {
		switch g.rng.Intn(3) {
		case 0:
			out = append(out, WindowSeed{Day: d, StartMinute: shifts[0][0], EndMinute: shifts[0][1]})
		case 1:
			out = append(out, WindowSeed{Day: d, StartMinute: shifts[1][0], EndMinute: shifts[1][1]})
		default:
			for _, s := range shifts {
				out = append(out, WindowSeed{Day: d, StartMinute: s[0], EndMinute: s[1]})
			}
		}
	}
	return out
}

// SlotInWeek picks a 30-minute slot start inside one of the windows on a day
// between 1 and daysAhead days after today, in loc. ok is false when no
// day in range matches a window.
func (g *DataGenerator) SlotInWeek(windows []WindowSeed, today time.Time, daysAhead int, loc *time.Location) (time.Time, bool) {
	y, m, d := today.In(loc).Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var candidates []time.Time
	for i := 1; i <= daysAhead; i++ {
		day := base.AddDate(0, 0, i)
		for _, w := range windows {
			if w.Day != day.Weekday() {
				continue
			}
			for off := w.StartMinute; off+30 <= w.EndMinute; off += 30 {
				candidates = append(candidates, day.Add(time.Duration(off)*time.Minute))
			}
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}
	return candidates[g.rng.Intn(len(candidates))], true
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

type Seeder struct {
	sink   Sink
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewSeeder(sink Sink, loc *time.Location, logger zerolog.Logger) *Seeder {
	if loc == nil {
		loc = time.UTC
	}
	return &Seeder{sink: sink, loc: loc, now: time.Now, logger: logger.With().Str("component", "sandbox").Logger()}
}

// Generate writes one receptionist plus the configured doctors, patients,
// windows and bookings. Bookings that collide with an existing one are
// counted as skipped; any other error aborts the run.
func (s *Seeder) Generate(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	cfg = cfg.withDefaults()
	gen := NewDataGenerator(cfg.Seed)
	result := &SeedResult{}

	first, last, _ := gen.person()
	if err := s.sink.CreateReceptionist(ctx, gen.email(first, last, "staff.clinic.test"), first+" "+last, cfg.Password); err != nil {
		return nil, fmt.Errorf("seed receptionist: %w", err)
	}
	result.Receptionists = 1

	patientIDs := make([]uuid.UUID, 0, cfg.PatientCount)
	for i := 0; i < cfg.PatientCount; i++ {
		id, err := s.sink.CreatePatient(ctx, gen.GeneratePatient())
		if err != nil {
			return nil, fmt.Errorf("seed patient: %w", err)
		}
		patientIDs = append(patientIDs, id)
	}
	result.Patients = len(patientIDs)

	for i := 0; i < cfg.DoctorCount; i++ {
		doctorID, err := s.sink.CreateDoctor(ctx, gen.GenerateDoctor(), cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("seed doctor: %w", err)
		}
		result.Doctors++

		week := gen.GenerateWeek()
		for _, w := range week {
			if err := s.sink.AddWindow(ctx, doctorID, w); err != nil {
				return nil, fmt.Errorf("seed window: %w", err)
			}
			result.Windows++
		}

		for j := 0; j < cfg.AppointmentsPerDoctor; j++ {
			at, ok := gen.SlotInWeek(week, s.now(), cfg.DaysAhead, s.loc)
			if !ok {
				break
			}
			patientID := patientIDs[gen.rng.Intn(len(patientIDs))]
			err := s.sink.Book(ctx, doctorID, patientID, at)
			if apperr.KindOf(err) == apperr.KindConflict {
				result.Skipped++
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("seed appointment: %w", err)
			}
			result.Appointments++
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().Int("doctors", result.Doctors).Int("patients", result.Patients).
		Int("appointments", result.Appointments).Int("skipped", result.Skipped).
		Dur("duration", result.Duration).Msg("sandbox data seeded")
	return result, nil
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// SeedHandler exposes the seeder over HTTP; only registered in development.
type SeedHandler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var cfg SeedConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.seeder.Generate(c.Request().Context(), cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}
