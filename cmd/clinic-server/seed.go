package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/domain/admin"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/sandbox"
)

// services is the domain service graph shared by the server and the CLI.
type services struct {
	admin      *admin.Service
	identity   *identity.Service
	scheduling *scheduling.Service
}

func newServices(pool *pgxpool.Pool, issuer admin.TokenIssuer, loc *time.Location, logger zerolog.Logger) *services {
	txRunner := db.NewTxRunner(pool)
	doctorRepo := identity.NewDoctorRepoPG(pool)
	appointmentRepo := scheduling.NewAppointmentRepoPG(pool)

	adminSvc := admin.NewService(admin.NewUserRepoPG(pool), doctorRepo, txRunner, issuer, logger)
	identitySvc := identity.NewService(identity.NewPatientRepoPG(pool), doctorRepo, adminSvc, appointmentRepo, logger)
	schedulingSvc := scheduling.NewService(scheduling.NewWindowRepoPG(pool), appointmentRepo,
		identitySvc, identitySvc, txRunner, loc, logger)
	return &services{admin: adminSvc, identity: identitySvc, scheduling: schedulingSvc}
}

// =========== Sandbox Sink ===========

// serviceSink writes seed records through the domain services.
type serviceSink struct {
	svc *services
}

func (s serviceSink) CreateDoctor(ctx context.Context, d sandbox.DoctorSeed, password string) (uuid.UUID, error) {
	u, err := s.svc.admin.CreateUser(ctx, admin.CreateUserInput{
		Email:          d.Email,
		FullName:       d.FullName,
		Password:       password,
		Phone:          &d.Phone,
		Role:           auth.RoleDoctor,
		Specialization: d.Specialization,
		LicenseNumber:  d.LicenseNumber,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return *u.DoctorID, nil
}

func (s serviceSink) CreateReceptionist(ctx context.Context, email, fullName, password string) error {
	_, err := s.svc.admin.CreateUser(ctx, admin.CreateUserInput{
		Email:    email,
		FullName: fullName,
		Password: password,
		Role:     auth.RoleReceptionist,
	})
	return err
}

func (s serviceSink) CreatePatient(ctx context.Context, p sandbox.PatientSeed) (uuid.UUID, error) {
	y, m, d := p.DateOfBirth.Date()
	created, err := s.svc.identity.CreatePatient(ctx, identity.PatientInput{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: identity.NewDate(y, m, d),
		Gender:      p.Gender,
		Phone:       p.Phone,
		Email:       &p.Email,
		Address:     &p.Address,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return created.ID, nil
}

func (s serviceSink) AddWindow(ctx context.Context, doctorID uuid.UUID, w sandbox.WindowSeed) error {
	_, err := s.svc.scheduling.AddWindow(ctx, scheduling.WindowInput{
		DoctorID:  doctorID,
		DayOfWeek: int(w.Day),
		Start:     scheduling.NewClockTime(w.StartMinute/60, w.StartMinute%60),
		End:       scheduling.NewClockTime(w.EndMinute/60, w.EndMinute%60),
	})
	return err
}

func (s serviceSink) Book(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time) error {
	_, err := s.svc.scheduling.CreateAppointment(ctx, scheduling.CreateAppointmentInput{
		PatientID:     patientID,
		DoctorID:      doctorID,
		AppointmentAt: at,
	})
	return err
}

func seedCmd() *cobra.Command {
	defaults := sandbox.DefaultSeedConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo staff, patients and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sc sandbox.SeedConfig
			sc.DoctorCount, _ = cmd.Flags().GetInt("doctors")
			sc.PatientCount, _ = cmd.Flags().GetInt("patients")
			sc.AppointmentsPerDoctor, _ = cmd.Flags().GetInt("appointments")
			sc.DaysAhead, _ = cmd.Flags().GetInt("days")
			sc.Password, _ = cmd.Flags().GetString("password")
			sc.Seed, _ = cmd.Flags().GetInt64("seed")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if !cfg.IsDev() {
				return fmt.Errorf("seed is only available when ENV=development")
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			logger := newLogger()
			seeder := sandbox.NewSeeder(serviceSink{svc: newServices(pool, nil, loc, logger)}, loc, logger)
			result, err := seeder.Generate(ctx, sc)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d doctor(s), %d receptionist(s), %d patient(s), %d window(s), %d appointment(s) (%d skipped).\n",
				result.Doctors, result.Receptionists, result.Patients, result.Windows, result.Appointments, result.Skipped)
			return nil
		},
	}
	cmd.Flags().Int("doctors", defaults.DoctorCount, "Number of doctor accounts")
	cmd.Flags().Int("patients", defaults.PatientCount, "Number of patients")
	cmd.Flags().Int("appointments", defaults.AppointmentsPerDoctor, "Booking attempts per doctor")
	cmd.Flags().Int("days", defaults.DaysAhead, "Book within this many days from today")
	cmd.Flags().String("password", defaults.Password, "Password for every seeded account")
	cmd.Flags().Int64("seed", 0, "Random seed (0 picks one from the clock)")
	return cmd
}
