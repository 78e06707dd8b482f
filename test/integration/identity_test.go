//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clinic/clinic/internal/domain/admin"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

func receptionistInput() admin.CreateUserInput {
	return admin.CreateUserInput{
		Email:    "desk@clinic.test",
		FullName: "Front Desk",
		Password: "Welcome123",
		Role:     auth.RoleReceptionist,
	}
}

func TestUsers_CreateAndLogin(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	doc := s.createDoctor(t, "House@Clinic.test", "Gregory House", "Diagnostics")
	if doc.Email != "house@clinic.test" {
		t.Errorf("expected normalized email, got %q", doc.Email)
	}
	profile, err := s.identity.GetDoctor(ctx, *doc.DoctorID)
	if err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if profile.UserID != doc.ID || profile.FullName != "Gregory House" || profile.Email != "house@clinic.test" {
		t.Errorf("unexpected profile %+v", profile)
	}

	in := receptionistInput()
	in.Email = "HOUSE@clinic.test"
	if _, err := s.admin.CreateUser(ctx, in); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate email: expected conflict, got %v", err)
	}

	resp, err := s.admin.Login(ctx, admin.LoginRequest{Email: "house@clinic.test", Password: "Diagnose42"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token == "" || len(resp.Roles) != 1 || resp.Roles[0] != auth.RoleDoctor {
		t.Errorf("unexpected login response %+v", resp)
	}
	if _, err := s.admin.Login(ctx, admin.LoginRequest{Email: "house@clinic.test", Password: "nope"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("bad password: expected unauthorized, got %v", err)
	}

	users, err := s.admin.ListUsers(ctx, auth.RoleDoctor, pagination.NewPage(1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if users.Total != 1 {
		t.Errorf("expected 1 doctor account, got %d", users.Total)
	}
}

func TestPatients_SoftDeleteAndRestore(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	p := s.createPatient(t, "Ada", "Lovelace", "ada@clinic.test")

	ok, err := s.identity.DeletePatient(ctx, p.ID)
	if err != nil || !ok {
		t.Fatalf("DeletePatient: %v %v", ok, err)
	}
	if exists, _ := s.identity.PatientExists(ctx, p.ID); exists {
		t.Error("deleted patient should not be bookable")
	}
	deleted, err := s.patients.GetDeleted(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetDeleted: %v", err)
	}
	if !deleted.IsDeleted || deleted.DeletedAt == nil {
		t.Errorf("expected soft-delete markers, got %+v", deleted)
	}

	adminCaller := auth.Caller{Roles: []string{auth.RoleAdmin}}
	list, err := s.identity.ListPatients(ctx, adminCaller, "", pagination.NewPage(1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 0 {
		t.Errorf("deleted patients must be hidden, got %d", list.Total)
	}

	// The email is free while the patient is deleted, which blocks restore.
	s.createPatient(t, "Ada", "King", "ada@clinic.test")
	if _, err := s.identity.RestorePatient(ctx, p.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("restore with taken email: expected conflict, got %v", err)
	}
}

func TestPatients_SearchAndDoctorScope(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	f.createPatient(t, "Bob", "Builder", "bob@clinic.test")
	f.book(t, f.at(9, 0))

	adminCaller := auth.Caller{Roles: []string{auth.RoleAdmin}}
	byTerm, err := f.identity.ListPatients(ctx, adminCaller, "lovelace", pagination.NewPage(1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if byTerm.Total != 1 || byTerm.Items[0].ID != f.patientID {
		t.Errorf("term search: unexpected %+v", byTerm)
	}
	if byTerm.Items[0].Age < 40 {
		t.Errorf("expected computed age, got %d", byTerm.Items[0].Age)
	}

	doctor := auth.Caller{UserID: f.doctorUserID, Roles: []string{auth.RoleDoctor}}
	seen, err := f.identity.ListPatients(ctx, doctor, "", pagination.NewPage(1, 10))
	if err != nil {
		t.Fatal(err)
	}
	if seen.Total != 1 || seen.Items[0].ID != f.patientID {
		t.Errorf("doctor should only see their patients, got %+v", seen)
	}
}

func TestDoctors_DeleteBlockedByAppointments(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	f.book(t, f.at(11, 30))

	if _, err := f.identity.DeleteDoctor(ctx, f.doctorID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	free := f.createDoctor(t, "idle@clinic.test", "Idle Doctor", "Dermatology")
	if _, err := f.scheduling.AddWindow(ctx, scheduling.WindowInput{
		DoctorID:  *free.DoctorID,
		DayOfWeek: int(time.Tuesday),
		Start:     scheduling.NewClockTime(8, 0),
		End:       scheduling.NewClockTime(9, 0),
	}); err != nil {
		t.Fatal(err)
	}
	ok, err := f.identity.DeleteDoctor(ctx, *free.DoctorID)
	if err != nil || !ok {
		t.Fatalf("DeleteDoctor: %v %v", ok, err)
	}
	if _, err := f.admin.GetUser(ctx, free.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleting the doctor should remove the account, got %v", err)
	}
	windows, err := f.windows.ListByDoctor(ctx, *free.DoctorID)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) != 0 {
		t.Errorf("windows should cascade, got %d", len(windows))
	}
}
