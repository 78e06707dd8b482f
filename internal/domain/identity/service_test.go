package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

var (
	desk  = auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleReceptionist}}
	admin = auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}}
)

func TestCreatePatient(t *testing.T) {
	f := newFixture()
	in := validPatient()
	in.FirstName = "  Jane "
	in.Address = strPtr("   ")

	p, err := f.svc.CreatePatient(context.Background(), in)
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.FullName != "Jane Smith" {
		t.Errorf("expected full name 'Jane Smith', got %q", p.FullName)
	}
	if p.Gender != "Female" {
		t.Errorf("expected canonical gender, got %q", p.Gender)
	}
	if p.Address != nil {
		t.Errorf("blank address should be stored as nil, got %q", *p.Address)
	}
	if p.Age != 34 {
		t.Errorf("expected age 34 on %s, got %d", fixedNow.Format("2006-01-02"), p.Age)
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PatientInput)
	}{
		{"missing first name", func(in *PatientInput) { in.FirstName = " " }},
		{"missing last name", func(in *PatientInput) { in.LastName = "" }},
		{"missing dob", func(in *PatientInput) { in.DateOfBirth = Date{} }},
		{"future dob", func(in *PatientInput) { in.DateOfBirth = NewDate(2030, time.January, 1) }},
		{"bad gender", func(in *PatientInput) { in.Gender = "unknown" }},
		{"missing phone", func(in *PatientInput) { in.Phone = "" }},
		{"bad email", func(in *PatientInput) { in.Email = strPtr("not-an-email") }},
		{"first name too long", func(in *PatientInput) { in.FirstName = strings.Repeat("a", 51) }},
		{"address too long", func(in *PatientInput) { in.Address = strPtr(strings.Repeat("a", 201)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validPatient()
			tt.mutate(&in)
			_, err := f.svc.CreatePatient(context.Background(), in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreatePatient_LimitsCountCharacters(t *testing.T) {
	f := newFixture()
	in := validPatient()
	in.FirstName = strings.Repeat("é", 50)
	in.LastName = strings.Repeat("ø", 50)
	in.Address = strPtr(strings.Repeat("ü", 200))

	if _, err := f.svc.CreatePatient(context.Background(), in); err != nil {
		t.Fatalf("names at the limit in two-byte characters should pass: %v", err)
	}
}

func TestValidateProfile_LimitsCountCharacters(t *testing.T) {
	if err := validateProfile(strings.Repeat("é", 100), strings.Repeat("ß", 50)); err != nil {
		t.Errorf("values at the limit should pass: %v", err)
	}
	if err := validateProfile(strings.Repeat("é", 101), "L-1"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for 101 characters, got %v", err)
	}
}

func TestCreatePatient_DuplicateEmail(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.CreatePatient(context.Background(), validPatient()); err != nil {
		t.Fatal(err)
	}
	in := validPatient()
	in.Email = strPtr("JANE@example.com")
	_, err := f.svc.CreatePatient(context.Background(), in)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "A patient with this email already exists" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCreatePatient_EmailReusableAfterDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreatePatient(ctx, validPatient())
	if ok, err := f.svc.DeletePatient(ctx, p.ID); err != nil || !ok {
		t.Fatalf("DeletePatient: %v %v", ok, err)
	}
	if _, err := f.svc.CreatePatient(ctx, validPatient()); err != nil {
		t.Fatalf("email of a deleted patient should be reusable: %v", err)
	}
	// The original cannot come back while its email is taken.
	if _, err := f.svc.RestorePatient(ctx, p.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict on restore, got %v", err)
	}
}

func TestUpdatePatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreatePatient(ctx, validPatient())

	in := validPatient()
	in.LastName = "Doe"
	in.Phone = "555-0199"
	got, err := f.svc.UpdatePatient(ctx, p.ID, in)
	if err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}
	if got.FullName != "Jane Doe" || got.Phone != "555-0199" {
		t.Errorf("unexpected patient %+v", got)
	}

	other := validPatient()
	other.Email = strPtr("other@example.com")
	o, _ := f.svc.CreatePatient(ctx, other)
	_, err = f.svc.UpdatePatient(ctx, o.ID, validPatient())
	if !errors.Is(err, apperr.ErrConflict) || err.Error() != "Another patient with this email already exists" {
		t.Fatalf("expected email conflict, got %v", err)
	}

	if _, err := f.svc.UpdatePatient(ctx, uuid.New(), validPatient()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteAndRestorePatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreatePatient(ctx, validPatient())

	if ok, _ := f.svc.RestorePatient(ctx, p.ID); ok {
		t.Error("restoring an active patient should report false")
	}
	if ok, _ := f.svc.DeletePatient(ctx, p.ID); !ok {
		t.Fatal("expected delete to succeed")
	}
	if ok, _ := f.svc.DeletePatient(ctx, p.ID); ok {
		t.Error("second delete should report false")
	}
	if _, err := f.svc.GetPatient(ctx, desk, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted patient should be hidden, got %v", err)
	}
	if exists, _ := f.svc.PatientExists(ctx, p.ID); exists {
		t.Error("deleted patient should not exist for booking")
	}

	if ok, err := f.svc.RestorePatient(ctx, p.ID); err != nil || !ok {
		t.Fatalf("RestorePatient: %v %v", ok, err)
	}
	if exists, _ := f.svc.PatientExists(ctx, p.ID); !exists {
		t.Error("restored patient should exist")
	}
	if ok, _ := f.svc.RestorePatient(ctx, uuid.New()); ok {
		t.Error("restoring an unknown patient should report false")
	}
}

func TestGetPatient_DoctorScope(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p, _ := f.svc.CreatePatient(ctx, validPatient())
	userA, doctorA := f.addDoctor("Alice", "Cardiology")
	userB, _ := f.addDoctor("Bob", "Dermatology")
	f.patients.link(p.ID, doctorA)

	asA := auth.Caller{UserID: userA, Roles: []string{auth.RoleDoctor}}
	if _, err := f.svc.GetPatient(ctx, asA, p.ID); err != nil {
		t.Fatalf("own patient should be visible: %v", err)
	}
	asB := auth.Caller{UserID: userB, Roles: []string{auth.RoleDoctor}}
	if _, err := f.svc.GetPatient(ctx, asB, p.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	noProfile := auth.Caller{UserID: uuid.New(), Roles: []string{auth.RoleDoctor}}
	if _, err := f.svc.GetPatient(ctx, noProfile, p.ID); err != errNoDoctorProfile {
		t.Fatalf("expected missing profile error, got %v", err)
	}
	if _, err := f.svc.GetPatient(ctx, desk, p.ID); err != nil {
		t.Fatalf("receptionist should see every patient: %v", err)
	}
}

func TestListPatients(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	names := []string{"Adams", "Baker", "Clark"}
	ids := make([]uuid.UUID, len(names))
	for i, n := range names {
		in := validPatient()
		in.LastName = n
		in.Email = nil
		p, err := f.svc.CreatePatient(ctx, in)
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = p.ID
	}
	userID, doctorID := f.addDoctor("Alice", "Cardiology")
	f.patients.link(ids[1], doctorID)

	resp, err := f.svc.ListPatients(ctx, desk, "", pagination.NewPage(1, 2))
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if resp.Total != 3 || len(resp.Items) != 2 || resp.TotalPages != 2 {
		t.Errorf("unexpected page: total %d items %d pages %d", resp.Total, len(resp.Items), resp.TotalPages)
	}
	if resp.Items[0].Age == 0 {
		t.Error("expected age to be filled in")
	}

	resp, _ = f.svc.ListPatients(ctx, desk, "clark", pagination.NewPage(1, 10))
	if resp.Total != 1 || resp.Items[0].LastName != "Clark" {
		t.Errorf("term filter: %+v", resp)
	}

	asDoctor := auth.Caller{UserID: userID, Roles: []string{auth.RoleDoctor}}
	resp, _ = f.svc.ListPatients(ctx, asDoctor, "", pagination.NewPage(1, 10))
	if resp.Total != 1 || resp.Items[0].ID != ids[1] {
		t.Errorf("doctor should only see own patients, got %+v", resp)
	}

	resp, _ = f.svc.ListPatients(ctx, desk, "nobody", pagination.NewPage(1, 10))
	if resp.Items == nil {
		t.Error("empty result should be an empty slice")
	}
}

func TestCreateDoctor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	f.users[userID] = auth.RoleDoctor

	d, err := f.svc.CreateDoctor(ctx, DoctorInput{UserID: userID, Specialization: " Cardiology ", LicenseNumber: "L-1"})
	if err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}
	if d.Specialization != "Cardiology" || d.UserID != userID {
		t.Errorf("unexpected doctor %+v", d)
	}

	_, err = f.svc.CreateDoctor(ctx, DoctorInput{UserID: userID, Specialization: "X", LicenseNumber: "L-2"})
	if err != errDoctorExists {
		t.Fatalf("expected duplicate profile conflict, got %v", err)
	}
}

func TestCreateDoctor_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	receptionist := uuid.New()
	f.users[receptionist] = auth.RoleReceptionist

	tests := []struct {
		name string
		in   DoctorInput
		kind apperr.Kind
	}{
		{"unknown user", DoctorInput{UserID: uuid.New(), Specialization: "A", LicenseNumber: "B"}, apperr.KindNotFound},
		{"wrong role", DoctorInput{UserID: receptionist, Specialization: "A", LicenseNumber: "B"}, apperr.KindValidation},
		{"missing specialization", DoctorInput{UserID: receptionist, LicenseNumber: "B"}, apperr.KindValidation},
		{"missing license", DoctorInput{UserID: receptionist, Specialization: "A"}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateDoctor(ctx, tt.in)
			if got := apperr.KindOf(err); got != tt.kind {
				t.Fatalf("expected %v, got %v (%v)", tt.kind, got, err)
			}
		})
	}
}

func TestUpdateDoctor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, doctorID := f.addDoctor("Alice", "Cardiology")

	d, err := f.svc.UpdateDoctor(ctx, doctorID, DoctorInput{
		Specialization: "Neurology", LicenseNumber: "N-9", Phone: strPtr(" 555-0111 "),
	})
	if err != nil {
		t.Fatalf("UpdateDoctor: %v", err)
	}
	if d.Specialization != "Neurology" || d.LicenseNumber != "N-9" || d.Phone != "555-0111" {
		t.Errorf("unexpected doctor %+v", d)
	}
	if _, err := f.svc.UpdateDoctor(ctx, uuid.New(), DoctorInput{Specialization: "A", LicenseNumber: "B"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteDoctor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, busy := f.addDoctor("Alice", "Cardiology")
	_, idle := f.addDoctor("Bob", "Dermatology")
	f.appts[busy] = 2

	if _, err := f.svc.DeleteDoctor(ctx, busy); err != errDoctorHasAppts {
		t.Fatalf("expected conflict for doctor with appointments, got %v", err)
	}
	if ok, err := f.svc.DeleteDoctor(ctx, idle); err != nil || !ok {
		t.Fatalf("DeleteDoctor: %v %v", ok, err)
	}
	if ok, _ := f.svc.DeleteDoctor(ctx, idle); ok {
		t.Error("second delete should report false")
	}
}

func TestDoctorLookups(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID, doctorID := f.addDoctor("Alice", "Cardiology")

	name, ok, err := f.svc.DoctorName(ctx, doctorID)
	if err != nil || !ok || name != "Alice" {
		t.Errorf("DoctorName = %q %v %v", name, ok, err)
	}
	if _, ok, _ := f.svc.DoctorName(ctx, uuid.New()); ok {
		t.Error("unknown doctor should not resolve")
	}
	id, ok, err := f.svc.DoctorIDByUser(ctx, userID)
	if err != nil || !ok || id != doctorID {
		t.Errorf("DoctorIDByUser = %v %v %v", id, ok, err)
	}
	if _, ok, _ := f.svc.DoctorIDByUser(ctx, admin.UserID); ok {
		t.Error("admin has no doctor profile")
	}
}
