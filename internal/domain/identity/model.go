package identity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day.
type Date struct{ time.Time }

func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string like \"1990-04-21\"")
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// AgeOn returns completed years between d and now.
func (d Date) AgeOn(now time.Time) int {
	y, m, day := now.Date()
	age := y - d.Year()
	if m < d.Month() || (m == d.Month() && day < d.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

var validGenders = map[string]string{"male": "Male", "female": "Female", "other": "Other"}

// NormalizeGender maps any casing of Male/Female/Other to its canonical form.
func NormalizeGender(g string) (string, bool) {
	v, ok := validGenders[strings.ToLower(strings.TrimSpace(g))]
	return v, ok
}

// Patient maps to the patients table.
type Patient struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	FullName    string     `json:"full_name"`
	DateOfBirth Date       `json:"date_of_birth"`
	Age         int        `json:"age"`
	Gender      string     `json:"gender"`
	Phone       string     `json:"phone_number"`
	Email       *string    `json:"email,omitempty"`
	Address     *string    `json:"address,omitempty"`
	IsDeleted   bool       `json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PatientInput carries the writable patient fields.
type PatientInput struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth Date    `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Phone       string  `json:"phone_number"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

// Doctor maps to the doctors table joined with the owning user account.
type Doctor struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone_number,omitempty"`
	Specialization string    `json:"specialization"`
	LicenseNumber  string    `json:"license_number"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type DoctorInput struct {
	UserID         uuid.UUID `json:"user_id"`
	Specialization string    `json:"specialization"`
	LicenseNumber  string    `json:"license_number"`
	Phone          *string   `json:"phone_number"`
}
