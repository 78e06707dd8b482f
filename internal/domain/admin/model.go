package admin

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User maps to the users table. Every account holds exactly one role.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Phone        *string   `json:"phone_number,omitempty"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserInput is the body of POST /users. Specialization and license
// are required for doctors and ignored otherwise.
type CreateUserInput struct {
	Email          string  `json:"email"`
	FullName       string  `json:"full_name"`
	Password       string  `json:"password"`
	Phone          *string `json:"phone_number"`
	Role           string  `json:"role"`
	Specialization string  `json:"specialization"`
	LicenseNumber  string  `json:"license_number"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token      string    `json:"token"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Roles      []string  `json:"roles"`
	Expiration time.Time `json:"expiration"`
}

// CreatedUser is returned by POST /users. DoctorID is set for doctor accounts.
type CreatedUser struct {
	*User
	DoctorID *uuid.UUID `json:"doctor_id,omitempty"`
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
