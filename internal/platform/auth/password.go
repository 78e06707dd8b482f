package auth

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const minPasswordLength = 8

// ValidatePassword enforces the staff password policy: at least eight
// characters with an upper-case letter, a lower-case letter and a digit.
func ValidatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return apperr.Validation("password must contain an uppercase letter, a lowercase letter and a number")
	}
	return nil
}

func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether pw matches hash. A malformed hash is an error;
// a mismatch is not.
func CheckPassword(hash, pw string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
