package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs access tokens that JWTMiddleware accepts.
type Issuer struct {
	cfg JWTConfig
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(cfg JWTConfig, ttl time.Duration) *Issuer {
	return &Issuer{cfg: cfg, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the user together with its expiry.
func (i *Issuer) Issue(userID uuid.UUID, email, name string, roles []string) (string, time.Time, error) {
	if len(i.cfg.SigningKey) == 0 {
		return "", time.Time{}, errors.New("signing key not configured")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Email: email,
		Name:  name,
		Roles: roles,
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
