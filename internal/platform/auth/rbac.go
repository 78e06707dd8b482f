package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const (
	RoleAdmin        = "admin"
	RoleReceptionist = "receptionist"
	RoleDoctor       = "doctor"
)

// ValidRole reports whether r is one of the clinic roles.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleReceptionist || r == RoleDoctor
}

// RequireRole returns middleware that checks the user holds at least one of
// the listed roles. Admin is not implied: every route lists it explicitly
// where admins are allowed.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// Caller is the identity a domain operation acts on behalf of. Handlers build
// it from the request and pass it explicitly into services.
type Caller struct {
	UserID uuid.UUID
	Roles  []string
}

func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c Caller) IsAdmin() bool { return c.HasRole(RoleAdmin) }

// IsDoctorOnly reports a caller whose visibility is limited to their own
// appointments: a doctor without an admin or receptionist role.
func (c Caller) IsDoctorOnly() bool {
	return c.HasRole(RoleDoctor) && !c.HasRole(RoleAdmin) && !c.HasRole(RoleReceptionist)
}

// CallerFromContext builds a Caller from the identity set by the auth middleware.
func CallerFromContext(ctx context.Context) (Caller, error) {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return Caller{}, apperr.Unauthorized("authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Caller{}, apperr.Unauthorized("invalid subject in token")
	}
	return Caller{UserID: id, Roles: RolesFromContext(ctx)}, nil
}
