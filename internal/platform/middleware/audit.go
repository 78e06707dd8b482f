package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// AuditEntry records who touched which clinic record, when and with what outcome.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	ResourceID string
	Action     string // create, read, search, update, delete, cancel, complete, login
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit emits an audit entry for every /api/v1 request after the handler
// has run. The entry is always logged; when recorder is non-nil it is also
// handed to the recorder.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = apperr.StatusCode(err)
			}

			resource, resourceID, sub := splitAPIPath(path)
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
				Resource:   resource,
				ResourceID: resourceID,
				Action:     auditAction(req.Method, resourceID, sub),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			if resource == "auth" {
				entry.Action = "login"
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/")
}

// splitAPIPath breaks /api/v1/<resource>[/<id>][/<sub>] into its parts.
// The id is only reported when it parses as a UUID, so
// /api/v1/appointments/my yields resource "appointments" and sub "my".
func splitAPIPath(path string) (resource, id, sub string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", "", ""
	}
	resource = segments[0]
	for _, s := range segments[1:] {
		if id == "" {
			if _, err := uuid.Parse(s); err == nil {
				id = s
				continue
			}
		}
		sub = s
	}
	return resource, id, sub
}

func auditAction(method, id, sub string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		if id == "" {
			return "search"
		}
		return "read"
	case http.MethodPost:
		switch sub {
		case "cancel", "complete", "restore":
			return sub
		case "available-slots":
			return "search"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
