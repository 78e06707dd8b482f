package db

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/pkg/pagination"
)

// AuditRecord is one row of audit_log.
type AuditRecord struct {
	UserID     string    `json:"user_id,omitempty"`
	UserRoles  []string  `json:"user_roles"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	Action     string    `json:"action"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// AuditStore appends access records to audit_log.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

func (s *AuditStore) Insert(ctx context.Context, rec AuditRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (user_id, user_roles, resource, resource_id, action, method, path,
			status_code, ip_address, user_agent, request_id, recorded_at)
		VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.UserID, rec.UserRoles, rec.Resource, rec.ResourceID, rec.Action, rec.Method, rec.Path,
		rec.StatusCode, rec.IPAddress, rec.UserAgent, rec.RequestID, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// List returns audit records newest first. A non-empty userID restricts the
// result to that user.
func (s *AuditStore) List(ctx context.Context, userID string, p pagination.Params) ([]AuditRecord, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE ($1 = '' OR user_id = $1)`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(user_id, ''), COALESCE(user_roles, '{}'), resource, COALESCE(resource_id, ''),
			action, method, path, status_code, COALESCE(ip_address, ''), COALESCE(user_agent, ''),
			COALESCE(request_id, ''), recorded_at
		FROM audit_log
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY recorded_at DESC, id DESC
		`+p.SQL(), userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.UserID, &r.UserRoles, &r.Resource, &r.ResourceID, &r.Action, &r.Method,
			&r.Path, &r.StatusCode, &r.IPAddress, &r.UserAgent, &r.RequestID, &r.RecordedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// AuditLister is satisfied by *AuditStore.
type AuditLister interface {
	List(ctx context.Context, userID string, p pagination.Params) ([]AuditRecord, int, error)
}

// AuditLogHandler serves the audit trail with limit/offset paging and an
// optional user_id filter.
func AuditLogHandler(store AuditLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := pagination.FromContext(c)
		records, total, err := store.List(c.Request().Context(), c.QueryParam("user_id"), p)
		if err != nil {
			return err
		}
		if records == nil {
			records = []AuditRecord{}
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
	}
}
