package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid, _ := c.Get("request_id").(string); rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return nil
	}

	RequestID()(handler)(c)

	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	RequestID()(okHandler)(c)

	if got := rec.Header().Get(RequestIDHeader); len(got) > 128 {
		t.Errorf("expected oversized id to be replaced, got length %d", len(got))
	}
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-1")

	if err := Logger(logger)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := decodeLogLine(t, &buf)
	if line["level"] != "info" {
		t.Errorf("expected info level, got %v", line["level"])
	}
	if line["request_id"] != "req-1" || line["path"] != "/test" {
		t.Errorf("unexpected log fields %v", line)
	}
	if line["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", line["status"])
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  float64
	}{
		{"client error", apperr.Conflict("This time slot is already booked"), "warn", 409},
		{"not found", echo.NewHTTPError(http.StatusNotFound, "missing"), "warn", 404},
		{"server error", errorString("boom"), "error", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil), httptest.NewRecorder())

			handler := func(c echo.Context) error { return tt.err }
			if err := Logger(zerolog.New(&buf))(handler)(c); err != tt.err {
				t.Fatalf("expected handler error to pass through, got %v", err)
			}

			line := decodeLogLine(t, &buf)
			if line["level"] != tt.wantLevel {
				t.Errorf("expected %s level, got %v", tt.wantLevel, line["level"])
			}
			if line["status"] != tt.wantCode {
				t.Errorf("expected status %v, got %v", tt.wantCode, line["status"])
			}
		})
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	err := Recovery(zerolog.Nop())(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := Recovery(zerolog.Nop())(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
