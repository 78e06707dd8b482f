package scheduling

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes attaches the role check to each route. Groups sharing a
// prefix would each install a catch-all for it, and the last one registered
// would answer unknown paths with its own role error.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist)
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist, auth.RoleDoctor)
	doctor := auth.RequireRole(auth.RoleDoctor)
	admin := auth.RequireRole(auth.RoleAdmin)

	api.POST("/appointments", h.CreateAppointment, desk)
	api.GET("/appointments", h.SearchAppointments, staff)
	api.GET("/appointments/my", h.MyAppointments, doctor)
	api.GET("/appointments/patient/:patientId", h.PatientAppointments, desk)
	api.GET("/appointments/:id", h.GetAppointment, staff)
	api.GET("/appointments/:id/history", h.AppointmentHistory, desk)
	api.PUT("/appointments/:id", h.UpdateAppointment, desk)
	api.POST("/appointments/:id/cancel", h.CancelAppointment, desk)
	api.POST("/appointments/:id/complete", h.CompleteAppointment, doctor)
	api.PUT("/appointments/:id/status", h.SetStatus, admin)

	api.POST("/doctor-schedules", h.CreateWindow, admin)
	api.POST("/doctor-schedules/available-slots", h.AvailableSlots, desk)
	api.GET("/doctor-schedules/doctor/:doctorId", h.ListWindows, desk)
	api.GET("/doctor-schedules/:id", h.GetWindow, desk)
	api.PUT("/doctor-schedules/:id", h.UpdateWindow, admin)
	api.DELETE("/doctor-schedules/:id", h.DeleteWindow, admin)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

var dateTimeLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// parseDateTime accepts RFC 3339 or a zone-less local date-time, which is read
// in the clinic time zone.
func parseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("invalid date-time %q", s)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func queryParam(c echo.Context, names ...string) string {
	for _, n := range names {
		if v := c.QueryParam(n); v != "" {
			return v
		}
	}
	return ""
}

// filterFromQuery reads search filters. A date-only toDate covers the whole day.
func filterFromQuery(c echo.Context, loc *time.Location) (Filter, error) {
	f := Filter{
		Specialization: c.QueryParam("specialization"),
		Term:           c.QueryParam("search"),
		SortBy:         queryParam(c, "sortBy", "sort_by"),
		Page:           pagination.PageFromContext(c),
	}
	if v := queryParam(c, "doctorId", "doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid doctorId")
		}
		f.DoctorID = &id
	}
	if v := queryParam(c, "patientId", "patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return f, apperr.Validation("invalid status %q", v)
		}
		f.Status = &st
	}
	if v := queryParam(c, "fromDate", "from_date"); v != "" {
		t, err := parseBound(v, loc, false)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := queryParam(c, "toDate", "to_date"); v != "" {
		t, err := parseBound(v, loc, true)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	if v := queryParam(c, "upcomingOnly", "upcoming_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.Validation("invalid upcomingOnly %q", v)
		}
		f.UpcomingOnly = b
	}
	if v := c.QueryParam("desc"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.Validation("invalid desc %q", v)
		}
		f.Desc = b
	}
	return f, nil
}

func parseBound(v string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if len(strings.TrimSpace(v)) == len("2006-01-02") {
		d, err := parseDate(v, loc)
		if err != nil {
			return time.Time{}, err
		}
		if endOfDay {
			d = d.AddDate(0, 0, 1).Add(-time.Microsecond)
		}
		return d, nil
	}
	return parseDateTime(v, loc)
}

// -- Availability window handlers --

type windowRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	DayOfWeek *int      `json:"day_of_week"`
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
}

func (h *Handler) CreateWindow(c echo.Context) error {
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if req.DayOfWeek == nil {
		return apperr.Validation("day_of_week is required")
	}
	w, err := h.svc.AddWindow(c.Request().Context(), WindowInput{
		DoctorID:  req.DoctorID,
		DayOfWeek: *req.DayOfWeek,
		Start:     req.StartTime,
		End:       req.EndTime,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) UpdateWindow(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w, err := h.svc.UpdateWindow(c.Request().Context(), id, req.StartTime, req.EndTime)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWindow(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	removed, err := h.svc.RemoveWindow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("schedule not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetWindow(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	w, err := h.svc.GetWindow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ListWindows(c echo.Context) error {
	doctorID, err := parseID(c, "doctorId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListWindows(c.Request().Context(), doctorID)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Window{}
	}
	return c.JSON(http.StatusOK, items)
}

type slotsRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
}

func (h *Handler) AvailableSlots(c echo.Context) error {
	var req slotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	date, err := parseDate(req.Date, h.svc.Location())
	if err != nil {
		return err
	}
	resp, err := h.svc.GenerateSlots(c.Request().Context(), req.DoctorID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// -- Appointment handlers --

type appointmentRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	AppointmentDate string    `json:"appointment_date"`
	Notes           *string   `json:"notes"`
}

func (h *Handler) bindAppointment(c echo.Context) (appointmentRequest, time.Time, error) {
	var req appointmentRequest
	if err := c.Bind(&req); err != nil {
		return req, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.AppointmentDate) == "" {
		return req, time.Time{}, apperr.Validation("appointment_date is required")
	}
	at, err := parseDateTime(req.AppointmentDate, h.svc.Location())
	return req, at, err
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	req, at, err := h.bindAppointment(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), CreateAppointmentInput{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		AppointmentAt: at,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	req, at, err := h.bindAppointment(c)
	if err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), caller, id, UpdateAppointmentInput{
		AppointmentAt: at,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) AppointmentHistory(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.AppointmentHistory(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	a, err := h.svc.CompleteAppointment(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SearchAppointments(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	f, err := filterFromQuery(c, h.svc.Location())
	if err != nil {
		return err
	}
	resp, err := h.svc.SearchAppointments(c.Request().Context(), caller, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) MyAppointments(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	f, err := filterFromQuery(c, h.svc.Location())
	if err != nil {
		return err
	}
	resp, err := h.svc.MyAppointments(c.Request().Context(), caller, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) PatientAppointments(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	f, err := filterFromQuery(c, h.svc.Location())
	if err != nil {
		return err
	}
	resp, err := h.svc.PatientAppointments(c.Request().Context(), patientID, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
