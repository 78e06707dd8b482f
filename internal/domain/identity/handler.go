package identity

import (
	"net/http"

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

// RegisterRoutes checks roles per route so unknown paths under /patients
// fall through to 404.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist)
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist, auth.RoleDoctor)
	admin := auth.RequireRole(auth.RoleAdmin)

	api.POST("/patients", h.CreatePatient, desk)
	api.GET("/patients", h.ListPatients, staff)
	api.GET("/patients/:id", h.GetPatient, staff)
	api.PUT("/patients/:id", h.UpdatePatient, desk)
	api.DELETE("/patients/:id", h.DeletePatient, admin)
	api.POST("/patients/:id/restore", h.RestorePatient, admin)

	doctors := api.Group("/doctors", admin)
	doctors.POST("", h.CreateDoctor)
	doctors.GET("", h.ListDoctors)
	doctors.GET("/:id", h.GetDoctor)
	doctors.PUT("/:id", h.UpdateDoctor)
	doctors.DELETE("/:id", h.DeleteDoctor)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	term := c.QueryParam("searchTerm")
	if term == "" {
		term = c.QueryParam("search")
	}
	resp, err := h.svc.ListPatients(c.Request().Context(), caller, term, pagination.PageFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ok, err := h.svc.DeletePatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RestorePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ok, err := h.svc.RestorePatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("Patient not found or not deleted")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient restored successfully"})
}

// -- Doctors --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.UserID == uuid.Nil {
		return apperr.Validation("user_id is required")
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	resp, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("specialization"), pagination.PageFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ok, err := h.svc.DeleteDoctor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("doctor not found")
	}
	return c.NoContent(http.StatusNoContent)
}
