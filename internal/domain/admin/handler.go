package admin

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// LoginPath is served without authentication.
const LoginPath = "/auth/login"

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST(LoginPath, h.Login)

	api.GET("/auth/me", h.Me, auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist, auth.RoleDoctor))

	admin := api.Group("/users", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.CreateUser)
	admin.GET("", h.ListUsers)
	admin.GET("/:id", h.GetUser)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c echo.Context) error {
	caller, err := auth.CallerFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), caller.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var in CreateUserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.CreateUser(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	resp, err := h.svc.ListUsers(c.Request().Context(), c.QueryParam("role"), pagination.PageFromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
