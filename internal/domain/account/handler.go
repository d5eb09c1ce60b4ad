package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dashboard/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.POST("/auth/register", h.Register)
	api.POST("/auth/logout", h.Logout)
}

func (h *Handler) Login(c echo.Context) error {
	var creds Credentials
	if err := c.Bind(&creds); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, err := h.svc.Login(c.Request().Context(), creds)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (h *Handler) Register(c echo.Context) error {
	var creds Credentials
	if err := c.Bind(&creds); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, err := h.svc.Register(c.Request().Context(), creds)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, TokenResponse{Token: token})
}

func (h *Handler) Logout(c echo.Context) error {
	h.svc.Logout(auth.ClaimsFromContext(c))
	return c.NoContent(http.StatusNoContent)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrWeakPassword):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUsernameTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
