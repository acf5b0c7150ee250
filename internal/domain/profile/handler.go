package profile

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
	"github.com/rajaaravindrakoti2006-hash/doctor/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/:id", h.UpdateDoctor, auth.RequireRole(auth.RoleDoctor), auth.RequireSelf("id"))

	api.GET("/patients/:id", h.GetPatient, requireSelfOrDoctor)
	api.PUT("/patients/:id", h.UpdatePatient, auth.RequireRole(auth.RolePatient), auth.RequireSelf("id"))
}

func requireSelfOrDoctor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if c.Param("id") == auth.UserIDFromContext(ctx) || auth.HasAnyRole(ctx, auth.RoleDoctor) {
			return next(c)
		}
		return echo.NewHTTPError(http.StatusForbidden, "access to another patient's profile is not allowed")
	}
}

func errorStatus(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("specialty"), pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	d, err := h.svc.GetDoctor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = c.Param("id")
	if err := c.Validate(&d); err != nil {
		return err
	}
	if err := h.svc.UpsertDoctor(c.Request().Context(), &d); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = c.Param("id")
	if err := c.Validate(&p); err != nil {
		return err
	}
	if err := h.svc.UpsertPatient(c.Request().Context(), &p); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, p)
}
