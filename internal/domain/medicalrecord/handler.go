package medicalrecord

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
	api.GET("/users/:id/records", h.List, requireOwnerOrDoctor)
	api.POST("/users/:id/records", h.Upload, auth.RequireSelf("id"))
}

// requireOwnerOrDoctor lets users read their own records and doctors read
// the records of their patients.
func requireOwnerOrDoctor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if c.Param("id") == auth.UserIDFromContext(ctx) || auth.HasAnyRole(ctx, auth.RoleDoctor) {
			return next(c)
		}
		return echo.NewHTTPError(http.StatusForbidden, "access to another user's records is not allowed")
	}
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByUser(c.Request().Context(), c.Param("id"), c.QueryParam("documentType"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Record{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer f.Close()

	docType := c.FormValue("documentType")
	if docType == "" {
		docType = "Other"
	}
	rec, err := h.svc.Upload(c.Request().Context(), UploadInput{
		UserID:       c.Param("id"),
		UploadedBy:   auth.UserIDFromContext(c.Request().Context()),
		DocumentType: docType,
		FileName:     fh.Filename,
		ContentType:  fh.Header.Get("Content-Type"),
		Content:      f,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}
