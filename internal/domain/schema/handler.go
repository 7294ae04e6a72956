package schema

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/fields/canonical", h.GetCanonical)
	api.GET("/fields/custom", h.ListCustom)
	api.POST("/fields/custom", h.AddCustom)
	api.DELETE("/fields/custom/:name", h.RemoveCustom)
}

func (h *Handler) GetCanonical(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Canonical())
}

func (h *Handler) ListCustom(c echo.Context) error {
	fields, err := h.svc.ListCustomFields(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"fields": fields})
}

type addCustomFieldRequest struct {
	FieldName    string  `json:"field_name"`
	DefaultValue *string `json:"default_value"`
}

func (h *Handler) AddCustom(c echo.Context) error {
	var req addCustomFieldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, updated, err := h.svc.AddCustomField(c.Request().Context(), req.FieldName, req.DefaultValue)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"field":            f,
		"patients_updated": updated,
	})
}

func (h *Handler) RemoveCustom(c echo.Context) error {
	cleared, err := h.svc.RemoveCustomField(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"removed":          c.Param("name"),
		"patients_updated": cleared,
	})
}
