package dataset

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cohortdesk/cohortdesk/internal/domain/patient"
	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
	"github.com/cohortdesk/cohortdesk/pkg/pagination"
)

type Handler struct {
	svc      *Service
	patients *patient.Service
}

func NewHandler(svc *Service, patients *patient.Service) *Handler {
	return &Handler{svc: svc, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/datasets/upload", h.Upload)
	api.GET("/datasets", h.List)
	api.GET("/datasets/:id", h.Get)
	api.DELETE("/datasets/:id", h.Delete)
	api.GET("/datasets/:id/columns", h.Columns)
	api.GET("/datasets/:id/suggest-mappings", h.SuggestMappings)
	api.POST("/datasets/:id/map", h.ApplyMapping)
	api.GET("/datasets/:id/reprocess-check", h.ReprocessCheck)
	api.POST("/datasets/:id/reprocess-update", h.ReprocessUpdate)
	api.POST("/datasets/:id/promote-overflow", h.PromoteOverflow)
	api.GET("/datasets/:id/raw-data", h.RawData)
	api.GET("/datasets/:id/missingness", h.Missingness)
	api.POST("/datasets/:id/fill", h.Fill)
}

func (h *Handler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	d, columns, err := h.svc.Upload(c.Request().Context(), fileHeader.Filename, src, c.FormValue("data_type"))
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"dataset": d,
		"columns": columns,
	})
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	datasets, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(datasets, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Columns(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	columns, err := h.svc.Columns(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"columns": columns})
}

func (h *Handler) SuggestMappings(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	proposal, err := h.svc.SuggestMappings(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, proposal)
}

func (h *Handler) ApplyMapping(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		ColumnMap map[string]string `json:"column_map"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.ApplyMapping(c.Request().Context(), id, req.ColumnMap)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ReprocessCheck(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	report, err := h.svc.CheckReprocess(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) ReprocessUpdate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	result, err := h.svc.UpdateFromFile(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) PromoteOverflow(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Columns []string `json:"columns"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.PromoteToOverflow(c.Request().Context(), id, req.Columns)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) RawData(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	rows, err := h.svc.RawData(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) Missingness(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	report, err := h.patients.Missingness(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Fill(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Mode       string      `json:"mode"`
		PatientIDs []uuid.UUID `json:"patient_ids"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.patients.Fill(c.Request().Context(), id, req.Mode, req.PatientIDs)
	if err != nil {
		return echo.NewHTTPError(apperr.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid dataset id")
	}
	return id, nil
}
