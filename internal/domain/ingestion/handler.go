package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncotracker/oncotracker/internal/platform/auth"
	"github.com/oncotracker/oncotracker/internal/platform/blobstore"
	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc  *Service
	dict *metric.Dictionary
}

func NewHandler(svc *Service, dict *metric.Dictionary) *Handler {
	return &Handler{svc: svc, dict: dict}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireRole(auth.RolePhysician, auth.RoleViewer)
	write := auth.RequireRole(auth.RolePhysician)

	api.GET("/metrics", h.ListMetrics, read)
	api.POST("/datasets/analyze", h.Analyze, write)

	api.GET("/patients/:id/dataset", h.Download, read)
	api.POST("/patients/:id/dataset", h.Upload, write)
	api.PUT("/patients/:id/dataset/rows", h.SaveRows, write)
	api.POST("/patients/:id/dataset/template", h.CreateTemplate, write)
	api.POST("/patients/:id/dataset/reconcile", h.Reconcile, write)
}

// outOfSyncResponse tells the caller the file was kept and a reconcile is due.
type outOfSyncResponse struct {
	Error  string        `json:"error"`
	Result *IngestResult `json:"result,omitempty"`
}

func (h *Handler) ListMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"metrics":  h.dict.Definitions(),
		"template": h.dict.TemplateMetrics(),
	})
}

func (h *Handler) Analyze(c echo.Context) error {
	name, content, err := readFormFile(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Analyze(c.Request().Context(), name, content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Upload(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	name, content, err := readFormFile(c)
	if err != nil {
		return err
	}

	up := Upload{
		FileName:    name,
		Content:     content,
		PatientName: c.FormValue("patient_name"),
	}
	if raw := c.FormValue("mapping"); raw != "" {
		var m mapping.Manual
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid mapping: "+err.Error())
		}
		up.Mapping = &m
	}
	if raw := c.FormValue("canonical"); raw != "" {
		up.AssumeCanonical, err = strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "canonical must be a boolean")
		}
	}

	res, err := h.svc.Ingest(c.Request().Context(), patientID, up)
	return ingestResponse(c, http.StatusCreated, res, err)
}

func (h *Handler) SaveRows(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	res, err := h.svc.SaveRows(c.Request().Context(), patientID, body, c.QueryParam("patient_name"))
	return ingestResponse(c, http.StatusOK, res, err)
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var body struct {
		PatientName string `json:"patient_name"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	res, err := h.svc.CreateTemplate(c.Request().Context(), patientID, body.PatientName)
	return ingestResponse(c, http.StatusCreated, res, err)
}

func (h *Handler) Reconcile(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	n, err := h.svc.Reconcile(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id":   patientID,
		"observations": n,
	})
}

func (h *Handler) Download(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	content, err := h.svc.Download(c.Request().Context(), patientID)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", DatasetKey(patientID)))
	return c.Blob(http.StatusOK, xlsxContentType, content)
}

func readFormFile(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
	}
	return fh.Filename, content, nil
}

func ingestResponse(c echo.Context, status int, res *IngestResult, err error) error {
	if errors.Is(err, ErrObservationsOutOfSync) {
		return c.JSON(http.StatusInternalServerError, outOfSyncResponse{Error: err.Error(), Result: res})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(status, res)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, ErrInvalidUpload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient has no dataset")
	case errors.Is(err, ErrDatasetExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoCanonicalData):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrOracleUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, mapping.ErrAnalysisFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
