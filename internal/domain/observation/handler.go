package observation

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncotracker/oncotracker/internal/platform/auth"
	"github.com/oncotracker/oncotracker/internal/platform/fhir"
	"github.com/oncotracker/oncotracker/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	read := auth.RequireRole(auth.RolePhysician, auth.RoleViewer)
	api.GET("/patients/:id/observations", h.ListObservations, read)
	fhirGroup.GET("/Observation", h.SearchObservationsFHIR, read)
}

func parseFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{
		Code:     c.QueryParam("code"),
		Category: c.QueryParam("category"),
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		t, err := parseDateParam(raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: %s", name, raw)
		}
		*dst = &t
	}
	return f, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) ListObservations(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, f, pg.Limit, pg.Offset)
	if errors.Is(err, ErrInvalidFilter) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// SearchObservationsFHIR serves GET /fhir/Observation?patient=...
func (h *Handler) SearchObservationsFHIR(c echo.Context) error {
	ref := strings.TrimPrefix(c.QueryParam("patient"), "Patient/")
	if ref == "" {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeInvalid, "patient search parameter is required"))
	}
	patientID, err := uuid.Parse(ref)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeInvalid, "invalid patient: "+ref))
	}
	f, err := parseFilter(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error()))
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, f, pg.Limit, pg.Offset)
	if errors.Is(err, ErrInvalidFilter) {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error()))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}

	resources := make([]interface{}, len(items))
	for i, o := range items {
		resources[i] = o.ToFHIR()
	}
	q := url.Values{}
	for _, k := range []string{"patient", "code", "category", "from", "to"} {
		if v := c.QueryParam(k); v != "" {
			q.Set(k, v)
		}
	}
	bundle, err := fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/Observation",
		QueryStr: q.Encode(),
		Count:    pg.Limit,
		Offset:   pg.Offset,
		Total:    total,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}
