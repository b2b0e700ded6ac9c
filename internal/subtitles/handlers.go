package subtitles

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
)

// Handlers provides HTTP handlers for subtitle operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new subtitles handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers subtitle routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/scan", h.Scan)
	g.POST("/apply", h.Apply)
}

// ApplyRequest carries the gap requests to fill.
type ApplyRequest struct {
	Requests []Request `json:"requests"`
}

// Scan reports subtitle gaps without downloading anything. limit caps the
// number of items with gaps included in the report.
// POST /api/v1/subtitles/scan?scope=movies|episodes|all&limit=N
func (h *Handlers) Scan(c echo.Context) error {
	scope, err := media.ParseScope(c.QueryParam("scope"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	report, err := h.service.Scan(c.Request().Context(), scope, limit)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// Apply downloads subtitles for previously scanned gaps.
// POST /api/v1/subtitles/apply
func (h *Handlers) Apply(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	report, err := h.service.Apply(c.Request().Context(), req.Requests)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, faults.ErrConnectivity):
		return http.StatusBadGateway
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, faults.ErrRateLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
