package dedup

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
)

// Handlers provides HTTP handlers for dedup operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new dedup handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers dedup routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("/scan", h.Scan)
	g.POST("/apply", h.Apply)
}

// ApplyRequest carries the plans to execute and the requested mode.
type ApplyRequest struct {
	Plans  []Plan `json:"plans"`
	DryRun *bool  `json:"dryRun,omitempty"`
}

// Scan builds duplicate-resolution plans without touching anything.
// POST /api/v1/dedup/scan?scope=movies|episodes|all
func (h *Handlers) Scan(c echo.Context) error {
	scope, err := media.ParseScope(c.QueryParam("scope"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := h.service.Scan(c.Request().Context(), scope)
	if err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

// Apply executes previously scanned plans. Dry run unless the request
// says otherwise, and the server-side dry-run setting always wins.
// POST /api/v1/dedup/apply
func (h *Handlers) Apply(c echo.Context) error {
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	mode := ModeSimulate
	if req.DryRun != nil && !*req.DryRun {
		mode = ModeApply
	}

	report, err := h.service.Apply(c.Request().Context(), req.Plans, mode)
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
