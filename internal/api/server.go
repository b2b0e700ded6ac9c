// Package api exposes the dedup and subtitle engines over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/config"
	"github.com/reelsweep/reelsweep/internal/dedup"
	"github.com/reelsweep/reelsweep/internal/history"
	"github.com/reelsweep/reelsweep/internal/scheduler"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

// Version is stamped at build time.
var Version = "dev"

// ConnectionCheck verifies one upstream service.
type ConnectionCheck struct {
	Name string
	Test func(ctx context.Context) error
}

// Server handles HTTP requests for the reelsweep API.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger zerolog.Logger

	dedupService    *dedup.Service
	subtitleService *subtitles.Service
	historyService  *history.Service
	scheduler       *scheduler.Scheduler
	checks          []ConnectionCheck
}

// NewServer creates a new API server instance. historyService and sched may
// be nil; the matching routes are then not registered.
func NewServer(
	cfg *config.Config,
	dedupService *dedup.Service,
	subtitleService *subtitles.Service,
	historyService *history.Service,
	sched *scheduler.Scheduler,
	checks []ConnectionCheck,
	logger zerolog.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:            e,
		cfg:             cfg,
		logger:          logger.With().Str("component", "api").Logger(),
		dedupService:    dedupService,
		subtitleService: subtitleService,
		historyService:  historyService,
		scheduler:       sched,
		checks:          checks,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("8M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	api.GET("/system/status", s.getSystemStatus)

	if s.scheduler != nil {
		api.GET("/system/tasks", s.listTasks)
		api.POST("/system/tasks/:id/run", s.runTask)
	}

	dedup.NewHandlers(s.dedupService).RegisterRoutes(api.Group("/dedup"))
	subtitles.NewHandlers(s.subtitleService).RegisterRoutes(api.Group("/subtitles"))

	if s.historyService != nil {
		history.NewHandlers(s.historyService).RegisterRoutes(api.Group("/history"))
	}
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()
	s.logger.Info().Str("address", addr).Msg("starting HTTP server")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// connectionStatus is one upstream test result.
type connectionStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// getSystemStatus reports the version and the reachability of every
// configured upstream. Checks run concurrently with a shared deadline.
// GET /api/v1/system/status
func (s *Server) getSystemStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	results := make([]connectionStatus, len(s.checks))
	var wg sync.WaitGroup
	for i, check := range s.checks {
		wg.Add(1)
		go func(i int, check ConnectionCheck) {
			defer wg.Done()
			results[i] = connectionStatus{Name: check.Name, OK: true}
			if err := check.Test(ctx); err != nil {
				results[i].OK = false
				results[i].Error = err.Error()
			}
		}(i, check)
	}
	wg.Wait()

	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":     Version,
		"connections": results,
	})
}

// listTasks returns the scheduled tasks.
// GET /api/v1/system/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

// runTask triggers a scheduled task immediately.
// POST /api/v1/system/tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
