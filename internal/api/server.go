// Package api serves the admin HTTP API for a running hub.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
	"github.com/Iron-Ham/mplp/internal/platform"
)

// Server holds the dependencies for the API server.
type Server struct {
	hub    *platform.Hub
	logger *logging.Logger
	echo   *echo.Echo
}

// NewServer creates a Server with every route registered.
func NewServer(hub *platform.Hub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Server{hub: hub, logger: logger.WithComponent("api")}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				s.logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	}))

	e.GET("/healthz", s.Healthz)

	v1 := e.Group("/api/v1")
	v1.GET("/overview", s.Overview)
	v1.GET("/concerns", s.ListConcerns)
	v1.GET("/concerns/:name", s.GetConcern)
	v1.GET("/workflows", s.ListWorkflows)
	v1.POST("/workflows", s.CreateWorkflow)
	v1.GET("/workflows/:id", s.GetWorkflow)
	v1.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	v1.POST("/workflows/:id/stop", s.StopWorkflow)
	v1.GET("/modules", s.ListModules)
	v1.GET("/modules/:name/health", s.ModuleHealth)
	v1.GET("/config/:key", s.GetConfig)
	v1.PUT("/config/:key", s.PutConfig)
	v1.DELETE("/config/:key", s.DeleteConfig)

	s.echo = e
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Serve listens on addr until ctx is done, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "address", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "api shutdown")
	}
	return <-errCh
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, &errors.ValidationError{}):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, &errors.NotFoundError{}):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, &errors.AlreadyExistsError{}):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errors.ErrAccessDenied):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
