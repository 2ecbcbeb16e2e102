package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Iron-Ham/mplp/internal/configmgr"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/orchestrator"
	"github.com/Iron-Ham/mplp/internal/protocol"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// redacted replaces encrypted config values unless ?reveal=true is given.
const redacted = "********"

// CreateWorkflowRequest is the body of POST /api/v1/workflows.
type CreateWorkflowRequest struct {
	ID                   string         `json:"id"`
	Definition           string         `json:"definition"`
	Stages               []string       `json:"stages"`
	ExecutionMode        string         `json:"execution_mode"`
	ParallelExecution    bool           `json:"parallel_execution"`
	Priority             string         `json:"priority"`
	UserID               string         `json:"user_id"`
	SessionID            string         `json:"session_id"`
	CoreOperation        string         `json:"core_operation"`
	CoreDetails          map[string]any `json:"core_details"`
	SkipMonitoring       bool           `json:"skip_monitoring"`
	SkipResourceTracking bool           `json:"skip_resource_tracking"`
}

func (r CreateWorkflowRequest) params() orchestrator.CreateParams {
	return orchestrator.CreateParams{
		CreateRequest: workflow.CreateRequest{
			ID:         r.ID,
			Definition: r.Definition,
			Config: workflow.Config{
				Stages:            r.Stages,
				ExecutionMode:     r.ExecutionMode,
				ParallelExecution: r.ParallelExecution,
				Priority:          r.Priority,
			},
			ExecutionContext: workflow.ExecutionContext{UserID: r.UserID, SessionID: r.SessionID},
			CoreOperation:    r.CoreOperation,
			CoreDetails:      r.CoreDetails,
		},
		SkipMonitoring:       r.SkipMonitoring,
		SkipResourceTracking: r.SkipResourceTracking,
	}
}

// PutConfigRequest is the body of PUT /api/v1/config/:key.
type PutConfigRequest struct {
	Value     any  `json:"value"`
	Encrypted bool `json:"encrypted"`
}

// StopResponse reports whether a stop was carried out.
type StopResponse struct {
	ID      string `json:"id"`
	Stopped bool   `json:"stopped"`
}

// ModuleSummary describes one registered module.
type ModuleSummary struct {
	protocol.Status
	Version      string   `json:"version"`
	Dependencies []string `json:"dependencies"`
}

// Healthz reports liveness
// (GET /healthz)
func (s *Server) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "running": s.hub.Running()})
}

// Overview returns the coordination overview
// (GET /api/v1/overview)
func (s *Server) Overview(c echo.Context) error {
	ov, err := s.hub.Orchestrator().CoordinationOverview(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ov)
}

// ListConcerns returns every concern mapping with live manager stats
// (GET /api/v1/concerns)
func (s *Server) ListConcerns(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Managers().DescribeAll())
}

// GetConcern returns one concern
// (GET /api/v1/concerns/:name)
func (s *Server) GetConcern(c echo.Context) error {
	st, ok := s.hub.Managers().Describe(c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown concern: "+c.Param("name"))
	}
	return c.JSON(http.StatusOK, st)
}

// ListWorkflows returns every workflow
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hub.Workflows().List(c.Request().Context()))
}

// CreateWorkflow creates a workflow with full coordination
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	res, err := s.hub.Orchestrator().CreateWorkflowWithFullCoordination(c.Request().Context(), req.params())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

// GetWorkflow returns one workflow
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, err := s.hub.Workflows().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, wf)
}

// ExecuteWorkflow dispatches a workflow to its stages
// (POST /api/v1/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	res, err := s.hub.Orchestrator().ExecuteWorkflowWithCoordination(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// StopWorkflow stops a workflow. A refused or unknown stop is a 409.
// (POST /api/v1/workflows/:id/stop)
func (s *Server) StopWorkflow(c echo.Context) error {
	id := c.Param("id")
	stopped := s.hub.Orchestrator().StopWorkflowWithCoordination(c.Request().Context(), id)
	status := http.StatusOK
	if !stopped {
		status = http.StatusConflict
	}
	return c.JSON(status, StopResponse{ID: id, Stopped: stopped})
}

// ListModules returns a status summary of every module
// (GET /api/v1/modules)
func (s *Server) ListModules(c echo.Context) error {
	mods := s.hub.Modules()
	out := make([]ModuleSummary, 0, len(mods))
	for _, m := range mods {
		out = append(out, ModuleSummary{
			Status:       m.Status(),
			Version:      m.Version(),
			Dependencies: m.Dependencies(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// ModuleHealth runs a module's health check
// (GET /api/v1/modules/:name/health)
func (s *Server) ModuleHealth(c echo.Context) error {
	m, ok := s.hub.Module(c.Param("name"))
	if !ok {
		return httpError(errors.NewNotFoundError("module", c.Param("name")))
	}
	return c.JSON(http.StatusOK, m.HealthCheck(c.Request().Context()))
}

// GetConfig returns the current version of a config key
// (GET /api/v1/config/:key)
func (s *Server) GetConfig(c echo.Context) error {
	key := c.Param("key")
	v, ok := s.hub.Configs().GetValue(key)
	if !ok {
		return httpError(errors.NewNotFoundError("config", key))
	}
	return c.JSON(http.StatusOK, s.present(c, v))
}

// PutConfig stores a new version of a config key
// (PUT /api/v1/config/:key)
func (s *Server) PutConfig(c echo.Context) error {
	var req PutConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	v, err := s.hub.Configs().Set(c.Param("key"), req.Value, req.Encrypted)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.present(c, v))
}

// DeleteConfig removes a config key
// (DELETE /api/v1/config/:key)
func (s *Server) DeleteConfig(c echo.Context) error {
	key := c.Param("key")
	ok, err := s.hub.Configs().Delete(key)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(errors.NewNotFoundError("config", key))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) present(c echo.Context, v configmgr.Value) configmgr.Value {
	if v.Encrypted && c.QueryParam("reveal") != "true" {
		v.Value = redacted
	}
	return v
}
