package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/config"
	"github.com/Iron-Ham/mplp/internal/configmgr"
	"github.com/Iron-Ham/mplp/internal/orchestrator"
	"github.com/Iron-Ham/mplp/internal/platform"
	"github.com/Iron-Ham/mplp/internal/protocol"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Resources.AutoDetect = false

	hub, err := platform.NewHub(context.Background(), cfg, platform.WithoutHostDetection())
	require.NoError(t, err)
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { _ = hub.Stop(context.Background()) })
	return NewServer(hub, nil)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["running"])
}

func TestConcerns(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/concerns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 9)

	rec = do(t, s, http.MethodGet, "/api/v1/concerns/"+concerns.ConcernSecurity, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, concerns.ConcernSecurity, decode[map[string]any](t, rec)["concern"])

	rec = do(t, s, http.MethodGet, "/api/v1/concerns/billing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/workflows", `{"id":"wf-1","priority":"high","skip_monitoring":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orchestrator.Result](t, rec)
	assert.Equal(t, "wf-1", created.Workflow.ID)
	assert.Equal(t, orchestrator.HealthWarning, created.HealthStatus)

	rec = do(t, s, http.MethodGet, "/api/v1/workflows/wf-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "high", decode[workflow.Workflow](t, rec).Config.Priority)

	rec = do(t, s, http.MethodPost, "/api/v1/workflows/wf-1/execute", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workflow.StatusCompleted, decode[orchestrator.Result](t, rec).Workflow.Status)

	rec = do(t, s, http.MethodPost, "/api/v1/workflows/wf-1/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[StopResponse](t, rec).Stopped)

	rec = do(t, s, http.MethodPost, "/api/v1/workflows/missing/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]workflow.Workflow](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/v1/overview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decode[orchestrator.Overview](t, rec)
	assert.Equal(t, 1, ov.TotalWorkflows)
	assert.Equal(t, 0, ov.ActiveWorkflows)
}

func TestCreateWorkflow_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/workflows", `{"priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/workflows", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/workflows/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModules(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	mods := decode[[]ModuleSummary](t, rec)
	require.Len(t, mods, 9)
	for _, m := range mods {
		assert.Equal(t, protocol.StateRunning, m.State, m.Name)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/modules/plan/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, protocol.HealthHealthy, decode[protocol.Health](t, rec).Status)

	rec = do(t, s, http.MethodGet, "/api/v1/modules/billing/health", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfig(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/v1/config/db.host", `{"value":"localhost"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[configmgr.Value](t, rec).Version)

	rec = do(t, s, http.MethodGet, "/api/v1/config/db.host", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "localhost", decode[configmgr.Value](t, rec).Value)

	rec = do(t, s, http.MethodPut, "/api/v1/config/db.password", `{"value":"s3cret","encrypted":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, redacted, decode[configmgr.Value](t, rec).Value)

	rec = do(t, s, http.MethodGet, "/api/v1/config/db.password?reveal=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s3cret", decode[configmgr.Value](t, rec).Value)

	rec = do(t, s, http.MethodDelete, "/api/v1/config/db.host", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodDelete, "/api/v1/config/db.host", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/v1/config/db.host", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
