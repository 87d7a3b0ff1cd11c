package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/souqdata/areacrawl/internal/budget"
	"github.com/souqdata/areacrawl/internal/metrics"
	"github.com/souqdata/areacrawl/internal/progress"
)

type stubClock struct{}

func (stubClock) Now() time.Time { return time.Now() }

func newTestServer(t *testing.T) (*Server, *progress.Store, *budget.Supervisor) {
	t.Helper()
	metrics.Init()
	store := progress.NewStore(nil, stubClock{})
	sup := budget.New(time.Hour, time.Minute, stubClock{}, zap.NewNop())
	sup.Start()
	t.Cleanup(sup.Stop)
	return NewServer(store, sup, "run-test", zap.NewNop()), store, sup
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestProgress(t *testing.T) {
	s, store, _ := newTestServer(t)
	require.True(t, store.Claim("a", ""))
	store.MarkDone("a", "memory://payloads/a.json")
	require.True(t, store.Claim("b", ""))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "run-test", resp.RunID)
	require.Equal(t, "running", resp.State)
	require.Equal(t, 1, resp.Summary.Done)
	require.Equal(t, 1, resp.Summary.InProgress)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	metrics.ObserveUnit("done", 0.5)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "areacrawl_units_total")
}

func TestUnknownRoute(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
