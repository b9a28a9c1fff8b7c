package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/pipeline"
	"github.com/JakeFAU/places-crawler/internal/place"
)

type fakeStatus struct {
	snap pipeline.Snapshot
}

func (f *fakeStatus) Snapshot() pipeline.Snapshot {
	return f.snap
}

func newTestServer(phase pipeline.Phase) *Server {
	status := &fakeStatus{snap: pipeline.Snapshot{
		Phase: phase,
		Result: pipeline.Result{
			Query:     "Cafe in Surat",
			Location:  "data/cafe_in_surat.xlsx",
			Counters:  pipeline.Counters{Fetched: 12, Saved: 10, Duplicates: 2, Failed: 1},
			StartedAt: time.Unix(100, 0).UTC(),
			Elapsed:   5 * time.Minute,
		},
	}}
	return NewServer(status, "run-1", zap.NewNop())
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(pipeline.PhaseStarting), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase pipeline.Phase
		code  int
	}{
		{pipeline.PhaseIdle, http.StatusServiceUnavailable},
		{pipeline.PhaseStarting, http.StatusServiceUnavailable},
		{pipeline.PhaseRunning, http.StatusOK},
		{pipeline.PhaseFinished, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			t.Parallel()
			rec := serve(t, newTestServer(tt.phase), "/readyz")
			require.Equal(t, tt.code, rec.Code)
			require.Contains(t, rec.Body.String(), string(tt.phase))
		})
	}
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(pipeline.PhaseRunning), "/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.RunID)
	require.Equal(t, pipeline.PhaseRunning, body.Phase)
	require.Equal(t, "Cafe in Surat", body.Query)
	require.Equal(t, 10, body.Counters.Saved)
	require.Equal(t, 1, body.Counters.Failed)
	require.InDelta(t, 300, body.ElapsedSecond, 1e-9)
	require.InDelta(t, 2, body.RatePerMinute, 1e-9)
}

func TestServer_Fields(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(pipeline.PhaseRunning), "/v1/fields")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, place.Catalog(), body["fields"])
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := newTestServer(pipeline.PhaseRunning)
	serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RequestIDPropagates(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	newTestServer(pipeline.PhaseRunning).Handler().ServeHTTP(rec, req)

	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_NotFound(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(pipeline.PhaseRunning), "/v1/jobs")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer(pipeline.PhaseRunning)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}
