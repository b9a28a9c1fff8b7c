package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/runs/{id}/stats", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name  string
		path  string
		route string
		code  string
	}{
		{name: "implicit ok", path: "/runs/abc/stats", route: "/runs/{id}/stats", code: "200"},
		{name: "explicit status", path: "/teapot", route: "/teapot", code: "418"},
		{name: "unmatched", path: "/missing", route: "unknown", code: "404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			beforeCount := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, tt.code))

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.code, strconv.Itoa(rec.Code))
			assert.Equal(t, beforeCount+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, tt.code)))
			assert.True(t, routeObserved(t, tt.route), "no latency sample for route %q", tt.route)
		})
	}
}

func routeObserved(t *testing.T, route string) bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "http_request_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == route && m.GetHistogram().GetSampleCount() > 0 {
					return true
				}
			}
		}
	}
	return false
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = rec.Write([]byte("body"))
	assert.Equal(t, http.StatusOK, rec.status)

	rec.WriteHeader(http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, rec.status)
}
