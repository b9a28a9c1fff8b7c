package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/places-crawler/internal/metrics"
	"github.com/JakeFAU/places-crawler/internal/pipeline"
	"github.com/JakeFAU/places-crawler/internal/place"
)

// StatusSource reports the state of the running pipeline.
type StatusSource interface {
	Snapshot() pipeline.Snapshot
}

// Server wires HTTP handlers to a status source.
type Server struct {
	router chi.Router
	status StatusSource
	runID  string
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(status StatusSource, runID string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		status: status,
		runID:  runID,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/fields", s.fields)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	phase := s.status.Snapshot().Phase
	switch phase {
	case pipeline.PhaseRunning, pipeline.PhaseFinished:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "phase": string(phase)})
	default:
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting", "phase": string(phase)})
	}
}

type statsResponse struct {
	RunID         string            `json:"run_id"`
	Phase         pipeline.Phase    `json:"phase"`
	Query         string            `json:"query"`
	Location      string            `json:"location"`
	Outcome       pipeline.Outcome  `json:"outcome,omitempty"`
	Counters      pipeline.Counters `json:"counters"`
	StartedAt     time.Time         `json:"started_at"`
	ElapsedSecond float64           `json:"elapsed_seconds"`
	RatePerMinute float64           `json:"saved_per_minute"`
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	res := snap.Result
	s.writeJSON(w, http.StatusOK, statsResponse{
		RunID:         s.runID,
		Phase:         snap.Phase,
		Query:         res.Query,
		Location:      res.Location,
		Outcome:       res.Outcome,
		Counters:      res.Counters,
		StartedAt:     res.StartedAt,
		ElapsedSecond: res.Elapsed.Seconds(),
		RatePerMinute: res.Rate(),
	})
}

func (s *Server) fields(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"fields": place.Catalog()})
}

type requestIDKey struct{}

// RequestID returns the request id stored by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
