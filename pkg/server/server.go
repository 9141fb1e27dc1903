// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zen-systems/routegate/pkg/classifier"
	"github.com/zen-systems/routegate/pkg/engine"
	"github.com/zen-systems/routegate/pkg/orchestrator"
	"github.com/zen-systems/routegate/pkg/router"
)

const maxBodyBytes = 4 << 20

// Service is the orchestrator surface the server needs.
type Service interface {
	Handle(ctx context.Context, req classifier.Request) (*orchestrator.FinalResponse, error)
	Plan(req classifier.Request) (*orchestrator.Plan, error)
	Providers() []orchestrator.ProviderStatus
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error    string           `json:"error"`
	Kind     string           `json:"kind"`
	Attempts []engine.Attempt `json:"attempts,omitempty"`
}

// Server serves the routing API.
type Server struct {
	svc    Service
	logger *zap.Logger
}

// NewHandler creates the HTTP handler. gatherer backs /metrics; nil uses the default registry.
func NewHandler(svc Service, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/handle", s.handle)
		r.Post("/plan", s.plan)
		r.Get("/providers", s.providers)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handle serves POST /v1/handle.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	resp, err := s.svc.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// plan serves POST /v1/plan.
func (s *Server) plan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	plan, err := s.svc.Plan(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.svc.Providers()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (classifier.Request, bool) {
	var req classifier.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: "bad_request"})
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "text is required", Kind: "bad_request"})
		return req, false
	}
	if req.Hints.TaskType != "" && !req.Hints.TaskType.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown task_type " + string(req.Hints.TaskType), Kind: "bad_request"})
		return req, false
	}
	if c := req.Hints.Complexity; c != nil && (*c < 0 || *c > 1) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "complexity must be in [0,1]", Kind: "bad_request"})
		return req, false
	}
	return req, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		noEligible *router.NoEligibleProviderError
		allFailed  *engine.AllProvidersFailedError
	)
	switch {
	case errors.As(err, &noEligible):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Kind: "no_eligible_provider"})
	case errors.As(err, &allFailed):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Kind: "all_providers_failed", Attempts: allFailed.Attempts})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Kind: "timeout"})
	case errors.Is(err, context.Canceled):
		// The client is gone; the status is for the access log only.
		w.WriteHeader(499)
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: "internal"})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
