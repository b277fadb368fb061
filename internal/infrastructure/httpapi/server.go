// Package httpapi exposes the artifact and the duty calculator over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"TariffIntel/internal/duty"
	"TariffIntel/internal/logging"
)

const (
	requestTimeout  = 15 * time.Second
	maxScenarioBody = 64 << 10
)

// ArtifactReader returns the current artifact bytes, or an error wrapping
// os.ErrNotExist when no run has produced one yet.
type ArtifactReader interface {
	Raw(ctx context.Context) ([]byte, error)
}

// Server wires routes to the artifact reader and calculator.
type Server struct {
	artifacts  ArtifactReader
	calculator *duty.Calculator
	logger     *slog.Logger
}

// NewServer builds the API handler set.
func NewServer(artifacts ArtifactReader, calculator *duty.Calculator, logger *slog.Logger) *Server {
	if calculator == nil {
		calculator = duty.NewCalculator()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{artifacts: artifacts, calculator: calculator, logger: logger}
}

// Routes returns the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		r.Post("/duty/estimate", s.handleEstimate)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tariffintel",
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact_unavailable", "no artifact store configured")
		return
	}

	raw, err := s.artifacts.Raw(r.Context())
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusServiceUnavailable, "artifact_unavailable", "no aggregation run has completed yet")
		return
	}
	if err != nil {
		s.logger.Error("read artifact", "error", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "artifact_read_failed", "cannot read artifact")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	var scenario duty.Scenario
	if err := json.Unmarshal(body, &scenario); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "expected a JSON scenario object")
		return
	}

	writeJSON(w, http.StatusOK, s.calculator.Compute(scenario))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
