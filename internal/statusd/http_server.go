// Package statusd serves the live state of a running search over HTTP and
// gRPC and reports the final summary to a callback URL.
package statusd

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

// Source is the read-only view of a search that the status endpoints expose.
// *search.Driver satisfies it.
type Source interface {
	Snapshot() models.Snapshot
	Trials() []models.Trial
	Best() (models.BestResult, bool)
	Done() <-chan struct{}
}

type HTTPServer struct {
	mux    *http.ServeMux
	source Source
}

// NewHTTPServer builds the status mux. metrics may be nil, in which case
// /metrics is not served.
func NewHTTPServer(source Source, metrics http.Handler) *HTTPServer {
	s := &HTTPServer{
		mux:    http.NewServeMux(),
		source: source,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/trials", s.handleTrials)
	s.mux.HandleFunc("/v1/best", s.handleBest)
	if metrics != nil {
		s.mux.Handle("/metrics", metrics)
	}

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	select {
	case <-s.source.Done():
		status = "draining"
	default:
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus handles GET /v1/status
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.source.Snapshot())
}

// handleTrials handles GET /v1/trials?limit=N, returning the most recent N
// trials (all of them when limit is absent)
func (s *HTTPServer) handleTrials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	trials := s.source.Trials()
	total := len(trials)
	if limit > 0 && limit < total {
		trials = trials[total-limit:]
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"trials": trials,
	})
}

// handleBest handles GET /v1/best
func (s *HTTPServer) handleBest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	best, ok := s.source.Best()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no successful evaluation yet")
		return
	}
	s.writeJSON(w, http.StatusOK, best)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
