// Package api is the HTTP surface: a stdlib ServeMux wired to the
// scheduler, store, and challenge catalog, following the small
// writeJSON/writeError handler convention used throughout the reference
// corpus's own HTTP daemon.
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agent-arena/compression-arena/internal/challenge"
	"github.com/agent-arena/compression-arena/internal/logging"
	"github.com/agent-arena/compression-arena/internal/scheduler"
	"github.com/agent-arena/compression-arena/internal/store"
)

// Version is the service's reported build version. No tagged-release
// machinery exists yet, so this is a fixed string rather than a
// ldflags-injected one.
const Version = "0.1.0"

// Server bundles the mux with the dependencies its handlers close over.
type Server struct {
	sched     *scheduler.Scheduler
	store     *store.Store
	specs     map[string]*challenge.Spec
	log       *logging.Logger
	mux       *http.ServeMux
	startedAt time.Time
}

// NewServer wires every route in the HTTP surface.
func NewServer(sched *scheduler.Scheduler, st *store.Store, specs map[string]*challenge.Spec, log *logging.Logger) *Server {
	s := &Server{
		sched:     sched,
		store:     st,
		specs:     specs,
		log:       log,
		mux:       http.NewServeMux(),
		startedAt: time.Now(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /challenges", s.handleListChallenges)
	s.mux.HandleFunc("GET /challenges/{id}", s.handleGetChallenge)
	s.mux.HandleFunc("GET /challenges/{id}/input", s.handleGetChallengeInput)
	s.mux.HandleFunc("GET /challenges/{id}/input/hash", s.handleGetChallengeInputHash)
	s.mux.HandleFunc("POST /challenges/{id}/submit", s.handleSubmit)
	s.mux.HandleFunc("GET /challenges/{id}/leaderboard", s.handleLeaderboard)

	s.mux.HandleFunc("GET /submissions/{id}", s.handleGetSubmission)

	s.mux.HandleFunc("POST /agents", s.handleRegisterAgent)
	s.mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	s.mux.HandleFunc("GET /agents/{id}/submissions", s.handleListAgentSubmissions)

	return s
}

// ServeHTTP attaches a per-request id and logs unhandled panics as
// INTERNAL_ERROR before they can take the process down, matching the
// spec's requirement that internal exceptions never leak a stack trace
// to the client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-Id", requestID)

	defer func() {
		if rec := recover(); rec != nil {
			s.log.Err().Str("request_id", requestID).Str("path", r.URL.Path).
				Interface("panic", rec).Log("unhandled panic in HTTP handler")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		}
	}()

	s.mux.ServeHTTP(w, r)
}
