// Package health serves liveness, readiness, test status and operator
// controls over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/speedrun-hq/spacewalk-tester/pkg/circuitbreaker"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/orchestrator"
	"github.com/speedrun-hq/spacewalk-tester/pkg/stellar"
)

// Scheduler is the scheduler state and controls exposed over HTTP
type Scheduler interface {
	IsStarted() bool
	IsPaused() bool
	IsShuttingDown() bool
	LastRunStarted() time.Time
	LastRunCompleted() time.Time
	Pause()
	Resume()
	ForceRun()
}

// Runs exposes the in-flight test runs and the network breakers
type Runs interface {
	Snapshot() []orchestrator.RunState
	Breakers() map[string]circuitbreaker.State
	ResetBreaker(network string) error
}

// Connections reports which ledger networks are connected
type Connections interface {
	Networks() []string
	Connected() []string
}

// Balances reports the last known tester balances
type Balances interface {
	Snapshot() []stellar.BalanceSnapshot
}

// Status is the body of /status
type Status struct {
	Started          bool                            `json:"started"`
	Paused           bool                            `json:"paused"`
	ShuttingDown     bool                            `json:"shutting_down"`
	Running          bool                            `json:"running"`
	LastRunStarted   *time.Time                      `json:"last_run_started,omitempty"`
	LastRunCompleted *time.Time                      `json:"last_run_completed,omitempty"`
	Runs             []orchestrator.RunState         `json:"runs"`
	Circuits         map[string]circuitbreaker.State `json:"circuits"`
	Connected        []string                        `json:"connected"`
	Balances         []stellar.BalanceSnapshot       `json:"balances,omitempty"`
}

// Server represents the status HTTP server
type Server struct {
	port          string
	metricsAPIKey string
	scheduler     Scheduler
	runs          Runs
	connections   Connections
	balances      Balances
	logger        logger.Logger
	httpServer    *http.Server
}

// NewServer creates a new status server. balances may be nil.
func NewServer(port, metricsAPIKey string, scheduler Scheduler, runs Runs, connections Connections, balances Balances, log logger.Logger) *Server {
	s := &Server{
		port:          port,
		metricsAPIKey: metricsAPIKey,
		scheduler:     scheduler,
		runs:          runs,
		connections:   connections,
		balances:      balances,
		logger:        log,
	}
	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router of the server
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/scheduler/pause", s.handlePause)
		r.Post("/scheduler/resume", s.handleResume)
		r.Post("/scheduler/run", s.handleRun)
		r.Post("/circuit/reset", s.handleCircuitReset)
		r.Handle("/metrics", promhttp.Handler())
	})
	return r
}

// authMiddleware checks the Bearer API key. Without a configured key the
// endpoints are open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	connected := make(map[string]bool)
	for _, name := range s.connections.Connected() {
		connected[name] = true
	}
	for _, name := range s.connections.Networks() {
		if !connected[name] {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Network %s not connected", name)))
			return
		}
	}
	if !s.scheduler.IsStarted() && !s.scheduler.IsShuttingDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Scheduler not started"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	runs := s.runs.Snapshot()
	status := Status{
		Started:          s.scheduler.IsStarted(),
		Paused:           s.scheduler.IsPaused(),
		ShuttingDown:     s.scheduler.IsShuttingDown(),
		Running:          len(runs) > 0,
		LastRunStarted:   optionalTime(s.scheduler.LastRunStarted()),
		LastRunCompleted: optionalTime(s.scheduler.LastRunCompleted()),
		Runs:             runs,
		Circuits:         s.runs.Breakers(),
		Connected:        s.connections.Connected(),
	}
	if s.balances != nil {
		status.Balances = s.balances.Snapshot()
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.scheduler.Pause()
	s.writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.scheduler.Resume()
	s.writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler.IsShuttingDown() {
		http.Error(w, "Shutting down", http.StatusConflict)
		return
	}
	s.scheduler.ForceRun()
	s.writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	network := r.URL.Query().Get("network")
	if network == "" {
		http.Error(w, "Missing network parameter", http.StatusBadRequest)
		return
	}
	if err := s.runs.ResetBreaker(network); err != nil {
		http.Error(w, fmt.Sprintf("No circuit breaker for network %s", network), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for network %s reset", network)))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Start serves until Shutdown is called
func (s *Server) Start() {
	s.logger.Info("Starting status and metrics server on port %s", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Status server error: %v", err)
	}
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
