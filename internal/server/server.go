// Package server provides the HTTP REST API for the agency automator.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/jonathan/agency-automator/internal/bus"
	"github.com/jonathan/agency-automator/internal/followup"
	"github.com/jonathan/agency-automator/internal/hitl"
	"github.com/jonathan/agency-automator/internal/store"
	"github.com/jonathan/agency-automator/internal/workflow"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	store      store.Store
	engine     *workflow.Engine
	gate       *hitl.Gate
	sequencer  *followup.Sequencer
	bus        *bus.Bus
	logger     *log.Logger
	validate   *validator.Validate
}

// Config holds server configuration
type Config struct {
	Port      int
	Store     store.Store
	Engine    *workflow.Engine
	Gate      *hitl.Gate
	Sequencer *followup.Sequencer
	Bus       *bus.Bus
	Logger    *log.Logger
}

// New creates a new server instance
func New(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		engine:    cfg.Engine,
		gate:      cfg.Gate,
		sequencer: cfg.Sequencer,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
		validate:  validator.New(),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for synchronous workflow runs
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler builds the routed handler with middleware applied. Exposed so
// tests can drive the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Workflow endpoints
	mux.HandleFunc("GET /workflows", s.handleListWorkflows)
	mux.HandleFunc("POST /workflows/{name}/runs", s.handleStartRun)

	// Run endpoints
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/steps", s.handleListRunSteps)
	mux.HandleFunc("POST /runs/{id}/resume", s.handleResumeRun)

	// Approval endpoints
	mux.HandleFunc("GET /approvals", s.handleListApprovals)
	mux.HandleFunc("GET /approvals/{id}", s.handleGetApproval)
	mux.HandleFunc("POST /approvals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /approvals/{id}/reject", s.handleReject)

	// Action mode endpoints
	mux.HandleFunc("GET /action-modes/{agent}/{action}", s.handleGetActionMode)
	mux.HandleFunc("PUT /action-modes/{agent}/{action}", s.handleSetActionMode)

	// Lead endpoints
	mux.HandleFunc("GET /leads", s.handleListLeads)
	mux.HandleFunc("GET /leads/{id}", s.handleGetLead)
	mux.HandleFunc("GET /leads/{id}/followups", s.handleLeadFollowups)

	// Follow-up endpoints
	mux.HandleFunc("GET /followups/pending", s.handlePendingFollowups)
	mux.HandleFunc("POST /followups/run", s.handleRunFollowups)

	// Event endpoints
	mux.HandleFunc("GET /events/history", s.handleEventHistory)
	mux.HandleFunc("GET /events", s.handleEventStream)

	return s.withLogging(s.withCORS(mux))
}

// Start begins listening for requests. It blocks until the listener fails
// or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFrom maps a domain error to its HTTP status and writes it.
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	s.errorResponse(w, HTTPStatus(err), err.Error())
}
