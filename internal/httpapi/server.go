// Package httpapi exposes the runtime's HTTP surface: the
// OpenAI-compatible chat endpoint, job submission/polling/tailing,
// session operations, the admin stop flag, and health checks. Routing is
// a plain net/http ServeMux with middleware funcs.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kairoai/agentrt/internal/jobstore"
	"github.com/kairoai/agentrt/internal/observability"
	"github.com/kairoai/agentrt/internal/orchestrator"
	"github.com/kairoai/agentrt/internal/sessionstore"
	"github.com/kairoai/agentrt/internal/stopsignal"
	"github.com/kairoai/agentrt/pkg/models"
)

// Backend is the slice of the Model Client the HTTP layer needs directly:
// model listing and the health check's reachability probe.
type Backend interface {
	ListModels(ctx context.Context) ([]string, error)
	IsAvailable(ctx context.Context) bool
}

// Config holds the server's wiring.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Sessions     *sessionstore.Store
	Jobs         *jobstore.Store
	Runner       *jobstore.Runner
	Backend      Backend
	Stop         *stopsignal.Flag
	Metrics      *observability.Metrics
	Logger       *slog.Logger

	// ReloadPrompt re-reads the base system prompt from disk and swaps
	// the Agent Loop's cache.
	ReloadPrompt func() error

	// Auth. Tokens maps bearer token to username; empty means every
	// request is anonymous. OptionalAuth lets tokenless requests through
	// as user "guest".
	Tokens       map[string]string
	OptionalAuth bool

	// CORS policy.
	CORSOrigins     []string
	CORSCredentials bool

	// UploadMaxBytes caps multipart request bodies.
	UploadMaxBytes int64

	// DefaultModel labels stream chunks when a request omits a model.
	DefaultModel string
}

// Server is the HTTP API server.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger, mux: http.NewServeMux()}
	s.routes()

	var h http.Handler = s.mux
	h = s.authMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.loggingMiddleware(h)
	s.handler = h
	return s
}

func (s *Server) routes() {
	// Public routes.
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	// Chat surface.
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/v1/models", s.handleListModels)

	// Jobs.
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/", s.handleJob)

	// Sessions.
	s.mux.HandleFunc("/api/chat/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/chat/sessions/", s.handleSession)
	s.mux.HandleFunc("/api/chat/history/", s.handleHistory)

	// Admin.
	s.mux.HandleFunc("/api/admin/stop-inference", s.handleStopFlag)
	s.mux.HandleFunc("/api/admin/reload-prompt", s.handleReloadPrompt)
}

// ServeHTTP implements http.Handler with the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}
	backendUp := false
	if s.cfg.Backend != nil {
		backendUp = s.cfg.Backend.IsAvailable(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"backend_available": backendUp,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, models.NewError(models.KindValidation, "method not allowed"))
		return
	}
	ids, err := s.cfg.Backend.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	type modelEntry struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	entries := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, modelEntry{ID: id, Object: "model"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": entries})
}
