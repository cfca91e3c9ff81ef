package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/procdocs/sopgen/internal/expressions"
	"github.com/procdocs/sopgen/internal/sessions"
	"github.com/procdocs/sopgen/internal/store"
	"github.com/procdocs/sopgen/internal/validation"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Store     store.Store
	Revisions *store.RevisionLog
	Sessions  *sessions.Manager
	Validator *validation.DocumentValidator
	Filter    *expressions.ExprEngine
	Project   *expressions.GoJQEngine
	Logger    *slog.Logger
}

// Server serves the JSON generation and archive API.
type Server struct {
	deps Deps
}

// NewServer creates a new Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Filter == nil {
		deps.Filter = expressions.NewExprEngine()
	}
	if deps.Project == nil {
		deps.Project = expressions.NewGoJQEngine()
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Stateless generation.
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/extract-metadata", s.handleExtractMetadata)

	// Archives.
	mux.HandleFunc("GET /api/archives", s.handleListArchives)
	mux.HandleFunc("GET /api/archives/{id}", s.handleGetArchive)
	mux.HandleFunc("DELETE /api/archives/{id}", s.handleDeleteArchive)
	mux.HandleFunc("GET /api/archives/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /api/archives/{id}/regenerate", s.handleRegenerate)

	// Preview sessions.
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/preview/{id}", s.handleGetPreview)
	mux.HandleFunc("PUT /api/preview/{id}", s.handleUpdatePreview)
	mux.HandleFunc("POST /api/preview/{id}/generate", s.handlePreviewGenerate)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
