// Package server provides the HTTP API for the budget tracker.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atlas-civic/budget-tracker/internal/export"
	"github.com/atlas-civic/budget-tracker/internal/llm"
	"github.com/atlas-civic/budget-tracker/internal/pipeline"
)

// Server is the HTTP server for the budget-tracker API.
type Server struct {
	documents  *pipeline.DocumentService
	sentiment  *pipeline.SentimentService
	assistant  *pipeline.AssistantService
	embeddings *pipeline.EmbeddingService
	exporter   *export.Service
	media      *llm.Client
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	documents *pipeline.DocumentService,
	sentiment *pipeline.SentimentService,
	assistant *pipeline.AssistantService,
	embeddings *pipeline.EmbeddingService,
	exporter *export.Service,
	media *llm.Client,
	logger *zap.Logger,
) *Server {
	return &Server{
		documents:  documents,
		sentiment:  sentiment,
		assistant:  assistant,
		embeddings: embeddings,
		exporter:   exporter,
		media:      media,
		logger:     logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/documents", s.handleSubmitDocument)
	r.Post("/api/v1/documents/process", s.handleProcessDocument)
	r.Get("/api/v1/jobs/{id}", s.handleGetJob)
	r.Post("/api/v1/entries", s.handleGetEntries)
	r.Post("/api/v1/sentiment", s.handleSentiment)
	r.Post("/api/v1/assistant", s.handleAssistant)
	r.Post("/api/v1/embeddings", s.handleEmbeddings)
	r.Post("/api/v1/export", s.handleExport)
	r.Post("/api/v1/media/transcribe", s.handleTranscribe)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops. The synchronous
// document flow can poll for minutes, so no blanket request timeout is set;
// the pipelines bound themselves.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
