// Package server provides the HTTP API for ticktie.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ticktie/internal/config"
	"github.com/hyperjump/ticktie/internal/session"
	"go.uber.org/zap"
)

// Server is the HTTP server for the ticktie API.
type Server struct {
	session *session.Session
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server

	// background extraction runs started with 202 Accepted
	runs sync.WaitGroup
}

// NewServer creates a server with the given dependencies.
func NewServer(sess *session.Session, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session: sess,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Model calls run longer than the request timeout.
	r.Post("/api/v1/extract", s.handleExtract)
	r.Post("/api/v1/reconcile", s.handleReconcile)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Get("/health", s.handleHealth)
		r.Get("/api/v1/status", s.handleStatus)

		r.Get("/api/v1/fields", s.handleListFields)
		r.Post("/api/v1/fields", s.handleAddField)
		r.Delete("/api/v1/fields/{id}", s.handleRemoveField)

		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Post("/api/v1/documents", s.handleUploadDocuments)
		r.Get("/api/v1/documents/{id}", s.handleGetDocument)
		r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)

		r.Post("/api/v1/reference", s.handleUploadReference)
		r.Get("/api/v1/reconcile", s.handleGetResult)
		r.Get("/api/v1/export", s.handleExport)
		r.Get("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/session/reset", s.handleReset)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and waits for background extraction runs.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown before extraction run finished")
	}
	return err
}
