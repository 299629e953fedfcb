// Package server implements the StockSentry HTTP API server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stocksentry/stocksentry/internal/dispatcher"
	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/orchestrator"
	"github.com/stocksentry/stocksentry/internal/rulestore"
	"github.com/stocksentry/stocksentry/pkg/types"
)

const defaultMaxBody = 1 << 20

// Deps bundles the collaborators the API exposes.
type Deps struct {
	Store      rulestore.Store
	Ledger     ledger.Ledger
	Dispatcher *dispatcher.Dispatcher
	Orch       *orchestrator.Orchestrator
	Logger     *slog.Logger
}

// Server is the StockSentry HTTP API server.
type Server struct {
	router  chi.Router
	addr    string
	apiKey  string
	maxBody int64
	srv     *http.Server
	logger  *slog.Logger
}

// New creates a new HTTP server.
func New(cfg types.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    cfg.Addr,
		apiKey:  cfg.APIKey,
		maxBody: cfg.MaxRequestBody,
		logger:  logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBody
	}

	r := chi.NewRouter()
	r.Use(s.tagRequest)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.requireAPIKey)
	r.Use(s.limitBody)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router = r
	s.registerRoutes(r, deps)
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("http server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
