// Package server provides the HTTP API for kb-index.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/thesandybridge/kb-index/internal/config"
	"github.com/thesandybridge/kb-index/internal/indexer"
	"github.com/thesandybridge/kb-index/internal/query"
	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

// DefaultRequestTimeout bounds each request, indexing included.
const DefaultRequestTimeout = 10 * time.Minute

// Querier answers questions.
type Querier interface {
	Run(ctx context.Context, req query.Request) (*query.Response, error)
}

// Indexer syncs a path into the vector store.
type Indexer interface {
	IndexPath(ctx context.Context, root string) (indexer.Stats, error)
}

// Server is the HTTP server for the kb-index API. Requests are handled one at a time
// because every handler loads and saves the same state snapshots.
type Server struct {
	engine    Querier
	indexer   Indexer
	snapshots *state.Store
	config    config.ServerConfig
	timeout   time.Duration
	extra     []string
	logger    *zap.Logger

	mu     sync.Mutex
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithStatusPaths adds paths (such as a local vector database) to the disk usage reported
// by the status endpoint.
func WithStatusPaths(paths ...string) Option {
	return func(s *Server) { s.extra = append(s.extra, paths...) }
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine Querier,
	idx Indexer,
	snapshots *state.Store,
	cfg config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:    engine,
		indexer:   idx,
		snapshots: snapshots,
		config:    cfg,
		timeout:   DefaultRequestTimeout,
		logger:    utils.OrNop(logger),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.serialize)
		r.Post("/query", s.handleQuery)
		r.Post("/index", s.handleIndex)
		r.Get("/status", s.handleStatus)
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Put("/sessions/active", s.handleSwitchSession)
		r.Delete("/sessions/active", s.handleClearSession)
	})
	return r
}

// serialize runs one API request at a time.
func (s *Server) serialize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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
