package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/quartzmem/quartz/internal/engine"
	"github.com/quartzmem/quartz/internal/metrics"
	"github.com/quartzmem/quartz/internal/partition"
	"github.com/quartzmem/quartz/internal/store"
)

// Server is the quartz HTTP API server.
type Server struct {
	engine   *engine.Engine
	registry *partition.Registry
	mets     *metrics.Set
	db       *store.DB
	router   chi.Router
	version  string
	started  time.Time
	log      zerolog.Logger
}

// New creates a new Server over an engine and its partition registry.
func New(eng *engine.Engine, registry *partition.Registry, mets *metrics.Set, version string, log zerolog.Logger) *Server {
	s := &Server{
		engine:   eng,
		registry: registry,
		mets:     mets,
		version:  version,
		started:  time.Now(),
		log:      log,
	}
	s.routes()
	return s
}

// SetDB attaches the SQLite handle for health reporting. Optional —
// the memory backend has nothing to ping.
func (s *Server) SetDB(db *store.DB) {
	s.db = db
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/memories", s.handleStore)
		r.Get("/memories/{fingerprint}", s.handleRetrieve)

		r.Get("/partitions", s.handleListPartitions)
		r.Post("/partitions", s.handleCreatePartition)
		r.Post("/partitions/select", s.handleSelectPartition)

		r.Get("/crystals", s.handleListCrystals)
		r.Get("/stats", s.handleStats)
	})

	if s.mets != nil {
		r.Method(http.MethodGet, "/metrics", s.mets.Handler())
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
	}
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			dbOK = false
		}
		resp["db_path"] = s.db.Path
	}
	resp["db"] = dbOK

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
