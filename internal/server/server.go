package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civiclab/reportd/internal/catalog"
	"github.com/civiclab/reportd/internal/executor"
	"github.com/civiclab/reportd/internal/handler"
	"github.com/civiclab/reportd/internal/openapi"
	"github.com/civiclab/reportd/internal/preset"
	"github.com/civiclab/reportd/internal/server/middleware"
	"github.com/civiclab/reportd/internal/session"
	"github.com/civiclab/reportd/internal/source"
	"github.com/civiclab/reportd/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	RequestsPerMinute int
	PreviewsPerSecond int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		RequestsPerMinute: 300,
		PreviewsPerSecond: 5,
	}
}

// Server is the top-level HTTP server for the report API. It owns the
// Chi router and the wired report components.
type Server struct {
	cfg        Config
	router     chi.Router
	source     source.Source
	catalog    *catalog.Catalog
	executor   *executor.Executor
	sessions   *session.Manager
	store      store.Repository
	presets    *preset.Library
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and
// returns it ready to listen. Call ListenAndServe to start accepting
// connections.
func New(cfg Config, src source.Source, cat *catalog.Catalog, exec *executor.Executor, sessions *session.Manager, repo store.Repository, presets *preset.Library, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		source:   src,
		catalog:  cat,
		executor: exec,
		sessions: sessions,
		store:    repo,
		presets:  presets,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(middleware.RateLimit(s.cfg.RequestsPerMinute))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", s.handleOpenAPI)

	schemaH := handler.NewSchemaHandler(s.catalog)
	sessionH := handler.NewSessionHandler(s.catalog, s.sessions, s.executor, s.logger)
	queryH := handler.NewQueryHandler(s.executor)
	savedH := handler.NewSavedHandler(s.store, s.executor)
	presetH := handler.NewPresetHandler(s.presets)
	exportH := handler.NewExportHandler(s.executor)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/schema", schemaH.ListTables)
		r.Get("/schema/{tableName}", schemaH.GetTable)

		r.Post("/sessions", sessionH.Create)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", sessionH.Get)
			r.Delete("/", sessionH.Delete)

			r.Post("/table", sessionH.SelectTable)
			r.Post("/columns/toggle", sessionH.ToggleColumn)
			r.Post("/columns/reorder", sessionH.ReorderColumns)
			r.Post("/relations", sessionH.SetRelations)

			r.Post("/filters", sessionH.AddFilter)
			r.Delete("/filters", sessionH.ClearFilters)
			r.Delete("/filters/{column}", sessionH.RemoveFilter)

			r.Post("/sorts", sessionH.AddSort)
			r.Delete("/sorts", sessionH.ClearSorts)
			r.Delete("/sorts/{column}", sessionH.RemoveSort)

			r.Put("/spec", sessionH.LoadSpec)

			r.Group(func(r chi.Router) {
				if s.cfg.PreviewsPerSecond > 0 {
					r.Use(middleware.PreviewRateLimit(s.cfg.PreviewsPerSecond))
				}
				r.Post("/preview", sessionH.Preview)
			})
		})

		r.Post("/query", queryH.Run)

		r.Get("/queries", savedH.List)
		r.Post("/queries", savedH.Create)
		r.Get("/queries/{queryID}", savedH.Get)
		r.Put("/queries/{queryID}", savedH.Update)
		r.Delete("/queries/{queryID}", savedH.Delete)
		r.Post("/queries/{queryID}/run", savedH.Run)

		r.Get("/presets", presetH.List)
		r.Get("/presets/{presetName}", presetH.Get)

		r.Post("/export/csv", exportH.CSV)
		r.Post("/export/pdf", exportH.PDF)
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the data source and
// the saved-query store are both reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.source.Ping(r.Context()); err != nil {
		checks["source"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["source"] = "ok"
	}
	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["store"] = "ok"
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleOpenAPI serves the generated API description.
// GET /openapi.json
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	tables, err := s.catalog.Tables(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
	doc := openapi.Generate(baseURL, tables)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(doc)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or
// SIGTERM is received. It then performs a graceful shutdown, draining
// in-flight requests before closing the data source and store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.sessions.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close store", "error", err)
	}
	if err := s.source.Close(); err != nil {
		s.logger.Warn("close source", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
