package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/information-sharing-networks/nfce-downloader/internal/blob"
	"github.com/information-sharing-networks/nfce-downloader/internal/config"
	"github.com/information-sharing-networks/nfce-downloader/internal/database"
	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/metrics"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/handlers"
	mw "github.com/information-sharing-networks/nfce-downloader/internal/server/middleware"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
	"github.com/information-sharing-networks/nfce-downloader/internal/version"
)

// Dependencies are the collaborators used by the handlers
type Dependencies struct {
	Database     handlers.Pinger
	Store        session.Store
	Blobs        session.BlobStore
	Processor    handlers.Preparer
	PeriodSearch handlers.PeriodPreparer
	AccessURLs   handlers.AccessURLParser
	Metrics      *metrics.Metrics
	Version      version.Info
	Now          func() time.Time
}

type Server struct {
	pool     *pgxpool.Pool
	closers  []io.Closer
	config   *config.Environment
	logger   *slog.Logger
	router   *chi.Mux
	deps     Dependencies
	sessions *backgroundSessions
}

// NewServer wires the Postgres store, the blob directory, the upstream clients and the metrics
func NewServer(
	pool *pgxpool.Pool,
	cfg *config.Environment,
	logger *slog.Logger,
) (*Server, error) {
	m := metrics.New()

	blobs, err := blob.NewFileStore(cfg.BlobDir)
	if err != nil {
		return nil, err
	}

	sefazCfg, err := cfg.SefazConfig(m)
	if err != nil {
		return nil, err
	}
	portalClient, err := portal.NewClient(cfg.PortalConfig(m), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal client: %w", err)
	}

	queries := database.New(pool)
	store := database.NewSessionStore(queries)

	newRetriever := session.NewRetrieverFactory(sefazCfg, portalClient, m, logger)
	processor := session.NewProcessor(store, blobs, newRetriever, cfg.SessionConfig(m), logger)
	period := session.NewPeriodSearch(processor, portalClient, cfg.PeriodConfig())

	logger.Info("download engine configured",
		slog.String("sefaz_environment", cfg.SefazEnvironment),
		slog.String("portal_base_url", cfg.PortalBaseURL),
		slog.String("blob_dir", blobs.Dir()),
		slog.Bool("sefaz_insecure_skip_verify", cfg.SefazInsecureSkipVerify),
	)

	s := New(Dependencies{
		Database:     queries,
		Store:        store,
		Blobs:        blobs,
		Processor:    processor,
		PeriodSearch: period,
		AccessURLs:   portalClient,
		Metrics:      m,
		Version:      version.Get(),
	}, cfg, logger)
	s.pool = pool
	s.closers = append(s.closers, blobs)

	return s, nil
}

// New creates a server from already constructed dependencies
func New(deps Dependencies, cfg *config.Environment, logger *slog.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   chi.NewRouter(),
		deps:     deps,
		sessions: newBackgroundSessions(logger),
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logger.RequestLogging(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.SecurityHeaders(s.config.Environment))
	s.router.Use(mw.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.Timeout(s.config.WriteTimeout))
}

func (s *Server) registerRoutes() {
	d := s.deps

	s.router.Get("/health/live", handlers.HandleHealth)
	s.router.Get("/health/ready", handlers.HandleReadiness(d.Database))
	s.router.Get("/version", handlers.HandleVersion(d.Version))
	s.router.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(mw.RequestSizeLimit(s.config.MaxRequestBodySize))

		r.Post("/key-lists", handlers.HandleUploadKeyList(d.Blobs))

		r.Post("/sessions", handlers.HandleCreateSession(d.Processor, s.sessions))
		r.Get("/sessions/{sessionID}", handlers.HandleGetSession(d.Store))
		r.Get("/sessions/{sessionID}/records", handlers.HandleListRecords(d.Store))
		r.Get("/sessions/{sessionID}/records/{key}/xml", handlers.HandleGetRecordXML(d.Store, d.Blobs))

		r.Get("/owners/{ownerID}/sessions", handlers.HandleListOwnerSessions(d.Store))

		r.Post("/period-searches", handlers.HandleCreatePeriodSearch(d.PeriodSearch, s.sessions))

		r.Post("/credentials/inspect", handlers.HandleInspectCredential(d.AccessURLs, d.Now))
	})
}

// Router returns the root handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		s.sessions.Stop(s.config.ServerShutdownTimeout)
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	shutdownErr := httpServer.Shutdown(shutdownCtx)

	s.logger.Info("stopping background sessions")
	if !s.sessions.Stop(s.config.ServerShutdownTimeout) {
		s.logger.Warn("background sessions did not stop before the shutdown timeout")
	}

	if shutdownErr != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", shutdownErr.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", shutdownErr)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// DatabaseShutdown closes the connection pool and the blob store
func (s *Server) DatabaseShutdown() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
