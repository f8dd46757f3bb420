package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/api/handlers"
	"github.com/ddlarr/ddlarr/internal/api/middleware"
	"github.com/ddlarr/ddlarr/internal/config"
	"github.com/ddlarr/ddlarr/internal/controllers"
	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/downloadclients"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
	"github.com/ddlarr/ddlarr/internal/services/scrapers"
	"github.com/ddlarr/ddlarr/internal/services/transfer"
)

// Indexer title reported in torznab caps and feed channels
const serverName = "ddlarr"

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	db          *models.Database
	searchCtrl  *controllers.SearchController
	queueCtrl   *controllers.QueueController
	watcherCtrl *controllers.WatcherController
	transfers   *transfer.Registry
	resolver    *resolver.Resolver
	dispatcher  *downloadclients.Dispatcher
	scrapers    *scrapers.Registry
	logger      *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	db *models.Database,
	searchCtrl *controllers.SearchController,
	queueCtrl *controllers.QueueController,
	watcherCtrl *controllers.WatcherController,
	transfers *transfer.Registry,
	res *resolver.Resolver,
	dispatcher *downloadclients.Dispatcher,
	registry *scrapers.Registry,
	logger *logrus.Logger,
) *Server {
	s := &Server{
		db:          db,
		searchCtrl:  searchCtrl,
		queueCtrl:   queueCtrl,
		watcherCtrl: watcherCtrl,
		transfers:   transfers,
		resolver:    res,
		dispatcher:  dispatcher,
		scrapers:    registry,
		logger:      logger,
	}

	router := mux.NewRouter()
	s.setupRoutes(router, cfg)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(router, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(router *mux.Router, cfg *config.Config) {
	router.Use(middleware.Metrics)

	// WebUI shim. Mounted before the indexer routes so the /api/v2
	// prefix wins over /api/{site}.
	qbtHandler := handlers.NewQbtHandler(s.db, s.queueCtrl, cfg.QbtUsername, cfg.QbtPassword, cfg.DownloadDir, cfg.MaxConcurrentDownloads, s.logger)
	qbtHandler.Register(router.PathPrefix("/api/v2").Subrouter())

	// Torznab endpoints, optionally scoped to one site or one hoster
	torznabHandler := handlers.NewTorznabHandler(s.searchCtrl, serverName, s.logger)
	router.Handle("/api", torznabHandler).Methods(http.MethodGet)
	router.Handle("/api/{site}", torznabHandler).Methods(http.MethodGet)
	router.Handle("/api/{site}/{hoster}", torznabHandler).Methods(http.MethodGet)

	// Placeholder container download
	router.Handle("/torrent", handlers.NewTorrentHandler(s.logger)).Methods(http.MethodGet)

	router.Handle("/health", handlers.NewHealthHandler(s.db, s.resolver, s.dispatcher, s.logger)).Methods(http.MethodGet)
	router.Handle("/status", handlers.NewStatusHandler(s.db, s.transfers, s.watcherCtrl, s.scrapers, s.resolver, s.logger)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
