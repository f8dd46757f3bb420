package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ddlarr/ddlarr/internal/api"
	"github.com/ddlarr/ddlarr/internal/config"
	"github.com/ddlarr/ddlarr/internal/controllers"
	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/scheduler"
	"github.com/ddlarr/ddlarr/internal/services/debrid"
	"github.com/ddlarr/ddlarr/internal/services/dlprotect"
	"github.com/ddlarr/ddlarr/internal/services/downloadclients"
	"github.com/ddlarr/ddlarr/internal/services/fetch"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
	"github.com/ddlarr/ddlarr/internal/services/scrapers"
	"github.com/ddlarr/ddlarr/internal/services/tmdb"
	"github.com/ddlarr/ddlarr/internal/services/transfer"
	"github.com/ddlarr/ddlarr/internal/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	logger.Info("Starting ddlarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	// 4. Load blacklist
	blacklist, err := utils.LoadBlacklist(cfg.BlacklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blacklist, continuing without it")
		blacklist = &utils.Blacklist{}
	} else {
		logger.Info("Blacklist loaded")
	}

	// 5. Initialize services
	fetcher := fetch.NewFetcher(20*time.Second, 5*time.Minute, logger)
	expander := scrapers.NewExpander(tmdb.NewClient(cfg.TMDBAPIKey, logger), logger)

	var sites []scrapers.Scraper
	if cfg.ZoneURL != "" {
		sites = append(sites, scrapers.NewZone(cfg.ZoneURL, cfg.MaxPages, fetcher, expander, logger))
	}
	if cfg.WawacityURL != "" {
		sites = append(sites, scrapers.NewWawacity(cfg.WawacityURL, cfg.MaxPages, fetcher, expander, logger))
	}
	registry := scrapers.NewRegistry(sites...)
	logger.WithField("sites", registry.Names()).Info("Scrapers initialized")

	bypass := dlprotect.NewClient(cfg.DLProtectResolverURL, 15*time.Second, logger)
	chain := debrid.NewChain(logger,
		debrid.NewAllDebrid(cfg.AllDebridAPIKey, logger),
		debrid.NewRealDebrid(cfg.RealDebridAPIKey, logger),
		debrid.NewDebridLink(cfg.DebridLinkAPIKey, logger),
	)
	res := resolver.New(bypass, chain, logger)

	dispatcher := downloadclients.NewDispatcher(logger,
		downloadclients.NewSynology(cfg.SynologyURL, cfg.SynologyUsername, cfg.SynologyPassword, cfg.SynologyDestination, logger),
		downloadclients.NewJDownloader(cfg.JDownloaderMode, cfg.JDownloaderWatchDir, cfg.JDownloaderEndpoint, logger),
		downloadclients.NewAria2(cfg.Aria2RPCURL, cfg.Aria2Secret, cfg.DownloadDir, logger),
		downloadclients.NewWget(cfg.WgetEnabled, cfg.DownloadDir, logger),
		downloadclients.NewCurl(cfg.CurlEnabled, cfg.DownloadDir, logger),
	)

	// 6. Initialize controllers
	searchCtrl := controllers.NewSearchController(registry, res, blacklist, cfg.ResolveAtIndex, logger)
	watcherCtrl := controllers.NewWatcherController(cfg.WatchDir, cfg.KeepProcessed, res, dispatcher, logger)
	transfers := transfer.NewRegistry()
	queueCtrl := controllers.NewQueueController(db, res, transfers, transfer.Tool(cfg.DownloadTool),
		cfg.DownloadDir, cfg.MaxConcurrentDownloads, time.Duration(cfg.StallTimeoutMinutes)*time.Minute, logger)
	cleanupCtrl := controllers.NewCleanupController(db, cfg.WatchDir, cfg.DownloadDir, cfg.RetentionDays, logger)
	logger.Info("Controllers initialized")

	// 7. Requeue downloads interrupted by the previous shutdown
	if err := queueCtrl.Recover(); err != nil {
		logger.WithError(err).Warn("Failed to recover interrupted downloads")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testClients(ctx, dispatcher, chain, logger)

	// 8. Start the watch directory pipeline and the scheduler
	if err := watcherCtrl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcherCtrl.Stop()

	sched := scheduler.NewScheduler(watcherCtrl, queueCtrl, cleanupCtrl, cfg.WatchIntervalSeconds, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 9. Initialize HTTP server
	server := api.NewServer(cfg, db, searchCtrl, queueCtrl, watcherCtrl, transfers, res, dispatcher, registry, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 10. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("ddlarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("ddlarr stopped")
	return nil
}

// testClients probes the enabled download client and debrid backends
// once at startup so misconfiguration shows up in the log before the
// first placeholder arrives
func testClients(ctx context.Context, dispatcher *downloadclients.Dispatcher, chain *debrid.Chain, logger *logrus.Logger) {
	for _, client := range dispatcher.Enabled() {
		testCtx, testCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.TestConnection(testCtx); err != nil {
			logger.WithError(err).WithField("client", client.Name()).Warn("Download client unreachable")
		} else {
			logger.WithField("client", client.Name()).Info("Download client connected")
		}
		testCancel()
	}
	for _, d := range chain.Configured() {
		testCtx, testCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := d.TestConnection(testCtx); err != nil {
			logger.WithError(err).WithField("debrid", d.Name()).Warn("Debrid service unreachable")
		} else {
			logger.WithField("debrid", d.Name()).Info("Debrid service connected")
		}
		testCancel()
	}
}
