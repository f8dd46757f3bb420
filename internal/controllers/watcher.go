package controllers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/faketorrent"
	"github.com/ddlarr/ddlarr/internal/metrics"
	"github.com/ddlarr/ddlarr/internal/services/downloadclients"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
)

const (
	placeholderExt = ".torrent"

	dirProcessing = "processing"
	dirFailed     = "failed"
	dirProcessed  = "processed"

	// A create event can fire before the dropper finishes writing
	settleDelay = 500 * time.Millisecond
)

// WatcherStats is a snapshot of inbox activity since startup
type WatcherStats struct {
	Dispatched int64     `json:"dispatched"`
	Failed     int64     `json:"failed"`
	LastScan   time.Time `json:"last_scan"`
}

// WatcherController picks up placeholder files dropped into the watch
// directory, resolves the link they carry and hands it to the download
// clients
type WatcherController struct {
	watchDir      string
	keepProcessed bool
	resolver      *resolver.Resolver
	dispatcher    *downloadclients.Dispatcher
	logger        *logrus.Logger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	stats WatcherStats
}

// NewWatcherController creates a new watcher controller. keepProcessed
// archives handled files under processed/ instead of deleting them.
func NewWatcherController(watchDir string, keepProcessed bool, res *resolver.Resolver, dispatcher *downloadclients.Dispatcher, logger *logrus.Logger) *WatcherController {
	return &WatcherController{
		watchDir:      watchDir,
		keepProcessed: keepProcessed,
		resolver:      res,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// Start prepares the working directories, runs a catch-up scan and
// begins watching for new files. Periodic rescans are driven by the
// scheduler, not here.
func (c *WatcherController) Start(ctx context.Context) error {
	for _, dir := range []string{c.watchDir, filepath.Join(c.watchDir, dirProcessing), filepath.Join(c.watchDir, dirFailed), filepath.Join(c.watchDir, dirProcessed)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create watch directory %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Periodic scans still pick files up without change notification
		c.logger.WithError(err).Warn("Filesystem notification unavailable, relying on periodic scans")
	} else if err := watcher.Add(c.watchDir); err != nil {
		c.logger.WithError(err).Warn("Failed to watch directory, relying on periodic scans")
		watcher.Close()
	} else {
		c.watcher = watcher
		go c.watchLoop(ctx)
	}

	c.logger.WithField("dir", c.watchDir).Info("Watching for placeholder files")
	return c.Scan(ctx)
}

// Stop ends filesystem notification
func (c *WatcherController) Stop() {
	if c.watcher != nil {
		c.watcher.Close()
	}
}

// Stats returns a copy of the inbox counters
func (c *WatcherController) Stats() WatcherStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Scan enumerates root-level placeholder files and processes each one.
// The working subdirectories are never treated as inbound.
func (c *WatcherController) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(c.watchDir)
	if err != nil {
		return fmt.Errorf("failed to read watch directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isPlaceholder(entry.Name()) {
			continue
		}
		c.process(ctx, filepath.Join(c.watchDir, entry.Name()))
	}

	c.mu.Lock()
	c.stats.LastScan = time.Now()
	c.mu.Unlock()
	return nil
}

// watchLoop reacts to change notifications. It races the periodic scan
// over the same files; process resolves the race.
func (c *WatcherController) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isPlaceholder(event.Name) || filepath.Dir(event.Name) != filepath.Clean(c.watchDir) {
				continue
			}
			time.Sleep(settleDelay)
			c.process(ctx, event.Name)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Warn("Watch error")
		}
	}
}

// process runs one placeholder file through decode, resolution and
// dispatch. All failure paths land the file in failed/ tagged with a
// reason.
func (c *WatcherController) process(ctx context.Context, path string) {
	name := filepath.Base(path)
	processingPath := filepath.Join(c.watchDir, dirProcessing, name)

	// The rename is the dedup point: the scan and the watch loop can
	// both see a new file, and whoever wins the rename owns it
	if err := os.Rename(path, processingPath); err != nil {
		c.logger.WithField("file", name).Debug("File already claimed, skipping")
		return
	}

	logger := c.logger.WithField("file", name)
	logger.Info("Processing placeholder file")

	data, err := os.ReadFile(processingPath)
	if err != nil {
		logger.WithError(err).Error("Failed to read placeholder file")
		c.fail(processingPath, "read-error")
		return
	}

	payload, err := faketorrent.Decode(data)
	if err != nil {
		logger.WithError(err).Warn("Placeholder file carries no link")
		c.fail(processingPath, "no-link")
		return
	}

	filename := payload.Name
	if filename == "" {
		filename = strings.TrimSuffix(name, placeholderExt)
	}

	// Nothing downstream can retry a protected link, so a bypass
	// failure is fatal here, unlike at search time
	resolved, err := c.resolver.Resolve(ctx, payload.URL, true)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve link")
		c.fail(processingPath, "dlprotect-error")
		return
	}

	if err := c.dispatcher.Dispatch(ctx, resolved, filename); err != nil {
		logger.WithError(err).Error("Failed to dispatch download")
		c.fail(processingPath, "download-client-error")
		return
	}

	c.finish(processingPath)

	c.mu.Lock()
	c.stats.Dispatched++
	c.mu.Unlock()
	metrics.PlaceholdersDispatched.Inc()

	logger.WithField("filename", filename).Info("Placeholder file dispatched")
}

// fail moves a claimed file into failed/, tagged with the reason and a
// timestamp so repeated failures of the same title never collide
func (c *WatcherController) fail(processingPath, reason string) {
	c.mu.Lock()
	c.stats.Failed++
	c.mu.Unlock()
	metrics.PlaceholderFailures.WithLabelValues(reason).Inc()

	name := fmt.Sprintf("%s.%s-%d", filepath.Base(processingPath), reason, time.Now().Unix())
	failedPath := filepath.Join(c.watchDir, dirFailed, name)
	if err := os.Rename(processingPath, failedPath); err != nil {
		c.logger.WithError(err).WithField("file", processingPath).Error("Failed to move file to failed directory")
	}
}

// finish removes a dispatched file, or archives it when keepProcessed
// is on
func (c *WatcherController) finish(processingPath string) {
	if c.keepProcessed {
		processedPath := filepath.Join(c.watchDir, dirProcessed, filepath.Base(processingPath))
		if err := os.Rename(processingPath, processedPath); err != nil {
			c.logger.WithError(err).Warn("Failed to archive processed file")
		}
		return
	}
	if err := os.Remove(processingPath); err != nil {
		c.logger.WithError(err).Warn("Failed to delete processed file")
	}
}

func isPlaceholder(name string) bool {
	return strings.EqualFold(filepath.Ext(name), placeholderExt)
}
