package controllers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
)

// CleanupController prunes finished state: terminal job records, the
// watcher's failed and processed archives, and orphaned partial files.
// Completed payloads themselves are never touched.
type CleanupController struct {
	db          *models.Database
	watchDir    string
	downloadDir string
	retention   time.Duration
	logger      *logrus.Logger
}

// NewCleanupController creates a new cleanup controller
func NewCleanupController(db *models.Database, watchDir, downloadDir string, retentionDays int, logger *logrus.Logger) *CleanupController {
	return &CleanupController{
		db:          db,
		watchDir:    watchDir,
		downloadDir: downloadDir,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		logger:      logger,
	}
}

// Run performs one full cleanup pass. This runs daily.
func (c *CleanupController) Run(ctx context.Context) error {
	c.logger.Info("Starting cleanup of expired records and files")

	jobs, err := c.pruneJobs()
	if err != nil {
		return fmt.Errorf("failed to prune jobs: %w", err)
	}

	files := 0
	for _, dir := range []string{dirFailed, dirProcessed} {
		n, err := c.pruneDir(filepath.Join(c.watchDir, dir))
		if err != nil {
			c.logger.WithError(err).WithField("dir", dir).Warn("Failed to prune watch archive")
			continue
		}
		files += n
	}

	orphans, err := c.pruneOrphanedPartials()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to prune partial files")
	}

	c.logger.WithFields(logrus.Fields{
		"jobs":    jobs,
		"files":   files,
		"orphans": orphans,
	}).Info("Cleanup completed")
	return nil
}

// pruneJobs deletes terminal job records past the retention window. A
// pruned error or stalled job also loses its partial file; nothing can
// resume it once the record is gone.
func (c *CleanupController) pruneJobs() (int, error) {
	pruned := 0
	for _, state := range []models.JobState{models.JobStateCompleted, models.JobStateError, models.JobStateStalled} {
		jobs, err := c.db.GetJobsByState(state)
		if err != nil {
			return pruned, err
		}
		for _, job := range jobs {
			if time.Since(jobFinishedAt(job)) < c.retention {
				continue
			}
			c.logger.WithFields(logrus.Fields{
				"hash":  job.Hash,
				"name":  job.Name,
				"state": job.State,
			}).Debug("Pruning expired job")
			if state != models.JobStateCompleted {
				os.Remove(filepath.Join(c.downloadDir, job.Hash+partialExt))
			}
			if err := c.db.DeleteJob(job.Hash); err != nil {
				c.logger.WithError(err).WithField("hash", job.Hash).Warn("Failed to delete job record")
				continue
			}
			pruned++
		}
	}
	return pruned, nil
}

// pruneDir removes regular files in dir older than the retention window
func (c *CleanupController) pruneDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < c.retention {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			c.logger.WithError(err).WithField("path", path).Warn("Failed to remove expired file")
			continue
		}
		pruned++
	}
	return pruned, nil
}

// pruneOrphanedPartials removes partial files whose job record is gone.
// The age check keeps a racing fresh download safe.
func (c *CleanupController) pruneOrphanedPartials() (int, error) {
	entries, err := os.ReadDir(c.downloadDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), partialExt) {
			continue
		}
		hash := strings.TrimSuffix(entry.Name(), partialExt)
		if _, err := c.db.GetJobByHash(hash); !errors.Is(err, models.ErrNotFound) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < c.retention {
			continue
		}
		path := filepath.Join(c.downloadDir, entry.Name())
		if err := os.Remove(path); err != nil {
			c.logger.WithError(err).WithField("path", path).Warn("Failed to remove orphaned partial")
			continue
		}
		c.logger.WithField("path", path).Debug("Removed orphaned partial file")
		pruned++
	}
	return pruned, nil
}

// jobFinishedAt picks the age anchor for retention. Completed jobs use
// their completion time; failed ones fall back to the last activity.
func jobFinishedAt(job *models.DownloadJob) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	if !job.ProgressAt.IsZero() {
		return job.ProgressAt
	}
	return job.AddedAt
}
