package controllers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/metrics"
	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
	"github.com/ddlarr/ddlarr/internal/services/transfer"
)

const probeTimeout = 30 * time.Second

// Extension for in-flight downloads under the download directory
const partialExt = ".part"

// QueueController runs the download queue: it claims queued jobs up to
// the concurrency ceiling and drives each one through resolution, a
// liveness probe and a resumable subprocess transfer.
type QueueController struct {
	db           *models.Database
	resolver     *resolver.Resolver
	transfers    *transfer.Registry
	tool         transfer.Tool
	downloadDir  string
	maxActive    int
	stallTimeout time.Duration
	httpClient   *http.Client
	logger       *logrus.Logger

	// Serializes job claiming so two Schedule calls never pick the
	// same queued job
	mu sync.Mutex
}

// NewQueueController creates a new queue controller
func NewQueueController(db *models.Database, res *resolver.Resolver, transfers *transfer.Registry, tool transfer.Tool, downloadDir string, maxActive int, stallTimeout time.Duration, logger *logrus.Logger) *QueueController {
	if maxActive < 1 {
		maxActive = 1
	}
	return &QueueController{
		db:           db,
		resolver:     res,
		transfers:    transfers,
		tool:         tool,
		downloadDir:  downloadDir,
		maxActive:    maxActive,
		stallTimeout: stallTimeout,
		httpClient:   &http.Client{Timeout: probeTimeout},
		logger:       logger,
	}
}

// JobHash derives the stable job key from the download link. It doubles
// as the hash reported over the WebUI API.
func JobHash(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// AddJob persists a new queued download. Adding a link that is already
// tracked returns the existing job unchanged, so duplicate grabs are
// harmless. The next scheduler pass picks the job up.
func (c *QueueController) AddJob(url, name, category, savePath string, size int64) (*models.DownloadJob, error) {
	hash := JobHash(url)
	if existing, err := c.db.GetJobByHash(hash); err == nil {
		c.logger.WithFields(logrus.Fields{
			"hash": hash,
			"name": existing.Name,
		}).Debug("Job already tracked, skipping duplicate")
		return existing, nil
	}

	if name == "" {
		name = hash
	}
	if savePath == "" {
		savePath = c.downloadDir
	}

	job := &models.DownloadJob{
		Hash:        hash,
		Name:        name,
		OriginalURL: url,
		Filename:    name,
		State:       models.JobStateQueued,
		Category:    category,
		SavePath:    savePath,
		TotalSize:   size,
	}
	if err := c.db.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"hash":     hash,
		"name":     name,
		"category": category,
	}).Info("Queued download job")
	return job, nil
}

// Schedule fills free concurrency slots with queued jobs. Each claimed
// job runs in its own goroutine; checking and downloading states both
// occupy a slot.
func (c *QueueController) Schedule(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, err := c.db.CountActiveJobs()
	if err != nil {
		return fmt.Errorf("failed to count active jobs: %w", err)
	}

	for active < c.maxActive {
		job, err := c.db.NextQueuedJob()
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to pick next job: %w", err)
		}
		if err := c.db.SetJobState(job.Hash, models.JobStateChecking, ""); err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}
		job.State = models.JobStateChecking

		c.logger.WithFields(logrus.Fields{
			"hash": job.Hash,
			"name": job.Name,
		}).Info("Starting download job")
		go c.processJob(ctx, job)
		active++
	}
	return nil
}

// processJob drives one claimed job to a terminal state
func (c *QueueController) processJob(ctx context.Context, job *models.DownloadJob) {
	logger := c.logger.WithFields(logrus.Fields{
		"hash": job.Hash,
		"name": job.Name,
	})

	resolved, err := c.resolver.Resolve(ctx, job.OriginalURL, true)
	if err != nil {
		c.failJob(job.Hash, fmt.Sprintf("failed to resolve link: %v", err))
		return
	}

	filename, size, err := transfer.Probe(ctx, c.httpClient, resolved)
	if err != nil {
		if errors.Is(err, transfer.ErrLinkGone) {
			c.failJob(job.Hash, "link no longer available")
			return
		}
		// Some hosters refuse HEAD; the download itself may still work
		logger.WithError(err).Warn("Link probe failed, continuing")
	}
	if filename == "" {
		filename = job.Filename
	}

	if err := c.db.SetJobResolution(job.Hash, resolved, filename, size); err != nil {
		c.failJob(job.Hash, fmt.Sprintf("failed to store resolution: %v", err))
		return
	}
	if err := c.db.SetJobState(job.Hash, models.JobStateDownloading, ""); err != nil {
		c.failJob(job.Hash, fmt.Sprintf("failed to start download: %v", err))
		return
	}

	tempPath := c.tempPath(job.Hash)
	resumeFrom := diskOffset(tempPath)
	if resumeFrom > 0 {
		logger.WithField("offset", resumeFrom).Info("Resuming partial download")
		if err := c.db.SetJobResumeOffset(job.Hash, resumeFrom); err != nil {
			logger.WithError(err).Debug("Failed to record resume offset")
		}
	}

	err = c.runTransfer(ctx, job.Hash, resolved, tempPath, resumeFrom)
	if errors.Is(err, transfer.ErrRangeRejected) {
		logger.Warn("Server rejected resume range, restarting from zero")
		os.Remove(tempPath)
		if err := c.db.SetJobResumeOffset(job.Hash, 0); err != nil {
			logger.WithError(err).Debug("Failed to reset resume offset")
		}
		err = c.runTransfer(ctx, job.Hash, resolved, tempPath, 0)
	}

	if err != nil {
		if errors.Is(err, transfer.ErrStopped) || ctx.Err() != nil {
			// Paused, deleted, stalled or shutting down; whoever stopped
			// the transfer owns the state
			c.recordResumePoint(job.Hash, tempPath)
			return
		}
		c.failJob(job.Hash, err.Error())
		return
	}

	c.finishJob(job.Hash, filename, tempPath, job.SavePath, logger)
}

// runTransfer runs one transfer session and feeds its progress into the
// job record. Session counters are relative to resumeFrom.
func (c *QueueController) runTransfer(ctx context.Context, hash, url, tempPath string, resumeFrom int64) error {
	t, err := transfer.Start(ctx, transfer.Options{
		Tool:       c.tool,
		URL:        url,
		TempPath:   tempPath,
		ResumeFrom: resumeFrom,
	}, c.logger)
	if err != nil {
		return err
	}
	c.transfers.Add(hash, t)
	metrics.ActiveTransfers.Inc()
	defer func() {
		c.transfers.Remove(hash)
		metrics.ActiveTransfers.Dec()
	}()

	c.consumeProgress(hash, resumeFrom, t.Progress())
	return t.Wait()
}

// consumeProgress applies transfer events to the stored job. A resumed
// session reports only its own bytes, so the pre-resume offset is added
// back into both counters.
func (c *QueueController) consumeProgress(hash string, resumeFrom int64, events <-chan transfer.Progress) {
	for p := range events {
		downloaded := resumeFrom + p.Downloaded
		total := p.Total
		if total > 0 {
			total += resumeFrom
		}
		if err := c.db.RecordJobProgress(hash, downloaded, total, p.Speed); err != nil {
			c.logger.WithError(err).Debug("Failed to record progress")
		}
	}
}

// finishJob relocates the finished file and takes the final size snapshot
func (c *QueueController) finishJob(hash, filename, tempPath, saveDir string, logger *logrus.Entry) {
	finalPath := filepath.Join(saveDir, filename)
	if err := transfer.MoveFile(tempPath, finalPath); err != nil {
		c.failJob(hash, fmt.Sprintf("failed to move file: %v", err))
		return
	}
	if fi, err := os.Stat(finalPath); err == nil {
		if err := c.db.RecordJobProgress(hash, fi.Size(), fi.Size(), 0); err != nil {
			logger.WithError(err).Debug("Failed to record final size")
		}
	}
	if err := c.db.SetJobState(hash, models.JobStateCompleted, ""); err != nil {
		logger.WithError(err).Error("Failed to mark job completed")
		return
	}
	metrics.Downloads.WithLabelValues("completed").Inc()
	logger.WithField("path", finalPath).Info("Download completed")
}

// Pause stops a job's transfer and parks it. Terminal jobs are left
// alone. The partial file stays on disk for the resume.
func (c *QueueController) Pause(hash string) error {
	job, err := c.db.GetJobByHash(hash)
	if err != nil {
		return err
	}
	if job.State.Terminal() || job.State == models.JobStatePaused {
		return nil
	}
	if err := c.db.SetJobState(hash, models.JobStatePaused, ""); err != nil {
		return err
	}
	c.transfers.Stop(hash)
	c.logger.WithFields(logrus.Fields{
		"hash": hash,
		"name": job.Name,
	}).Info("Paused download")
	return nil
}

// Resume requeues a paused, errored or stalled job. The next scheduler
// pass picks it up and the transfer continues from the partial file.
func (c *QueueController) Resume(hash string) error {
	job, err := c.db.GetJobByHash(hash)
	if err != nil {
		return err
	}
	switch job.State {
	case models.JobStatePaused, models.JobStateError, models.JobStateStalled:
		c.logger.WithFields(logrus.Fields{
			"hash": hash,
			"name": job.Name,
		}).Info("Resuming download")
		return c.db.SetJobState(hash, models.JobStateQueued, "")
	}
	return nil
}

// Delete stops a job's transfer and removes its record. deleteFiles
// also removes the partial and final files.
func (c *QueueController) Delete(hash string, deleteFiles bool) error {
	c.transfers.Stop(hash)

	job, err := c.db.GetJobByHash(hash)
	if err != nil {
		// Already gone; deleting twice is not an error
		return nil
	}

	if deleteFiles {
		os.Remove(c.tempPath(hash))
		if job.Filename != "" && job.SavePath != "" {
			os.Remove(filepath.Join(job.SavePath, job.Filename))
		}
	}

	if err := c.db.DeleteJob(hash); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"hash": hash,
		"name": job.Name,
	}).Info("Deleted download job")
	return nil
}

// SweepStalled marks downloading jobs whose last progress event is
// older than the stall window and kills their transfers. A stalled job
// stays resumable, exactly like an errored one.
func (c *QueueController) SweepStalled(ctx context.Context) error {
	jobs, err := c.db.GetJobsByState(models.JobStateDownloading)
	if err != nil {
		return fmt.Errorf("failed to list downloading jobs: %w", err)
	}

	for _, job := range jobs {
		if time.Since(job.ProgressAt) < c.stallTimeout {
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"hash":          job.Hash,
			"name":          job.Name,
			"last_progress": job.ProgressAt,
		}).Warn("Download stalled")
		if err := c.db.SetJobState(job.Hash, models.JobStateStalled, "no progress within the stall window"); err != nil {
			c.logger.WithError(err).Error("Failed to mark job stalled")
			continue
		}
		metrics.Downloads.WithLabelValues("stalled").Inc()
		c.transfers.Stop(job.Hash)
	}
	return nil
}

// Recover requeues jobs a previous process left mid-flight. Their
// subprocesses are gone; the partial files set the resume offsets.
func (c *QueueController) Recover() error {
	for _, state := range []models.JobState{models.JobStateChecking, models.JobStateDownloading} {
		jobs, err := c.db.GetJobsByState(state)
		if err != nil {
			return fmt.Errorf("failed to list %s jobs: %w", state, err)
		}
		for _, job := range jobs {
			if err := c.db.SetJobResumeOffset(job.Hash, diskOffset(c.tempPath(job.Hash))); err != nil {
				c.logger.WithError(err).Debug("Failed to record resume offset")
			}
			if err := c.db.SetJobState(job.Hash, models.JobStateQueued, ""); err != nil {
				c.logger.WithError(err).Error("Failed to requeue job")
				continue
			}
			c.logger.WithFields(logrus.Fields{
				"hash": job.Hash,
				"name": job.Name,
			}).Info("Requeued interrupted download")
		}
	}
	return nil
}

// ActiveTransfers reports the number of running subprocesses
func (c *QueueController) ActiveTransfers() int {
	return c.transfers.Count()
}

func (c *QueueController) failJob(hash, reason string) {
	c.logger.WithFields(logrus.Fields{
		"hash":   hash,
		"reason": reason,
	}).Error("Download job failed")
	if err := c.db.SetJobState(hash, models.JobStateError, reason); err != nil {
		c.logger.WithError(err).Error("Failed to mark job failed")
	}
	metrics.Downloads.WithLabelValues("failed").Inc()
}

// recordResumePoint stores the on-disk byte count after a stopped
// transfer so the next session resumes from the right offset. The job
// may already be deleted; that is fine.
func (c *QueueController) recordResumePoint(hash, tempPath string) {
	if err := c.db.SetJobResumeOffset(hash, diskOffset(tempPath)); err != nil {
		c.logger.WithError(err).Debug("Failed to record resume point")
	}
}

func (c *QueueController) tempPath(hash string) string {
	return filepath.Join(c.downloadDir, hash+partialExt)
}

// diskOffset returns the partial file's size, or zero when none exists
func diskOffset(tempPath string) int64 {
	fi, err := os.Stat(tempPath)
	if err != nil {
		return 0
	}
	return fi.Size()
}
