package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = bolthold.ErrNotFound

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Job operations

// CreateJob inserts a new download job keyed by its hash
func (db *Database) CreateJob(job *DownloadJob) error {
	job.AddedAt = time.Now()
	job.ProgressAt = job.AddedAt
	return db.store.Insert(job.Hash, job)
}

// UpdateJob replaces an existing job record
func (db *Database) UpdateJob(job *DownloadJob) error {
	return db.store.Update(job.Hash, job)
}

// GetJobByHash retrieves a job by hash
func (db *Database) GetJobByHash(hash string) (*DownloadJob, error) {
	var job DownloadJob
	err := db.store.Get(hash, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetAllJobs retrieves every job
func (db *Database) GetAllJobs() ([]*DownloadJob, error) {
	var jobs []*DownloadJob
	err := db.store.Find(&jobs, nil)
	return jobs, err
}

// GetJobsByState retrieves all jobs in a given state
func (db *Database) GetJobsByState(state JobState) ([]*DownloadJob, error) {
	var jobs []*DownloadJob
	err := db.store.Find(&jobs, bolthold.Where("State").Eq(state))
	return jobs, err
}

// GetJobsByCategory retrieves all jobs with a given category
func (db *Database) GetJobsByCategory(category string) ([]*DownloadJob, error) {
	var jobs []*DownloadJob
	err := db.store.Find(&jobs, bolthold.Where("Category").Eq(category))
	return jobs, err
}

// CountActiveJobs counts jobs occupying a concurrency slot
func (db *Database) CountActiveJobs() (int, error) {
	checking, err := db.store.Count(&DownloadJob{}, bolthold.Where("State").Eq(JobStateChecking))
	if err != nil {
		return 0, err
	}
	downloading, err := db.store.Count(&DownloadJob{}, bolthold.Where("State").Eq(JobStateDownloading))
	if err != nil {
		return 0, err
	}
	return checking + downloading, nil
}

// NextQueuedJob returns the queued job with the highest priority,
// ties broken by insertion time. Returns bolthold.ErrNotFound when
// the queue is empty.
func (db *Database) NextQueuedJob() (*DownloadJob, error) {
	var jobs []*DownloadJob
	err := db.store.Find(&jobs, bolthold.Where("State").Eq(JobStateQueued))
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, bolthold.ErrNotFound
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Priority != jobs[j].Priority {
			return jobs[i].Priority > jobs[j].Priority
		}
		return jobs[i].AddedAt.Before(jobs[j].AddedAt)
	})
	return jobs[0], nil
}

// SetJobState moves a job to a new state, recording the failure reason
// for error and stalled transitions
func (db *Database) SetJobState(hash string, state JobState, reason string) error {
	job, err := db.GetJobByHash(hash)
	if err != nil {
		return err
	}
	job.State = state
	job.FailureReason = reason
	now := time.Now()
	switch state {
	case JobStateDownloading:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		job.ProgressAt = now
	case JobStateCompleted:
		job.CompletedAt = &now
	}
	return db.store.Update(hash, job)
}

// SetJobResolution records the resolved link and whatever file info the
// probe discovered. Empty filename and zero size leave the stored
// values alone.
func (db *Database) SetJobResolution(hash, resolvedURL, filename string, size int64) error {
	job, err := db.GetJobByHash(hash)
	if err != nil {
		return err
	}
	job.ResolvedURL = resolvedURL
	if filename != "" {
		job.Filename = filename
	}
	if size > job.TotalSize {
		job.TotalSize = size
	}
	return db.store.Update(hash, job)
}

// SetJobResumeOffset records the bytes already on disk before the next
// transfer session starts
func (db *Database) SetJobResumeOffset(hash string, offset int64) error {
	job, err := db.GetJobByHash(hash)
	if err != nil {
		return err
	}
	job.ResumeOffset = offset
	return db.store.Update(hash, job)
}

// RecordJobProgress applies one progress event. The stored total is
// monotonic: a smaller or zero total from a confused transfer session
// never overwrites a larger known one.
func (db *Database) RecordJobProgress(hash string, downloaded, total, speed int64) error {
	job, err := db.GetJobByHash(hash)
	if err != nil {
		return err
	}
	job.Downloaded = downloaded
	if total > job.TotalSize {
		job.TotalSize = total
	}
	job.Speed = speed
	job.ProgressAt = time.Now()
	return db.store.Update(hash, job)
}

// DeleteJob removes a job record
func (db *Database) DeleteJob(hash string) error {
	return db.store.Delete(hash, &DownloadJob{})
}

// CountJobsByState returns a state -> count map for the status endpoint
func (db *Database) CountJobsByState() (map[JobState]int, error) {
	jobs, err := db.GetAllJobs()
	if err != nil {
		return nil, err
	}
	counts := make(map[JobState]int)
	for _, job := range jobs {
		counts[job.State]++
	}
	return counts, nil
}
