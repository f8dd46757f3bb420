package models

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordJobProgressMonotonicTotal(t *testing.T) {
	db := openTestDatabase(t)

	job := &DownloadJob{Hash: "abc123", Name: "test", State: JobStateDownloading}
	if err := db.CreateJob(job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	// A transfer session may report a missing or shrunken total after a
	// resume. The stored total must only ever grow.
	for _, total := range []int64{0, 500, 300, 800} {
		if err := db.RecordJobProgress("abc123", 100, total, 10); err != nil {
			t.Fatalf("RecordJobProgress(total=%d) error = %v", total, err)
		}
	}

	got, err := db.GetJobByHash("abc123")
	if err != nil {
		t.Fatalf("GetJobByHash() error = %v", err)
	}
	if got.TotalSize != 800 {
		t.Errorf("TotalSize = %d, want 800", got.TotalSize)
	}

	// Reversed reports must converge on the same maximum.
	job2 := &DownloadJob{Hash: "def456", Name: "test2", State: JobStateDownloading}
	if err := db.CreateJob(job2); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	for _, total := range []int64{800, 300, 500, 0} {
		if err := db.RecordJobProgress("def456", 100, total, 10); err != nil {
			t.Fatalf("RecordJobProgress(total=%d) error = %v", total, err)
		}
	}
	got2, err := db.GetJobByHash("def456")
	if err != nil {
		t.Fatalf("GetJobByHash() error = %v", err)
	}
	if got2.TotalSize != 800 {
		t.Errorf("TotalSize after reversed reports = %d, want 800", got2.TotalSize)
	}
}

func TestNextQueuedJobOrdering(t *testing.T) {
	db := openTestDatabase(t)

	first := &DownloadJob{Hash: "h1", State: JobStateQueued, Priority: 0}
	if err := db.CreateJob(first); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second := &DownloadJob{Hash: "h2", State: JobStateQueued, Priority: 0}
	if err := db.CreateJob(second); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	urgent := &DownloadJob{Hash: "h3", State: JobStateQueued, Priority: 5}
	if err := db.CreateJob(urgent); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	next, err := db.NextQueuedJob()
	if err != nil {
		t.Fatalf("NextQueuedJob() error = %v", err)
	}
	if next.Hash != "h3" {
		t.Errorf("NextQueuedJob() = %s, want h3 (highest priority)", next.Hash)
	}

	if err := db.SetJobState("h3", JobStateChecking, ""); err != nil {
		t.Fatalf("SetJobState() error = %v", err)
	}
	next, err = db.NextQueuedJob()
	if err != nil {
		t.Fatalf("NextQueuedJob() error = %v", err)
	}
	if next.Hash != "h1" {
		t.Errorf("NextQueuedJob() = %s, want h1 (earliest insertion)", next.Hash)
	}
}

func TestCountActiveJobs(t *testing.T) {
	db := openTestDatabase(t)

	states := []JobState{JobStateQueued, JobStateChecking, JobStateDownloading, JobStatePaused, JobStateCompleted}
	for i, state := range states {
		job := &DownloadJob{Hash: string(rune('a' + i)), State: state}
		if err := db.CreateJob(job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
	}

	active, err := db.CountActiveJobs()
	if err != nil {
		t.Fatalf("CountActiveJobs() error = %v", err)
	}
	if active != 2 {
		t.Errorf("CountActiveJobs() = %d, want 2 (checking + downloading)", active)
	}
}
