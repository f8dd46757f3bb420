package controllers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ddlarr/ddlarr/internal/models"
)

func newTestCleanup(t *testing.T) (*CleanupController, *models.Database, string, string) {
	t.Helper()
	watchDir := t.TempDir()
	downloadDir := t.TempDir()

	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctrl := NewCleanupController(db, watchDir, downloadDir, 7, testLogger())
	return ctrl, db, watchDir, downloadDir
}

func seedJob(t *testing.T, db *models.Database, hash string, state models.JobState, age time.Duration) {
	t.Helper()
	job := &models.DownloadJob{
		Hash:  hash,
		Name:  hash,
		State: models.JobStateQueued,
	}
	if err := db.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := db.SetJobState(hash, state, ""); err != nil {
		t.Fatalf("SetJobState: %v", err)
	}
	job, err := db.GetJobByHash(hash)
	if err != nil {
		t.Fatalf("GetJobByHash: %v", err)
	}
	finished := time.Now().Add(-age)
	job.ProgressAt = finished
	if job.CompletedAt != nil {
		job.CompletedAt = &finished
	}
	if err := db.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes(%s): %v", path, err)
	}
}

func TestCleanupPrunesExpiredJobs(t *testing.T) {
	ctrl, db, _, _ := newTestCleanup(t)

	seedJob(t, db, "oldcompleted", models.JobStateCompleted, 10*24*time.Hour)
	seedJob(t, db, "freshcompleted", models.JobStateCompleted, time.Hour)
	seedJob(t, db, "olddownloading", models.JobStateDownloading, 10*24*time.Hour)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := db.GetJobByHash("oldcompleted"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expired completed job still present, err = %v", err)
	}
	if _, err := db.GetJobByHash("freshcompleted"); err != nil {
		t.Errorf("fresh completed job pruned: %v", err)
	}
	// Active jobs are never pruned, however old their last progress is
	if _, err := db.GetJobByHash("olddownloading"); err != nil {
		t.Errorf("downloading job pruned: %v", err)
	}
}

func TestCleanupRemovesFailedJobPartial(t *testing.T) {
	ctrl, db, _, downloadDir := newTestCleanup(t)

	seedJob(t, db, "oldfailure", models.JobStateError, 10*24*time.Hour)
	partial := filepath.Join(downloadDir, "oldfailure"+partialExt)
	writeAged(t, partial, time.Hour)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := db.GetJobByHash("oldfailure"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expired failed job still present, err = %v", err)
	}
	if _, err := os.Stat(partial); !os.IsNotExist(err) {
		t.Error("partial file survived its job record")
	}
}

func TestCleanupPrunesWatchArchives(t *testing.T) {
	ctrl, _, watchDir, _ := newTestCleanup(t)

	for _, dir := range []string{dirFailed, dirProcessed} {
		if err := os.MkdirAll(filepath.Join(watchDir, dir), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	oldFile := filepath.Join(watchDir, dirFailed, "Old.torrent.no-link-123")
	freshFile := filepath.Join(watchDir, dirProcessed, "Fresh.torrent")
	writeAged(t, oldFile, 10*24*time.Hour)
	writeAged(t, freshFile, time.Hour)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("expired failed archive entry survived")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Errorf("fresh processed entry removed: %v", err)
	}
}

func TestCleanupOrphanedPartials(t *testing.T) {
	ctrl, db, _, downloadDir := newTestCleanup(t)

	seedJob(t, db, "tracked", models.JobStatePaused, time.Hour)
	trackedPartial := filepath.Join(downloadDir, "tracked"+partialExt)
	orphanOld := filepath.Join(downloadDir, "orphan1"+partialExt)
	orphanFresh := filepath.Join(downloadDir, "orphan2"+partialExt)
	writeAged(t, trackedPartial, 10*24*time.Hour)
	writeAged(t, orphanOld, 10*24*time.Hour)
	writeAged(t, orphanFresh, time.Hour)

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(trackedPartial); err != nil {
		t.Errorf("partial with live job removed: %v", err)
	}
	if _, err := os.Stat(orphanOld); !os.IsNotExist(err) {
		t.Error("old orphaned partial survived")
	}
	if _, err := os.Stat(orphanFresh); err != nil {
		t.Errorf("fresh orphaned partial removed: %v", err)
	}
}
