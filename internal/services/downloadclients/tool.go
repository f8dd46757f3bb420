package downloadclients

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/services/transfer"
)

// ToolClient downloads with a local wget or curl subprocess straight
// into the download directory. AddDownload returns once the subprocess
// is running; completion and the final rename happen in the background.
type ToolClient struct {
	tool        transfer.Tool
	enabled     bool
	downloadDir string
	logger      *logrus.Logger
}

// NewWget creates the wget-based client
func NewWget(enabled bool, downloadDir string, logger *logrus.Logger) *ToolClient {
	return &ToolClient{tool: transfer.ToolWget, enabled: enabled, downloadDir: downloadDir, logger: logger}
}

// NewCurl creates the curl-based client
func NewCurl(enabled bool, downloadDir string, logger *logrus.Logger) *ToolClient {
	return &ToolClient{tool: transfer.ToolCurl, enabled: enabled, downloadDir: downloadDir, logger: logger}
}

// Name implements Client
func (t *ToolClient) Name() string { return string(t.tool) }

// IsEnabled implements Client
func (t *ToolClient) IsEnabled() bool { return t.enabled && t.downloadDir != "" }

// AddDownload implements Client
func (t *ToolClient) AddDownload(ctx context.Context, downloadURL, filename string) error {
	if !t.IsEnabled() {
		return fmt.Errorf("%s client not enabled", t.tool)
	}
	if filename == "" {
		filename = filepath.Base(downloadURL)
	}

	tempPath := filepath.Join(t.downloadDir, filename+".part")
	finalPath := filepath.Join(t.downloadDir, filename)

	// Detached from the caller's context: the watcher moves on once the
	// subprocess is running
	tr, err := transfer.Start(context.Background(), transfer.Options{
		Tool:     t.tool,
		URL:      downloadURL,
		TempPath: tempPath,
	}, t.logger)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", t.tool, err)
	}

	go func() {
		for range tr.Progress() {
		}
		if err := tr.Wait(); err != nil {
			t.logger.WithError(err).WithField("filename", filename).Error("Background download failed")
			return
		}
		if err := transfer.MoveFile(tempPath, finalPath); err != nil {
			t.logger.WithError(err).WithField("filename", filename).Error("Failed to move finished download")
			return
		}
		t.logger.WithField("filename", filename).Info("Background download finished")
	}()

	return nil
}

// TestConnection implements Client: the binary must be on PATH
func (t *ToolClient) TestConnection(ctx context.Context) error {
	if !t.IsEnabled() {
		return fmt.Errorf("%s client not enabled", t.tool)
	}
	if _, err := exec.LookPath(string(t.tool)); err != nil {
		return fmt.Errorf("%s binary not found: %w", t.tool, err)
	}
	return nil
}
