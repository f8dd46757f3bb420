package downloadclients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// JDownloader mode selection
const (
	JDModeLocal  = "local"
	JDModeRemote = "remote"
	JDModeAuto   = "auto"
)

// JDownloader hands links to a JDownloader instance, either by writing
// crawljob files into its folder-watch directory (local) or through its
// Click'n'Load port (remote). Auto prefers remote and falls back.
type JDownloader struct {
	mode     string
	watchDir string
	endpoint string
	client   *http.Client
	logger   *logrus.Logger
}

// NewJDownloader creates the backend. It is enabled when the selected
// mode has its setting: a watch directory for local, an endpoint like
// "http://127.0.0.1:9666" for remote.
func NewJDownloader(mode, watchDir, endpoint string, logger *logrus.Logger) *JDownloader {
	if mode == "" {
		mode = JDModeAuto
	}
	return &JDownloader{
		mode:     mode,
		watchDir: watchDir,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Name implements Client
func (j *JDownloader) Name() string { return "jdownloader" }

// IsEnabled implements Client
func (j *JDownloader) IsEnabled() bool {
	switch j.mode {
	case JDModeLocal:
		return j.watchDir != ""
	case JDModeRemote:
		return j.endpoint != ""
	default:
		return j.watchDir != "" || j.endpoint != ""
	}
}

// AddDownload implements Client
func (j *JDownloader) AddDownload(ctx context.Context, downloadURL, filename string) error {
	switch j.mode {
	case JDModeLocal:
		return j.addLocal(downloadURL, filename)
	case JDModeRemote:
		return j.addRemote(ctx, downloadURL)
	default:
		if j.endpoint != "" {
			if err := j.addRemote(ctx, downloadURL); err == nil {
				return nil
			} else if j.watchDir == "" {
				return err
			} else {
				j.logger.WithError(err).Debug("Remote JDownloader failed, writing crawljob instead")
			}
		}
		return j.addLocal(downloadURL, filename)
	}
}

// addLocal writes a crawljob file that JDownloader's folder watcher
// picks up. The write goes through a temp name so the watcher never
// sees a half-written job.
func (j *JDownloader) addLocal(downloadURL, filename string) error {
	if j.watchDir == "" {
		return fmt.Errorf("jdownloader watch directory not configured")
	}

	job := fmt.Sprintf("text=%s\nfilename=%s\nautoStart=TRUE\nenabled=TRUE\n", downloadURL, filename)
	name := fmt.Sprintf("ddlarr-%d.crawljob", time.Now().UnixNano())
	tmpPath := filepath.Join(j.watchDir, name+".tmp")
	finalPath := filepath.Join(j.watchDir, name)

	if err := os.WriteFile(tmpPath, []byte(job), 0644); err != nil {
		return fmt.Errorf("failed to write crawljob: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish crawljob: %w", err)
	}

	j.logger.WithField("crawljob", finalPath).Debug("Wrote JDownloader crawljob")
	return nil
}

// addRemote pushes the link through JDownloader's Click'n'Load
// interface
func (j *JDownloader) addRemote(ctx context.Context, downloadURL string) error {
	if j.endpoint == "" {
		return fmt.Errorf("jdownloader endpoint not configured")
	}

	form := url.Values{
		"urls":      {downloadURL},
		"autostart": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		j.endpoint+"/flash/add", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach jdownloader: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jdownloader returned status %d", resp.StatusCode)
	}
	return nil
}

// TestConnection implements Client. Local mode checks the watch
// directory exists; remote mode probes the Click'n'Load check script.
func (j *JDownloader) TestConnection(ctx context.Context) error {
	if !j.IsEnabled() {
		return fmt.Errorf("jdownloader not configured")
	}

	if j.mode == JDModeLocal || (j.mode == JDModeAuto && j.endpoint == "") {
		info, err := os.Stat(j.watchDir)
		if err != nil {
			return fmt.Errorf("jdownloader watch directory unavailable: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("jdownloader watch path is not a directory")
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.endpoint+"/jdcheck.js", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach jdownloader: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("failed to read jdownloader check: %w", err)
	}
	if !strings.Contains(string(body), "jdownloader") {
		return fmt.Errorf("endpoint does not look like jdownloader")
	}
	return nil
}
