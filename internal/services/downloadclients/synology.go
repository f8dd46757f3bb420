package downloadclients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Synology drives DSM's Download Station over its web API
type Synology struct {
	baseURL     string
	username    string
	password    string
	destination string
	client      *http.Client
	logger      *logrus.Logger
}

// NewSynology creates the backend. Empty credentials leave it disabled.
func NewSynology(baseURL, username, password, destination string, logger *logrus.Logger) *Synology {
	return &Synology{
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    username,
		password:    password,
		destination: destination,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// Name implements Client
func (s *Synology) Name() string { return "synology" }

// IsEnabled implements Client
func (s *Synology) IsEnabled() bool {
	return s.baseURL != "" && s.username != "" && s.password != ""
}

// Download Station error codes worth a readable message
var synologyErrors = map[int]string{
	100: "unknown error",
	101: "invalid parameter",
	102: "API does not exist",
	105: "session does not have permission",
	106: "session timeout",
	400: "no such account or file upload failed",
	401: "account disabled or maximum number of tasks reached",
	402: "permission denied or destination denied",
	403: "two-factor authentication required or destination does not exist",
	406: "no default destination",
}

func synologyErrorMessage(code int) string {
	if msg, ok := synologyErrors[code]; ok {
		return msg
	}
	return "unexpected error"
}

type synologyEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code int `json:"code"`
	} `json:"error"`
}

func (s *Synology) call(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call download station: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download station returned status %d", resp.StatusCode)
	}

	var envelope synologyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode download station response: %w", err)
	}
	if !envelope.Success {
		code := 0
		if envelope.Error != nil {
			code = envelope.Error.Code
		}
		return fmt.Errorf("download station error %d: %s", code, synologyErrorMessage(code))
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode download station data: %w", err)
		}
	}
	return nil
}

func (s *Synology) login(ctx context.Context) (string, error) {
	params := url.Values{
		"api":     {"SYNO.API.Auth"},
		"version": {"3"},
		"method":  {"login"},
		"account": {s.username},
		"passwd":  {s.password},
		"session": {"DownloadStation"},
		"format":  {"sid"},
	}
	var data struct {
		SID string `json:"sid"`
	}
	if err := s.call(ctx, "/webapi/auth.cgi", params, &data); err != nil {
		return "", fmt.Errorf("download station login failed: %w", err)
	}
	if data.SID == "" {
		return "", fmt.Errorf("download station returned no session id")
	}
	return data.SID, nil
}

func (s *Synology) logout(ctx context.Context, sid string) {
	params := url.Values{
		"api":     {"SYNO.API.Auth"},
		"version": {"1"},
		"method":  {"logout"},
		"session": {"DownloadStation"},
		"_sid":    {sid},
	}
	if err := s.call(ctx, "/webapi/auth.cgi", params, nil); err != nil {
		s.logger.WithError(err).Debug("Download station logout failed")
	}
}

// AddDownload implements Client: login, create the task, logout
func (s *Synology) AddDownload(ctx context.Context, downloadURL, filename string) error {
	sid, err := s.login(ctx)
	if err != nil {
		return err
	}
	defer s.logout(ctx, sid)

	params := url.Values{
		"api":     {"SYNO.DownloadStation.Task"},
		"version": {"1"},
		"method":  {"create"},
		"uri":     {downloadURL},
		"_sid":    {sid},
	}
	if s.destination != "" {
		params.Set("destination", s.destination)
	}
	if err := s.call(ctx, "/webapi/DownloadStation/task.cgi", params, nil); err != nil {
		return fmt.Errorf("failed to create download task: %w", err)
	}

	s.logger.WithField("filename", filename).Debug("Created download station task")
	return nil
}

// TestConnection implements Client
func (s *Synology) TestConnection(ctx context.Context) error {
	if !s.IsEnabled() {
		return fmt.Errorf("synology not configured")
	}
	sid, err := s.login(ctx)
	if err != nil {
		return err
	}
	s.logout(ctx, sid)
	return nil
}
