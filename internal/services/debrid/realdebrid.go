package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// RealDebrid talks to the Real-Debrid REST API
type RealDebrid struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewRealDebrid creates the backend. An empty key leaves it unconfigured.
func NewRealDebrid(apiKey string, logger *logrus.Logger) *RealDebrid {
	return &RealDebrid{
		apiKey:  apiKey,
		baseURL: "https://api.real-debrid.com",
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// Name implements Debrider
func (r *RealDebrid) Name() string { return "realdebrid" }

// IsConfigured implements Debrider
func (r *RealDebrid) IsConfigured() bool { return r.apiKey != "" }

type realDebridError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// Unlock implements Debrider
func (r *RealDebrid) Unlock(ctx context.Context, link string) (string, error) {
	if !r.IsConfigured() {
		return "", fmt.Errorf("realdebrid not configured")
	}

	form := url.Values{"link": {link}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/rest/1.0/unrestrict/link", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call realdebrid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr realDebridError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("realdebrid error %d: %s", apiErr.ErrorCode, apiErr.Error)
		}
		return "", fmt.Errorf("realdebrid returned status %d", resp.StatusCode)
	}

	var data struct {
		Download string `json:"download"`
		Filename string `json:"filename"`
		Filesize int64  `json:"filesize"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("failed to decode realdebrid response: %w", err)
	}
	if data.Download == "" {
		return "", fmt.Errorf("realdebrid returned no link")
	}
	return data.Download, nil
}

// TestConnection implements Debrider
func (r *RealDebrid) TestConnection(ctx context.Context) error {
	if !r.IsConfigured() {
		return fmt.Errorf("realdebrid not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/rest/1.0/user", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call realdebrid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("realdebrid returned status %d", resp.StatusCode)
	}
	return nil
}
