package debrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// DebridLink talks to the Debrid-Link v2 API
type DebridLink struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewDebridLink creates the backend. An empty key leaves it unconfigured.
func NewDebridLink(apiKey string, logger *logrus.Logger) *DebridLink {
	return &DebridLink{
		apiKey:  apiKey,
		baseURL: "https://debrid-link.com",
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// Name implements Debrider
func (d *DebridLink) Name() string { return "debridlink" }

// IsConfigured implements Debrider
func (d *DebridLink) IsConfigured() bool { return d.apiKey != "" }

type debridLinkEnvelope struct {
	Success bool            `json:"success"`
	Value   json.RawMessage `json:"value"`
	Error   string          `json:"error"`
}

// Unlock implements Debrider
func (d *DebridLink) Unlock(ctx context.Context, link string) (string, error) {
	if !d.IsConfigured() {
		return "", fmt.Errorf("debridlink not configured")
	}

	payload, err := json.Marshal(map[string]string{"url": link})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/api/v2/downloader/add", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call debridlink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("debridlink returned status %d", resp.StatusCode)
	}

	var envelope debridLinkEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("failed to decode debridlink response: %w", err)
	}
	if !envelope.Success {
		return "", fmt.Errorf("debridlink error: %s", envelope.Error)
	}

	var value struct {
		DownloadURL string `json:"downloadUrl"`
		Name        string `json:"name"`
		Size        int64  `json:"size"`
	}
	if err := json.Unmarshal(envelope.Value, &value); err != nil {
		return "", fmt.Errorf("failed to decode debridlink value: %w", err)
	}
	if value.DownloadURL == "" {
		return "", fmt.Errorf("debridlink returned no link")
	}
	return value.DownloadURL, nil
}

// TestConnection implements Debrider
func (d *DebridLink) TestConnection(ctx context.Context) error {
	if !d.IsConfigured() {
		return fmt.Errorf("debridlink not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/v2/account/infos", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call debridlink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("debridlink returned status %d", resp.StatusCode)
	}

	var envelope debridLinkEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode debridlink response: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("debridlink error: %s", envelope.Error)
	}
	return nil
}
