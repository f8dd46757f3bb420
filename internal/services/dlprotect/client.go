// Package dlprotect talks to the link-bypass sidecar that resolves
// dl-protect redirector URLs into direct hoster links.
package dlprotect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var protectedHosts = []string{
	"dl-protect.link",
	"dl-protect.net",
	"dl-protect.org",
}

// IsProtected reports whether link points at a dl-protect redirector
func IsProtected(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range protectedHosts {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// CleanLink strips the query string and fragment. Protected links carry
// tracking parameters that some hosters reject; the bare path form
// still works as a manual fallback.
func CleanLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// Client calls the bypass resolver service
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewClient creates a resolver client. An empty baseURL leaves the
// client unconfigured and every Resolve call fails fast.
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// IsConfigured reports whether a resolver endpoint is set
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	ResolvedURL string `json:"resolved_url"`
	Cached      bool   `json:"cached"`
	CacheSource string `json:"cache_source"`
	Error       string `json:"error"`
}

// Resolve turns a protected link into a direct hoster link. The result
// is only accepted when it no longer points at a redirector; anything
// else is an error and the caller picks its own fallback.
func (c *Client) Resolve(ctx context.Context, link string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("bypass resolver not configured")
	}

	payload, err := json.Marshal(resolveRequest{URL: link})
	if err != nil {
		return "", fmt.Errorf("failed to encode resolve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolve", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create resolve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call bypass resolver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bypass resolver returned status %d", resp.StatusCode)
	}

	var result resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode resolver response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("bypass resolver failed: %s", result.Error)
	}
	if result.ResolvedURL == "" {
		return "", fmt.Errorf("bypass resolver returned no link")
	}
	if IsProtected(result.ResolvedURL) {
		return "", fmt.Errorf("bypass resolver returned a still protected link")
	}

	c.logger.WithFields(logrus.Fields{
		"cached": result.Cached,
		"source": result.CacheSource,
	}).Debug("Bypassed protected link")

	return result.ResolvedURL, nil
}

type healthResponse struct {
	Status       string `json:"status"`
	CacheEntries int    `json:"cache_entries"`
}

// Health probes the resolver's health endpoint
func (c *Client) Health(ctx context.Context) error {
	if !c.IsConfigured() {
		return fmt.Errorf("bypass resolver not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach bypass resolver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bypass resolver health returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("bypass resolver unhealthy: %s", health.Status)
	}
	return nil
}
