package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

const allDebridAgent = "ddlarr"

// AllDebrid talks to the AllDebrid v4 API
type AllDebrid struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewAllDebrid creates the backend. An empty key leaves it unconfigured.
func NewAllDebrid(apiKey string, logger *logrus.Logger) *AllDebrid {
	return &AllDebrid{
		apiKey:  apiKey,
		baseURL: "https://api.alldebrid.com",
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// Name implements Debrider
func (a *AllDebrid) Name() string { return "alldebrid" }

// IsConfigured implements Debrider
func (a *AllDebrid) IsConfigured() bool { return a.apiKey != "" }

type allDebridEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AllDebrid) call(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("agent", allDebridAgent)
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call alldebrid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alldebrid returned status %d", resp.StatusCode)
	}

	var envelope allDebridEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode alldebrid response: %w", err)
	}
	if envelope.Status != "success" {
		if envelope.Error != nil {
			return fmt.Errorf("alldebrid error %s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("alldebrid returned status %q", envelope.Status)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode alldebrid data: %w", err)
		}
	}
	return nil
}

// Unlock implements Debrider
func (a *AllDebrid) Unlock(ctx context.Context, link string) (string, error) {
	if !a.IsConfigured() {
		return "", fmt.Errorf("alldebrid not configured")
	}

	var data struct {
		Link     string `json:"link"`
		Filename string `json:"filename"`
		Filesize int64  `json:"filesize"`
	}
	params := url.Values{"link": {link}}
	if err := a.call(ctx, "/v4/link/unlock", params, &data); err != nil {
		return "", err
	}
	if data.Link == "" {
		return "", fmt.Errorf("alldebrid returned no link")
	}
	return data.Link, nil
}

// TestConnection implements Debrider
func (a *AllDebrid) TestConnection(ctx context.Context) error {
	if !a.IsConfigured() {
		return fmt.Errorf("alldebrid not configured")
	}
	return a.call(ctx, "/v4/user", url.Values{}, nil)
}
