package downloadclients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Aria2 drives an aria2c daemon over its JSON-RPC interface
type Aria2 struct {
	rpcURL      string
	secret      string
	downloadDir string
	client      *http.Client
	logger      *logrus.Logger
}

// NewAria2 creates the backend. An empty RPC URL leaves it disabled.
func NewAria2(rpcURL, secret, downloadDir string, logger *logrus.Logger) *Aria2 {
	return &Aria2{
		rpcURL:      rpcURL,
		secret:      secret,
		downloadDir: downloadDir,
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
	}
}

// Name implements Client
func (a *Aria2) Name() string { return "aria2" }

// IsEnabled implements Client
func (a *Aria2) IsEnabled() bool { return a.rpcURL != "" }

type aria2Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type aria2Response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Aria2) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	// The token parameter always comes first when a secret is set
	if a.secret != "" {
		params = append([]interface{}{"token:" + a.secret}, params...)
	}

	payload, err := json.Marshal(aria2Request{
		JSONRPC: "2.0",
		ID:      "ddlarr",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call aria2: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp aria2Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode aria2 response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("aria2 error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("failed to decode aria2 result: %w", err)
		}
	}
	return nil
}

// AddDownload implements Client
func (a *Aria2) AddDownload(ctx context.Context, downloadURL, filename string) error {
	options := map[string]string{}
	if filename != "" {
		options["out"] = filename
	}
	if a.downloadDir != "" {
		options["dir"] = a.downloadDir
	}

	var gid string
	if err := a.call(ctx, "aria2.addUri", []interface{}{[]string{downloadURL}, options}, &gid); err != nil {
		return fmt.Errorf("failed to queue aria2 download: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"gid":      gid,
		"filename": filename,
	}).Debug("Queued aria2 download")
	return nil
}

// TestConnection implements Client
func (a *Aria2) TestConnection(ctx context.Context) error {
	if !a.IsEnabled() {
		return fmt.Errorf("aria2 not configured")
	}
	var version struct {
		Version string `json:"version"`
	}
	if err := a.call(ctx, "aria2.getVersion", nil, &version); err != nil {
		return err
	}
	if !strings.HasPrefix(version.Version, "1.") {
		a.logger.WithField("version", version.Version).Warn("Unexpected aria2 version")
	}
	return nil
}
