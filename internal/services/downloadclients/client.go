// Package downloadclients sends resolved links to the configured
// download backends. Dispatch is redundant on purpose: every enabled
// backend gets the link and one acceptance is enough for success.
package downloadclients

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Client is one download backend
type Client interface {
	// Name identifies the backend in logs and status reports
	Name() string
	// IsEnabled reports whether the backend is configured and switched on
	IsEnabled() bool
	// TestConnection verifies the backend is reachable
	TestConnection(ctx context.Context) error
	// AddDownload hands a direct link to the backend
	AddDownload(ctx context.Context, url, filename string) error
}

// Dispatcher fans a link out to every enabled backend
type Dispatcher struct {
	clients []Client
	logger  *logrus.Logger
}

// NewDispatcher creates a dispatcher over the given backends
func NewDispatcher(logger *logrus.Logger, clients ...Client) *Dispatcher {
	return &Dispatcher{clients: clients, logger: logger}
}

// Enabled returns the backends currently switched on
func (d *Dispatcher) Enabled() []Client {
	var out []Client
	for _, c := range d.clients {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}

// Dispatch sends the link to every enabled backend. It succeeds when at
// least one backend accepts; it fails when none is enabled or all of
// them refuse.
func (d *Dispatcher) Dispatch(ctx context.Context, url, filename string) error {
	enabled := d.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("no download client enabled")
	}

	accepted := 0
	var lastErr error
	for _, c := range enabled {
		if err := c.AddDownload(ctx, url, filename); err != nil {
			lastErr = err
			d.logger.WithError(err).WithField("client", c.Name()).Warn("Download client refused link")
			continue
		}
		accepted++
		d.logger.WithFields(logrus.Fields{
			"client":   c.Name(),
			"filename": filename,
		}).Info("Sent download to client")
	}

	if accepted == 0 {
		return fmt.Errorf("all download clients failed: %w", lastErr)
	}
	return nil
}
