// Package debrid unlocks hoster links into direct premium downloads
// through debrid services. Backends share one interface; the chain
// tries them in a fixed order and keeps the first real unlock.
package debrid

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const requestTimeout = 30 * time.Second

// Debrider is one debrid service
type Debrider interface {
	// Name identifies the service in logs and status reports
	Name() string
	// IsConfigured reports whether credentials are set
	IsConfigured() bool
	// Unlock converts a hoster link into a direct download link
	Unlock(ctx context.Context, link string) (string, error)
	// TestConnection verifies the credentials against the live API
	TestConnection(ctx context.Context) error
}

// Chain tries backends in registration order. Unlocking is best effort:
// a backend that fails or echoes the input back is skipped and the
// original link survives when every backend passes.
type Chain struct {
	debriders []Debrider
	logger    *logrus.Logger
}

// NewChain creates a chain over the given backends
func NewChain(logger *logrus.Logger, debriders ...Debrider) *Chain {
	return &Chain{debriders: debriders, logger: logger}
}

// Configured returns the backends with credentials set
func (c *Chain) Configured() []Debrider {
	var out []Debrider
	for _, d := range c.debriders {
		if d.IsConfigured() {
			out = append(out, d)
		}
	}
	return out
}

// Unlock returns the first successfully unlocked link, or the input
// unchanged when no backend produces one
func (c *Chain) Unlock(ctx context.Context, link string) string {
	for _, d := range c.debriders {
		if !d.IsConfigured() {
			continue
		}
		unlocked, err := d.Unlock(ctx, link)
		if err != nil {
			c.logger.WithError(err).WithField("debrid", d.Name()).Debug("Unlock failed, trying next backend")
			continue
		}
		if unlocked == "" || unlocked == link {
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"debrid": d.Name(),
		}).Debug("Unlocked link")
		return unlocked
	}
	return link
}
