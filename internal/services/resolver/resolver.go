// Package resolver turns scraped download links into fetchable ones:
// dl-protect bypass first, then the debrid chain. Fully resolved links
// are cached so repeated grabs of the same release skip the services.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/services/debrid"
	"github.com/ddlarr/ddlarr/internal/services/dlprotect"
)

const cacheTTL = 24 * time.Hour

// Resolver chains the bypass service and the debrid backends
type Resolver struct {
	bypass *dlprotect.Client
	chain  *debrid.Chain
	cache  *cache.Cache
	logger *logrus.Logger
}

// New creates a resolver
func New(bypass *dlprotect.Client, chain *debrid.Chain, logger *logrus.Logger) *Resolver {
	return &Resolver{
		bypass: bypass,
		chain:  chain,
		cache:  cache.New(cacheTTL, time.Hour),
		logger: logger,
	}
}

// Resolve converts link into the best downloadable form. A protected
// link goes through the bypass service; bypassFatal decides whether a
// bypass failure aborts (download paths) or degrades to the cleaned
// link (search-time resolution). The debrid chain then gets a shot at
// unlocking whatever came out.
func (r *Resolver) Resolve(ctx context.Context, link string, bypassFatal bool) (string, error) {
	if cached, ok := r.cache.Get(link); ok {
		return cached.(string), nil
	}

	current := link
	bypassed := true
	if dlprotect.IsProtected(current) {
		resolved, err := r.bypass.Resolve(ctx, current)
		if err != nil {
			if bypassFatal {
				return "", fmt.Errorf("failed to bypass protected link: %w", err)
			}
			r.logger.WithError(err).WithField("link", link).Warn("Bypass failed, falling back to cleaned link")
			current = dlprotect.CleanLink(current)
			bypassed = false
		} else {
			current = resolved
		}
	}

	current = r.chain.Unlock(ctx, current)

	// Only a full resolution is worth remembering; a degraded result
	// would pin the fallback for a day even after the resolver recovers.
	if bypassed && current != link {
		r.cache.Set(link, current, cache.DefaultExpiration)
	}
	return current, nil
}

// BypassHealth reports the bypass sidecar's health
func (r *Resolver) BypassHealth(ctx context.Context) error {
	return r.bypass.Health(ctx)
}

// BypassConfigured reports whether a bypass endpoint is set
func (r *Resolver) BypassConfigured() bool {
	return r.bypass.IsConfigured()
}

// Debriders lists the configured debrid backends
func (r *Resolver) Debriders() []debrid.Debrider {
	return r.chain.Configured()
}
