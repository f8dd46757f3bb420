// Package scrapers turns fuzzy title queries into validated releases by
// crawling DDL site listings and detail pages. Each site implements the
// Scraper interface; the shared machinery (query expansion, pagination,
// matching, detail-page budgets) lives in this package.
package scrapers

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/tmdb"
	"github.com/ddlarr/ddlarr/internal/utils"
)

// Scraper is one DDL site
type Scraper interface {
	// Name identifies the site in URLs and logs
	Name() string
	// MaxQueryLen is the site's silent search-term cap. Longer terms
	// make the site return an unfiltered listing, so queries are
	// truncated before being sent.
	MaxQueryLen() int
	// SearchByType runs a full search for one content type
	SearchByType(ctx context.Context, query models.SearchQuery, contentType models.ContentType) ([]models.Release, error)
	// Latest returns the newest releases of one content type, used for
	// empty-query feed probes
	Latest(ctx context.Context, contentType models.ContentType) ([]models.Release, error)
}

// Registry holds the configured scrapers in a stable order
type Registry struct {
	scrapers []Scraper
}

// NewRegistry creates a registry from the enabled scrapers
func NewRegistry(scrapers ...Scraper) *Registry {
	return &Registry{scrapers: scrapers}
}

// All returns every registered scraper
func (r *Registry) All() []Scraper {
	return r.scrapers
}

// Get finds a scraper by name
func (r *Registry) Get(name string) (Scraper, bool) {
	for _, s := range r.scrapers {
		if strings.EqualFold(s.Name(), name) {
			return s, true
		}
	}
	return nil, false
}

// Names lists registered scraper names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		names = append(names, s.Name())
	}
	return names
}

// Expander produces the set of query spellings a search tries against
// a site: metadata-service titles for identifier searches, accent
// variants for free-text ones.
type Expander struct {
	tmdb   *tmdb.Client
	logger *logrus.Logger
}

// NewExpander creates an expander backed by a TMDB client
func NewExpander(tmdbClient *tmdb.Client, logger *logrus.Logger) *Expander {
	return &Expander{tmdb: tmdbClient, logger: logger}
}

// Expand returns the deduplicated query set for one search
func (e *Expander) Expand(ctx context.Context, query models.SearchQuery, contentType models.ContentType) []string {
	base := []string{query.Text}
	if query.IMDBID != "" || query.TVDBID != "" || query.TMDBID != "" {
		ids := tmdb.IDs{IMDB: query.IMDBID, TVDB: query.TVDBID, TMDB: query.TMDBID}
		base = e.tmdb.ExpandQueries(ctx, ids, query.Text, contentType)
	}

	seen := make(map[string]bool)
	var expanded []string
	for _, q := range base {
		for _, variant := range utils.AccentVariants(q) {
			if variant != "" && !seen[variant] {
				seen[variant] = true
				expanded = append(expanded, variant)
			}
		}
	}

	if len(expanded) == 0 {
		e.logger.WithField("imdb_id", query.IMDBID).Warn("No queries available for search")
	}
	return expanded
}
