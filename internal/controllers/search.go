package controllers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/resolver"
	"github.com/ddlarr/ddlarr/internal/services/scrapers"
	"github.com/ddlarr/ddlarr/internal/torznab"
	"github.com/ddlarr/ddlarr/internal/utils"
)

// ErrUnknownSite is returned when a request names a site no scraper serves
var ErrUnknownSite = errors.New("unknown site")

// SearchController fans queries out over the configured scrapers and
// reduces the merged results into the feed handed to the feed builder
type SearchController struct {
	registry       *scrapers.Registry
	resolver       *resolver.Resolver
	blacklist      *utils.Blacklist
	resolveAtIndex bool
	logger         *logrus.Logger
}

// NewSearchController creates a new search controller. resolveAtIndex
// runs the link resolver on results before they are served; off, links
// stay protected until a placeholder file is dispatched.
func NewSearchController(registry *scrapers.Registry, res *resolver.Resolver, blacklist *utils.Blacklist, resolveAtIndex bool, logger *logrus.Logger) *SearchController {
	return &SearchController{
		registry:       registry,
		resolver:       res,
		blacklist:      blacklist,
		resolveAtIndex: resolveAtIndex,
		logger:         logger,
	}
}

// Search runs one Torznab query. site narrows the fan-out to a single
// scraper when set; contentTypes narrows the sections searched (empty
// means all). Results are filtered, sorted newest first and paginated
// by the query's offset and limit.
func (c *SearchController) Search(ctx context.Context, query models.SearchQuery, site string, contentTypes []models.ContentType) ([]models.Release, error) {
	targets := c.registry.All()
	if site != "" {
		scraper, ok := c.registry.Get(site)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
		}
		targets = []scrapers.Scraper{scraper}
	}
	if len(contentTypes) == 0 {
		contentTypes = models.AllContentTypes
	}

	start := time.Now()
	c.logger.WithFields(logrus.Fields{
		"query":         query.Text,
		"imdb_id":       query.IMDBID,
		"site":          site,
		"content_types": len(contentTypes),
	}).Info("Starting search")

	empty := query.Text == "" && query.IMDBID == "" && query.TMDBID == "" && query.TVDBID == ""

	var releases []models.Release
	if empty {
		releases = c.fanOut(ctx, targets, contentTypes, func(ctx context.Context, s scrapers.Scraper, ct models.ContentType) ([]models.Release, error) {
			return s.Latest(ctx, ct)
		})
	} else {
		releases = c.fanOut(ctx, targets, contentTypes, func(ctx context.Context, s scrapers.Scraper, ct models.ContentType) ([]models.Release, error) {
			return s.SearchByType(ctx, query, ct)
		})
	}

	releases = c.filterReleases(releases, query)

	// Automation clients validate connectivity with an empty query and
	// treat an empty feed as a broken indexer
	if empty && len(releases) == 0 {
		releases = []models.Release{placeholderRelease(contentTypes[0])}
	}

	if c.resolveAtIndex {
		c.resolveLinks(ctx, releases)
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].PublishedAt.After(releases[j].PublishedAt)
	})

	total := len(releases)
	releases = pageSlice(releases, query.Offset, query.Limit)

	c.logger.WithFields(logrus.Fields{
		"results":  total,
		"returned": len(releases),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Search completed")

	return releases, nil
}

// fanOut runs one operation per (scraper, content type) pair in
// parallel. A failed branch contributes zero results, never an aborted
// search.
func (c *SearchController) fanOut(ctx context.Context, targets []scrapers.Scraper, contentTypes []models.ContentType,
	run func(ctx context.Context, s scrapers.Scraper, ct models.ContentType) ([]models.Release, error)) []models.Release {

	var mu sync.Mutex
	var wg sync.WaitGroup
	var merged []models.Release

	for _, scraper := range targets {
		for _, contentType := range contentTypes {
			wg.Add(1)
			go func(s scrapers.Scraper, ct models.ContentType) {
				defer wg.Done()
				found, err := run(ctx, s, ct)
				if err != nil {
					c.logger.WithError(err).WithFields(logrus.Fields{
						"site":         s.Name(),
						"content_type": string(ct),
					}).Warn("Search branch failed")
					return
				}
				mu.Lock()
				merged = append(merged, found...)
				mu.Unlock()
			}(scraper, contentType)
		}
	}
	wg.Wait()
	return merged
}

// filterReleases applies the post-search filters: requested category
// tiers, the blacklist, and a usable size. Automation clients discard
// or misjudge items without a size, so those are dropped here.
func (c *SearchController) filterReleases(releases []models.Release, query models.SearchQuery) []models.Release {
	var kept []models.Release
	for _, release := range releases {
		if !query.WantsCategory(release.Category) {
			continue
		}
		if isBlacklisted, term := c.blacklist.IsBlacklisted(release.Title); isBlacklisted {
			c.logger.WithFields(logrus.Fields{
				"title": release.Title,
				"term":  term,
			}).Debug("Release blacklisted")
			continue
		}
		if release.Size == 0 {
			c.logger.WithField("title", release.Title).Debug("Release has no size, skipping")
			continue
		}
		kept = append(kept, release)
	}
	return kept
}

// resolveLinks runs the bypass-and-debrid pipeline over results at
// index time. Best-effort: a failed resolution leaves the protected
// link in place for the dispatch tier to retry.
func (c *SearchController) resolveLinks(ctx context.Context, releases []models.Release) {
	for i := range releases {
		resolved, err := c.resolver.Resolve(ctx, releases[i].DownloadURL, false)
		if err != nil {
			c.logger.WithError(err).WithField("link", releases[i].DownloadURL).Warn("Index-time resolution failed")
			continue
		}
		releases[i].DownloadURL = resolved
	}
}

// pageSlice applies offset and limit to the sorted result set
func pageSlice(releases []models.Release, offset, limit int) []models.Release {
	if offset >= len(releases) {
		return nil
	}
	releases = releases[offset:]
	if limit > 0 && limit < len(releases) {
		releases = releases[:limit]
	}
	return releases
}

// placeholderRelease is served when an empty-query probe finds nothing,
// so connectivity tests see a well-formed item instead of an empty feed
func placeholderRelease(contentType models.ContentType) models.Release {
	return models.Release{
		Title:       "Indexer.Connectivity.Check.1080p.FRENCH.1fichier",
		RawTitle:    "Indexer Connectivity Check",
		DownloadURL: "https://example.invalid/connectivity-check",
		Hoster:      "1fichier",
		Site:        "ddlarr",
		ContentType: contentType,
		Category:    torznab.Classify(contentType, "1080p"),
		Size:        1 << 30,
		Quality:     "1080p",
		Language:    "FRENCH",
		PublishedAt: time.Now(),
	}
}
