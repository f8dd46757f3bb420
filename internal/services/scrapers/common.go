package scrapers

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/fetch"
	"github.com/ddlarr/ddlarr/internal/torznab"
	"github.com/ddlarr/ddlarr/internal/utils"
)

// Detail pages fetched per search. Listings can match dozens of
// candidates; only the first few are worth the extra round trips.
const maxDetailPages = 10

var (
	frenchSizeRegex  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(go|mo|ko|gb|mb|kb)\b`)
	imdbIDRegex      = regexp.MustCompile(`tt\d{7,8}`)
	qualityLineRegex = regexp.MustCompile(`(?i)qualit[ée]\s*:?\s*([^|<\n]+)(?:\|\s*([^<\n]+))?`)
)

// candidate is a listing-page entry awaiting a detail-page visit
type candidate struct {
	title          string
	detailURL      string
	quality        string
	publishedAt    time.Time
	matchedAgainst string
}

// hosterLink is one download link found under a hoster heading
type hosterLink struct {
	hoster  string
	url     string
	episode int
}

// detailPage is everything parsed from one release page
type detailPage struct {
	size     int64
	quality  string
	language string
	imdbID   string
	year     int
	links    []hosterLink
}

// listingPage is one parsed search-results page
type listingPage struct {
	candidates []candidate
	hasNext    bool
}

// parseFrenchSize reads sizes the sites print, like "1.4 Go", "700 Mo"
// or "Taille du fichier : 7,3 Go". Returns 0 when no size is present.
func parseFrenchSize(s string) int64 {
	m := frenchSizeRegex.FindStringSubmatch(s)
	if len(m) < 3 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0
	}
	var multiplier float64
	switch strings.ToLower(m[2]) {
	case "ko", "kb":
		multiplier = 1024
	case "mo", "mb":
		multiplier = 1024 * 1024
	case "go", "gb":
		multiplier = 1024 * 1024 * 1024
	}
	return int64(value * multiplier)
}

// parseQualityLine splits a labeled "Qualité HDLight 1080p | FRENCH"
// line into quality and language
func parseQualityLine(text string) (quality, language string) {
	m := qualityLineRegex.FindStringSubmatch(text)
	if m == nil {
		return "", ""
	}
	quality = strings.TrimSpace(m[1])
	if len(m) > 2 {
		language = strings.TrimSpace(m[2])
	}
	return quality, language
}

// findIMDBID scans a raw page for an IMDB identifier
func findIMDBID(page []byte) string {
	return string(imdbIDRegex.Find(page))
}

// absoluteURL resolves href against base; a href that is already
// absolute passes through
func absoluteURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// truncateQuery cuts a search term to the site's cap. Sites silently
// ignore longer filters and answer with an unfiltered listing.
func truncateQuery(q string, max int) string {
	if max <= 0 || len(q) <= max {
		return q
	}
	return strings.TrimSpace(q[:max])
}

// paginate drives one expansion's listing walk: pages are fetched in
// order because page N's next-marker gates page N+1. A fetch failure
// aborts this walk only; pages already parsed are kept.
func paginate(ctx context.Context, logger *logrus.Logger, maxPages int,
	fetchPage func(ctx context.Context, page int) (*goquery.Document, error),
	parse func(doc *goquery.Document) listingPage) []candidate {

	var out []candidate
	for page := 1; page <= maxPages; page++ {
		doc, err := fetchPage(ctx, page)
		if err != nil {
			logger.WithError(err).WithField("page", page).Debug("Listing fetch failed, stopping pagination")
			break
		}
		parsed := parse(doc)
		if len(parsed.candidates) == 0 {
			break
		}
		out = append(out, parsed.candidates...)
		if !parsed.hasNext {
			break
		}
	}
	return out
}

// matchCandidates keeps candidates that satisfy the query used for
// their expansion, and the exact season when one was asked for
func matchCandidates(candidates []candidate, query models.SearchQuery, contentType models.ContentType) []candidate {
	var kept []candidate
	for _, c := range candidates {
		name := utils.StripSeasonSuffix(c.title)
		if !utils.IsMatch(c.matchedAgainst, name, contentType) {
			continue
		}
		if query.Season > 0 && utils.ExtractSeason(c.title) != query.Season {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// dedupeCandidates collapses the same detail page found under several
// expansions, keeping first-seen order
func dedupeCandidates(candidates []candidate) []candidate {
	seen := make(map[string]bool)
	var out []candidate
	for _, c := range candidates {
		if seen[c.detailURL] {
			continue
		}
		seen[c.detailURL] = true
		out = append(out, c)
	}
	return out
}

// collectExpansions runs searchOne for every expansion in parallel and
// merges the candidate lists. A failed expansion contributes nothing.
func collectExpansions(ctx context.Context, expansions []string,
	searchOne func(ctx context.Context, expansion string) []candidate) []candidate {

	var mu sync.Mutex
	var wg sync.WaitGroup
	var merged []candidate

	for _, expansion := range expansions {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			found := searchOne(ctx, q)
			mu.Lock()
			merged = append(merged, found...)
			mu.Unlock()
		}(expansion)
	}
	wg.Wait()
	return merged
}

// visitDetails fetches candidate pages up to the detail budget and
// builds releases from each. A page that fails to fetch or parse is
// skipped, never fatal.
func visitDetails(ctx context.Context, fetcher *fetch.Fetcher, logger *logrus.Logger, site string,
	candidates []candidate, query models.SearchQuery, contentType models.ContentType,
	parseDetail func(doc *goquery.Document, raw []byte) detailPage) []models.Release {

	limit := len(candidates)
	if limit > maxDetailPages {
		limit = maxDetailPages
	}

	var releases []models.Release
	for _, c := range candidates[:limit] {
		raw, err := fetcher.Page(ctx, c.detailURL)
		if err != nil {
			logger.WithError(err).WithField("url", c.detailURL).Debug("Detail fetch failed, skipping")
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
		if err != nil {
			logger.WithError(err).WithField("url", c.detailURL).Debug("Detail parse failed, skipping")
			continue
		}
		releases = append(releases, buildReleases(site, c, parseDetail(doc, raw), query, contentType)...)
	}
	return releases
}

// buildReleases flattens one candidate and its parsed detail page into
// releases, one per surviving hoster link, applying the year, hoster
// and episode filters.
func buildReleases(site string, c candidate, detail detailPage, query models.SearchQuery, contentType models.ContentType) []models.Release {
	// Year filter: reject only when both sides know a year and disagree
	if query.Year > 0 && detail.year > 0 && query.Year != detail.year {
		return nil
	}

	baseName := utils.StripSeasonSuffix(c.title)
	season := utils.ExtractSeason(c.title)
	year := detail.year
	if year == 0 {
		year = utils.ExtractYear(c.title)
	}
	quality := detail.quality
	if quality == "" {
		quality = c.quality
	}
	publishedAt := c.publishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	var releases []models.Release
	for _, link := range detail.links {
		if !query.WantsHoster(link.hoster) {
			continue
		}
		if query.Episode > 0 && link.episode != query.Episode {
			continue
		}
		title := utils.BuildSceneTitle(baseName, contentType, year, season, link.episode, quality, detail.language, link.hoster)
		releases = append(releases, models.Release{
			Title:       title,
			RawTitle:    c.title,
			DetailURL:   c.detailURL,
			DownloadURL: link.url,
			Hoster:      link.hoster,
			Site:        site,
			ContentType: contentType,
			Category:    torznab.Classify(contentType, quality),
			Size:        detail.size,
			Quality:     quality,
			Language:    detail.language,
			IMDBID:      detail.imdbID,
			Year:        year,
			Season:      season,
			Episode:     link.episode,
			PublishedAt: publishedAt,
		})
	}
	return releases
}
