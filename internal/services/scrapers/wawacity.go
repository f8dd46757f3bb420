package scrapers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/fetch"
	"github.com/ddlarr/ddlarr/internal/utils"
)

// Wawacity scrapes a Wawacity-style site: bracket-tagged listing titles
// and one link table per detail page with a row per hoster and episode.
type Wawacity struct {
	baseURL  string
	maxPages int
	fetcher  *fetch.Fetcher
	expander *Expander
	logger   *logrus.Logger
}

// NewWawacity creates the scraper for one site mirror
func NewWawacity(baseURL string, maxPages int, fetcher *fetch.Fetcher, expander *Expander, logger *logrus.Logger) *Wawacity {
	return &Wawacity{
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxPages: maxPages,
		fetcher:  fetcher,
		expander: expander,
		logger:   logger,
	}
}

// Name implements Scraper
func (w *Wawacity) Name() string { return "wawacity" }

// MaxQueryLen implements Scraper
func (w *Wawacity) MaxQueryLen() int { return 31 }

var wawacitySections = map[models.ContentType]string{
	models.ContentTypeMovie:  "films",
	models.ContentTypeSeries: "series",
	models.ContentTypeAnime:  "mangas",
	models.ContentTypeEbook:  "ebooks",
}

func (w *Wawacity) searchURL(contentType models.ContentType, query string, page int) string {
	u := fmt.Sprintf("%s/?p=%s&search=%s", w.baseURL, wawacitySections[contentType], url.QueryEscape(query))
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

func (w *Wawacity) sectionURL(contentType models.ContentType) string {
	return fmt.Sprintf("%s/?p=%s", w.baseURL, wawacitySections[contentType])
}

// SearchByType implements Scraper
func (w *Wawacity) SearchByType(ctx context.Context, query models.SearchQuery, contentType models.ContentType) ([]models.Release, error) {
	expansions := w.expander.Expand(ctx, query, contentType)
	if len(expansions) == 0 {
		return nil, nil
	}

	candidates := collectExpansions(ctx, expansions, func(ctx context.Context, expansion string) []candidate {
		q := truncateQuery(expansion, w.MaxQueryLen())
		return paginate(ctx, w.logger, w.maxPages,
			func(ctx context.Context, page int) (*goquery.Document, error) {
				return w.fetcher.Document(ctx, w.searchURL(contentType, q, page))
			},
			func(doc *goquery.Document) listingPage {
				return w.parseListing(doc, expansion)
			})
	})

	candidates = matchCandidates(candidates, query, contentType)
	candidates = dedupeCandidates(candidates)

	w.logger.WithFields(logrus.Fields{
		"site":       w.Name(),
		"query":      query.Text,
		"type":       contentType,
		"candidates": len(candidates),
	}).Debug("Listing walk finished")

	return visitDetails(ctx, w.fetcher, w.logger, w.Name(), candidates, query, contentType, w.parseDetail), nil
}

// Latest implements Scraper
func (w *Wawacity) Latest(ctx context.Context, contentType models.ContentType) ([]models.Release, error) {
	doc, err := w.fetcher.Document(ctx, w.sectionURL(contentType))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest %s: %w", contentType, err)
	}
	page := w.parseListing(doc, "")
	return visitDetails(ctx, w.fetcher, w.logger, w.Name(), dedupeCandidates(page.candidates), models.SearchQuery{}, contentType, w.parseDetail), nil
}

var wawacityBracketRegex = regexp.MustCompile(`\[([^\]]+)\]`)

// parseListing reads the result blocks of one listing page. Titles
// carry their quality and language as bracket suffixes, like
// "Vingt Dieux [HDLight 1080p] [FRENCH]".
func (w *Wawacity) parseListing(doc *goquery.Document, matchedAgainst string) listingPage {
	var page listingPage

	doc.Find(".wa-sub-block-title a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		raw := strings.TrimSpace(s.Text())
		if !ok || raw == "" {
			return
		}
		quality := ""
		if m := wawacityBracketRegex.FindStringSubmatch(raw); m != nil {
			quality = strings.TrimSpace(m[1])
		}
		title := strings.Join(strings.Fields(wawacityBracketRegex.ReplaceAllString(raw, "")), " ")
		if title == "" {
			return
		}
		page.candidates = append(page.candidates, candidate{
			title:          title,
			detailURL:      absoluteURL(w.baseURL, href),
			quality:        quality,
			matchedAgainst: matchedAgainst,
		})
	})

	doc.Find("ul.pagination a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.Contains(text, "»") || strings.EqualFold(text, "suivant") {
			page.hasNext = true
			return false
		}
		return true
	})

	return page
}

var (
	wawacitySizeRegex     = regexp.MustCompile(`(?i)taille\s*:?\s*([\d.,]+\s*[kmg][ob])`)
	wawacityYearRegex     = regexp.MustCompile(`(?i)ann[ée]e\s*:?\s*((?:19|20)\d{2})`)
	wawacityLanguageRegex = regexp.MustCompile(`(?i)langue\(?s?\)?\s*:?\s*([A-Za-zÀ-ÿ /]+)`)
)

// parseDetail reads one release page: labeled description lines plus the
// link table, one row per hoster link with the hoster name and the file
// size in their own cells.
func (w *Wawacity) parseDetail(doc *goquery.Document, raw []byte) detailPage {
	var d detailPage

	text := doc.Text()
	if m := wawacitySizeRegex.FindStringSubmatch(text); m != nil {
		d.size = parseFrenchSize(m[1])
	}
	d.quality, d.language = parseQualityLine(text)
	if d.language == "" {
		if m := wawacityLanguageRegex.FindStringSubmatch(text); m != nil {
			d.language = strings.TrimSpace(m[1])
		}
	}
	if m := wawacityYearRegex.FindStringSubmatch(text); m != nil {
		d.year, _ = strconv.Atoi(m[1])
	}
	d.imdbID = findIMDBID(raw)

	doc.Find("#DDLLinks tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a[href]").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		resolved := absoluteURL(w.baseURL, href)
		if !w.isDownloadLink(resolved) {
			return
		}
		cells := row.Find("td")
		hoster := ""
		if cells.Length() > 1 {
			hoster = strings.TrimSpace(cells.Eq(1).Text())
		}
		if hoster == "" {
			return
		}
		// A row can carry its own size when the description had none
		if d.size == 0 && cells.Length() > 2 {
			d.size = parseFrenchSize(cells.Eq(2).Text())
		}
		d.links = append(d.links, hosterLink{
			hoster:  hoster,
			url:     resolved,
			episode: utils.ExtractEpisode(strings.TrimSpace(link.Text())),
		})
	})

	return d
}

func (w *Wawacity) isDownloadLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return false
	}
	return !strings.EqualFold(u.Host, base.Host)
}
