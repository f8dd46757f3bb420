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

// Zone scrapes a Zone-Téléchargement-style site (DLE engine): cover
// blocks on listing pages, one detail page per release with hoster
// headings followed by protected links.
type Zone struct {
	baseURL  string
	maxPages int
	fetcher  *fetch.Fetcher
	expander *Expander
	logger   *logrus.Logger
}

// NewZone creates the scraper for one site mirror
func NewZone(baseURL string, maxPages int, fetcher *fetch.Fetcher, expander *Expander, logger *logrus.Logger) *Zone {
	return &Zone{
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxPages: maxPages,
		fetcher:  fetcher,
		expander: expander,
		logger:   logger,
	}
}

// Name implements Scraper
func (z *Zone) Name() string { return "zone" }

// MaxQueryLen implements Scraper. The site truncates nothing itself: a
// longer term silently disables the filter, so the cap is enforced here.
func (z *Zone) MaxQueryLen() int { return 28 }

var zoneSections = map[models.ContentType]string{
	models.ContentTypeMovie:  "films",
	models.ContentTypeSeries: "series",
	models.ContentTypeAnime:  "mangas",
	models.ContentTypeEbook:  "ebooks",
}

func (z *Zone) searchURL(contentType models.ContentType, query string, page int) string {
	u := fmt.Sprintf("%s/?p=%s&search=%s", z.baseURL, zoneSections[contentType], url.QueryEscape(query))
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

func (z *Zone) sectionURL(contentType models.ContentType) string {
	return fmt.Sprintf("%s/?p=%s", z.baseURL, zoneSections[contentType])
}

// SearchByType implements Scraper
func (z *Zone) SearchByType(ctx context.Context, query models.SearchQuery, contentType models.ContentType) ([]models.Release, error) {
	expansions := z.expander.Expand(ctx, query, contentType)
	if len(expansions) == 0 {
		return nil, nil
	}

	candidates := collectExpansions(ctx, expansions, func(ctx context.Context, expansion string) []candidate {
		q := truncateQuery(expansion, z.MaxQueryLen())
		return paginate(ctx, z.logger, z.maxPages,
			func(ctx context.Context, page int) (*goquery.Document, error) {
				return z.fetcher.Document(ctx, z.searchURL(contentType, q, page))
			},
			func(doc *goquery.Document) listingPage {
				return z.parseListing(doc, expansion)
			})
	})

	candidates = matchCandidates(candidates, query, contentType)
	candidates = dedupeCandidates(candidates)

	z.logger.WithFields(logrus.Fields{
		"site":       z.Name(),
		"query":      query.Text,
		"type":       contentType,
		"candidates": len(candidates),
	}).Debug("Listing walk finished")

	return visitDetails(ctx, z.fetcher, z.logger, z.Name(), candidates, query, contentType, z.parseDetail), nil
}

// Latest implements Scraper: the newest entries of the section page,
// detail-visited like search results so items carry sizes and links
func (z *Zone) Latest(ctx context.Context, contentType models.ContentType) ([]models.Release, error) {
	doc, err := z.fetcher.Document(ctx, z.sectionURL(contentType))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest %s: %w", contentType, err)
	}
	page := z.parseListing(doc, "")
	return visitDetails(ctx, z.fetcher, z.logger, z.Name(), dedupeCandidates(page.candidates), models.SearchQuery{}, contentType, z.parseDetail), nil
}

// parseListing reads the cover blocks of one listing page
func (z *Zone) parseListing(doc *goquery.Document, matchedAgainst string) listingPage {
	var page listingPage

	doc.Find("#dle-content .cover_global").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".cover_infos_title a").First()
		href, ok := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if !ok || title == "" {
			return
		}
		page.candidates = append(page.candidates, candidate{
			title:          title,
			detailURL:      absoluteURL(z.baseURL, href),
			quality:        strings.TrimSpace(s.Find(".cover_infos_title .quality").Text()),
			matchedAgainst: matchedAgainst,
		})
	})

	doc.Find(".navigation a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.EqualFold(text, "suivant") || strings.Contains(text, "»") {
			page.hasNext = true
			return false
		}
		return true
	})

	return page
}

var (
	zoneSizeRegexes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)taille\s+du\s+fichier\s*:?\s*([\d.,]+\s*[kmg]o)`),
		regexp.MustCompile(`(?i)taille\s*:?\s*([\d.,]+\s*[kmg][ob])`),
	}
	zoneYearRegex = regexp.MustCompile(`(?i)ann[ée]e\s+de\s+production\s*:?\s*((?:19|20)\d{2})`)
)

// parseDetail reads one release page: the labeled size and quality
// lines, the production year, an embedded IMDB id anywhere in the raw
// page, and the hoster-heading link groups.
func (z *Zone) parseDetail(doc *goquery.Document, raw []byte) detailPage {
	var d detailPage

	post := doc.Find(".postinfo")
	text := post.Text()

	for _, re := range zoneSizeRegexes {
		if m := re.FindStringSubmatch(text); m != nil {
			d.size = parseFrenchSize(m[1])
			break
		}
	}
	d.quality, d.language = parseQualityLine(text)
	if m := zoneYearRegex.FindStringSubmatch(text); m != nil {
		d.year, _ = strconv.Atoi(m[1])
	}
	d.imdbID = findIMDBID(raw)

	// Links come as sequences of a bold hoster heading followed by one
	// link per episode (series) or a single download link (movies).
	currentHoster := ""
	post.Find("b, a").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "a" {
			href, ok := s.Attr("href")
			if !ok || currentHoster == "" {
				return
			}
			resolved := absoluteURL(z.baseURL, href)
			if !z.isDownloadLink(resolved) {
				return
			}
			d.links = append(d.links, hosterLink{
				hoster:  currentHoster,
				url:     resolved,
				episode: utils.ExtractEpisode(strings.TrimSpace(s.Text())),
			})
			return
		}
		// A heading is a bold run without links of its own
		if s.Find("a").Length() > 0 {
			return
		}
		name := strings.TrimSpace(s.Text())
		if name != "" && len(name) <= 40 && !strings.Contains(name, ":") {
			currentHoster = name
		}
	})

	return d
}

// isDownloadLink keeps protected or external hoster links and drops the
// site's own navigation
func (z *Zone) isDownloadLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	base, err := url.Parse(z.baseURL)
	if err != nil {
		return false
	}
	return !strings.EqualFold(u.Host, base.Host)
}
