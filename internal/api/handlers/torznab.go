package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/controllers"
	"github.com/ddlarr/ddlarr/internal/metrics"
	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/torznab"
)

const (
	maxSearchLimit     = 100
	defaultSearchLimit = 50
)

// Searcher runs one orchestrated search across the configured sites
type Searcher interface {
	Search(ctx context.Context, query models.SearchQuery, site string, contentTypes []models.ContentType) ([]models.Release, error)
}

// TorznabHandler serves the Torznab XML API consumed by Prowlarr,
// Radarr and Sonarr. Failures become error-coded XML documents with
// HTTP 200; automation clients choke on anything else.
type TorznabHandler struct {
	searcher Searcher
	title    string
	logger   *logrus.Logger
}

// NewTorznabHandler creates a new torznab handler
func NewTorznabHandler(searcher Searcher, title string, logger *logrus.Logger) *TorznabHandler {
	return &TorznabHandler{
		searcher: searcher,
		title:    title,
		logger:   logger,
	}
}

// ServeHTTP handles /api, /api/{site} and /api/{site}/{hoster}
func (h *TorznabHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	site := vars["site"]
	hoster := vars["hoster"]
	params := r.URL.Query()

	function := params.Get("t")
	switch function {
	case "caps":
		h.writeCaps(w, site)
	case "search", "tvsearch", "movie", "book":
		h.runSearch(w, r, function, site, hoster)
	case "":
		h.writeError(w, torznab.ErrCodeNoSuchFunction, "Missing parameter (t)")
	default:
		h.writeError(w, torznab.ErrCodeNoSuchFunction, "No such function ("+function+")")
	}
}

func (h *TorznabHandler) writeCaps(w http.ResponseWriter, site string) {
	title := h.title
	if site != "" {
		title = fmt.Sprintf("%s (%s)", h.title, site)
	}
	h.writeXML(w, torznab.BuildCaps(title, maxSearchLimit, defaultSearchLimit))
}

func (h *TorznabHandler) runSearch(w http.ResponseWriter, r *http.Request, function, site, hoster string) {
	query := parseSearchQuery(r.URL.Query(), hoster)
	contentTypes := contentTypesForFunction(function, query.Categories)

	siteLabel := site
	if siteLabel == "" {
		siteLabel = "all"
	}
	metrics.Searches.WithLabelValues(siteLabel).Inc()

	start := time.Now()
	releases, err := h.searcher.Search(r.Context(), query, site, contentTypes)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, controllers.ErrUnknownSite) {
			h.writeError(w, torznab.ErrCodeIncorrectParam, "Incorrect parameter: unknown site "+site)
			return
		}
		h.logger.WithError(err).Error("Search failed")
		h.writeError(w, torznab.ErrCodeUnknown, "Unknown error")
		return
	}
	metrics.ReleasesReturned.Add(float64(len(releases)))

	base := requestBaseURL(r)
	feed := torznab.BuildFeed(h.title, releases, func(release models.Release) string {
		return placeholderURL(base, release)
	})
	h.writeXML(w, feed)
}

func (h *TorznabHandler) writeXML(w http.ResponseWriter, doc any) {
	body, err := torznab.WriteXML(doc)
	if err != nil {
		h.logger.WithError(err).Error("Failed to serialize XML response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write(body)
}

func (h *TorznabHandler) writeError(w http.ResponseWriter, code int, description string) {
	h.writeXML(w, &torznab.ErrorDoc{Code: code, Description: description})
}

// parseSearchQuery reads the torznab query parameters. Malformed
// numbers are treated as absent; automation clients get results, not
// validation lectures.
func parseSearchQuery(params url.Values, pathHoster string) models.SearchQuery {
	query := models.SearchQuery{
		Text:    strings.TrimSpace(params.Get("q")),
		IMDBID:  normalizeIMDBID(params.Get("imdbid")),
		TMDBID:  strings.TrimSpace(params.Get("tmdbid")),
		TVDBID:  strings.TrimSpace(params.Get("tvdbid")),
		Season:  atoiOrZero(params.Get("season")),
		Episode: atoiOrZero(params.Get("ep")),
		Year:    atoiOrZero(params.Get("year")),
		Limit:   defaultSearchLimit,
	}

	for _, raw := range strings.Split(params.Get("cat"), ",") {
		if cat, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && cat > 0 {
			query.Categories = append(query.Categories, cat)
		}
	}

	for _, raw := range strings.Split(params.Get("hoster"), ",") {
		if hoster := strings.TrimSpace(raw); hoster != "" {
			query.Hosters = append(query.Hosters, hoster)
		}
	}
	if pathHoster != "" {
		query.Hosters = append(query.Hosters, pathHoster)
	}

	if limit := atoiOrZero(params.Get("limit")); limit > 0 {
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		query.Limit = limit
	}
	if offset := atoiOrZero(params.Get("offset")); offset > 0 {
		query.Offset = offset
	}
	return query
}

// contentTypesForFunction maps the search function to the content types
// the orchestrator must cover. The generic search derives them from the
// requested categories; the specific functions pin them.
func contentTypesForFunction(function string, categories []int) []models.ContentType {
	switch function {
	case "tvsearch":
		return []models.ContentType{models.ContentTypeSeries, models.ContentTypeAnime}
	case "movie":
		return []models.ContentType{models.ContentTypeMovie}
	case "book":
		return []models.ContentType{models.ContentTypeEbook}
	}
	return torznab.ContentTypesFor(categories)
}

func normalizeIMDBID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "tt") {
		id = "tt" + id
	}
	return id
}

func atoiOrZero(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// requestBaseURL reconstructs the externally visible base URL so feed
// items point back at this server, honoring the reverse-proxy header
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}

// placeholderURL builds the /torrent link that fabricates the
// placeholder container for one release
func placeholderURL(base string, release models.Release) string {
	params := url.Values{}
	params.Set("link", release.DownloadURL)
	params.Set("name", release.Title)
	params.Set("size", strconv.FormatInt(release.Size, 10))
	return base + "/torrent?" + params.Encode()
}
