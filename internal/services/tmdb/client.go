// Package tmdb resolves canonical content identifiers into search
// queries. Sites index releases under local (often French) titles, so a
// search driven by an IMDB or TVDB id is expanded into every title the
// metadata service knows before hitting the site.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// Titles holds the two names a lookup yields
type Titles struct {
	Primary string
	French  string
}

// IDs groups the external identifiers a search request may carry.
// At most one is consulted, in IMDB > TVDB > TMDB order.
type IDs struct {
	IMDB string
	TVDB string
	TMDB string
}

// Client queries the TMDB API. Successful lookups are cached without
// expiry: metadata for a fixed identifier never changes. Failed lookups
// are never cached so the next search retries them.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *logrus.Logger
}

// NewClient creates a TMDB client. An empty API key yields a client
// whose lookups report unconfigured; callers fall back to the raw query.
func NewClient(apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      cache.New(cache.NoExpiration, 0),
		logger:     logger,
	}
}

// IsConfigured reports whether an API key is present
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// TitlesByIMDB looks up the primary and French titles for an IMDB id
// such as "tt0133093"
func (c *Client) TitlesByIMDB(ctx context.Context, imdbID string, contentType models.ContentType) (*Titles, error) {
	return c.titlesByExternalID(ctx, imdbID, "imdb_id", contentType)
}

// TitlesByTVDB looks up titles for a TVDB id
func (c *Client) TitlesByTVDB(ctx context.Context, tvdbID string, contentType models.ContentType) (*Titles, error) {
	return c.titlesByExternalID(ctx, tvdbID, "tvdb_id", contentType)
}

// TitlesByTMDB looks up titles for TMDB's own id, which needs the
// direct movie/tv endpoints instead of /find
func (c *Client) TitlesByTMDB(ctx context.Context, tmdbID string, contentType models.ContentType) (*Titles, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("tmdb API key not configured")
	}

	cacheKey := "tmdb:" + string(contentType) + ":" + tmdbID
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*Titles), nil
	}

	resource := "/tv/"
	if contentType == models.ContentTypeMovie {
		resource = "/movie/"
	}

	primary, errPrimary := c.detailTitle(ctx, resource, tmdbID, "")
	french, errFrench := c.detailTitle(ctx, resource, tmdbID, "fr-FR")
	if errPrimary != nil && errFrench != nil {
		return nil, fmt.Errorf("tmdb lookup failed for id %s: %w", tmdbID, errPrimary)
	}

	titles := &Titles{Primary: primary, French: french}
	c.cache.Set(cacheKey, titles, cache.NoExpiration)
	return titles, nil
}

func (c *Client) detailTitle(ctx context.Context, resource, id, language string) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if language != "" {
		params.Set("language", language)
	}
	endpoint := c.baseURL + resource + url.PathEscape(id) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tmdb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tmdb returned status %d: %s", resp.StatusCode, string(body))
	}

	var detail struct {
		Title string `json:"title"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return "", fmt.Errorf("failed to decode tmdb response: %w", err)
	}
	if detail.Title != "" {
		return detail.Title, nil
	}
	if detail.Name != "" {
		return detail.Name, nil
	}
	return "", fmt.Errorf("no title in tmdb response for id %s", id)
}

func (c *Client) titlesByExternalID(ctx context.Context, id, source string, contentType models.ContentType) (*Titles, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("tmdb API key not configured")
	}

	cacheKey := source + ":" + id
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*Titles), nil
	}

	// Two lookups: the default-language title and the French one. The
	// site-facing query set wants both spellings.
	primary, errPrimary := c.findTitle(ctx, id, source, "", contentType)
	french, errFrench := c.findTitle(ctx, id, source, "fr-FR", contentType)

	if errPrimary != nil && errFrench != nil {
		return nil, fmt.Errorf("tmdb lookup failed for %s: %w", id, errPrimary)
	}

	titles := &Titles{Primary: primary, French: french}
	c.cache.Set(cacheKey, titles, cache.NoExpiration)
	return titles, nil
}

type findResponse struct {
	MovieResults []struct {
		Title         string `json:"title"`
		OriginalTitle string `json:"original_title"`
	} `json:"movie_results"`
	TVResults []struct {
		Name         string `json:"name"`
		OriginalName string `json:"original_name"`
	} `json:"tv_results"`
}

func (c *Client) findTitle(ctx context.Context, id, source, language string, contentType models.ContentType) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("external_source", source)
	if language != "" {
		params.Set("language", language)
	}
	endpoint := c.baseURL + "/find/" + url.PathEscape(id) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tmdb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tmdb returned status %d: %s", resp.StatusCode, string(body))
	}

	var found findResponse
	if err := json.NewDecoder(resp.Body).Decode(&found); err != nil {
		return "", fmt.Errorf("failed to decode tmdb response: %w", err)
	}

	// An external id identifies one work; prefer the result list
	// matching the queried content type and fall back to the other.
	if contentType == models.ContentTypeMovie {
		if len(found.MovieResults) > 0 {
			return found.MovieResults[0].Title, nil
		}
		if len(found.TVResults) > 0 {
			return found.TVResults[0].Name, nil
		}
	} else {
		if len(found.TVResults) > 0 {
			return found.TVResults[0].Name, nil
		}
		if len(found.MovieResults) > 0 {
			return found.MovieResults[0].Title, nil
		}
	}
	return "", fmt.Errorf("no tmdb result for %s", id)
}

// ExpandQueries returns the lowercased, deduplicated union of the
// titles found for an identifier plus the caller's fallback query.
// With no usable lookup and no fallback the result is empty, and the
// caller logs that no queries are available.
func (c *Client) ExpandQueries(ctx context.Context, ids IDs, fallback string, contentType models.ContentType) []string {
	var titles *Titles
	var err error

	switch {
	case ids.IMDB != "" && c.IsConfigured():
		titles, err = c.TitlesByIMDB(ctx, ids.IMDB, contentType)
	case ids.TVDB != "" && c.IsConfigured():
		titles, err = c.TitlesByTVDB(ctx, ids.TVDB, contentType)
	case ids.TMDB != "" && c.IsConfigured():
		titles, err = c.TitlesByTMDB(ctx, ids.TMDB, contentType)
	}
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"imdb_id": ids.IMDB,
			"tvdb_id": ids.TVDB,
			"tmdb_id": ids.TMDB,
		}).Warn("Title lookup failed, falling back to raw query")
	}

	seen := make(map[string]bool)
	var queries []string
	add := func(title string) {
		q := strings.ToLower(strings.TrimSpace(title))
		if q != "" && !seen[q] {
			seen[q] = true
			queries = append(queries, q)
		}
	}

	if titles != nil {
		add(titles.Primary)
		add(titles.French)
	}
	add(fallback)
	return queries
}
