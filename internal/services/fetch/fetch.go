// Package fetch provides the shared HTML page fetcher used by all site
// scrapers: one HTTP client with a browser User-Agent, an in-memory
// response cache keyed by URL, and bounded retries on transient errors.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Sites serve different markup (or a captcha page) to obvious bots, so
// requests carry a plain browser identity.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// Pages larger than this are cut off; listing and detail pages are far
// smaller and anything bigger is not worth parsing.
const maxPageSize = 4 * 1024 * 1024

const maxRetries = 2

// Fetcher performs cached, retried page fetches
type Fetcher struct {
	client    *http.Client
	cache     *cache.Cache
	logger    *logrus.Logger
	userAgent string
}

// NewFetcher creates a fetcher. cacheTTL bounds how long an identical
// URL is served from memory instead of the network.
func NewFetcher(timeout, cacheTTL time.Duration, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		cache:     cache.New(cacheTTL, 2*cacheTTL),
		logger:    logger,
		userAgent: defaultUserAgent,
	}
}

// Page returns the body of pageURL. Concurrent fetches of the same URL
// may race on the cache; last write wins, which is harmless since
// entries are keyed by URL and equal by construction.
func (f *Fetcher) Page(ctx context.Context, pageURL string) ([]byte, error) {
	if cached, ok := f.cache.Get(pageURL); ok {
		return cached.([]byte), nil
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept-Language", "fr-FR,fr;q=0.8,en;q=0.5")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("page not found: %s", pageURL))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	f.logger.WithFields(logrus.Fields{
		"url":   pageURL,
		"bytes": len(body),
	}).Debug("Fetched page")

	f.cache.Set(pageURL, body, cache.DefaultExpiration)
	return body, nil
}

// Document fetches a page and parses it for CSS-selector queries
func (f *Fetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := f.Page(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// Flush drops every cached page
func (f *Fetcher) Flush() {
	f.cache.Flush()
}
