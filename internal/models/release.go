package models

import (
	"strings"
	"time"
)

// SearchQuery carries the parameters of one Torznab search request
type SearchQuery struct {
	Text       string
	Categories []int
	IMDBID     string // with the tt prefix, as clients send it
	TMDBID     string
	TVDBID     string
	Season     int // 0 when absent
	Episode    int // 0 when absent
	Year       int // 0 when absent
	Hosters    []string
	Limit      int
	Offset     int
}

// WantsCategory reports whether the query accepts a Torznab category code.
// An empty category list accepts everything.
func (q SearchQuery) WantsCategory(cat int) bool {
	if len(q.Categories) == 0 {
		return true
	}
	for _, c := range q.Categories {
		if c == cat || c == (cat/1000)*1000 {
			return true
		}
	}
	return false
}

// WantsHoster reports whether a hoster passes the query's allow list.
// Matching is a case-insensitive substring check in either direction, so
// "1fichier" matches an allow-list entry of "fichier" and vice versa.
func (q SearchQuery) WantsHoster(hoster string) bool {
	if len(q.Hosters) == 0 {
		return true
	}
	name := strings.ToLower(hoster)
	for _, h := range q.Hosters {
		allowed := strings.ToLower(h)
		if strings.Contains(name, allowed) || strings.Contains(allowed, name) {
			return true
		}
	}
	return false
}

// Release is one indexed result: a single hoster link found on a site
// detail page, flattened so every (page, hoster, episode) combination
// yields its own entry. Releases are transient: they are serialized into
// the Torznab feed and never persisted.
type Release struct {
	Title       string // synthesized scene-style name
	RawTitle    string // as displayed on the site
	DetailURL   string
	DownloadURL string // protected or direct hoster link
	Hoster      string
	Site        string
	ContentType ContentType
	Category    int // Torznab category code
	Size        int64
	Quality     string
	Language    string
	IMDBID      string
	Year        int
	Season      int
	Episode     int
	PublishedAt time.Time
}
