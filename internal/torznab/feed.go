package torznab

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/ddlarr/ddlarr/internal/models"
)

// Automation clients filter out results whose swarm looks dead. DDL has
// no swarm, so every item reports this fixed healthy value.
const SyntheticPeers = 99

const torznabNamespace = "http://torznab.com/schemas/2015/feed"

// Feed is the rss document returned for search requests
type Feed struct {
	XMLName   xml.Name    `xml:"rss"`
	Version   string      `xml:"version,attr"`
	TorznabNS string      `xml:"xmlns:torznab,attr"`
	Channel   FeedChannel `xml:"channel"`
}

// FeedChannel holds the items of one response
type FeedChannel struct {
	Title       string     `xml:"title"`
	Description string     `xml:"description"`
	Language    string     `xml:"language"`
	Items       []FeedItem `xml:"item"`
}

// FeedItem is one search result
type FeedItem struct {
	Title     string    `xml:"title"`
	GUID      string    `xml:"guid"`
	Link      string    `xml:"link"`
	Category  int       `xml:"category"`
	PubDate   string    `xml:"pubDate"`
	Enclosure Enclosure `xml:"enclosure"`
	Attrs     []Attr    `xml:"torznab:attr"`
}

// Enclosure carries the placeholder download URL
type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Attr is a namespaced torznab attribute
type Attr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ErrorDoc is the well-formed XML error the API returns instead of an
// HTTP-level failure, so automation clients can always parse the body
type ErrorDoc struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

// Torznab error codes used by the handlers
const (
	ErrCodeIncorrectParam = 201
	ErrCodeNoSuchFunction = 203
	ErrCodeUnknown        = 900
)

// GUID derives a stable identifier from a download link and title.
// Identical (link, title) pairs always produce the same GUID, which
// automation clients rely on for dedup across polls.
func GUID(link, title string) string {
	sum := sha1.Sum([]byte(link + title))
	return hex.EncodeToString(sum[:])
}

// BuildFeed serializes releases into a feed. downloadURL maps a release
// to the placeholder-generating endpoint URL the item links to.
func BuildFeed(title string, releases []models.Release, downloadURL func(models.Release) string) *Feed {
	feed := &Feed{
		Version:   "2.0",
		TorznabNS: torznabNamespace,
		Channel: FeedChannel{
			Title:       title,
			Description: title + " DDL indexer",
			Language:    "fr-FR",
		},
	}

	for _, release := range releases {
		dl := downloadURL(release)
		item := FeedItem{
			Title:    release.Title,
			GUID:     GUID(dl, release.Title),
			Link:     dl,
			Category: release.Category,
			PubDate:  release.PublishedAt.Format(time.RFC1123Z),
			Enclosure: Enclosure{
				URL:    dl,
				Length: release.Size,
				Type:   "application/x-bittorrent",
			},
			Attrs: itemAttrs(release),
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}

	return feed
}

func itemAttrs(release models.Release) []Attr {
	attrs := []Attr{
		{Name: "category", Value: strconv.Itoa(release.Category)},
		{Name: "size", Value: strconv.FormatInt(release.Size, 10)},
		{Name: "seeders", Value: strconv.Itoa(SyntheticPeers)},
		{Name: "peers", Value: strconv.Itoa(SyntheticPeers)},
	}
	if release.IMDBID != "" {
		attrs = append(attrs, Attr{Name: "imdbid", Value: release.IMDBID})
	}
	if release.Season > 0 {
		attrs = append(attrs, Attr{Name: "season", Value: strconv.Itoa(release.Season)})
	}
	if release.Episode > 0 {
		attrs = append(attrs, Attr{Name: "episode", Value: strconv.Itoa(release.Episode)})
	}
	if release.Year > 0 {
		attrs = append(attrs, Attr{Name: "year", Value: strconv.Itoa(release.Year)})
	}
	if release.Language != "" {
		attrs = append(attrs, Attr{Name: "language", Value: release.Language})
	}
	return attrs
}

// Caps is the capabilities document answering t=caps
type Caps struct {
	XMLName    xml.Name       `xml:"caps"`
	Server     CapsServer     `xml:"server"`
	Limits     CapsLimits     `xml:"limits"`
	Searching  CapsSearching  `xml:"searching"`
	Categories CapsCategories `xml:"categories"`
}

type CapsServer struct {
	Title string `xml:"title,attr"`
}

type CapsLimits struct {
	Max     int `xml:"max,attr"`
	Default int `xml:"default,attr"`
}

type CapsSearching struct {
	Search      CapsMode `xml:"search"`
	TVSearch    CapsMode `xml:"tv-search"`
	MovieSearch CapsMode `xml:"movie-search"`
	BookSearch  CapsMode `xml:"book-search"`
}

type CapsMode struct {
	Available       string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

type CapsCategories struct {
	Categories []CapsCategory `xml:"category"`
}

type CapsCategory struct {
	ID      int          `xml:"id,attr"`
	Name    string       `xml:"name,attr"`
	Subcats []CapsSubcat `xml:"subcat"`
}

type CapsSubcat struct {
	ID   int    `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// BuildCaps returns the capabilities document for one indexer title
func BuildCaps(title string, maxLimit, defaultLimit int) *Caps {
	return &Caps{
		Server: CapsServer{Title: title},
		Limits: CapsLimits{Max: maxLimit, Default: defaultLimit},
		Searching: CapsSearching{
			Search:      CapsMode{Available: "yes", SupportedParams: "q"},
			TVSearch:    CapsMode{Available: "yes", SupportedParams: "q,imdbid,tvdbid,season,ep"},
			MovieSearch: CapsMode{Available: "yes", SupportedParams: "q,imdbid,tmdbid,year"},
			BookSearch:  CapsMode{Available: "yes", SupportedParams: "q"},
		},
		Categories: CapsCategories{
			Categories: []CapsCategory{
				{
					ID: CategoryMovies, Name: "Movies",
					Subcats: []CapsSubcat{
						{ID: CategoryMoviesSD, Name: "Movies/SD"},
						{ID: CategoryMoviesHD, Name: "Movies/HD"},
						{ID: CategoryMoviesUHD, Name: "Movies/UHD"},
					},
				},
				{
					ID: CategoryTV, Name: "TV",
					Subcats: []CapsSubcat{
						{ID: CategoryTVSD, Name: "TV/SD"},
						{ID: CategoryTVHD, Name: "TV/HD"},
						{ID: CategoryTVUHD, Name: "TV/UHD"},
						{ID: CategoryTVAnime, Name: "TV/Anime"},
					},
				},
				{
					ID: CategoryBooks, Name: "Books",
					Subcats: []CapsSubcat{
						{ID: CategoryBooksEbook, Name: "Books/EBook"},
					},
				},
			},
		},
	}
}

// WriteXML marshals a document with the XML header prepended
func WriteXML(doc any) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
