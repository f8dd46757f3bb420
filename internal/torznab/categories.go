// Package torznab implements the serving side of the Torznab XML
// convention: the category taxonomy, the caps document, and the RSS-like
// search feed consumed by automation clients.
package torznab

import (
	"strings"

	"github.com/ddlarr/ddlarr/internal/models"
)

// Category codes from the Newznab/Torznab taxonomy
const (
	CategoryMovies     = 2000
	CategoryMoviesSD   = 2030
	CategoryMoviesHD   = 2040
	CategoryMoviesUHD  = 2045
	CategoryTV         = 5000
	CategoryTVSD       = 5030
	CategoryTVHD       = 5040
	CategoryTVUHD      = 5045
	CategoryTVAnime    = 5070
	CategoryBooks      = 7000
	CategoryBooksEbook = 7020
)

// Quality markers checked in order: UHD before HD, so "4K HDR" never
// falls into the HD tier via its "hd" substring. First match wins.
var (
	uhdMarkers = []string{"2160p", "4k", "uhd"}
	hdMarkers  = []string{"1080p", "720p", "fhd", "hdlight", "hd"}
	sdMarkers  = []string{"480p", "dvdrip", "sdtv", "sd"}
)

// Classify maps a content type and a free-form quality string to a
// category code. Anime and ebooks are flat. A quality matching no marker
// lands on the base code.
func Classify(contentType models.ContentType, quality string) int {
	switch contentType {
	case models.ContentTypeAnime:
		return CategoryTVAnime
	case models.ContentTypeEbook:
		return CategoryBooksEbook
	}

	q := strings.ToLower(quality)
	tier := tierBase
	if q != "" {
		switch {
		case containsAny(q, uhdMarkers):
			tier = tierUHD
		case containsAny(q, hdMarkers):
			tier = tierHD
		case containsAny(q, sdMarkers):
			tier = tierSD
		}
	}

	if contentType == models.ContentTypeSeries {
		switch tier {
		case tierUHD:
			return CategoryTVUHD
		case tierHD:
			return CategoryTVHD
		case tierSD:
			return CategoryTVSD
		default:
			return CategoryTV
		}
	}

	switch tier {
	case tierUHD:
		return CategoryMoviesUHD
	case tierHD:
		return CategoryMoviesHD
	case tierSD:
		return CategoryMoviesSD
	default:
		return CategoryMovies
	}
}

type qualityTier int

const (
	tierBase qualityTier = iota
	tierSD
	tierHD
	tierUHD
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ContentTypesFor expands requested category codes into the content
// types a search must cover. No categories means all of them.
func ContentTypesFor(categories []int) []models.ContentType {
	if len(categories) == 0 {
		return models.AllContentTypes
	}

	seen := make(map[models.ContentType]bool)
	var types []models.ContentType
	add := func(ct models.ContentType) {
		if !seen[ct] {
			seen[ct] = true
			types = append(types, ct)
		}
	}

	for _, cat := range categories {
		switch {
		case cat == CategoryTVAnime:
			add(models.ContentTypeAnime)
		case cat == CategoryTV:
			// The parent TV category covers anime too
			add(models.ContentTypeSeries)
			add(models.ContentTypeAnime)
		case cat >= 2000 && cat < 3000:
			add(models.ContentTypeMovie)
		case cat >= 5000 && cat < 6000:
			add(models.ContentTypeSeries)
		case cat >= 7000 && cat < 8000:
			add(models.ContentTypeEbook)
		}
	}
	return types
}
