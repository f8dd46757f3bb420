package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ddlarr/ddlarr/internal/models"
)

var (
	yearRegex        = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	seasonRegex      = regexp.MustCompile(`(?i)(?:saison|season)\s*(\d{1,3})|\bS(\d{1,3})\b`)
	episodeRegex     = regexp.MustCompile(`(?i)\b(?:[ée]pisode|ep)\.?\s*(\d{1,4})|\bE(\d{1,4})\b`)
	titleJunkRegex   = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	multiDotRegex    = regexp.MustCompile(`\.{2,}`)
	seasonStripRegex = regexp.MustCompile(`(?i)\s*[-–]?\s*(?:saison|season)\s*\d{1,3}.*$`)
)

// ExtractYear extracts a 4-digit year from a title.
// Returns 0 if no year is found.
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}

// ExtractSeason extracts a season number from a title like
// "Title - Saison 2" or "Title S02". Returns 0 when absent.
func ExtractSeason(title string) int {
	m := seasonRegex.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g != "" {
			n, err := strconv.Atoi(g)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// ExtractEpisode extracts an episode number from a link label like
// "Episode 3". Returns 0 when absent.
func ExtractEpisode(label string) int {
	m := episodeRegex.FindStringSubmatch(label)
	if m == nil {
		return 0
	}
	for _, g := range m[1:] {
		if g != "" {
			n, err := strconv.Atoi(g)
			if err == nil {
				return n
			}
		}
	}
	return 0
}

// StripSeasonSuffix removes a trailing "- Saison N ..." marker so the bare
// show name survives into the synthesized title
func StripSeasonSuffix(title string) string {
	return strings.TrimSpace(seasonStripRegex.ReplaceAllString(title, ""))
}

// BuildSceneTitle synthesizes a dot-separated pseudo-scene release name
// from the parts a detail page yields. Order: base name, year for movies,
// SxxEyy for series, quality, language, hoster.
func BuildSceneTitle(name string, contentType models.ContentType, year, season, episode int, quality, language, hoster string) string {
	parts := []string{cleanTitlePart(name)}

	if contentType == models.ContentTypeMovie && year > 0 {
		parts = append(parts, strconv.Itoa(year))
	}
	if (contentType == models.ContentTypeSeries || contentType == models.ContentTypeAnime) && season > 0 {
		if episode > 0 {
			parts = append(parts, fmt.Sprintf("S%02dE%02d", season, episode))
		} else {
			parts = append(parts, fmt.Sprintf("S%02d", season))
		}
	}
	if quality != "" {
		parts = append(parts, cleanTitlePart(quality))
	}
	if language != "" {
		parts = append(parts, cleanTitlePart(language))
	}
	if hoster != "" {
		parts = append(parts, cleanTitlePart(hoster))
	}

	var keep []string
	for _, p := range parts {
		if p != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, ".")
}

// cleanTitlePart maps one human-readable fragment onto scene-name
// alphabet: letters and digits kept, runs of anything else become a
// single dot, no leading/trailing/doubled dots.
func cleanTitlePart(s string) string {
	s = bracketRegex.ReplaceAllString(s, " ")
	s = htmlTagRegex.ReplaceAllString(s, " ")
	s = StripDiacritics(s)
	s = titleJunkRegex.ReplaceAllString(s, ".")
	s = multiDotRegex.ReplaceAllString(s, ".")
	return strings.Trim(s, ".")
}
