package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ddlarr/ddlarr/internal/models"
)

var (
	bracketRegex  = regexp.MustCompile(`\[[^\]]*\]`)
	htmlTagRegex  = regexp.MustCompile(`<[^>]*>`)
	nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalize reduces a title to a comparable form: bracketed annotations
// and HTML tags are dropped, diacritics stripped, everything outside
// [a-z0-9] removed, lowercase.
func Normalize(s string) string {
	s = bracketRegex.ReplaceAllString(s, " ")
	s = htmlTagRegex.ReplaceAllString(s, " ")
	s = StripDiacritics(s)
	s = strings.ToLower(s)
	s = nonAlnumRegex.ReplaceAllString(s, "")
	return s
}

// StripDiacritics removes combining marks, turning "é" into "e"
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Distance returns the edit distance between two normalized strings
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(Normalize(a), Normalize(b))
}

// AllowedDistance returns the edit-distance tolerance for a query of the
// given normalized length. Tolerance scales with length so short queries
// don't over-match.
func AllowedDistance(length int) int {
	switch {
	case length <= 5:
		return 1
	case length <= 10:
		return 2
	default:
		return length * 20 / 100
	}
}

// IsMatch decides whether a scraped candidate title satisfies a query.
// Exact normalized equality always matches. Movies additionally accept
// containment of the query inside the candidate ("Heat" matches
// "Heat 1995"). Series and anime never use containment; a partial season
// name must stay within the distance tolerance instead.
func IsMatch(query, candidate string, contentType models.ContentType) bool {
	nq := Normalize(query)
	nc := Normalize(candidate)
	if nq == "" || nc == "" {
		return false
	}
	if nq == nc {
		return true
	}
	if contentType == models.ContentTypeMovie && strings.Contains(nc, nq) {
		return true
	}
	return levenshtein.ComputeDistance(nq, nc) <= AllowedDistance(len(nq))
}
