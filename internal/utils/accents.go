package utils

import (
	"strings"
	"unicode"
)

// Sites index some titles under French orthography the requester didn't
// supply. When a query already carries an accent the rest of it is
// plausibly French too, so alternate accented spellings are worth trying.

const maxAccentVariants = 5

var accentSwaps = map[rune]rune{
	'e': 'é',
	'a': 'à',
	'i': 'î',
	'o': 'ô',
	'u': 'ù',
	'c': 'ç',
}

// Whole-word substitutions for short words the per-character rule skips
var accentWords = map[string]string{
	"the": "thé",
	"le":  "lé",
	"la":  "là",
	"ou":  "où",
	"a":   "à",
	"ca":  "ça",
}

// HasAccent reports whether the string contains at least one accented rune
func HasAccent(s string) bool {
	return StripDiacritics(s) != s
}

// AccentVariants returns up to maxAccentVariants spellings of the query,
// the original always first. A query without any accented character is
// returned unchanged: it is treated as non-French and not worth mutating.
// Each variant differs from the original by a single substitution.
func AccentVariants(query string) []string {
	variants := []string{query}
	if !HasAccent(query) {
		return variants
	}

	seen := map[string]bool{query: true}
	words := strings.Fields(query)

	add := func(wordIdx int, replacement string) bool {
		if len(variants) >= maxAccentVariants {
			return false
		}
		rebuilt := make([]string, len(words))
		copy(rebuilt, words)
		rebuilt[wordIdx] = replacement
		v := strings.Join(rebuilt, " ")
		if !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
		return true
	}

	for wi, w := range words {
		if repl, ok := accentWords[strings.ToLower(w)]; ok {
			if !add(wi, repl) {
				return variants
			}
		}
	}

	for wi, w := range words {
		runes := []rune(w)
		if len(runes) < 3 {
			continue
		}
		for ri, r := range runes {
			swap, ok := accentSwaps[unicode.ToLower(r)]
			if !ok {
				continue
			}
			candidate := string(runes[:ri]) + string(swap) + string(runes[ri+1:])
			if !add(wi, candidate) {
				return variants
			}
		}
	}

	return variants
}
