package utils

import (
	"testing"

	"github.com/ddlarr/ddlarr/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Inception", "inception"},
		{"diacritics", "Amélie Poulain", "ameliepoulain"},
		{"brackets dropped", "Dune [MULTI 4K]", "dune"},
		{"html tags dropped", "Dune <b>Part Two</b>", "duneparttwo"},
		{"punctuation dropped", "Spider-Man: No Way Home!", "spidermannowayhome"},
		{"digits kept", "Blade Runner 2049", "bladerunner2049"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAllowedDistanceNonDecreasing(t *testing.T) {
	prev := 0
	for length := 1; length <= 100; length++ {
		got := AllowedDistance(length)
		if got < prev {
			t.Fatalf("AllowedDistance(%d) = %d, less than AllowedDistance(%d) = %d", length, got, length-1, prev)
		}
		prev = got
	}
}

func TestAllowedDistanceThresholds(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{3, 1},
		{5, 1},
		{6, 2},
		{10, 2},
		{11, 2},
		{15, 3},
		{20, 4},
	}

	for _, tt := range tests {
		if got := AllowedDistance(tt.length); got != tt.want {
			t.Errorf("AllowedDistance(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestIsMatchSelf(t *testing.T) {
	for _, q := range []string{"Heat", "Amélie", "The Wire", "Blade Runner 2049"} {
		if !IsMatch(q, q, models.ContentTypeMovie) {
			t.Errorf("IsMatch(%q, %q, movie) = false, want true", q, q)
		}
		if !IsMatch(q, q, models.ContentTypeSeries) {
			t.Errorf("IsMatch(%q, %q, series) = false, want true", q, q)
		}
	}
}

func TestIsMatchMovieContainment(t *testing.T) {
	if !IsMatch("Heat", "Heat 1995", models.ContentTypeMovie) {
		t.Error(`IsMatch("Heat", "Heat 1995", movie) = false, want true`)
	}
	if IsMatch("Heat", "Heat 1995", models.ContentTypeSeries) {
		t.Error(`IsMatch("Heat", "Heat 1995", series) = true, want false (containment is movie-only)`)
	}
	if IsMatch("Heat", "Heat 1995", models.ContentTypeAnime) {
		t.Error(`IsMatch("Heat", "Heat 1995", anime) = true, want false`)
	}
}

func TestIsMatchDistanceTolerance(t *testing.T) {
	// One typo within the tolerance of an 8-character query
	if !IsMatch("Marianne", "Marianes", models.ContentTypeSeries) {
		t.Error("expected a 2-edit candidate to match an 8-char query")
	}
	// Entirely different titles must not match
	if IsMatch("Marianne", "Westworld", models.ContentTypeSeries) {
		t.Error("expected unrelated titles not to match")
	}
}

func TestIsMatchAccentInsensitive(t *testing.T) {
	if !IsMatch("Amelie", "Amélie", models.ContentTypeMovie) {
		t.Error("expected accented candidate to match unaccented query")
	}
}

func TestIsMatchEmpty(t *testing.T) {
	if IsMatch("", "anything", models.ContentTypeMovie) {
		t.Error("empty query must not match")
	}
	if IsMatch("***", "anything", models.ContentTypeMovie) {
		t.Error("query that normalizes to empty must not match")
	}
}
