package utils

import (
	"testing"
)

func TestAccentVariantsUnaccentedUnchanged(t *testing.T) {
	got := AccentVariants("inception")
	if len(got) != 1 || got[0] != "inception" {
		t.Errorf("AccentVariants(unaccented) = %v, want just the original", got)
	}
}

func TestAccentVariantsOriginalFirst(t *testing.T) {
	got := AccentVariants("étoile filante")
	if len(got) == 0 || got[0] != "étoile filante" {
		t.Errorf("AccentVariants() first element = %v, want the original query", got)
	}
}

func TestAccentVariantsBounded(t *testing.T) {
	// Plenty of swappable characters, output must stay capped
	got := AccentVariants("aaa eee iii ooo café")
	if len(got) > maxAccentVariants {
		t.Errorf("AccentVariants() returned %d variants, cap is %d", len(got), maxAccentVariants)
	}
}

func TestAccentVariantsDistinct(t *testing.T) {
	got := AccentVariants("thé noir")
	seen := make(map[string]bool)
	for _, v := range got {
		if seen[v] {
			t.Errorf("AccentVariants() returned duplicate %q", v)
		}
		seen[v] = true
	}
}

func TestAccentVariantsWordTable(t *testing.T) {
	got := AccentVariants("the café")
	found := false
	for _, v := range got {
		if v == "thé café" {
			found = true
		}
	}
	if !found {
		t.Errorf("AccentVariants(%q) = %v, want a variant using the the→thé table", "the café", got)
	}
}

func TestHasAccent(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"café", true},
		{"cafe", false},
		{"Amélie", true},
		{"plain ascii", false},
	}

	for _, tt := range tests {
		if got := HasAccent(tt.input); got != tt.want {
			t.Errorf("HasAccent(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
