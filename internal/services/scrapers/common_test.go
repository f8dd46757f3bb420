package scrapers

import (
	"testing"
	"time"

	"github.com/ddlarr/ddlarr/internal/models"
)

func TestParseFrenchSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.4 Go", 1503238553},
		{"7,3 Go", 7838315315},
		{"700 Mo", 734003200},
		{"512 Ko", 524288},
		{"2 GB", 2147483648},
		{"350Mo", 367001600},
		{"Taille du fichier : 1.4 Go", 1503238553},
		{"no size here", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseFrenchSize(tt.in); got != tt.want {
			t.Errorf("parseFrenchSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseQualityLine(t *testing.T) {
	quality, language := parseQualityLine("Qualité HDLight 1080p | FRENCH\n")
	if quality != "HDLight 1080p" {
		t.Errorf("Expected quality HDLight 1080p, got %q", quality)
	}
	if language != "FRENCH" {
		t.Errorf("Expected language FRENCH, got %q", language)
	}

	quality, language = parseQualityLine("Qualité : WEBRip\n")
	if quality != "WEBRip" {
		t.Errorf("Expected quality WEBRip, got %q", quality)
	}
	if language != "" {
		t.Errorf("Expected empty language, got %q", language)
	}

	if quality, _ = parseQualityLine("nothing labeled"); quality != "" {
		t.Errorf("Expected no quality, got %q", quality)
	}
}

func TestFindIMDBID(t *testing.T) {
	page := []byte(`<a href="https://www.imdb.com/title/tt0137523/">Fight Club</a>`)
	if got := findIMDBID(page); got != "tt0137523" {
		t.Errorf("Expected tt0137523, got %q", got)
	}
	if got := findIMDBID([]byte("no id")); got != "" {
		t.Errorf("Expected empty id, got %q", got)
	}
}

func TestTruncateQuery(t *testing.T) {
	if got := truncateQuery("short", 28); got != "short" {
		t.Errorf("Short query must pass through, got %q", got)
	}
	long := "the longest movie title ever made somewhere"
	got := truncateQuery(long, 28)
	if len(got) > 28 {
		t.Errorf("Truncated query still %d chars", len(got))
	}
	if got != "the longest movie title ever" {
		t.Errorf("Unexpected truncation: %q", got)
	}
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://site.example", "/?p=film&id=1", "https://site.example/?p=film&id=1"},
		{"https://site.example", "https://dl-protect.link/abc", "https://dl-protect.link/abc"},
		{"https://site.example/sub", "page.html", "https://site.example/page.html"},
	}
	for _, tt := range tests {
		if got := absoluteURL(tt.base, tt.href); got != tt.want {
			t.Errorf("absoluteURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestMatchCandidates(t *testing.T) {
	candidates := []candidate{
		{title: "Vingt Dieux", matchedAgainst: "vingt dieux"},
		{title: "Vingt Dieux et Demi Long Suffix", matchedAgainst: "vingt dieux"},
		{title: "Tout Autre Chose", matchedAgainst: "vingt dieux"},
	}

	kept := matchCandidates(candidates, models.SearchQuery{Text: "vingt dieux"}, models.ContentTypeMovie)
	if len(kept) != 2 {
		t.Fatalf("Expected exact + containment matches, got %d", len(kept))
	}

	// Series matching is strict: containment is not enough
	kept = matchCandidates(candidates, models.SearchQuery{Text: "vingt dieux"}, models.ContentTypeSeries)
	if len(kept) != 1 {
		t.Fatalf("Expected only the exact match for series, got %d", len(kept))
	}
}

func TestMatchCandidatesSeasonFilter(t *testing.T) {
	candidates := []candidate{
		{title: "Dark - Saison 2", matchedAgainst: "dark"},
		{title: "Dark - Saison 3", matchedAgainst: "dark"},
	}
	kept := matchCandidates(candidates, models.SearchQuery{Text: "dark", Season: 3}, models.ContentTypeSeries)
	if len(kept) != 1 {
		t.Fatalf("Expected one season to survive, got %d", len(kept))
	}
	if kept[0].title != "Dark - Saison 3" {
		t.Errorf("Wrong season kept: %q", kept[0].title)
	}
}

func TestDedupeCandidates(t *testing.T) {
	candidates := []candidate{
		{title: "A", detailURL: "https://s/1"},
		{title: "B", detailURL: "https://s/2"},
		{title: "A again", detailURL: "https://s/1"},
	}
	out := dedupeCandidates(candidates)
	if len(out) != 2 {
		t.Fatalf("Expected 2 unique detail pages, got %d", len(out))
	}
	if out[0].title != "A" || out[1].title != "B" {
		t.Errorf("First-seen order not kept: %q, %q", out[0].title, out[1].title)
	}
}

func TestBuildReleasesFilters(t *testing.T) {
	c := candidate{
		title:       "Vingt Dieux",
		detailURL:   "https://site.example/?p=film&id=1",
		publishedAt: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	detail := detailPage{
		size:     1503238553,
		quality:  "HDLight 1080p",
		language: "FRENCH",
		year:     2024,
		links: []hosterLink{
			{hoster: "1fichier", url: "https://dl-protect.link/a"},
			{hoster: "Rapidgator", url: "https://dl-protect.link/b"},
		},
	}

	all := buildReleases("zone", c, detail, models.SearchQuery{}, models.ContentTypeMovie)
	if len(all) != 2 {
		t.Fatalf("Expected one release per link, got %d", len(all))
	}

	filtered := buildReleases("zone", c, detail, models.SearchQuery{Hosters: []string{"RAPIDGATOR"}}, models.ContentTypeMovie)
	if len(filtered) != 1 || filtered[0].Hoster != "Rapidgator" {
		t.Fatalf("Hoster filter must be case-insensitive, got %+v", filtered)
	}

	none := buildReleases("zone", c, detail, models.SearchQuery{Year: 2020}, models.ContentTypeMovie)
	if len(none) != 0 {
		t.Fatalf("Expected year mismatch to reject the candidate, got %d releases", len(none))
	}

	// Unknown detail year never rejects
	detail.year = 0
	kept := buildReleases("zone", c, detail, models.SearchQuery{Year: 2020}, models.ContentTypeMovie)
	if len(kept) != 2 {
		t.Fatalf("Expected unknown year to pass the filter, got %d releases", len(kept))
	}
}

func TestBuildReleasesEpisodeFilter(t *testing.T) {
	c := candidate{title: "Dark - Saison 2", detailURL: "https://site.example/?p=serie&id=5"}
	detail := detailPage{
		quality: "WEBRip",
		links: []hosterLink{
			{hoster: "1fichier", url: "https://dl-protect.link/e1", episode: 1},
			{hoster: "1fichier", url: "https://dl-protect.link/e2", episode: 2},
			{hoster: "1fichier", url: "https://dl-protect.link/pack", episode: 0},
		},
	}

	got := buildReleases("zone", c, detail, models.SearchQuery{Episode: 2}, models.ContentTypeSeries)
	if len(got) != 1 {
		t.Fatalf("Expected only the requested episode, got %d", len(got))
	}
	if got[0].Episode != 2 {
		t.Errorf("Expected episode 2, got %d", got[0].Episode)
	}

	// Without an episode filter the season pack link survives too
	got = buildReleases("zone", c, detail, models.SearchQuery{}, models.ContentTypeSeries)
	if len(got) != 3 {
		t.Fatalf("Expected all links without a filter, got %d", len(got))
	}
}

func TestRegistry(t *testing.T) {
	zone := newTestZone("https://zone.example", 1)
	waw := newTestWawacity("https://waw.example")
	registry := NewRegistry(zone, waw)

	if len(registry.All()) != 2 {
		t.Fatalf("Expected 2 scrapers, got %d", len(registry.All()))
	}
	if _, ok := registry.Get("ZONE"); !ok {
		t.Error("Lookup must be case-insensitive")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("Unknown name must not resolve")
	}
	names := registry.Names()
	if len(names) != 2 || names[0] != "zone" || names[1] != "wawacity" {
		t.Errorf("Unexpected names: %v", names)
	}
}
