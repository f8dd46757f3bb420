package scrapers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ddlarr/ddlarr/internal/models"
	"github.com/ddlarr/ddlarr/internal/services/fetch"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestZone(baseURL string, maxPages int) *Zone {
	logger := testLogger()
	fetcher := fetch.NewFetcher(5*time.Second, time.Minute, logger)
	return NewZone(baseURL, maxPages, fetcher, NewExpander(nil, logger), logger)
}

const zoneMovieListing = `<!DOCTYPE html>
<html><body>
<div id="dle-content">
  <div class="cover_global">
    <div class="cover_infos_title">
      <a href="/?p=film&id=31015-vingt-dieux">Vingt Dieux</a>
      <span class="quality">HDLight 1080p</span>
    </div>
  </div>
  <div class="cover_global">
    <div class="cover_infos_title">
      <a href="/?p=film&id=30888-autre-chose">Autre Chose Entierement</a>
      <span class="quality">WEBRip 720p</span>
    </div>
  </div>
</div>
</body></html>`

const zoneMovieDetail = `<!DOCTYPE html>
<html><body>
<div class="postinfo">
  <u>Synopsis</u><br>
  Taille du fichier : 1.4 Go<br>
  Qualité HDLight 1080p | FRENCH<br>
  Année de production : 2024<br>
  <a href="https://www.imdb.com/title/tt28282387/">Fiche IMDB</a><br>
  <b>1fichier</b>
  <br><b><a href="https://dl-protect.link/abc123">Télécharger</a></b><br>
  <b>Rapidgator</b>
  <br><b><a href="https://dl-protect.link/def456">Télécharger</a></b>
</div>
</body></html>`

func zoneMovieServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		q := r.URL.Query()
		switch {
		case q.Get("search") != "":
			fmt.Fprint(w, zoneMovieListing)
		case q.Get("id") != "":
			fmt.Fprint(w, zoneMovieDetail)
		default:
			fmt.Fprint(w, zoneMovieListing)
		}
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestZoneSearchMovie(t *testing.T) {
	server, _ := zoneMovieServer(t)
	zone := newTestZone(server.URL, 3)

	query := models.SearchQuery{Text: "Vingt Dieux", Year: 2024}
	releases, err := zone.SearchByType(context.Background(), query, models.ContentTypeMovie)
	if err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("Expected 2 releases (one per hoster), got %d", len(releases))
	}

	first := releases[0]
	if first.Title != "Vingt.Dieux.2024.HDLight.1080p.FRENCH.1fichier" {
		t.Errorf("Unexpected title: %q", first.Title)
	}
	if first.DownloadURL != "https://dl-protect.link/abc123" {
		t.Errorf("Unexpected download URL: %q", first.DownloadURL)
	}
	if first.Hoster != "1fichier" {
		t.Errorf("Unexpected hoster: %q", first.Hoster)
	}
	if first.Size != 1503238553 {
		t.Errorf("Expected size 1503238553 (1.4 Go), got %d", first.Size)
	}
	if first.Category != 2040 {
		t.Errorf("Expected HD movie category 2040, got %d", first.Category)
	}
	if first.IMDBID != "tt28282387" {
		t.Errorf("Expected IMDB id from detail page, got %q", first.IMDBID)
	}
	if first.Year != 2024 {
		t.Errorf("Expected year 2024, got %d", first.Year)
	}
	if releases[1].Hoster != "Rapidgator" {
		t.Errorf("Expected second release from Rapidgator, got %q", releases[1].Hoster)
	}
}

func TestZoneSearchHosterFilter(t *testing.T) {
	server, _ := zoneMovieServer(t)
	zone := newTestZone(server.URL, 3)

	query := models.SearchQuery{Text: "Vingt Dieux", Hosters: []string{"rapidgator"}}
	releases, err := zone.SearchByType(context.Background(), query, models.ContentTypeMovie)
	if err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("Expected 1 release after hoster filter, got %d", len(releases))
	}
	if releases[0].Hoster != "Rapidgator" {
		t.Errorf("Expected Rapidgator release, got %q", releases[0].Hoster)
	}
}

func TestZoneSearchYearMismatch(t *testing.T) {
	server, _ := zoneMovieServer(t)
	zone := newTestZone(server.URL, 3)

	query := models.SearchQuery{Text: "Vingt Dieux", Year: 1999}
	releases, err := zone.SearchByType(context.Background(), query, models.ContentTypeMovie)
	if err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}
	if len(releases) != 0 {
		t.Fatalf("Expected no releases for mismatched year, got %d", len(releases))
	}
}

const zoneSeriesListing = `<!DOCTYPE html>
<html><body>
<div id="dle-content">
  <div class="cover_global">
    <div class="cover_infos_title">
      <a href="/?p=serie&id=4001-the-wire-saison-3">The Wire - Saison 3</a>
      <span class="quality">HD 720p</span>
    </div>
  </div>
  <div class="cover_global">
    <div class="cover_infos_title">
      <a href="/?p=serie&id=4000-the-wire-saison-2">The Wire - Saison 2</a>
      <span class="quality">HD 720p</span>
    </div>
  </div>
</div>
</body></html>`

const zoneSeriesDetail = `<!DOCTYPE html>
<html><body>
<div class="postinfo">
  Qualité HD 720p | VOSTFR<br>
  Taille du fichier : 350 Mo<br>
  <b>1fichier</b>
  <br><a href="https://dl-protect.link/wire-s3e1">Episode 1</a>
  <br><a href="https://dl-protect.link/wire-s3e2">Episode 2</a>
  <br><a href="https://dl-protect.link/wire-s3e3">Episode 3</a>
</div>
</body></html>`

func TestZoneSearchSeriesEpisode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "" {
			fmt.Fprint(w, zoneSeriesDetail)
			return
		}
		fmt.Fprint(w, zoneSeriesListing)
	}))
	defer server.Close()
	zone := newTestZone(server.URL, 3)

	query := models.SearchQuery{Text: "The Wire", Season: 3, Episode: 2}
	releases, err := zone.SearchByType(context.Background(), query, models.ContentTypeSeries)
	if err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("Expected exactly the requested episode, got %d releases", len(releases))
	}

	got := releases[0]
	if got.Title != "The.Wire.S03E02.HD.720p.VOSTFR.1fichier" {
		t.Errorf("Unexpected title: %q", got.Title)
	}
	if got.Season != 3 || got.Episode != 2 {
		t.Errorf("Expected S03E02, got S%02dE%02d", got.Season, got.Episode)
	}
	if got.DownloadURL != "https://dl-protect.link/wire-s3e2" {
		t.Errorf("Unexpected download URL: %q", got.DownloadURL)
	}
	if got.Category != 5040 {
		t.Errorf("Expected HD TV category 5040, got %d", got.Category)
	}
}

func TestZonePagination(t *testing.T) {
	pageOne := `<html><body>
<div id="dle-content">
  <div class="cover_global"><div class="cover_infos_title">
    <a href="/?p=film&id=1-dark-waters">Dark Waters</a>
  </div></div>
</div>
<div class="navigation"><a href="?page=2">Suivant</a></div>
</body></html>`
	pageTwo := `<html><body>
<div id="dle-content">
  <div class="cover_global"><div class="cover_infos_title">
    <a href="/?p=film&id=2-dark-waters-two">Dark Waters</a>
  </div></div>
</div>
</body></html>`
	detail := `<html><body><div class="postinfo">
  Taille du fichier : 700 Mo<br>
  <b>1fichier</b>
  <br><a href="https://dl-protect.link/dw">Télécharger</a>
</div></body></html>`

	var mu sync.Mutex
	listingFetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "" {
			fmt.Fprint(w, detail)
			return
		}
		mu.Lock()
		listingFetches++
		mu.Unlock()
		if q.Get("page") == "2" {
			fmt.Fprint(w, pageTwo)
			return
		}
		fmt.Fprint(w, pageOne)
	}))
	defer server.Close()

	zone := newTestZone(server.URL, 5)
	releases, err := zone.SearchByType(context.Background(), models.SearchQuery{Text: "Dark Waters"}, models.ContentTypeMovie)
	if err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}

	mu.Lock()
	fetched := listingFetches
	mu.Unlock()
	if fetched != 2 {
		t.Errorf("Expected 2 listing fetches (page 2 has no next marker), got %d", fetched)
	}
	if len(releases) != 2 {
		t.Errorf("Expected releases from both pages, got %d", len(releases))
	}
}

func TestZonePaginationCap(t *testing.T) {
	listing := `<html><body>
<div id="dle-content">
  <div class="cover_global"><div class="cover_infos_title">
    <a href="/?p=film&id=9-endless">Endless</a>
  </div></div>
</div>
<div class="navigation"><a href="?page=99">Suivant</a></div>
</body></html>`

	var mu sync.Mutex
	listingFetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "" {
			fmt.Fprint(w, `<html><body><div class="postinfo"></div></body></html>`)
			return
		}
		mu.Lock()
		listingFetches++
		mu.Unlock()
		fmt.Fprint(w, listing)
	}))
	defer server.Close()

	zone := newTestZone(server.URL, 2)
	if _, err := zone.SearchByType(context.Background(), models.SearchQuery{Text: "Endless"}, models.ContentTypeMovie); err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if listingFetches != 2 {
		t.Errorf("Expected pagination capped at 2 pages, got %d fetches", listingFetches)
	}
}

func TestZoneLatest(t *testing.T) {
	server, _ := zoneMovieServer(t)
	zone := newTestZone(server.URL, 3)

	releases, err := zone.Latest(context.Background(), models.ContentTypeMovie)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	// No title matching on latest feeds: both listing entries survive
	if len(releases) != 4 {
		t.Fatalf("Expected 4 releases (2 entries x 2 hosters), got %d", len(releases))
	}
	for _, r := range releases {
		if r.PublishedAt.IsZero() {
			t.Errorf("Release %q missing publish date", r.Title)
		}
		if r.Site != "zone" {
			t.Errorf("Release %q has site %q", r.Title, r.Site)
		}
	}
}

func TestZoneSkipsUnmatchedCandidates(t *testing.T) {
	var mu sync.Mutex
	detailFetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "" {
			mu.Lock()
			detailFetches++
			mu.Unlock()
			fmt.Fprint(w, zoneMovieDetail)
			return
		}
		fmt.Fprint(w, zoneMovieListing)
	}))
	defer server.Close()

	zone := newTestZone(server.URL, 3)
	if _, err := zone.SearchByType(context.Background(), models.SearchQuery{Text: "Vingt Dieux"}, models.ContentTypeMovie); err != nil {
		t.Fatalf("SearchByType failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if detailFetches != 1 {
		t.Errorf("Expected 1 detail fetch (second candidate does not match), got %d", detailFetches)
	}
}
