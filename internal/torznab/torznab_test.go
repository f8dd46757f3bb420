package torznab

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/ddlarr/ddlarr/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType models.ContentType
		quality     string
		want        int
	}{
		{models.ContentTypeMovie, "2160p", CategoryMoviesUHD},
		{models.ContentTypeMovie, "4K HDR", CategoryMoviesUHD},
		{models.ContentTypeMovie, "UHD BluRay", CategoryMoviesUHD},
		{models.ContentTypeMovie, "720p", CategoryMoviesHD},
		{models.ContentTypeMovie, "HDLight 1080p", CategoryMoviesHD},
		{models.ContentTypeMovie, "DVDRIP", CategoryMoviesSD},
		{models.ContentTypeMovie, "", CategoryMovies},
		{models.ContentTypeMovie, "MULTI", CategoryMovies},
		{models.ContentTypeSeries, "2160p", CategoryTVUHD},
		{models.ContentTypeSeries, "HD 720p", CategoryTVHD},
		{models.ContentTypeSeries, "", CategoryTV},
		{models.ContentTypeAnime, "1080p", CategoryTVAnime},
		{models.ContentTypeAnime, "", CategoryTVAnime},
		{models.ContentTypeEbook, "anything", CategoryBooksEbook},
	}

	for _, tt := range tests {
		got := Classify(tt.contentType, tt.quality)
		if got != tt.want {
			t.Errorf("Classify(%s, %q) = %d, want %d", tt.contentType, tt.quality, got, tt.want)
		}
	}
}

func TestContentTypesFor(t *testing.T) {
	all := ContentTypesFor(nil)
	if len(all) != len(models.AllContentTypes) {
		t.Errorf("ContentTypesFor(nil) = %v, want all content types", all)
	}

	movies := ContentTypesFor([]int{CategoryMoviesHD})
	if len(movies) != 1 || movies[0] != models.ContentTypeMovie {
		t.Errorf("ContentTypesFor([2040]) = %v, want [movie]", movies)
	}

	tv := ContentTypesFor([]int{CategoryTV})
	if len(tv) != 2 {
		t.Errorf("ContentTypesFor([5000]) = %v, want series and anime", tv)
	}

	anime := ContentTypesFor([]int{CategoryTVAnime})
	if len(anime) != 1 || anime[0] != models.ContentTypeAnime {
		t.Errorf("ContentTypesFor([5070]) = %v, want [anime]", anime)
	}
}

func TestGUIDStable(t *testing.T) {
	a := GUID("http://host/file", "Some.Release")
	b := GUID("http://host/file", "Some.Release")
	if a != b {
		t.Errorf("GUID not stable: %s != %s", a, b)
	}
	if a == GUID("http://host/other", "Some.Release") {
		t.Error("GUID collision across different links")
	}
	if a == GUID("http://host/file", "Other.Release") {
		t.Error("GUID collision across different titles")
	}
}

func TestBuildFeed(t *testing.T) {
	releases := []models.Release{
		{
			Title:       "Vingt.Dieux.2024.HDLight.1080p.FRENCH.1fichier",
			Category:    CategoryMoviesHD,
			Size:        1500000000,
			IMDBID:      "tt28277817",
			Year:        2024,
			Language:    "FRENCH",
			PublishedAt: time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			Title:       "The.Wire.S03E05.HD.720p.VOSTFR.Rapidgator",
			Category:    CategoryTVHD,
			Size:        800000000,
			Season:      3,
			Episode:     5,
			PublishedAt: time.Date(2024, 11, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	feed := BuildFeed("zone", releases, func(r models.Release) string {
		return "http://localhost:8080/torrent?name=" + r.Title
	})

	data, err := WriteXML(feed)
	if err != nil {
		t.Fatalf("WriteXML() error = %v", err)
	}
	out := string(data)

	if !strings.HasPrefix(out, xml.Header) {
		t.Error("feed output missing XML header")
	}
	if !strings.Contains(out, `xmlns:torznab=`) {
		t.Error("feed output missing torznab namespace declaration")
	}
	if !strings.Contains(out, `<torznab:attr name="seeders" value="99"`) {
		t.Error("feed output missing synthetic seeders attribute")
	}
	if !strings.Contains(out, `<torznab:attr name="imdbid" value="tt28277817"`) {
		t.Error("feed output missing imdbid attribute")
	}
	if !strings.Contains(out, `type="application/x-bittorrent"`) {
		t.Error("feed output missing enclosure type")
	}

	// The feed must parse back as generic RSS the way a consumer reads it
	var parsed struct {
		XMLName xml.Name `xml:"rss"`
		Channel struct {
			Items []struct {
				Title string `xml:"title"`
				GUID  string `xml:"guid"`
				Attrs []struct {
					Name  string `xml:"name,attr"`
					Value string `xml:"value,attr"`
				} `xml:"attr"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("feed does not parse back: %v", err)
	}
	if len(parsed.Channel.Items) != 2 {
		t.Fatalf("parsed %d items, want 2", len(parsed.Channel.Items))
	}
	if parsed.Channel.Items[0].GUID == "" {
		t.Error("item GUID empty after round trip")
	}

	var season string
	for _, attr := range parsed.Channel.Items[1].Attrs {
		if attr.Name == "season" {
			season = attr.Value
		}
	}
	if season != "3" {
		t.Errorf("season attribute = %q, want 3", season)
	}
}

func TestBuildCaps(t *testing.T) {
	caps := BuildCaps("ddlarr", 100, 50)

	data, err := WriteXML(caps)
	if err != nil {
		t.Fatalf("WriteXML() error = %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`<caps>`,
		`<tv-search available="yes"`,
		`<movie-search available="yes"`,
		`<category id="2000"`,
		`<subcat id="5070"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("caps output missing %q", want)
		}
	}
}

func TestErrorDoc(t *testing.T) {
	data, err := WriteXML(&ErrorDoc{Code: ErrCodeIncorrectParam, Description: "bad cat"})
	if err != nil {
		t.Fatalf("WriteXML() error = %v", err)
	}
	if !strings.Contains(string(data), `<error code="201" description="bad cat"`) {
		t.Errorf("error doc = %s", data)
	}
}
