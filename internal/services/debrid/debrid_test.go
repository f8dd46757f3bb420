package debrid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestAllDebridUnlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/link/unlock" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("apikey") != "ad-key" {
			t.Errorf("Missing api key, got %q", q.Get("apikey"))
		}
		if q.Get("agent") == "" {
			t.Error("Missing agent parameter")
		}
		if q.Get("link") != "https://1fichier.com/?abc" {
			t.Errorf("Unexpected link: %q", q.Get("link"))
		}
		fmt.Fprint(w, `{"status":"success","data":{"link":"https://direct.alldebrid.example/file.mkv","filename":"file.mkv","filesize":100}}`)
	}))
	defer server.Close()

	ad := NewAllDebrid("ad-key", testLogger())
	ad.baseURL = server.URL

	unlocked, err := ad.Unlock(context.Background(), "https://1fichier.com/?abc")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if unlocked != "https://direct.alldebrid.example/file.mkv" {
		t.Errorf("Unexpected unlocked link: %q", unlocked)
	}
}

func TestAllDebridError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","error":{"code":"LINK_HOST_NOT_SUPPORTED","message":"This host is not supported"}}`)
	}))
	defer server.Close()

	ad := NewAllDebrid("ad-key", testLogger())
	ad.baseURL = server.URL

	if _, err := ad.Unlock(context.Background(), "https://weird.example/x"); err == nil {
		t.Fatal("Expected error from API failure")
	}
}

func TestRealDebridUnlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/1.0/unrestrict/link" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer rd-key" {
			t.Errorf("Missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("Bad form: %v", err)
		}
		if r.PostForm.Get("link") != "https://rapidgator.net/file/abc" {
			t.Errorf("Unexpected link: %q", r.PostForm.Get("link"))
		}
		fmt.Fprint(w, `{"download":"https://direct.realdebrid.example/file.mkv","filename":"file.mkv","filesize":100}`)
	}))
	defer server.Close()

	rd := NewRealDebrid("rd-key", testLogger())
	rd.baseURL = server.URL

	unlocked, err := rd.Unlock(context.Background(), "https://rapidgator.net/file/abc")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if unlocked != "https://direct.realdebrid.example/file.mkv" {
		t.Errorf("Unexpected unlocked link: %q", unlocked)
	}
}

func TestDebridLinkUnlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/downloader/add" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer dl-key" {
			t.Errorf("Missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"success":true,"value":{"downloadUrl":"https://direct.debridlink.example/file.mkv","name":"file.mkv","size":100}}`)
	}))
	defer server.Close()

	dl := NewDebridLink("dl-key", testLogger())
	dl.baseURL = server.URL

	unlocked, err := dl.Unlock(context.Background(), "https://uptobox.com/abc")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if unlocked != "https://direct.debridlink.example/file.mkv" {
		t.Errorf("Unexpected unlocked link: %q", unlocked)
	}
}

// fakeDebrider scripts one backend's behavior for chain tests
type fakeDebrider struct {
	name       string
	configured bool
	result     string
	err        error
	calls      int
}

func (f *fakeDebrider) Name() string       { return f.name }
func (f *fakeDebrider) IsConfigured() bool { return f.configured }

func (f *fakeDebrider) TestConnection(ctx context.Context) error { return nil }
func (f *fakeDebrider) Unlock(ctx context.Context, link string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.result == "" {
		return link, nil
	}
	return f.result, nil
}

func TestChainFirstConfiguredWins(t *testing.T) {
	first := &fakeDebrider{name: "first", configured: true, result: "https://direct.example/a"}
	second := &fakeDebrider{name: "second", configured: true, result: "https://direct.example/b"}
	chain := NewChain(testLogger(), first, second)

	got := chain.Unlock(context.Background(), "https://hoster.example/x")
	if got != "https://direct.example/a" {
		t.Errorf("Expected first backend's link, got %q", got)
	}
	if second.calls != 0 {
		t.Errorf("Second backend must not be called, got %d calls", second.calls)
	}
}

func TestChainSkipsFailedAndEcho(t *testing.T) {
	failing := &fakeDebrider{name: "failing", configured: true, err: fmt.Errorf("host not supported")}
	echoing := &fakeDebrider{name: "echoing", configured: true}
	working := &fakeDebrider{name: "working", configured: true, result: "https://direct.example/ok"}
	chain := NewChain(testLogger(), failing, echoing, working)

	got := chain.Unlock(context.Background(), "https://hoster.example/x")
	if got != "https://direct.example/ok" {
		t.Errorf("Expected third backend's link, got %q", got)
	}
}

func TestChainUnconfiguredSkipped(t *testing.T) {
	off := &fakeDebrider{name: "off", configured: false, result: "https://direct.example/no"}
	chain := NewChain(testLogger(), off)

	link := "https://hoster.example/x"
	if got := chain.Unlock(context.Background(), link); got != link {
		t.Errorf("Expected original link back, got %q", got)
	}
	if off.calls != 0 {
		t.Errorf("Unconfigured backend must not be called, got %d calls", off.calls)
	}
}

func TestChainAllFailKeepsOriginal(t *testing.T) {
	a := &fakeDebrider{name: "a", configured: true, err: fmt.Errorf("down")}
	b := &fakeDebrider{name: "b", configured: true, err: fmt.Errorf("down too")}
	chain := NewChain(testLogger(), a, b)

	link := "https://hoster.example/x"
	if got := chain.Unlock(context.Background(), link); got != link {
		t.Errorf("Expected original link back, got %q", got)
	}
}
