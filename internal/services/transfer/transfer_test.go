package transfer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildArgsWget(t *testing.T) {
	args := buildArgs(Options{Tool: ToolWget, URL: "https://host/file.mkv", TempPath: "/tmp/x.part"})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-O /tmp/x.part") {
		t.Errorf("Missing output flag: %v", args)
	}
	if strings.Contains(joined, "-c") {
		t.Errorf("Fresh download must not resume: %v", args)
	}
	if args[len(args)-1] != "https://host/file.mkv" {
		t.Errorf("URL must come last: %v", args)
	}

	resumed := buildArgs(Options{Tool: ToolWget, URL: "https://host/file.mkv", TempPath: "/tmp/x.part", ResumeFrom: 1000})
	if !strings.Contains(strings.Join(resumed, " "), "-c") {
		t.Errorf("Resume must add -c: %v", resumed)
	}
}

func TestBuildArgsCurl(t *testing.T) {
	args := buildArgs(Options{Tool: ToolCurl, URL: "https://host/file.mkv", TempPath: "/tmp/x.part", ResumeFrom: 2048})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-C 2048") {
		t.Errorf("Missing explicit resume offset: %v", args)
	}
	if !strings.Contains(joined, "-L") {
		t.Errorf("curl must follow redirects: %v", args)
	}
	if !strings.Contains(joined, "-o /tmp/x.part") {
		t.Errorf("Missing output flag: %v", args)
	}
}

func TestMapExitCode(t *testing.T) {
	if err := mapExitCode(ToolCurl, 0); err != nil {
		t.Errorf("Exit 0 must be nil, got %v", err)
	}
	if !errors.Is(mapExitCode(ToolCurl, 33), ErrRangeRejected) {
		t.Error("curl exit 33 must map to range rejection")
	}
	if !errors.Is(mapExitCode(ToolWget, 8), ErrRangeRejected) {
		t.Error("wget exit 8 must map to range rejection")
	}
	if err := mapExitCode(ToolCurl, 6); err == nil || errors.Is(err, ErrRangeRejected) {
		t.Errorf("Other exit codes must be plain errors, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if r.Count() != 0 {
		t.Fatalf("New registry must be empty, got %d", r.Count())
	}

	tr := &Transfer{progress: make(chan Progress), scanDone: make(chan struct{})}
	r.Add("hash1", tr)
	if r.Count() != 1 {
		t.Fatalf("Expected 1 transfer, got %d", r.Count())
	}
	if got, ok := r.Get("hash1"); !ok || got != tr {
		t.Fatal("Get must return the registered transfer")
	}

	r.Remove("hash1")
	if _, ok := r.Get("hash1"); ok {
		t.Fatal("Removed transfer must be gone")
	}
	if r.Stop("hash1") {
		t.Fatal("Stop on an unknown hash must report false")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "incoming", "file.part")
	dst := filepath.Join(dir, "done", "file.mkv")

	if err := os.MkdirAll(filepath.Dir(src), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Source must be gone after move")
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Target missing: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Payload corrupted: %q", data)
	}
}

func TestCopyFileFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.part")
	dst := filepath.Join(dir, "b.mkv")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := copyFile(src, dst); err != nil {
		t.Fatalf("copyFile failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "data" {
		t.Fatalf("Copy target wrong: %q, %v", data, err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("copyFile must leave the source in place")
	}
}

func TestProbeFilenameFromContentDisposition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="Vingt.Dieux.2024.mkv"`)
		w.Header().Set("Content-Length", "1503238553")
	}))
	defer server.Close()

	name, size, err := Probe(context.Background(), server.Client(), server.URL+"/dl/abc")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if name != "Vingt.Dieux.2024.mkv" {
		t.Errorf("Unexpected filename: %q", name)
	}
	if size != 1503238553 {
		t.Errorf("Unexpected size: %d", size)
	}
}

func TestProbeFilenameFromRedirect(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
	}))
	defer target.Close()

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/files/movie.final.mkv", http.StatusFound)
	}))
	defer front.Close()

	name, _, err := Probe(context.Background(), front.Client(), front.URL+"/dl/xyz")
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if name != "movie.final.mkv" {
		t.Errorf("Expected filename from final URL, got %q", name)
	}
}

func TestProbeGoneLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, _, err := Probe(context.Background(), server.Client(), server.URL+"/dead")
	if !errors.Is(err, ErrLinkGone) {
		t.Fatalf("Expected ErrLinkGone, got %v", err)
	}
}
