package pkgfetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func newArchiveServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		switch r.URL.Path {
		case "/archive/refs/tags/v.01.tar.gz":
			fmt.Fprint(w, "fake tarball")
		case "/b.tar.gz":
			fmt.Fprint(w, "second tarball")
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestFetchArchive(t *testing.T) {
	var hits int32
	server := newArchiveServer(t, &hits)
	defer server.Close()

	f := &Fetcher{Client: server.Client()}
	dest := t.TempDir()

	p, err := f.FetchArchive(context.Background(), server.URL+"/archive/refs/tags/v.01.tar.gz", dest, "macpine-01.tar.gz")
	if err != nil {
		t.Fatalf("FetchArchive failed: %v", err)
	}
	if p != filepath.Join(dest, "macpine-01.tar.gz") {
		t.Errorf("unexpected path %s", p)
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "fake tarball" {
		t.Errorf("unexpected content %q, err %v", data, err)
	}
	if _, err := os.Stat(p + ".part"); !os.IsNotExist(err) {
		t.Errorf("partial file left behind")
	}

	// second call is served from the cache
	if _, err := f.FetchArchive(context.Background(), server.URL+"/archive/refs/tags/v.01.tar.gz", dest, "macpine-01.tar.gz"); err != nil {
		t.Fatalf("cached FetchArchive failed: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected one request, got %d", hits)
	}
}

func TestFetchArchiveNotFound(t *testing.T) {
	server := newArchiveServer(t, nil)
	defer server.Close()

	f := &Fetcher{Client: server.Client()}
	dest := t.TempDir()
	_, err := f.FetchArchive(context.Background(), server.URL+"/missing.tar.gz", dest, "")
	if err == nil || !strings.Contains(err.Error(), "bad status") {
		t.Fatalf("expected bad status error, got %v", err)
	}
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Errorf("expected no files after failed download, found %d", len(entries))
	}
}

func TestFetchArchiveFileURL(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "local.zip")
	if err := os.WriteFile(src, []byte("zip bytes"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f := &Fetcher{}
	p, err := f.FetchArchive(context.Background(), "file://"+src, t.TempDir(), "")
	if err != nil {
		t.Fatalf("FetchArchive(file://) failed: %v", err)
	}
	if filepath.Base(p) != "local.zip" {
		t.Errorf("expected default name from url, got %s", filepath.Base(p))
	}
}

func TestFetchArchiveUnsupportedScheme(t *testing.T) {
	f := &Fetcher{}
	if _, err := f.FetchArchive(context.Background(), "ftp://example.com/x.tar.gz", t.TempDir(), ""); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestFetchArchiveCancelled(t *testing.T) {
	server := newArchiveServer(t, nil)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Fetcher{Client: server.Client()}
	if _, err := f.FetchArchive(ctx, server.URL+"/b.tar.gz", t.TempDir(), ""); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFetchPackages(t *testing.T) {
	server := newArchiveServer(t, nil)
	defer server.Close()

	f := &Fetcher{Client: server.Client()}
	dest := t.TempDir()
	jobs := []Job{
		{URL: server.URL + "/archive/refs/tags/v.01.tar.gz", Name: "macpine-01.tar.gz"},
		{URL: server.URL + "/b.tar.gz", Name: "b-1.tar.gz"},
		{URL: server.URL + "/missing.tar.gz", Name: "missing.tar.gz"},
	}

	paths, err := f.FetchPackages(context.Background(), jobs, dest, 2)
	if err == nil {
		t.Error("expected error for the missing archive")
	}
	if len(paths) != 2 {
		t.Fatalf("expected two successful downloads, got %v", paths)
	}
	if filepath.Base(paths[jobs[1].URL]) != "b-1.tar.gz" {
		t.Errorf("unexpected path for second job: %s", paths[jobs[1].URL])
	}
}

func TestFetchPackagesDuplicateJobs(t *testing.T) {
	var hits int32
	server := newArchiveServer(t, &hits)
	defer server.Close()

	f := &Fetcher{Client: server.Client()}
	dest := t.TempDir()
	url := server.URL + "/archive/refs/tags/v.01.tar.gz"
	jobs := []Job{
		{URL: url, Name: "macpine-01.tar.gz"},
		{URL: url, Name: "macpine-01.tar.gz"},
		{URL: url, Name: "macpine-01.tar.gz"},
	}

	for i := 0; i < 10; i++ {
		paths, err := f.FetchPackages(context.Background(), jobs, dest, 4)
		if err != nil {
			t.Fatalf("run %d: FetchPackages failed: %v", i, err)
		}
		if len(paths) != 1 || filepath.Base(paths[url]) != "macpine-01.tar.gz" {
			t.Fatalf("run %d: unexpected paths %v", i, paths)
		}
		if err := os.Remove(paths[url]); err != nil {
			t.Fatalf("remove cached archive: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 10 {
		t.Errorf("expected one request per run, got %d over 10 runs", got)
	}
}

func TestFetchPackagesConflictingNames(t *testing.T) {
	server := newArchiveServer(t, nil)
	defer server.Close()

	f := &Fetcher{Client: server.Client()}
	jobs := []Job{
		{URL: server.URL + "/archive/refs/tags/v.01.tar.gz", Name: "pkg.tar.gz"},
		{URL: server.URL + "/b.tar.gz", Name: "pkg.tar.gz"},
	}
	_, err := f.FetchPackages(context.Background(), jobs, t.TempDir(), 2)
	if err == nil || !strings.Contains(err.Error(), "would both be saved as pkg.tar.gz") {
		t.Fatalf("expected name conflict error, got %v", err)
	}
}
