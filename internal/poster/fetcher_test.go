package poster

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/provider"
)

var jpegBytes = []byte("\xff\xd8\xff\xe0fake-jpeg-payload\xff\xd9")

func newPosterServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func servePoster(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/jpeg")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(jpegBytes)
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be absent, stat err = %v", path, err)
	}
}

func TestFetchWithoutPosterMakesNoRequest(t *testing.T) {
	srv, hits := newPosterServer(t, servePoster)
	f := New(Config{HTTPClient: srv.Client()})
	base := filepath.Join(t.TempDir(), "Inception 2010")

	for _, poster := range []string{"", "N/A", "  ", "n/a"} {
		if got := f.Fetch(context.Background(), &provider.Record{Poster: poster}, base); got != "" {
			t.Errorf("Fetch(poster=%q) = %q, want empty", poster, got)
		}
	}
	if got := f.Fetch(context.Background(), nil, base); got != "" {
		t.Errorf("Fetch(nil) = %q, want empty", got)
	}
	if *hits != 0 {
		t.Errorf("server hits = %d, want 0", *hits)
	}
	assertNoFile(t, base+".jpg")
}

func TestFetchSavesPoster(t *testing.T) {
	srv, _ := newPosterServer(t, servePoster)
	f := New(Config{HTTPClient: srv.Client()})
	base := filepath.Join(t.TempDir(), "Inception 2010")

	got := f.Fetch(context.Background(), &provider.Record{Poster: srv.URL + "/inception.jpg"}, base)
	if got != base+".jpg" {
		t.Fatalf("Fetch() = %q, want %q", got, base+".jpg")
	}

	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read poster: %v", err)
	}
	if !bytes.Equal(data, jpegBytes) {
		t.Errorf("poster bytes = %q, want %q", data, jpegBytes)
	}
	assertNoFile(t, base+".jpg"+partSuffix)
}

func TestFetchOverwritesExistingPoster(t *testing.T) {
	srv, _ := newPosterServer(t, servePoster)
	f := New(Config{HTTPClient: srv.Client()})
	base := filepath.Join(t.TempDir(), "Show Name S02E05")

	if err := os.WriteFile(base+".jpg", []byte("stale poster with more bytes than the new one"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := f.Fetch(context.Background(), &provider.Record{Poster: srv.URL + "/p.jpg"}, base); got == "" {
		t.Fatal("Fetch() returned empty path")
	}
	data, err := os.ReadFile(base + ".jpg")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, jpegBytes) {
		t.Errorf("poster not replaced, got %q", data)
	}
}

func TestFetchBadStatusLeavesNothing(t *testing.T) {
	srv, _ := newPosterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	f := New(Config{HTTPClient: srv.Client()})
	base := filepath.Join(t.TempDir(), "Inception 2010")

	if got := f.Fetch(context.Background(), &provider.Record{Poster: srv.URL + "/missing.jpg"}, base); got != "" {
		t.Fatalf("Fetch() = %q, want empty", got)
	}
	assertNoFile(t, base+".jpg")
	assertNoFile(t, base+".jpg"+partSuffix)
}

func TestFetchKeepsExistingPosterOnFailure(t *testing.T) {
	srv, _ := newPosterServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	f := New(Config{HTTPClient: srv.Client()})
	base := filepath.Join(t.TempDir(), "Inception 2010")
	old := []byte("previous poster")
	if err := os.WriteFile(base+".jpg", old, 0o644); err != nil {
		t.Fatal(err)
	}

	if got := f.Fetch(context.Background(), &provider.Record{Poster: srv.URL + "/p.jpg"}, base); got != "" {
		t.Fatalf("Fetch() = %q, want empty", got)
	}
	data, err := os.ReadFile(base + ".jpg")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, old) {
		t.Errorf("existing poster modified: %q", data)
	}
}

func TestFetchTimeout(t *testing.T) {
	srv, _ := newPosterServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	})
	f := New(Config{Timeout: 50 * time.Millisecond, HTTPClient: srv.Client()})
	base := filepath.Join(t.TempDir(), "Slow 2001")

	start := time.Now()
	if got := f.Fetch(context.Background(), &provider.Record{Poster: srv.URL + "/slow.jpg"}, base); got != "" {
		t.Fatalf("Fetch() = %q, want empty", got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch took %v, want it bounded by the timeout", elapsed)
	}
	assertNoFile(t, base+".jpg")
	assertNoFile(t, base+".jpg"+partSuffix)
}

func TestFetchUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(servePoster))
	url := srv.URL + "/p.jpg"
	srv.Close()

	f := New(Config{Timeout: time.Second})
	base := filepath.Join(t.TempDir(), "Inception 2010")
	if got := f.Fetch(context.Background(), &provider.Record{Poster: url}, base); got != "" {
		t.Fatalf("Fetch() = %q, want empty", got)
	}
	assertNoFile(t, base+".jpg")
}
