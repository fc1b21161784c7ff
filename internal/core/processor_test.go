package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Digital-Shane/media-sidecar/internal/media"
	"github.com/Digital-Shane/media-sidecar/internal/provider"
	"github.com/Digital-Shane/media-sidecar/internal/sidecar"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type titleCall struct {
	Title    string
	IsSeries bool
}

type episodeCall struct {
	SeriesID        string
	Season, Episode int
}

// fakeLookup serves canned records keyed by title and series id.
type fakeLookup struct {
	titles   map[titleCall]*provider.Record
	episodes map[episodeCall]*provider.Record

	titleCalls   []titleCall
	episodeCalls []episodeCall
}

func (f *fakeLookup) LookupTitle(_ context.Context, title string, isSeries bool) (*provider.Record, bool) {
	call := titleCall{Title: title, IsSeries: isSeries}
	f.titleCalls = append(f.titleCalls, call)
	rec, ok := f.titles[call]
	return rec, ok
}

func (f *fakeLookup) LookupEpisode(_ context.Context, seriesID string, season, episode int) (*provider.Record, bool) {
	call := episodeCall{SeriesID: seriesID, Season: season, Episode: episode}
	f.episodeCalls = append(f.episodeCalls, call)
	rec, ok := f.episodes[call]
	return rec, ok
}

// fakePosters writes a placeholder poster unless fail is set.
type fakePosters struct {
	fail  bool
	calls int
}

func (f *fakePosters) Fetch(_ context.Context, rec *provider.Record, base string) string {
	f.calls++
	if f.fail || rec.Poster == "" || rec.Poster == "N/A" {
		return ""
	}
	path := media.PosterPath(base)
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		return ""
	}
	return path
}

type failingWriter struct{ err error }

func (w failingWriter) Write(*provider.Record, string, string) (string, error) {
	return "", w.err
}

func inceptionRecord() *provider.Record {
	return &provider.Record{
		Title:     "Inception",
		Year:      "2010",
		ImdbID:    "tt1375666",
		Type:      provider.MediaTypeMovie,
		Poster:    "http://img.test/p.jpg",
		Genres:    []string{"Action", "Sci-Fi"},
		Directors: []string{"Christopher Nolan"},
	}
}

func showLookup() *fakeLookup {
	return &fakeLookup{
		titles: map[titleCall]*provider.Record{
			{Title: "Show Name", IsSeries: true}: {Title: "Show Name", ImdbID: "tt0000111", Type: provider.MediaTypeSeries},
		},
		episodes: map[episodeCall]*provider.Record{
			{SeriesID: "tt0000111", Season: 2, Episode: 5}: {
				Title:    "The Fifth",
				ImdbID:   "tt0000225",
				SeriesID: "tt0000111",
				Type:     provider.MediaTypeEpisode,
				Poster:   "N/A",
			},
		},
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("os.MkdirAll(%s) error = %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("os.WriteFile(%s) error = %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("os.ReadDir(%s) error = %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProcessMovie(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Inception 2010.mkv")
	touch(t, path)

	lookup := &fakeLookup{titles: map[titleCall]*provider.Record{
		{Title: "Inception"}: inceptionRecord(),
	}}
	proc := NewProcessor(lookup, &fakePosters{}, sidecar.Writer{}, zerolog.Nop())

	res, err := proc.Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Outcome != OutcomeProcessed {
		t.Fatalf("Process() outcome = %v, want %v", res.Outcome, OutcomeProcessed)
	}

	base := filepath.Join(dir, "Inception 2010")
	wantRes := Result{
		Path:        path,
		Outcome:     OutcomeProcessed,
		Identity:    media.Identity{Title: "Inception"},
		Record:      inceptionRecord(),
		SidecarPath: base + ".txt",
		PosterPath:  base + ".jpg",
	}
	if diff := cmp.Diff(wantRes, res); diff != "" {
		t.Errorf("Process() result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]titleCall{{Title: "Inception"}}, lookup.titleCalls); diff != "" {
		t.Errorf("title lookups mismatch (-want +got):\n%s", diff)
	}
	if len(lookup.episodeCalls) != 0 {
		t.Errorf("episode lookups = %v, want none", lookup.episodeCalls)
	}

	want := string(sidecar.Encode(inceptionRecord(), base+".jpg"))
	if diff := cmp.Diff(want, readFile(t, base+".txt")); diff != "" {
		t.Errorf("sidecar mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessEpisode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Show.Name.S02E05.1080p.mkv")
	touch(t, path)

	lookup := showLookup()
	proc := NewProcessor(lookup, &fakePosters{}, sidecar.Writer{}, zerolog.Nop())

	res, err := proc.Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Outcome != OutcomeProcessed {
		t.Fatalf("Process() outcome = %v, want %v", res.Outcome, OutcomeProcessed)
	}
	if diff := cmp.Diff(media.Identity{Title: "Show Name", Season: 2, Episode: 5}, res.Identity); diff != "" {
		t.Errorf("identity mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]titleCall{{Title: "Show Name", IsSeries: true}}, lookup.titleCalls); diff != "" {
		t.Errorf("title lookups mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]episodeCall{{SeriesID: "tt0000111", Season: 2, Episode: 5}}, lookup.episodeCalls); diff != "" {
		t.Errorf("episode lookups mismatch (-want +got):\n%s", diff)
	}
	if res.PosterPath != "" {
		t.Errorf("PosterPath = %q, want empty for N/A poster", res.PosterPath)
	}

	got := readFile(t, res.SidecarPath)
	for _, line := range []string{"isEpisode : true\n", "isEpisodic : true\n", "episodeId : tt0000225\n", "image : N/A\n"} {
		if !containsLine(got, line) {
			t.Errorf("sidecar missing %q:\n%s", line, got)
		}
	}
}

func containsLine(body, line string) bool {
	return strings.Contains("\n"+body, "\n"+line)
}

func TestProcessUnsupportedMakesNoCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "randomfile.txt")
	touch(t, path)

	lookup := &fakeLookup{}
	posters := &fakePosters{}
	proc := NewProcessor(lookup, posters, sidecar.Writer{}, zerolog.Nop())

	res, err := proc.Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Outcome != OutcomeUnsupported {
		t.Errorf("Process() outcome = %v, want %v", res.Outcome, OutcomeUnsupported)
	}
	if len(lookup.titleCalls)+len(lookup.episodeCalls) != 0 || posters.calls != 0 {
		t.Errorf("unexpected calls: titles=%v episodes=%v posters=%d", lookup.titleCalls, lookup.episodeCalls, posters.calls)
	}
	if diff := cmp.Diff([]string{"randomfile.txt"}, dirNames(t, dir)); diff != "" {
		t.Errorf("directory contents mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessUnmatched(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		lookup *fakeLookup
	}{
		{name: "MovieMiss", file: "Unknown Film 1999.mkv", lookup: &fakeLookup{}},
		{name: "SeriesMiss", file: "Show.Name.S02E05.mkv", lookup: &fakeLookup{}},
		{
			name:   "EpisodeMiss",
			file:   "Show.Name.S09E09.mkv",
			lookup: showLookup(),
		},
		{
			name: "SeriesWithoutID",
			file: "Show.Name.S02E05.mkv",
			lookup: &fakeLookup{titles: map[titleCall]*provider.Record{
				{Title: "Show Name", IsSeries: true}: {Title: "Show Name"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, tt.file)
			touch(t, path)
			posters := &fakePosters{}
			proc := NewProcessor(tt.lookup, posters, sidecar.Writer{}, zerolog.Nop())

			res, err := proc.Process(context.Background(), path)
			if err != nil {
				t.Fatalf("Process() error = %v, want nil", err)
			}
			if res.Outcome != OutcomeUnmatched {
				t.Errorf("Process() outcome = %v, want %v", res.Outcome, OutcomeUnmatched)
			}
			if posters.calls != 0 {
				t.Errorf("poster fetches = %d, want 0", posters.calls)
			}
			if diff := cmp.Diff([]string{tt.file}, dirNames(t, dir)); diff != "" {
				t.Errorf("directory contents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcessSeriesWithoutIDSkipsEpisodeLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Show.Name.S02E05.mkv")
	touch(t, path)

	lookup := &fakeLookup{titles: map[titleCall]*provider.Record{
		{Title: "Show Name", IsSeries: true}: {Title: "Show Name"},
	}}
	proc := NewProcessor(lookup, &fakePosters{}, sidecar.Writer{}, zerolog.Nop())
	if _, err := proc.Process(context.Background(), path); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(lookup.episodeCalls) != 0 {
		t.Errorf("episode lookups = %v, want none", lookup.episodeCalls)
	}
}

func TestProcessPosterFailureStillWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Inception 2010.mkv")
	touch(t, path)

	lookup := &fakeLookup{titles: map[titleCall]*provider.Record{
		{Title: "Inception"}: inceptionRecord(),
	}}
	proc := NewProcessor(lookup, &fakePosters{fail: true}, sidecar.Writer{}, zerolog.Nop())

	res, err := proc.Process(context.Background(), path)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Outcome != OutcomeProcessed || res.PosterPath != "" {
		t.Fatalf("Process() = %+v, want processed without poster", res)
	}
	if got := readFile(t, res.SidecarPath); !containsLine(got, "image : N/A\n") {
		t.Errorf("sidecar missing image sentinel:\n%s", got)
	}
}

func TestProcessWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Inception 2010.mkv")
	touch(t, path)

	lookup := &fakeLookup{titles: map[titleCall]*provider.Record{
		{Title: "Inception"}: inceptionRecord(),
	}}
	writeErr := errors.New("disk full")
	proc := NewProcessor(lookup, &fakePosters{}, failingWriter{err: writeErr}, zerolog.Nop())

	res, err := proc.Process(context.Background(), path)
	if !errors.Is(err, writeErr) {
		t.Fatalf("Process() error = %v, want %v", err, writeErr)
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("Process() outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
	if res.SidecarPath != "" {
		t.Errorf("SidecarPath = %q, want empty", res.SidecarPath)
	}
}
