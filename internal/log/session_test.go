package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSessionRecordsEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := StartSession(dir, "enrich", []string{"/media"})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if s.ID() == "" {
		t.Fatal("session id should be set")
	}

	s.Record(Entry{Path: "/media/Inception 2010.mkv", Outcome: OutcomeProcessed, Sidecar: "/media/Inception 2010.txt", Poster: "/media/Inception 2010.jpg"})
	s.Record(Entry{Path: "/media/notes.txt", Outcome: OutcomeUnsupported})
	s.Record(Entry{Path: "/media/Unknown 1999.mkv", Outcome: OutcomeUnmatched})
	s.Record(Entry{Path: "/media/Broken 2001.mkv", Outcome: OutcomeFailed, Error: "disk full"})

	snap := s.Snapshot()
	want := SessionMetadata{
		CommandArgs: []string{"enrich", "/media"},
		WorkingDir:  snap.Metadata.WorkingDir,
		Timestamp:   snap.Metadata.Timestamp,
		SessionID:   s.ID(),
		TotalFiles:  4,
		Processed:   1,
		Unsupported: 1,
		Unmatched:   1,
		Failed:      1,
	}
	if diff := cmp.Diff(want, snap.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	for i, e := range snap.Entries {
		if !strings.HasPrefix(e.ID, s.ID()+"_") {
			t.Errorf("entry %d id = %q, want session prefix", i, e.ID)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
	}
}

func TestSessionEndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := StartSession(dir, "enrich", nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Record(Entry{Path: "/m/A 2000.mkv", Outcome: OutcomeProcessed, Title: "A", Sidecar: "/m/A 2000.txt"})

	path, err := s.End()
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("session saved to %s, want it under %s", path, dir)
	}

	got, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession() error = %v", err)
	}
	want := s.Snapshot()
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionEndSkipsRunsWithoutArtifacts(t *testing.T) {
	dir := t.TempDir()
	s, err := StartSession(dir, "enrich", nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Record(Entry{Path: "/m/notes.txt", Outcome: OutcomeUnsupported})

	path, err := s.End()
	if err != nil || path != "" {
		t.Fatalf("End() = (%q, %v), want no file", path, err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(files) != 0 {
		t.Errorf("unexpected session files: %v", files)
	}
}

func TestNilSessionIsNoop(t *testing.T) {
	var s *Session
	s.Record(Entry{Path: "x"})
	if s.ID() != "" {
		t.Error("nil session should have empty id")
	}
	if path, err := s.End(); path != "" || err != nil {
		t.Errorf("End() = (%q, %v), want empty", path, err)
	}
	if snap := s.Snapshot(); len(snap.Entries) != 0 {
		t.Errorf("nil snapshot has entries: %+v", snap)
	}
}

func TestStartSessionRequiresDir(t *testing.T) {
	if _, err := StartSession("", "enrich", nil); err == nil {
		t.Fatal("StartSession(\"\") error = nil")
	}
}

func writeTestSession(t *testing.T, dir, id string, ts time.Time) string {
	t.Helper()
	path, err := WriteSession(dir, &LogSession{
		Metadata: SessionMetadata{SessionID: id, Timestamp: ts, CommandArgs: []string{"enrich"}},
		Entries:  []Entry{{ID: id + "_0", Path: "/m/A.mkv", Outcome: OutcomeProcessed, Sidecar: "/m/A.txt"}},
	})
	if err != nil {
		t.Fatalf("WriteSession() error = %v", err)
	}
	return path
}

func TestListAndFindSessions(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeTestSession(t, dir, "aaaa-1111", now.Add(-2*time.Hour))
	newest := writeTestSession(t, dir, "bbbb-2222", now.Add(-time.Minute))
	writeTestSession(t, dir, "abcd-3333", now.Add(-48*time.Hour))
	if err := os.WriteFile(filepath.Join(dir, "9999-corrupt.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	summaries, err := ListSessions(dir, 0)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.Session.Metadata.SessionID)
	}
	if diff := cmp.Diff([]string{"bbbb-2222", "aaaa-1111", "abcd-3333"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if summaries[0].RelativeTime != "1 minute ago" {
		t.Errorf("RelativeTime = %q, want 1 minute ago", summaries[0].RelativeTime)
	}

	limited, err := ListSessions(dir, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("ListSessions(limit 1) = %d sessions, err %v", len(limited), err)
	}

	latest, path, err := FindSession(dir, "")
	if err != nil || latest.Metadata.SessionID != "bbbb-2222" || path != newest {
		t.Errorf("FindSession(latest) = %v, %q, %v", latest, path, err)
	}
	byPrefix, _, err := FindSession(dir, "abcd")
	if err != nil || byPrefix.Metadata.SessionID != "abcd-3333" {
		t.Errorf("FindSession(abcd) = %v, %v", byPrefix, err)
	}
	if _, _, err := FindSession(dir, "a"); err == nil {
		t.Error("ambiguous prefix should fail")
	}
	if _, _, err := FindSession(dir, "zzzz"); !errors.Is(err, ErrNoSessions) {
		t.Errorf("FindSession(zzzz) error = %v, want ErrNoSessions", err)
	}
	if _, _, err := FindSession(filepath.Join(dir, "missing"), ""); !errors.Is(err, ErrNoSessions) {
		t.Errorf("FindSession(missing dir) error = %v, want ErrNoSessions", err)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := writeTestSession(t, dir, "old", time.Now().Add(-100*24*time.Hour))
	fresh := writeTestSession(t, dir, "fresh", time.Now())

	past := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := CleanupOldLogs(dir, 30)
	if err != nil {
		t.Fatalf("CleanupOldLogs() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old session should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh session should remain: %v", err)
	}

	if n, err := CleanupOldLogs(dir, 0); n != 0 || err != nil {
		t.Errorf("CleanupOldLogs(0) = (%d, %v), want no-op", n, err)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t    time.Time
		want string
	}{
		{now, "just now"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-1 * time.Hour), "1 hour ago"},
		{now.Add(-3 * 24 * time.Hour), "3 days ago"},
	}
	for _, tt := range tests {
		if got := FormatRelativeTime(tt.t); got != tt.want {
			t.Errorf("FormatRelativeTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
	old := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := FormatRelativeTime(old); got != "Jan 2, 2020" {
		t.Errorf("FormatRelativeTime(old) = %q", got)
	}
}
