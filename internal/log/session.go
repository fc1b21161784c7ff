package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry outcomes. They mirror the processor outcomes without importing them.
const (
	OutcomeProcessed   = "processed"
	OutcomeUnsupported = "unsupported"
	OutcomeUnmatched   = "unmatched"
	OutcomeFailed      = "failed"
)

// ErrNoSessions is returned when no session log can be found.
var ErrNoSessions = errors.New("no sessions found")

// Entry records what happened to one media file during a run.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Outcome   string    `json:"outcome"`
	Title     string    `json:"title,omitempty"`
	Season    int       `json:"season,omitempty"`
	Episode   int       `json:"episode,omitempty"`
	Sidecar   string    `json:"sidecar,omitempty"`
	Poster    string    `json:"poster,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Artifacts lists the files this entry wrote.
func (e Entry) Artifacts() []string {
	var out []string
	if e.Sidecar != "" {
		out = append(out, e.Sidecar)
	}
	if e.Poster != "" {
		out = append(out, e.Poster)
	}
	return out
}

type SessionMetadata struct {
	CommandArgs []string  `json:"command_args"`
	WorkingDir  string    `json:"working_dir"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	TotalFiles  int       `json:"total_files"`
	Processed   int       `json:"processed"`
	Unsupported int       `json:"unsupported"`
	Unmatched   int       `json:"unmatched"`
	Failed      int       `json:"failed"`
}

type LogSession struct {
	Metadata SessionMetadata `json:"metadata"`
	Entries  []Entry         `json:"entries"`
}

// Session collects entries for one run and saves them as JSON when ended.
// A nil *Session ignores every call, which is how disabled logging is
// represented.
type Session struct {
	mu   sync.Mutex
	dir  string
	data LogSession
}

// StartSession begins a session that will be saved under dir.
func StartSession(dir, command string, args []string) (*Session, error) {
	if dir == "" {
		return nil, fmt.Errorf("session log directory is required")
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	return &Session{
		dir: dir,
		data: LogSession{
			Metadata: SessionMetadata{
				CommandArgs: append([]string{command}, args...),
				WorkingDir:  wd,
				Timestamp:   time.Now(),
				SessionID:   uuid.NewString(),
			},
			Entries: []Entry{},
		},
	}, nil
}

// ID returns the session identifier, or "" for a nil session.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.data.Metadata.SessionID
}

// Record appends an entry to the session.
func (s *Session) Record(e Entry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = fmt.Sprintf("%s_%d", s.data.Metadata.SessionID, len(s.data.Entries))
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.data.Entries = append(s.data.Entries, e)
}

// Snapshot returns a copy of the session collected so far with its counters
// updated.
func (s *Session) Snapshot() LogSession {
	if s == nil {
		return LogSession{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStats()

	out := s.data
	out.Metadata.CommandArgs = append([]string(nil), s.data.Metadata.CommandArgs...)
	out.Entries = append([]Entry(nil), s.data.Entries...)
	return out
}

// End writes the session to disk and returns the file path. Sessions that
// wrote nothing are not saved.
func (s *Session) End() (string, error) {
	if s == nil {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateStats()
	if !s.hasArtifacts() {
		return "", nil
	}
	return WriteSession(s.dir, &s.data)
}

func (s *Session) hasArtifacts() bool {
	for _, e := range s.data.Entries {
		if len(e.Artifacts()) > 0 {
			return true
		}
	}
	return false
}

// updateStats updates the session statistics; caller holds mu.
func (s *Session) updateStats() {
	meta := &s.data.Metadata
	meta.TotalFiles = len(s.data.Entries)
	meta.Processed, meta.Unsupported, meta.Unmatched, meta.Failed = 0, 0, 0, 0

	for _, e := range s.data.Entries {
		switch e.Outcome {
		case OutcomeProcessed:
			meta.Processed++
		case OutcomeUnsupported:
			meta.Unsupported++
		case OutcomeUnmatched:
			meta.Unmatched++
		case OutcomeFailed:
			meta.Failed++
		}
	}
}

func sessionFileName(t time.Time) string {
	return fmt.Sprintf("%s.%03d.json", t.Format("2006-01-02_150405"), t.Nanosecond()/1000000)
}

// WriteSession saves session under dir, creating it when needed.
func WriteSession(dir string, session *LogSession) (string, error) {
	if session == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	path := filepath.Join(dir, sessionFileName(session.Metadata.Timestamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write log file: %w", err)
	}
	return path, nil
}

func ReadSession(logPath string) (*LogSession, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var session LogSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// sessionFiles lists session logs in dir, newest first.
func sessionFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

type SessionSummary struct {
	Session      *LogSession
	FilePath     string
	RelativeTime string
}

// ListSessions reads up to limit sessions from dir, newest first. A limit of
// zero or less reads all of them. Corrupted files are skipped.
func ListSessions(dir string, limit int) ([]SessionSummary, error) {
	files, err := sessionFiles(dir)
	if err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(files))
	for _, file := range files {
		if limit > 0 && len(summaries) >= limit {
			break
		}
		session, err := ReadSession(file)
		if err != nil {
			continue
		}
		summaries = append(summaries, SessionSummary{
			Session:      session,
			FilePath:     file,
			RelativeTime: FormatRelativeTime(session.Metadata.Timestamp),
		})
	}
	return summaries, nil
}

// FindSession returns the session whose ID starts with id, or the newest
// session when id is empty or "latest".
func FindSession(dir, id string) (*LogSession, string, error) {
	summaries, err := ListSessions(dir, 0)
	if err != nil {
		return nil, "", err
	}
	if len(summaries) == 0 {
		return nil, "", ErrNoSessions
	}

	id = strings.TrimSpace(id)
	if id == "" || id == "latest" {
		return summaries[0].Session, summaries[0].FilePath, nil
	}

	var match *SessionSummary
	for i := range summaries {
		if strings.HasPrefix(summaries[i].Session.Metadata.SessionID, id) {
			if match != nil {
				return nil, "", fmt.Errorf("session id %q is ambiguous", id)
			}
			match = &summaries[i]
		}
	}
	if match == nil {
		return nil, "", fmt.Errorf("session %q: %w", id, ErrNoSessions)
	}
	return match.Session, match.FilePath, nil
}

// CleanupOldLogs removes session logs older than retentionDays. A
// non-positive retention keeps everything.
func CleanupOldLogs(dir string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	files, err := sessionFiles(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	var errs []error
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove old log file %s: %w", file, err))
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func FormatRelativeTime(t time.Time) string {
	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		return fmt.Sprintf("%d minute%s ago", mins, plural(mins))
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		return fmt.Sprintf("%d hour%s ago", hours, plural(hours))
	case duration < 7*24*time.Hour:
		days := int(duration.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", days, plural(days))
	default:
		return t.Format("Jan 2, 2006")
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
