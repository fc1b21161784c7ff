package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/log"
	"github.com/Digital-Shane/treeview"
	"github.com/rs/zerolog"
)

// Summary counts the outcomes of a run.
type Summary struct {
	Total       int
	Processed   int
	Unsupported int
	Unmatched   int
	Failed      int
	Canceled    bool
	Elapsed     time.Duration
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeProcessed:
		s.Processed++
	case OutcomeUnsupported:
		s.Unsupported++
	case OutcomeUnmatched:
		s.Unmatched++
	default:
		s.Failed++
	}
}

// EventKind identifies a runner event.
type EventKind int

const (
	// EventStarted is sent once enumeration finished; Total is known.
	EventStarted EventKind = iota
	// EventFile is sent after each file.
	EventFile
	// EventFinished is sent once with the final summary.
	EventFinished
)

// Event reports runner progress to an observer.
type Event struct {
	Kind    EventKind
	Index   int // 1-based position of the file, EventFile only
	Path    string
	Result  Result
	Err     error
	Summary Summary
}

type treeBuilderFunc func(context.Context, string, bool, ...treeview.Option[treeview.FileInfo]) (*treeview.Tree[treeview.FileInfo], error)

// Runner applies a FileProcessor to every file under a root, one file
// at a time.
type Runner struct {
	proc     FileProcessor
	logger   zerolog.Logger
	observer func(Event)
	session  *log.Session
	build    treeBuilderFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for per-run messages.
func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger.With().Str("component", "runner").Logger()
	}
}

// WithObserver registers a callback invoked synchronously for every event.
func WithObserver(fn func(Event)) RunnerOption {
	return func(r *Runner) {
		r.observer = fn
	}
}

// WithSessionLog records every file outcome in s.
func WithSessionLog(s *log.Session) RunnerOption {
	return func(r *Runner) {
		r.session = s
	}
}

// NewRunner creates a Runner around proc.
func NewRunner(proc FileProcessor, opts ...RunnerOption) *Runner {
	r := &Runner{
		proc:   proc,
		logger: zerolog.Nop(),
		build:  treeview.NewTreeFromFileSystem,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run enumerates root and processes every file found. Per-file errors and
// panics are counted as failures and never stop the run; the returned error
// is only set when root cannot be enumerated. A canceled context stops the
// run between files.
func (r *Runner) Run(ctx context.Context, root string) (Summary, error) {
	start := time.Now()
	var summary Summary

	files, err := r.Enumerate(ctx, root)
	if err != nil {
		r.logger.Error().Err(err).Str("root", root).Msg("failed to enumerate media root")
		return summary, err
	}
	summary.Total = len(files)
	r.logger.Info().Str("root", root).Int("files", len(files)).Msg("enrichment started")
	r.emit(Event{Kind: EventStarted, Summary: summary})

	for i, path := range files {
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}

		res, err := r.ProcessFile(ctx, path)
		if ctx.Err() != nil && res.Outcome != OutcomeProcessed {
			// interrupted mid-file; do not count the partial attempt
			summary.Canceled = true
			break
		}

		summary.add(res.Outcome)
		r.emit(Event{Kind: EventFile, Index: i + 1, Path: path, Result: res, Err: err, Summary: summary})
	}

	summary.Elapsed = time.Since(start)
	r.logSummary(root, summary)
	r.emit(Event{Kind: EventFinished, Summary: summary})
	return summary, nil
}

// ProcessFile runs the processor on one path with errors and panics turned
// into a failed result, and records the outcome in the session log.
func (r *Runner) ProcessFile(ctx context.Context, path string) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing %s: %v", path, p)
			res = Result{Path: path, Outcome: OutcomeFailed}
		}
		if err != nil {
			res.Outcome = OutcomeFailed
			if res.Path == "" {
				res.Path = path
			}
			r.logger.Error().Err(err).Str("path", path).Msg("error processing file")
		}
		if ctx.Err() == nil || res.Outcome == OutcomeProcessed {
			r.record(res, err)
		}
	}()

	return r.proc.Process(ctx, path)
}

// Enumerate lists every file under root in traversal order. Directories that
// cannot be read are logged and skipped. Symlinks are not followed; a link is
// listed unless it points at a directory.
func (r *Runner) Enumerate(ctx context.Context, root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("enumerate %s: not a directory", root)
	}

	tree, err := r.build(ctx, abs, false,
		treeview.WithFilterFunc(func(fi treeview.FileInfo) bool {
			if fi.IsDir() {
				return r.readableDir(fi.Path)
			}
			if fi.Mode()&os.ModeSymlink != 0 {
				target, err := os.Stat(fi.Path)
				return err != nil || !target.IsDir()
			}
			return true
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}

	var files []string
	for info, err := range tree.All(ctx) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("enumerate %s: %w", root, err)
		}
		data := info.Node.Data()
		if data.IsDir() {
			continue
		}
		files = append(files, data.Path)
	}
	return files, nil
}

// readableDir reports whether dir can be listed and its entries inspected.
func (r *Runner) readableDir(dir string) bool {
	f, err := os.Open(dir)
	if err == nil {
		var entries []os.DirEntry
		entries, err = f.ReadDir(1)
		f.Close()
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if err == nil && len(entries) > 0 {
			_, err = os.Lstat(filepath.Join(dir, entries[0].Name()))
		}
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("path", dir).Msg("skipping unreadable directory")
		return false
	}
	return true
}

func (r *Runner) emit(e Event) {
	if r.observer != nil {
		r.observer(e)
	}
}

func (r *Runner) record(res Result, err error) {
	if r.session == nil {
		return
	}
	entry := log.Entry{
		Path:    res.Path,
		Outcome: string(res.Outcome),
		Title:   res.Identity.Title,
		Season:  res.Identity.Season,
		Episode: res.Identity.Episode,
		Sidecar: res.SidecarPath,
		Poster:  res.PosterPath,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.session.Record(entry)
}

func (r *Runner) logSummary(root string, s Summary) {
	event := r.logger.Info()
	if s.Failed > 0 {
		event = r.logger.Warn()
	}
	event.
		Str("root", root).
		Int("total", s.Total).
		Int("processed", s.Processed).
		Int("unsupported", s.Unsupported).
		Int("unmatched", s.Unmatched).
		Int("failed", s.Failed).
		Bool("canceled", s.Canceled).
		Dur("elapsed", s.Elapsed).
		Msg("enrichment finished")
}
