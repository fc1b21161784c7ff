package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/media"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 1500 * time.Millisecond

// Handler is called once per settled media file. Calls never overlap.
type Handler func(ctx context.Context, path string)

// Config configures a Watcher.
type Config struct {
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watcher reports media files created in or moved into a directory tree.
type Watcher struct {
	root     string
	handle   Handler
	debounce time.Duration
	logger   zerolog.Logger

	fw      *fsnotify.Watcher
	mu      sync.Mutex
	watched map[string]struct{}
	timers  map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

// New creates a Watcher and registers every directory under root. Files
// created after New returns are reported once Run is called.
func New(root string, handle Handler, cfg Config) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		root:     abs,
		handle:   handle,
		debounce: debounce,
		logger:   cfg.Logger.With().Str("component", "watch").Logger(),
		fw:       fw,
		watched:  make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string, 256),
		done:     make(chan struct{}),
	}
	if err := w.addRecursive(abs, false); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run handles events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.processLoop(ctx)
	}()

	w.logger.Info().Str("root", w.root).Int("dirs", w.watchCount()).Msg("watching for new media")
	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				<-done
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				<-done
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// processLoop hands settled paths to the handler one at a time.
func (w *Watcher) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				// moved away or replaced before it settled
				continue
			}
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if skipName(filepath.Base(event.Name)) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name, true); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	if media.IsVideo(event.Name) {
		w.schedule(event.Name)
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.timers[path]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
	w.timers[path] = timer
}

// addRecursive watches dir and its subdirectories. When scan is set, media
// files already inside are scheduled too, which covers directories moved into
// the tree.
func (w *Watcher) addRecursive(dir string, scan bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil // skip inaccessible entries
		}
		if d.IsDir() {
			if path != dir && skipName(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.fw.Add(path); err != nil {
				if path == dir {
					return fmt.Errorf("watch %s: %w", dir, err)
				}
				w.logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
				return nil
			}
			w.mu.Lock()
			w.watched[path] = struct{}{}
			w.mu.Unlock()
			return nil
		}
		if scan && d.Type().IsRegular() && !skipName(d.Name()) && media.IsVideo(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) watchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	close(w.done)

	if err := w.fw.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("failed to close watcher")
	}
}

// skipName reports hidden and in-progress files.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part")
}
