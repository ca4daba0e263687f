// Package watch monitors directories for new or changed workbooks and runs a
// handler, typically a recipe, on each one.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is processed.
const DefaultDebounce = 500 * time.Millisecond

// Config selects what is watched.
type Config struct {
	Directories []string
	Recursive   bool
	// Pattern is an optional glob matched against the file's base name.
	Pattern  string
	Debounce time.Duration
	// Exclude lists directories whose files are never processed, such as the
	// output directory the handler writes to.
	Exclude []string
}

// Event records one file the watcher acted on.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"` // processed, error
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Status summarises a running watcher.
type Status struct {
	Running     bool      `json:"running"`
	Directories []string  `json:"directories"`
	EventCount  int       `json:"event_count"`
	Errors      int       `json:"errors"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// Handler processes one settled file and returns the path it wrote, if any.
type Handler func(ctx context.Context, path string) (string, error)

// Watcher debounces file events and hands workbooks to its Handler.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	events   []Event
	debounce map[string]*time.Timer
	started  time.Time
	wg       sync.WaitGroup
}

// New creates a Watcher. Call Start to begin watching.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	if len(cfg.Directories) == 0 {
		return nil, fmt.Errorf("no directories to watch")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	exclude := make([]string, 0, len(cfg.Exclude))
	for _, dir := range cfg.Exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			exclude = append(exclude, abs)
		}
	}
	cfg.Exclude = exclude
	return &Watcher{
		cfg:      cfg,
		handler:  handler,
		logger:   logger.With("component", "watch"),
		fsw:      fsw,
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start watches until ctx is cancelled. Files still waiting out their debounce
// delay are dropped; files already being processed are finished first.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.fsw.Close()

	for _, dir := range w.cfg.Directories {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("could not resolve %s: %w", dir, err)
		}
		if w.cfg.Recursive {
			err = w.addRecursive(abs)
		} else {
			err = w.fsw.Add(abs)
		}
		if err != nil {
			return fmt.Errorf("could not watch %s: %w", abs, err)
		}
	}

	w.mu.Lock()
	w.started = time.Now()
	w.mu.Unlock()
	w.logger.Info("watching", "directories", w.cfg.Directories, "recursive", w.cfg.Recursive)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher")
			w.mu.Lock()
			for path, timer := range w.debounce {
				timer.Stop()
				delete(w.debounce, path)
			}
			w.mu.Unlock()
			w.wg.Wait()
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && (strings.HasPrefix(d.Name(), ".") || w.excluded(path)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	if !w.Matches(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		if _, pending := w.debounce[path]; !pending {
			w.mu.Unlock()
			return
		}
		delete(w.debounce, path)
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		w.process(ctx, path, event.Op.String())
	})
}

// Matches reports whether path is a workbook this watcher should process.
func (w *Watcher) Matches(path string) bool {
	if strings.ToLower(filepath.Ext(path)) != ".xlsx" {
		return false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".~") {
		return false
	}
	if w.cfg.Pattern != "" {
		if ok, _ := filepath.Match(w.cfg.Pattern, base); !ok {
			return false
		}
	}
	return !w.excluded(path)
}

func (w *Watcher) excluded(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.cfg.Exclude {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) process(ctx context.Context, path, operation string) {
	evt := Event{Time: time.Now(), Path: path, Operation: operation, Status: "processed"}
	if w.handler != nil {
		out, err := w.handler(ctx, path)
		if err != nil {
			evt.Status = "error"
			evt.Error = err.Error()
			w.logger.Error("processing failed", "path", path, "error", err)
		} else {
			evt.Output = out
			w.logger.Info("processed", "path", path, "output", out)
		}
	}

	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

// Status returns a snapshot of the watcher.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	errs := 0
	for _, e := range w.events {
		if e.Status == "error" {
			errs++
		}
	}
	return Status{
		Running:     !w.started.IsZero(),
		Directories: w.cfg.Directories,
		EventCount:  len(w.events),
		Errors:      errs,
		StartedAt:   w.started,
	}
}

// Events returns a copy of the recorded events.
func (w *Watcher) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}
