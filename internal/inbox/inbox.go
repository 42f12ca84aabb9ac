// Package inbox turns trajectory files dropped into a directory into new
// plans.
package inbox

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

	"github.com/fpw-project/fpw/internal/types"
)

// DefaultDebounce is how long a file must stay quiet before it is uploaded.
const DefaultDebounce = 500 * time.Millisecond

// Uploader creates a plan for a trajectory. It is satisfied by
// *planops.Service.
type Uploader interface {
	Upload(ctx context.Context, name, trajectoryRef, folderID string) (*types.FlightPlan, error)
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	FolderID string // folder for new plans; empty for none
	Uploader Uploader
	Debounce time.Duration
	Log      *slog.Logger

	// OnUpload, when set, is called after every upload attempt.
	OnUpload func(file string, plan *types.FlightPlan, err error)
}

// Watcher uploads each new .csv file in a directory once.
type Watcher struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	pending  map[string]*debouncer
	uploaded map[string]bool
	wg       sync.WaitGroup
}

// New validates cfg and returns a Watcher. Nothing is watched until Run.
func New(cfg Config) (*Watcher, error) {
	if cfg.Uploader == nil {
		return nil, fmt.Errorf("inbox: uploader is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox: %s is not a directory", cfg.Dir)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		log:      log,
		pending:  make(map[string]*debouncer),
		uploaded: make(map[string]bool),
	}, nil
}

// Run watches the directory until ctx is cancelled. Pending uploads are
// cancelled on exit and running ones waited for. Files already present when
// Run starts are not uploaded.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}
	w.log.Info("watching inbox", "dir", w.cfg.Dir)

	defer w.drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("inbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !isTrajectory(name) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if d, ok := w.pending[name]; ok {
			d.Cancel()
			delete(w.pending, name)
		}
		delete(w.uploaded, name)
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if w.uploaded[name] {
		return
	}
	d, ok := w.pending[name]
	if !ok {
		d = newDebouncer(w.cfg.Debounce, &w.wg, func() { w.upload(ctx, name) })
		w.pending[name] = d
	}
	d.Trigger()
}

func (w *Watcher) upload(ctx context.Context, file string) {
	w.mu.Lock()
	delete(w.pending, file)
	if w.uploaded[file] {
		w.mu.Unlock()
		return
	}
	w.uploaded[file] = true
	w.mu.Unlock()

	name := strings.TrimSuffix(file, filepath.Ext(file))
	plan, err := w.cfg.Uploader.Upload(ctx, name, file, w.cfg.FolderID)
	if err != nil {
		w.log.Error("inbox upload failed", "file", file, "error", err)
		w.mu.Lock()
		delete(w.uploaded, file)
		w.mu.Unlock()
	} else {
		w.log.Info("inbox upload", "file", file, "plan_id", plan.ID)
	}
	if w.cfg.OnUpload != nil {
		w.cfg.OnUpload(file, plan, err)
	}
}

func (w *Watcher) drain() {
	w.mu.Lock()
	for name, d := range w.pending {
		d.Cancel()
		delete(w.pending, name)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func isTrajectory(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".csv")
}
