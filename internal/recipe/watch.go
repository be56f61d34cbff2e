package recipe

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-runs recipes when a file they read changes. Runs are
// sequential; events arriving during a run are collected and handled after it.
type Watcher struct {
	// Paths are recipe files.
	Paths []string
	// Debounce groups bursts of events (editors often write twice).
	Debounce time.Duration
	Log      *zap.Logger
	// Run is called with a recipe path for every triggered run. Its error is
	// logged and watching continues.
	Run func(ctx context.Context, path string) error
}

// dependencies maps every watched file to the recipes that read it. A recipe
// that fails to load is still watched through its own file.
func (w *Watcher) dependencies() map[string][]string {
	deps := map[string][]string{}
	for _, p := range w.Paths {
		files := []string{p}
		if r, err := Load(p); err == nil {
			files = r.Files()
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				abs = filepath.Clean(f)
			}
			deps[abs] = append(deps[abs], p)
		}
	}
	return deps
}

// Watch blocks until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.Run == nil {
		return fmt.Errorf("watch: no run function")
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()

	dirs := map[string]bool{}
	deps := map[string][]string{}
	refresh := func() error {
		deps = w.dependencies()
		// directories, not files: editors replace files by rename
		for f := range deps {
			dir := filepath.Dir(f)
			if dirs[dir] {
				continue
			}
			if err := fsw.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			dirs[dir] = true
			log.Debug("watching directory", zap.String("dir", dir))
		}
		return nil
	}
	if err := refresh(); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			recipes := deps[abs]
			if len(recipes) == 0 {
				continue
			}
			log.Debug("change detected", zap.String("file", abs), zap.String("op", ev.Op.String()))
			for _, r := range recipes {
				pending[r] = true
			}
			timer.Reset(debounce)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			for _, p := range paths {
				if ctx.Err() != nil {
					return nil
				}
				if err := w.Run(ctx, p); err != nil {
					log.Error("run failed", zap.String("recipe", p), zap.Error(err))
				}
			}
			// inputs may have moved
			if err := refresh(); err != nil {
				log.Warn("refresh watch list", zap.Error(err))
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		}
	}
}
