package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/kamilpajak/testpulse/internal/logging"
)

const defaultSettle = 500 * time.Millisecond

// Watcher ingests report files as they are dropped below a root directory.
// A file is loaded once it has not changed for the settle interval, so
// reports still being written are not parsed half-way.
type Watcher struct {
	loader *Loader
	root   string
	settle time.Duration
	log    logrus.FieldLogger

	// OnResult, when set, receives the outcome of every flush.
	OnResult func(*Result, error)
}

// NewWatcher creates a Watcher for root. settle <= 0 selects the default.
func NewWatcher(loader *Loader, root string, settle time.Duration, log logrus.FieldLogger) *Watcher {
	if settle <= 0 {
		settle = defaultSettle
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Watcher{loader: loader, root: root, settle: settle, log: log}
}

// Run watches until ctx is cancelled. Files already present when Run starts
// are ingested too.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	pending := make(map[string]time.Time)
	if err := w.addTree(fw, w.root, pending); err != nil {
		return err
	}

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev, pending)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		case now := <-ticker.C:
			w.flush(ctx, now, pending)
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, pending map[string]time.Time) {
	switch {
	case ev.Has(fsnotify.Create):
		// New directories are walked so files created before the watch was
		// registered are not missed.
		if err := w.addTree(fw, ev.Name, pending); err != nil {
			w.log.WithError(err).WithField("path", ev.Name).Debug("not a directory")
		}
		if isReport(ev.Name) {
			pending[ev.Name] = time.Now()
		}
	case ev.Has(fsnotify.Write):
		if isReport(ev.Name) {
			pending[ev.Name] = time.Now()
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(pending, ev.Name)
	}
}

// addTree registers every directory below dir and queues the reports it
// already contains.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, pending map[string]time.Time) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		}
		if isReport(path) {
			pending[path] = time.Now()
		}
		return nil
	})
}

func (w *Watcher) flush(ctx context.Context, now time.Time, pending map[string]time.Time) {
	var ready []string
	for path, changed := range pending {
		if now.Sub(changed) >= w.settle {
			ready = append(ready, path)
		}
	}
	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)
	for _, p := range ready {
		delete(pending, p)
	}

	res, err := w.loader.LoadFiles(ctx, w.root, ready)
	if err != nil {
		w.log.WithError(err).Error("failed to ingest dropped reports")
	} else if res.Errors != nil {
		w.log.WithError(res.Errors).WithField("failed", res.Failed).Warn("some dropped reports were skipped")
	}
	if w.OnResult != nil {
		w.OnResult(res, err)
	}
}
