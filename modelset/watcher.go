package modelset

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/geoknoesis/rdf-models/notify"
	"github.com/geoknoesis/rdf-models/uri"
	"go.uber.org/zap"
)

// ExternalChange is the payload of the generic notification fired when a
// watched model's file changes on disk.
type ExternalChange struct {
	URI uri.URI
	// Unloaded is false when the model had local modifications and was kept.
	Unloaded bool
}

// Watcher unloads file backed models whose files change on disk, so that the
// next access loads the new content. Models with unsaved modifications are
// kept; a notification reports the conflict.
type Watcher struct {
	set     *ModelSet
	fsw     *fsnotify.Watcher
	logger  *zap.Logger
	mu      sync.Mutex
	files   map[string]uri.URI
	dirRefs map[string]int
}

// NewWatcher creates a watcher for set. Run must be called to process events.
func NewWatcher(set *ModelSet) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "modelset: create file watcher")
	}
	return &Watcher{
		set:     set,
		fsw:     fsw,
		logger:  set.logger,
		files:   map[string]uri.URI{},
		dirRefs: map[string]int{},
	}, nil
}

// Watch starts watching m's file. Models that are not file backed are
// rejected.
func (w *Watcher) Watch(m *Model) error {
	path, err := m.URI().FilePath()
	if err != nil {
		return errors.Wrapf(err, "modelset: watch %s", m)
	}
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		return nil
	}
	if w.dirRefs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return errors.Wrapf(err, "modelset: watch %s", dir)
		}
	}
	w.dirRefs[dir]++
	w.files[path] = m.URI()
	w.logger.Debug("watching model file", zap.String("path", path))
	return nil
}

// Unwatch stops watching m's file.
func (w *Watcher) Unwatch(m *Model) error {
	path, err := m.URI().FilePath()
	if err != nil {
		return nil
	}
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; !ok {
		return nil
	}
	delete(w.files, path)
	w.dirRefs[dir]--
	if w.dirRefs[dir] > 0 {
		return nil
	}
	delete(w.dirRefs, dir)
	return w.fsw.Remove(dir)
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.handle(ctx, filepath.Clean(event.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	w.mu.Lock()
	u, ok := w.files[path]
	w.mu.Unlock()
	if !ok {
		return
	}
	m := w.set.lookup(u)
	if m == nil || !m.Loaded() {
		return
	}
	// Waits for a save in progress.
	if m.savedContent(ctx, w.set.Converter()) {
		w.logger.Debug("ignoring own save", zap.Stringer("model", m))
		return
	}
	change := ExternalChange{URI: u}
	if m.Modified() {
		w.logger.Warn("model changed on disk, keeping local modifications", zap.Stringer("model", m))
	} else if err := m.Unload(ctx); err != nil {
		w.logger.Warn("unload changed model", zap.Stringer("model", m), zap.Error(err))
		return
	} else {
		change.Unloaded = true
		w.logger.Info("unloaded model changed on disk", zap.Stringer("model", m))
	}
	w.set.tracker.Fire(notify.Notification{Kind: notify.Generic, Subject: u.IRI(), Payload: change})
}

// Close stops the watcher and makes Run return.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
