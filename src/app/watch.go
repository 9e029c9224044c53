package app

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ShaderWatcher raises a flag when any watched shader file is written or
// replaced. It watches the parent directories because editors and shader
// compilers often replace files by rename.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	changed atomic.Bool
	log     *slog.Logger
	done    chan struct{}
}

func WatchShaders(paths []string, logger *slog.Logger) (*ShaderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create shader watcher")
	}
	w := &ShaderWatcher{
		watcher: watcher,
		files:   make(map[string]bool, len(paths)),
		log:     logger,
		done:    make(chan struct{}),
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, errors.Wrapf(err, "resolve %s", p)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, errors.Wrapf(err, "watch %s", dir)
		}
	}
	go w.run()
	return w, nil
}

func (w *ShaderWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.log.Debug("shader changed", "file", event.Name, "op", event.Op.String())
				w.changed.Store(true)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("shader watcher", "err", err)
		}
	}
}

// Changed reports whether a shader changed since the previous call.
func (w *ShaderWatcher) Changed() bool {
	return w.changed.Swap(false)
}

func (w *ShaderWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return errors.Wrap(err, "close shader watcher")
}
