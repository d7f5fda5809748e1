package schema

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot reloads the registry when schema files change on disk.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewWatcher starts watching the registry's schema directory. A missing
// directory is not an error; the watcher simply stays idle.
func NewWatcher(registry *Registry, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		registry: registry,
		watcher:  fsWatcher,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	if err := fsWatcher.Add(registry.Dir()); err != nil {
		logger.Info("Schema hot reloading disabled",
			zap.String("dir", registry.Dir()),
			zap.Error(err),
		)
	} else {
		logger.Info("Schema hot reloading enabled", zap.String("dir", registry.Dir()))
	}

	go w.watchLoop()
	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Info("Schema change detected", zap.String("file", event.Name))
			if err := w.registry.Reload(); err != nil {
				w.logger.Error("Schema reload failed", zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Schema watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}
