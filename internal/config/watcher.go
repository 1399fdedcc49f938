package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/risk"
)

// Watcher reloads the risk section whenever the config file changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onRisk   func(risk.Profile) error
	logger   *logger.Logger

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewWatcher(path string, debounce time.Duration, onRisk func(risk.Profile) error, log *logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{path: path, debounce: debounce, onRisk: onRisk, logger: log}
}

// Start watches the config directory until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files via rename, so watch the directory, not the file.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()
	for {
		select {
		case evt, ok := <-fw.Events:
			if !ok {
				return
			}
			if w.isConfigEvent(evt) {
				w.trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		case <-ctx.Done():
			w.timerMu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timerMu.Unlock()
			return
		}
	}
}

func (w *Watcher) isConfigEvent(evt fsnotify.Event) bool {
	if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
		return false
	}
	return evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) trigger() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	profile, err := LoadRisk(w.path)
	if err != nil {
		w.logger.Error("risk profile reload failed, keeping current", "error", err)
		return
	}
	if err := w.onRisk(profile); err != nil {
		w.logger.Error("risk profile rejected", "error", err)
		return
	}
	w.logger.Info("risk profile reloaded from disk", "path", w.path)
}
