package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk and hands the
// fresh value to onReload. Consumers swap whole Config values; a live
// Config is never mutated in place.
type Watcher struct {
	path     string
	onReload func(*Config)
	fw       *fsnotify.Watcher
}

// NewWatcher watches the directory containing path. Watching the directory
// instead of the file survives editors that rename-and-replace on save.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, onReload: onReload, fw: fw}, nil
}

// Run processes fsnotify events until ctx is cancelled. Bursts of events
// from a single save are coalesced behind a short settle timer.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()

	var settle *time.Timer
	settleCh := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case settleCh <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-settleCh:
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			slog.Info("config reloaded", "path", w.path)
			w.onReload(cfg)
		}
	}
}
