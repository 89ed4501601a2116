package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Tyrowin/relayhub/internal/logx"
)

const configReloadDebounce = 250 * time.Millisecond

// WatchConfig reloads the config file whenever it changes and passes each
// successfully parsed config to apply. Invalid edits are logged and skipped;
// the previous config stays in effect. It blocks until ctx is cancelled.
//
// The directory is watched rather than the file so editors that replace the
// file via rename are still seen.
func WatchConfig(ctx context.Context, path string, log logx.Logger, apply func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer func() { _ = w.Close() }()

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(configReloadDebounce)
			} else {
				timer.Reset(configReloadDebounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))

		case <-fire:
			fire = nil
			cfg, err := LoadConfig(path)
			if err != nil {
				log.Warn("config reload rejected", logx.Err(err), logx.String("path", path))
				continue
			}
			log.Info("config reloaded", logx.String("path", path))
			apply(cfg)
		}
	}
}
