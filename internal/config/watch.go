package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"quantra/internal/logger"
)

// Watch reloads the config whenever the file changes and hands the result to
// onChange. A reload that fails validation is logged and skipped; the previous
// config stays active. Blocks until ctx is done. Live mode only; backtests
// load once.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops the
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warnf("[config] reload rejected: %v", err)
				continue
			}
			logger.Infof("[config] reloaded %s", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("[config] watch error: %v", err)
		}
	}
}
