package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

// Watch reloads the monitors file on every write and hands the parsed set to
// onChange. A reload that fails to parse is logged and the previous set stays
// in effect. The parent directory is watched so saves that rename a new file
// over path keep being seen. Runs until ctx is cancelled.
func Watch(ctx context.Context, log *zap.Logger, path string, onChange func([]domain.Monitor)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}
	log.Info("monitors_file_watching", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			// a rename-save shows up as Create on target
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			ms, err := LoadMonitors(path)
			if err != nil {
				log.Warn("monitors_file_reload_failed", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("monitors_file_reloaded", zap.String("path", path), zap.Int("count", len(ms)))
			onChange(ms)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("monitors_file_watch_error", zap.Error(err))
		}
	}
}
