package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration file whenever it changes on disk and hands
// each successfully validated result to onChange. Invalid edits are logged and
// the previous configuration stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(Config)) error {
	target := strings.TrimSpace(path)
	if target == "" {
		return errors.New("config path must not be empty")
	}
	if onChange == nil {
		return errors.New("change handler must be provided")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	target, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory rather than the file.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(target)
			if err != nil {
				logger.Warn("config reload rejected", "path", target, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", target)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
