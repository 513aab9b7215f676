package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"helmhud/internal/training"
)

// ReloadQuests replaces the custom quest catalog from a YAML file.
func (e *Engine) ReloadQuests(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	quests, err := training.LoadFile(path, e.now())
	if err != nil {
		return err
	}
	e.catalog.ReplaceCustom(quests)
	e.logger.Info("quest catalog reloaded",
		zap.String("path", path),
		zap.Int("quests", len(quests)))
	return nil
}

// WatchQuests hot-reloads the quest catalog whenever the file changes.
// Blocks until ctx is cancelled. Reload failures are logged and the
// previous catalog stays in effect.
func (e *Engine) WatchQuests(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which would
	// drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	// Debounce rapid saves.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(500 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("quest file watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := e.ReloadQuests(path); err != nil {
				e.logger.Error("quest reload failed", zap.Error(err))
			}
		}
	}
}
