package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Event reports that a catalog model appeared in or left the models dir.
type Event struct {
	Model   Model
	Present bool
}

// Watch calls fn whenever a catalog model file is created, rewritten,
// renamed or removed in Dir. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, fn func(Event)) error {
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(m.Dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", m.Dir, err)
	}

	byFile := make(map[string]Model, len(Catalog))
	for _, model := range Catalog {
		byFile[model.Filename] = model
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			model, known := byFile[filepath.Base(event.Name)]
			if !known || event.Op == fsnotify.Chmod {
				continue
			}
			fn(Event{Model: model, Present: m.IsDownloaded(model)})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("models: watch: %w", err)
		}
	}
}
