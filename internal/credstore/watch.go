package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange whenever the credential file at path is written,
// replaced or removed, until ctx is canceled. The parent directory is
// watched rather than the file itself because atomic saves replace the
// inode on every write.
func Watch(ctx context.Context, path string, onChange func(fsnotify.Op), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credstore: creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("credstore: watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	relevant := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	logger.Debug("watching credential file", slog.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || ev.Op&relevant == 0 {
				continue
			}

			logger.Debug("credential file changed",
				slog.String("path", target),
				slog.String("op", ev.Op.String()),
			)

			onChange(ev.Op)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("credential watcher error", slog.String("error", werr.Error()))
		}
	}
}
