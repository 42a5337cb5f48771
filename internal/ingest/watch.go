package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of file events into one rebuild.
const DefaultDebounce = 2 * time.Second

// Watch calls onChange after corpus files under dir are created, written,
// removed or renamed, once per quiet period of debounce. It blocks until ctx is
// done. onChange errors are logged and watching continues.
func Watch(
	ctx context.Context, dir string, debounce time.Duration,
	onChange func(context.Context) error, logger *zap.Logger,
) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("Watching corpus", zap.String("dir", dir), zap.Duration("debounce", debounce))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			logger.Debug("Corpus changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		case <-timer.C:
			if err := onChange(ctx); err != nil {
				logger.Error("Rebuild after corpus change failed", zap.Error(err))
			}
		}
	}
}

// relevant reports whether an event touches a corpus file in a way that changes content.
func relevant(ev fsnotify.Event) bool {
	if !isCorpusFile(filepath.Base(ev.Name)) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
