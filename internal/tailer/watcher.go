package tailer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/therealutkarshpriyadarshi/metricsadapter/internal/logging"
)

// Watcher turns filesystem events on one file into wake-up signals for a
// poll loop. The parent directory is watched so that creation and
// replacement of the file are seen too. Signals coalesce: at most one is
// pending at a time.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	wakeCh  chan struct{}
	logger  *logging.Logger
}

// NewWatcher starts watching the directory containing path
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		path:    abs,
		watcher: watcher,
		wakeCh:  make(chan struct{}, 1),
		logger:  logger.WithComponent("watcher").WithField("path", abs),
	}, nil
}

// Wake returns the channel that receives a signal when the file changes
func (w *Watcher) Wake() <-chan struct{} {
	return w.wakeCh
}

// Run forwards events until ctx is cancelled, then closes the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	w.logger.Debug().Str("op", event.Op.String()).Msg("File event")

	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}
