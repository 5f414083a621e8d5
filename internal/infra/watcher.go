package infra

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DirWatcher reports files created or written in one directory. Watching the
// directory rather than the file keeps working across atomic rename-over writes.
type DirWatcher struct {
	watcher *fsnotify.Watcher
	match   func(name string) bool
	events  chan string
	logger  *zap.Logger
}

// NewDirWatcher watches dir and emits the path of every matching file that is
// created or written. A nil match accepts every file.
func NewDirWatcher(dir string, match func(name string) bool, logger *zap.Logger) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &DirWatcher{
		watcher: watcher,
		match:   match,
		events:  make(chan string, 16),
		logger:  logger,
	}

	go w.processEvents()

	return w, nil
}

// MatchBase returns a matcher accepting only files named base.
func MatchBase(base string) func(string) bool {
	return func(name string) bool { return filepath.Base(name) == base }
}

// MatchExt returns a matcher accepting visible files with the given extension.
func MatchExt(ext string) func(string) bool {
	return func(name string) bool {
		b := filepath.Base(name)
		return filepath.Ext(b) == ext && b[0] != '.'
	}
}

func (w *DirWatcher) processEvents() {
	defer close(w.events)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if w.match != nil && !w.match(event.Name) {
				continue
			}
			select {
			case w.events <- event.Name:
			default:
				// Consumer is behind; it rescans the directory anyway
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", zap.Error(err))
		}
	}
}

// Events returns the channel of matching paths. It is closed by Close.
func (w *DirWatcher) Events() <-chan string {
	return w.events
}

// Close stops watching.
func (w *DirWatcher) Close() error {
	return w.watcher.Close()
}
