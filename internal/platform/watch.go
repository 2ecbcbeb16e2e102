package platform

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/mplp/internal/logging"
)

// reloadDebounce absorbs the burst of events most editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// FileWatcher calls a reload function when a single file is written or
// recreated. The parent directory is watched so atomic renames are seen.
type FileWatcher struct {
	path    string
	reload  func(path string) error
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewFileWatcher watches path and calls reload after each change settles.
func NewFileWatcher(path string, reload func(path string) error, logger *logging.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &FileWatcher{
		path:    abs,
		reload:  reload,
		watcher: w,
		logger:  logger.WithComponent("file-watcher"),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the watch loop in a goroutine.
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
}

// Stop ends the watch loop and waits for it to exit. Safe to call twice.
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
		_ = fw.watcher.Close()
	})
	<-fw.done
}

func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)

	debounce := time.NewTimer(0)
	<-debounce.C
	pending := false

	for {
		select {
		case <-fw.stopCh:
			debounce.Stop()
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false
			if err := fw.reload(fw.path); err != nil {
				fw.logger.Warn("reload failed", "path", fw.path, "error", err)
				continue
			}
			fw.logger.Info("reloaded", "path", fw.path)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", "path", fw.path, "error", err)
		}
	}
}
