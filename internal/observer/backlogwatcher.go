package observer

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BacklogChangeCallback is called with the issue files that changed
type BacklogChangeCallback func(changedFiles []string)

// BacklogWatcher monitors the backlog directory for new or edited issue
// files, batching rapid changes behind a debounce window
type BacklogWatcher struct {
	watcher  *fsnotify.Watcher
	callback BacklogChangeCallback
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewBacklogWatcher creates a watcher on the backlog directory
func NewBacklogWatcher(backlogDir string, callback BacklogChangeCallback) (*BacklogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(backlogDir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &BacklogWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}, nil
}

// Start begins watching for file changes
func (w *BacklogWatcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("backlog watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (w *BacklogWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *BacklogWatcher) handleEvent(event fsnotify.Event) {
	// Only care about markdown files
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}

	// Only care about writes and creates
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	// Reset or start debounce timer
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *BacklogWatcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	w.callback(files)
}

// SetDebounce sets the debounce duration for batching file changes
func (w *BacklogWatcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}
