package xs

import "sync"

// Watcher is an in-memory mailbox of modified paths bound to one watch
// token. A Watcher is created at the top of a wait and
// destroyed at the end of the same wait.
type Watcher struct {
	mu         sync.Mutex
	cond       *sync.Cond
	paths      map[string]struct{}
	cancelling bool
}

// NewWatcher returns an empty, non-cancelled Watcher.
func NewWatcher() *Watcher {
	w := &Watcher{paths: make(map[string]struct{})}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Put records path as modified and wakes any blocked Get. It never
// blocks other than on the mutex itself.
func (w *Watcher) Put(path string) {
	w.mu.Lock()
	w.paths[path] = struct{}{}
	w.cond.Signal()
	w.mu.Unlock()
}

// Get waits while the path set is empty and the Watcher is not
// cancelled, then atomically takes and returns the accumulated set,
// leaving it empty. A cancelled Watcher returns the empty set without
// waiting.
func (w *Watcher) Get() map[string]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.paths) == 0 && !w.cancelling {
		w.cond.Wait()
	}

	if w.cancelling {
		// Paths put after (or just before) cancellation are discarded.
		w.paths = make(map[string]struct{})
		return map[string]struct{}{}
	}

	taken := w.paths
	w.paths = make(map[string]struct{})
	return taken
}

// Cancel marks the Watcher cancelling (monotonic false→true) and wakes
// any blocked Get. Fire-and-forget: cleaning up the corresponding
// server-side subscription is the wait caller's responsibility.
func (w *Watcher) Cancel() {
	w.mu.Lock()
	w.cancelling = true
	w.cond.Broadcast()
	w.mu.Unlock()
}
