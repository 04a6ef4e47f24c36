package xs

import (
	"context"
	"errors"
)

// WaitTask is the cancellable handle wait returns. Cancel unblocks the
// task's Watcher, which triggers cleanup and completes the task with
// context.Canceled.
type WaitTask[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	result T
	err    error
}

// Cancel requests the task stop at its next opportunity. Safe to call
// more than once and safe to call after the task has already finished.
func (t *WaitTask[T]) Cancel() {
	t.cancel()
}

// Result blocks until the task finishes and returns its outcome.
func (t *WaitTask[T]) Result() (T, error) {
	<-t.done
	return t.result, t.err
}

// Wait runs f repeatedly against a watching Handle, reconciling the
// server-side watch set to exactly the paths f reads, until f returns a
// value instead of ErrEagain. f signals "no answer yet, wake
// me when something I read changes" by returning ErrEagain (or any error
// satisfying errors.Is(err, ErrEagain)); any other error ends the wait
// immediately.
func Wait[T any](ctx context.Context, c *Client, f func(Handle) (T, error)) *WaitTask[T] {
	ctx, cancel := context.WithCancel(ctx)
	task := &WaitTask[T]{cancel: cancel, done: make(chan struct{})}
	go task.run(ctx, c, f)
	return task
}

func (t *WaitTask[T]) run(ctx context.Context, c *Client, f func(Handle) (T, error)) {
	defer close(t.done)

	token := NewToken("wait")
	w := NewWatcher()
	c.registerWatcher(token, w)

	h := Watching(c)
	defer func() {
		cleanupWatches(h, token)
		c.unregisterWatcher(token)
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			w.Cancel()
		case <-stop:
		}
	}()

	for {
		h = h.ResetAccessedPaths()

		result, ferr := f(h)
		if ferr == nil {
			t.result = result
			return
		}
		if !errors.Is(ferr, ErrEagain) {
			t.err = ferr
			return
		}

		toUnwatch, toWatch := diffPaths(h.WatchedPaths(), h.AccessedPaths())

		adjusted := false
		for p := range toUnwatch {
			var err error
			h, err = UnwatchPath(h, p, token)
			if err != nil {
				t.err = err
				return
			}
			adjusted = true
		}
		for p := range toWatch {
			var err error
			h, err = WatchPath(h, p, token)
			if err != nil {
				t.err = err
				return
			}
			adjusted = true
		}

		if adjusted {
			// Changes the server accumulated while we were adjusting
			// will be delivered via w; the next f call will see them.
			continue
		}

		if got := w.Get(); len(got) == 0 {
			t.err = context.Canceled
			return
		}
	}
}

// cleanupWatches unwatches every path still recorded in h, best-effort:
// a failed unwatch is logged and does not stop cleanup of the remaining
// paths. The path set is snapshotted first because UnwatchPath mutates
// h's watched-paths map in place on both its success path (delete) and
// its failure rollback (re-insert), and ranging over a map while it is
// being written gives no guarantee a key is visited exactly once.
func cleanupWatches(h Handle, token string) {
	paths := make([]string, 0, len(h.WatchedPaths()))
	for p := range h.WatchedPaths() {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if _, err := UnwatchPath(h, p, token); err != nil {
			h.client.logf("xs: wait cleanup: unwatch %q failed: %v", p, err)
		}
	}
}

func diffPaths(have, want map[string]struct{}) (toRemove, toAdd map[string]struct{}) {
	toRemove = make(map[string]struct{})
	toAdd = make(map[string]struct{})
	for p := range have {
		if _, ok := want[p]; !ok {
			toRemove[p] = struct{}{}
		}
	}
	for p := range want {
		if _, ok := have[p]; !ok {
			toAdd[p] = struct{}{}
		}
	}
	return
}
