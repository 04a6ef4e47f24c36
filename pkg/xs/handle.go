package xs

// Handle is a small, cheap value describing the logical scope of a
// sequence of calls: no transaction, a specific transaction id, or a
// watch-recording session. Handles do not own their
// Client beyond a borrow — the Client is expected to outlive any Handle
// built from it.
type Handle struct {
	client *Client
	tid    uint32

	// accessedPaths is non-nil only in watching mode; AccessedPath is a
	// no-op when it is nil.
	accessedPaths map[string]struct{}
	watchedPaths  map[string]struct{}
}

// NoTransaction returns a Handle scoped to no transaction (tid 0) with
// access recording disabled.
func NoTransaction(c *Client) Handle {
	return Handle{client: c, watchedPaths: map[string]struct{}{}}
}

// Transaction returns a Handle scoped to the given, already-open
// transaction id, with access recording disabled.
func Transaction(c *Client, tid uint32) Handle {
	return Handle{client: c, tid: tid, watchedPaths: map[string]struct{}{}}
}

// Watching returns a Handle scoped to no transaction with access
// recording enabled, the mode wait uses to observe which paths the user
// function reads.
func Watching(c *Client) Handle {
	return Handle{
		client:        c,
		accessedPaths: map[string]struct{}{},
		watchedPaths:  map[string]struct{}{},
	}
}

// AccessedPath records p as touched by the caller, if this Handle is in
// watching mode, and returns the (possibly mutated) Handle for fluent
// chaining.
func (h Handle) AccessedPath(p string) Handle {
	if h.accessedPaths != nil {
		h.accessedPaths[p] = struct{}{}
	}
	return h
}

// ResetAccessedPaths clears the recorded access set, if recording is
// enabled, for the start of a new wait iteration.
func (h Handle) ResetAccessedPaths() Handle {
	for p := range h.accessedPaths {
		delete(h.accessedPaths, p)
	}
	return h
}

// Watch records p as watched by this Handle and returns the Handle.
func (h Handle) Watch(p string) Handle {
	h.watchedPaths[p] = struct{}{}
	return h
}

// Unwatch removes p from this Handle's watched set and returns the
// Handle.
func (h Handle) Unwatch(p string) Handle {
	delete(h.watchedPaths, p)
	return h
}

// AccessedPaths returns the set of paths recorded so far. Nil if this
// Handle is not in watching mode.
func (h Handle) AccessedPaths() map[string]struct{} {
	return h.accessedPaths
}

// WatchedPaths returns the set of paths this Handle has asked the server
// to watch.
func (h Handle) WatchedPaths() map[string]struct{} {
	return h.watchedPaths
}

// TID returns the Handle's transaction id, or 0 if it is not scoped to a
// transaction.
func (h Handle) TID() uint32 {
	return h.tid
}
