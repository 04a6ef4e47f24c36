package xs

// This file holds the thin protocol-operation wrappers built on top of
// rpcCall: each pre-updates the Handle's own
// bookkeeping, then issues the request through the correlator.

// Directory lists the children of path.
func Directory(h Handle, path string) ([]string, error) {
	h = h.AccessedPath(path)
	mk := h.client.ops.Directory(path)
	return rpcCall(h, mk, func(p Packet, codec Codec) ([]string, error) {
		return codec.List(p.Payload())
	})
}

// Read returns the data stored at path.
func Read(h Handle, path string) (string, error) {
	h = h.AccessedPath(path)
	mk := h.client.ops.Read(path)
	return rpcCall(h, mk, func(p Packet, codec Codec) (string, error) {
		return codec.String(p.Payload())
	})
}

// Write stores data at path.
func Write(h Handle, path string, data []byte) error {
	mk := h.client.ops.Write(path, data)
	_, err := rpcCall(h, mk, func(p Packet, codec Codec) (struct{}, error) {
		return struct{}{}, codec.OK(p.Payload())
	})
	return err
}

// WatchPath asks the server to watch path under token, and records path
// in h's watched set. On failure the local bookkeeping is rolled back.
func WatchPath(h Handle, path, token string) (Handle, error) {
	h = h.Watch(path)
	mk := h.client.ops.Watch(path, token)
	_, err := rpcCall(h, mk, func(p Packet, codec Codec) (struct{}, error) {
		return struct{}{}, codec.OK(p.Payload())
	})
	if err != nil {
		h = h.Unwatch(path)
		return h, err
	}
	return h, nil
}

// UnwatchPath asks the server to stop watching path under token, and
// removes path from h's watched set. On failure the local bookkeeping
// is rolled back.
func UnwatchPath(h Handle, path, token string) (Handle, error) {
	h = h.Unwatch(path)
	mk := h.client.ops.Unwatch(path, token)
	_, err := rpcCall(h, mk, func(p Packet, codec Codec) (struct{}, error) {
		return struct{}{}, codec.OK(p.Payload())
	})
	if err != nil {
		h = h.Watch(path)
		return h, err
	}
	return h, nil
}

// TransactionStart opens a new transaction and returns its id.
func TransactionStart(h Handle) (uint32, error) {
	mk := h.client.ops.TransactionStart()
	return rpcCall(h, mk, func(p Packet, codec Codec) (uint32, error) {
		v, err := codec.Int32(p.Payload())
		return uint32(v), err
	})
}

// TransactionEnd commits (commit=true) or aborts (commit=false) h's
// transaction. The Codec is responsible for translating a conflicting
// commit into ErrEagain and any other non-success reply into a
// *ProtocolError.
func TransactionEnd(h Handle, commit bool) error {
	mk := h.client.ops.TransactionEnd(commit)
	_, err := rpcCall(h, mk, func(p Packet, codec Codec) (struct{}, error) {
		return struct{}{}, codec.OK(p.Payload())
	})
	return err
}

// WithXS runs f against a fresh non-transactional Handle. It applies no
// retry policy of its own; it exists purely to hand the caller
// a correctly-scoped Handle.
func WithXS[T any](c *Client, f func(Handle) (T, error)) (T, error) {
	return f(NoTransaction(c))
}
