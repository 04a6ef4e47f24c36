package xs

// Test-only exported accessors for white-box behavior that external
// tests (package xs_test) need to exercise, kept out of pkg/xs's real
// API surface. Introduced to let the pkg/xs test files depend on
// internal/xswire for real wire encoding/decoding without creating an
// import cycle (internal/xswire already depends on pkg/xs for Packet,
// OpType, and Observation).

// NewClientForTest builds a Client with the given collaborators without
// starting its Dispatcher goroutine, for tests that drive recvOne or
// other internals directly.
func NewClientForTest(transport Transport, parser Parser, codec Codec, ops OpFactories) *Client {
	return &Client{
		transport: transport,
		parser:    parser,
		codec:     codec,
		ops:       ops,
		pending:   make(map[uint32]chan replyMsg),
		watchers:  make(map[string]*Watcher),
	}
}

func (c *Client) TestRegisterWatcher(token string, w *Watcher) {
	c.registerWatcher(token, w)
}

func (c *Client) TestSend(data []byte) error {
	return c.send(data)
}

func (c *Client) TestRecvOne() (Packet, error) {
	return c.recvOne()
}
