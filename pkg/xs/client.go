package xs

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// replyMsg is what the Dispatcher delivers to an rpc caller's slot:
// exactly one of a Packet (normal reply) or an error (Dispatcher death).
type replyMsg struct {
	pkt Packet
	err error
}

// deadlineSetter is satisfied by transports (e.g. net.Conn) that support
// read deadlines. It is detected dynamically so that transports without
// deadline support are unaffected by WithIdleTimeout.
type deadlineSetter interface {
	SetReadDeadline(time.Time) error
}

// Client is a single long-lived multiplexing client bound to one open
// Transport. It owns the transport exclusively for its
// lifetime, and its Dispatcher is the only goroutine that ever reads from
// the transport or mutates parser state.
type Client struct {
	transport Transport
	parser    Parser
	codec     Codec
	ops       OpFactories

	writeMu sync.Mutex // serializes transport writes only

	mu           sync.Mutex // guards pending, watchers, shuttingDown below
	pending      map[uint32]chan replyMsg
	watchers     map[string]*Watcher
	shuttingDown bool

	ridCounter atomic.Uint32

	idleTimeout time.Duration
	logger      *log.Logger

	closeOnce sync.Once
	done      chan struct{} // closed once the Dispatcher has exited
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithIdleTimeout arms a rolling read deadline before every transport
// read, for transports that implement SetReadDeadline.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithLogger overrides the default standard-library logger used for the
// Dispatcher's fatal-error report and wait's best-effort cleanup
// warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient opens the Dispatcher over an already-connected transport and
// returns a Client ready for with_xs/with_xst/wait and the Handle-level
// protocol operations. The caller owns opening transport before calling
// NewClient and is responsible for nothing further — Close tears down
// the Dispatcher and the transport together.
func NewClient(transport Transport, parser Parser, codec Codec, ops OpFactories, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		parser:    parser,
		codec:     codec,
		ops:       ops,
		pending:   make(map[uint32]chan replyMsg),
		watchers:  make(map[string]*Watcher),
		logger:    log.Default(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	parser.Reset()
	go c.dispatchLoop()
	return c
}

// Close cancels the Dispatcher (by closing the transport, which
// unblocks its pending read), waits for it to finish fanning out the
// resulting read error to every caller still waiting, and returns any
// error from closing the transport. Safe to call more than once.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		closeErr = c.transport.Close()
		<-c.done
	})
	return closeErr
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func (c *Client) nextRID() uint32 {
	return c.ridCounter.Add(1)
}

// dispatchLoop is the single long-running Dispatcher task.
// No other goroutine ever calls recvOne or mutates c.parser.
func (c *Client) dispatchLoop() {
	defer close(c.done)

	for {
		pkt, err := c.recvOne()
		if err != nil {
			c.fail(err)
			return
		}

		if pkt.Type() == OpWatchEvent {
			if err := c.routeWatchEvent(pkt); err != nil {
				c.fail(err)
				return
			}
			continue
		}

		if err := c.routeReply(pkt); err != nil {
			c.fail(err)
			return
		}
	}
}

// recvOne drives the streaming parser against the transport until a full
// packet is assembled.
func (c *Client) recvOne() (Packet, error) {
	buf := make([]byte, 4096)
	for {
		obs := c.parser.Observe()
		switch obs.Kind {
		case ObsPacket:
			c.parser.Reset()
			return obs.Packet, nil
		case ObsNeedMoreData:
			want := obs.NeedBytes
			if want <= 0 {
				want = 1
			}
			if want > len(buf) {
				buf = make([]byte, want)
			}
			if c.idleTimeout > 0 {
				if ds, ok := c.transport.(deadlineSetter); ok {
					_ = ds.SetReadDeadline(time.Now().Add(c.idleTimeout))
				}
			}
			n, err := c.transport.Read(buf[:want])
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, io.EOF
			}
			c.parser.Feed(buf[:n])
		case ObsUnknownOperation:
			return nil, &UnknownOperationError{Code: obs.BadOpCode}
		case ObsParserFailed:
			return nil, &ResponseParserFailedError{}
		default:
			return nil, &ResponseParserFailedError{Err: fmt.Errorf("unrecognized observation kind %d", obs.Kind)}
		}
	}
}

func (c *Client) routeWatchEvent(pkt Packet) error {
	fields, err := c.codec.List(pkt.Payload())
	if err != nil {
		return &MalformedWatchEventError{Err: err}
	}
	if len(fields) != 2 {
		return &MalformedWatchEventError{Err: fmt.Errorf("expected [path, token], got %d fields", len(fields))}
	}
	path, token := fields[0], fields[1]

	c.mu.Lock()
	w := c.watchers[token]
	c.mu.Unlock()

	if w != nil {
		// Delivering to a Watcher that has been cancelled but not yet
		// removed is harmless: Put into a cancelled Watcher is discarded
		// at the next Get.
		w.Put(path)
	}
	return nil
}

func (c *Client) routeReply(pkt Packet) error {
	rid := pkt.RequestID()

	c.mu.Lock()
	slot, ok := c.pending[rid]
	c.mu.Unlock()

	if !ok {
		return &UnexpectedRidError{Rid: rid}
	}
	slot <- replyMsg{pkt: pkt}
	return nil
}

// fail is the Dispatcher's sole recovery: mark the Client shutting down,
// fan the error out to everyone currently waiting, log it once, and
// terminate.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.shuttingDown = true
	slots := make([]chan replyMsg, 0, len(c.pending))
	for _, slot := range c.pending {
		slots = append(slots, slot)
	}
	c.mu.Unlock()

	c.logf("xs: dispatcher failed: %v", err)

	for _, slot := range slots {
		// slot is buffered at capacity 1. If routeReply already delivered
		// a reply there before the caller drained it and removed its
		// pending entry, a second send would block forever with nothing
		// left to read it — and the caller already has a result, so the
		// failure isn't needed.
		select {
		case slot <- replyMsg{err: err}:
		default:
		}
	}
}

// send writes data through the outgoing-write lock as a single logical
// write; no two requests' bytes are ever interleaved.
func (c *Client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for written := 0; written < len(data); {
		n, err := c.transport.Write(data[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}
	return nil
}

// rpcCall is the request/response correlator: it registers a
// reply slot before writing, so a reply can never arrive to find no
// listener, and always removes its own pending entry, even on error
// paths.
func rpcCall[T any](h Handle, mk RequestFactory, decode func(Packet, Codec) (T, error)) (T, error) {
	var zero T
	c := h.client

	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return zero, ErrDispatcherClosed
	}
	rid := c.nextRID()
	if _, exists := c.pending[rid]; exists {
		c.mu.Unlock()
		panic(fmt.Sprintf("xs: rid collision on %d", rid))
	}
	slot := make(chan replyMsg, 1)
	c.pending[rid] = slot
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, rid)
		c.mu.Unlock()
	}()

	data, err := mk(h.tid, rid)
	if err != nil {
		return zero, err
	}

	if err := c.send(data); err != nil {
		return zero, err
	}

	msg := <-slot
	if msg.err != nil {
		return zero, msg.err
	}
	// A reply tagged OpError carries a failure message in place of the
	// payload shape decode expects; every operation's decoder, not just
	// OK's, must route through here rather than attempt to parse it.
	if msg.pkt.Type() == OpError {
		return zero, c.codec.OK(msg.pkt.Payload())
	}
	return decode(msg.pkt, c.codec)
}

func (c *Client) registerWatcher(token string, w *Watcher) {
	c.mu.Lock()
	c.watchers[token] = w
	c.mu.Unlock()
}

func (c *Client) unregisterWatcher(token string) {
	c.mu.Lock()
	delete(c.watchers, token)
	c.mu.Unlock()
}
