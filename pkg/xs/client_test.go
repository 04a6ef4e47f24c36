package xs_test

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/openxen/xsclient/internal/xswire"
	"github.com/openxen/xsclient/pkg/xs"
	"github.com/openxen/xsclient/pkg/xs/xsmock"
)

// fakeServer decodes requests arriving on conn with its own xswire
// Parser and lets the test script a reply for each one it sees.
type fakeServer struct {
	conn   net.Conn
	parser *xswire.Parser
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{conn: conn, parser: xswire.NewParser()}
}

// next blocks until one full request packet has been read off the wire.
func (s *fakeServer) next(t *testing.T) xs.Packet {
	t.Helper()
	buf := make([]byte, 4096)
	for {
		obs := s.parser.Observe()
		if obs.Kind == xs.ObsPacket {
			s.parser.Reset()
			return obs.Packet
		}
		n, err := s.conn.Read(buf)
		require.NoError(t, err)
		s.parser.Feed(buf[:n])
	}
}

func (s *fakeServer) reply(t *testing.T, ty xs.OpType, rid, tid uint32, payload []byte) {
	t.Helper()
	_, err := s.conn.Write(xswire.EncodePacket(ty, rid, tid, payload))
	require.NoError(t, err)
}

func newPipeClient(t *testing.T) (*xs.Client, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	c := xs.NewClient(clientConn, xswire.NewParser(), xswire.NewCodec(), xswire.NewRequests())
	t.Cleanup(func() { c.Close() })
	return c, newFakeServer(serverConn)
}

func TestClient_SimpleRead(t *testing.T) {
	c, srv := newPipeClient(t)

	result := make(chan struct {
		val string
		err error
	}, 1)
	go func() {
		v, err := xs.Read(xs.NoTransaction(c), "/local/domain/0/name")
		result <- struct {
			val string
			err error
		}{v, err}
	}()

	req := srv.next(t)
	assert.Equal(t, xs.OpRead, req.Type())
	fields, err := xswire.NewCodec().List(req.Payload())
	require.NoError(t, err)
	assert.Equal(t, []string{"/local/domain/0/name"}, fields)

	srv.reply(t, xs.OpRead, req.RequestID(), req.TransactionID(), []byte("my-domain"))

	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, "my-domain", r.val)
}

func TestClient_MultiplexedRepliesOutOfOrder(t *testing.T) {
	c, srv := newPipeClient(t)

	type outcome struct {
		path, val string
		err       error
	}
	out := make(chan outcome, 2)
	for _, p := range []string{"/a", "/b"} {
		path := p
		go func() {
			v, err := xs.Read(xs.NoTransaction(c), path)
			out <- outcome{path, v, err}
		}()
	}

	reqA := srv.next(t)
	reqB := srv.next(t)

	// Reply to the second request first; the correlator must still route
	// each reply to the caller that sent the matching rid.
	srv.reply(t, xs.OpRead, reqB.RequestID(), 0, []byte("val-b"))
	srv.reply(t, xs.OpRead, reqA.RequestID(), 0, []byte("val-a"))

	got := map[string]string{}
	for i := 0; i < 2; i++ {
		o := <-out
		require.NoError(t, o.err)
		got[o.path] = o.val
	}
	assert.Equal(t, map[string]string{"/a": "val-a", "/b": "val-b"}, got)
}

func TestClient_WatchEventRoutedToRegisteredWatcher(t *testing.T) {
	c, srv := newPipeClient(t)

	w := xs.NewWatcher()
	c.TestRegisterWatcher("tok-1", w)

	srv.reply(t, xs.OpWatchEvent, 0, 0, xswire.EncodeList("/a/b", "tok-1"))

	got := w.Get()
	assert.Equal(t, map[string]struct{}{"/a/b": {}}, got)
}

func TestClient_WatchEventForUnknownTokenIsHarmless(t *testing.T) {
	c, srv := newPipeClient(t)

	srv.reply(t, xs.OpWatchEvent, 0, 0, xswire.EncodeList("/a/b", "no-such-token"))

	// Follow up with an ordinary call to prove the Dispatcher kept running.
	done := make(chan error, 1)
	go func() {
		_, err := xs.Read(xs.NoTransaction(c), "/x")
		done <- err
	}()
	req := srv.next(t)
	srv.reply(t, xs.OpRead, req.RequestID(), 0, []byte("ok"))
	require.NoError(t, <-done)
}

func TestClient_DispatcherDeathFansOutToAllPending(t *testing.T) {
	c, srv := newPipeClient(t)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := xs.Read(xs.NoTransaction(c), "/x")
			errs <- err
		}()
	}
	srv.next(t)
	srv.next(t)

	srv.conn.Close()

	for i := 0; i < 2; i++ {
		err := <-errs
		assert.Error(t, err)
	}

	// A call made after the Dispatcher has died must fail immediately.
	_, err := xs.Read(xs.NoTransaction(c), "/y")
	assert.ErrorIs(t, err, xs.ErrDispatcherClosed)
}

func TestClient_UnexpectedRidIsFatal(t *testing.T) {
	c, srv := newPipeClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := xs.Read(xs.NoTransaction(c), "/x")
		done <- err
	}()
	srv.next(t)

	// Reply with a rid nobody registered; the Dispatcher must treat this
	// as fatal and fail the still-pending caller too.
	srv.reply(t, xs.OpRead, 999999, 0, []byte("bogus"))

	err := <-done
	assert.Error(t, err)
}

func TestClient_UnknownOperationIsFatal(t *testing.T) {
	c, srv := newPipeClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := xs.Read(xs.NoTransaction(c), "/x")
		done <- err
	}()
	req := srv.next(t)

	srv.reply(t, xs.OpType(99), req.RequestID(), 0, nil)

	err := <-done
	var unknownOp *xs.UnknownOperationError
	assert.ErrorAs(t, err, &unknownOp)
}

func TestClient_ErrorReplyOnReadSurfacesAsProtocolError(t *testing.T) {
	c, srv := newPipeClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := xs.Read(xs.NoTransaction(c), "/no/such/path")
		done <- err
	}()
	req := srv.next(t)

	// Read has no "OK"/"EAGAIN" marker to fall back on — its payload is
	// the value itself — so a missing-path failure must arrive tagged
	// OpError rather than OpRead, or it would be parsed as a successful
	// read of the string "ENOENT".
	srv.reply(t, xs.OpError, req.RequestID(), 0, xswire.EncodeProtocolError("ENOENT"))

	err := <-done
	var protoErr *xs.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "ENOENT", protoErr.Message)
}

func TestClient_ErrorReplyOnDirectoryMapsEagain(t *testing.T) {
	c, srv := newPipeClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := xs.Directory(xs.NoTransaction(c), "/a")
		done <- err
	}()
	req := srv.next(t)

	srv.reply(t, xs.OpError, req.RequestID(), 0, xswire.EncodeEagain())

	err := <-done
	assert.ErrorIs(t, err, xs.ErrEagain)
}

func TestClient_FailDoesNotBlockOnAlreadyDeliveredReply(t *testing.T) {
	c, srv := newPipeClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := xs.Read(xs.NoTransaction(c), "/x")
		done <- err
	}()
	req := srv.next(t)

	// Deliver the reply and close the connection in the same breath: the
	// Dispatcher may route this reply and loop back into its next
	// recvOne, which then fails, before the caller goroutine above has
	// been scheduled to drain its buffered slot and remove its pending
	// entry. fail() must not block trying to redeliver to that same slot.
	srv.reply(t, xs.OpRead, req.RequestID(), 0, []byte("v"))
	srv.conn.Close()

	err := <-done
	assert.NoError(t, err)
}

func TestClient_ConcurrentWritesAreNeverInterleaved(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := xsmock.NewMockTransport(ctrl)

	stopReads := make(chan struct{})
	mt.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-stopReads
		return 0, io.EOF
	}).AnyTimes()
	mt.EXPECT().Close().Return(nil)

	var writes [][]byte
	var mu sync.Mutex
	mt.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		mu.Lock()
		writes = append(writes, append([]byte{}, p...))
		mu.Unlock()
		return len(p), nil
	}).AnyTimes()

	c := xs.NewClient(mt, xswire.NewParser(), xswire.NewCodec(), xswire.NewRequests())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.TestSend(xswire.EncodePacket(xs.OpRead, 1, 0, xswire.EncodeList("/abcdefghijklmnopqrstuvwxyz")))
		}()
	}
	wg.Wait()

	mu.Lock()
	require.Len(t, writes, 2)
	for _, w := range writes {
		// Each send() call wrote its whole request in a single Write,
		// under the write lock, so no request's bytes are ever split
		// across two calls that could interleave with another request's.
		assert.True(t, len(w) > 0)
	}
	mu.Unlock()

	close(stopReads)
	require.NoError(t, c.Close())
}

func TestClient_SendUsesMockTransportForPartialWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := xsmock.NewMockTransport(ctrl)

	// The Dispatcher's first Read fails after a short delay, which ends
	// the Dispatcher; this test only exercises send() directly against a
	// scripted partial write sequence.
	mt.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 0, errors.New("blocked read")
	}).AnyTimes()

	payload := xswire.EncodePacket(xs.OpRead, 1, 0, xswire.EncodeList("/x"))
	first := mt.EXPECT().Write(gomock.Any()).Return(len(payload)/2, nil)
	mt.EXPECT().Write(gomock.Any()).Return(len(payload)-len(payload)/2, nil).After(first)
	mt.EXPECT().Close().Return(nil)

	c := xs.NewClient(mt, xswire.NewParser(), xswire.NewCodec(), xswire.NewRequests())
	defer c.Close()

	err := c.TestSend(payload)
	assert.NoError(t, err)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, _ := newPipeClient(t)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestClient_RecvOneTreatsZeroByteReadAsEOF(t *testing.T) {
	ctrl := gomock.NewController(t)
	mt := xsmock.NewMockTransport(ctrl)
	mt.EXPECT().Read(gomock.Any()).Return(0, nil)

	// Built directly rather than via NewClient so no Dispatcher goroutine
	// races this test's own call to recvOne over the single transport.
	c := xs.NewClientForTest(mt, xswire.NewParser(), xswire.NewCodec(), xswire.NewRequests())

	_, err := c.TestRecvOne()
	assert.ErrorIs(t, err, io.EOF)
}
