package xs

import "io"

// Transport is the narrow byte-stream capability the core consumes. A
// domain socket, a shared-memory ring, or any other abstract byte-stream
// collaborator can implement it. Read must return 0 and a non-nil error
// (conventionally io.EOF) once the peer has gone away; the Dispatcher
// treats that as a fatal transport error.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}
