// Package xs implements the multiplexing core of a xenstore client: a
// packet framer, a request/response correlator keyed by request id, a
// watch-event demultiplexer, and the transaction-retry and watch-based
// wait combinators built on top of them.
//
// The package owns none of the transport, wire parsing, or per-operation
// marshalling — those are supplied by the caller through the Transport,
// Parser, Codec, and OpFactories interfaces in transport.go, packet.go,
// and ops.go.
package xs
