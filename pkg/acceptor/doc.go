// Package acceptor implements the passive side of the load-balancer harness:
// a TCP server that admits connections up to a fixed ceiling and drains each
// one until the peer closes it.
//
// # Admission
//
// The accept loop acquires one slot of a weighted semaphore before calling
// Accept, and the per-connection handler releases it after the connection is
// closed and removed from the registry. While the server is at capacity the
// loop blocks on the semaphore instead of polling, and new handshakes wait in
// the kernel backlog. At every instant:
//
//	registry.Len() <= MaxConcurrent
//
// # Connection Handling
//
// Each admitted connection gets its own goroutine which reads into a buffer
// of BufferSize bytes and discards the payload. The handler ends on EOF
// (peer close) or on the first read error. Errors are local to the
// connection: they are logged, the socket is closed and the slot released.
// Only a bind failure at startup is fatal, reported as *BindError.
package acceptor
