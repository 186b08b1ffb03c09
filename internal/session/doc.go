// ABOUTME: Package documentation for the session package
// ABOUTME: Describes the connection state machine and ownership rules

// Package session implements the per-connection state machine for the
// websocket data plane.
//
// # Lifecycle
//
//	Connecting -> Bound -> Active -> Closing -> Closed
//
// A connection starts unbound. The first frame must be a hello carrying the
// user id, which is validated against the store; only then does the session
// register with the connection registry and start its read and write pumps.
// Teardown runs exactly once on every exit path - transport error, close
// frame, slow consumer, or process shutdown - and always unregisters before
// releasing the transport.
//
// # Back-pressure
//
// The outbound channel is bounded. Deliver waits at most a configured window
// for space; a peer that cannot drain in time is disconnected instead of
// buffered without limit.
package session
