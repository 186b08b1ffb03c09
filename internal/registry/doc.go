// ABOUTME: Package documentation for the registry package
// ABOUTME: Explains the liveness invariant and the locking scheme

// Package registry maintains the in-memory map from user identity to live
// connections. It is the only mutable state shared between connections.
//
// Invariant: at every observable instant a connection appears in exactly the
// set keyed by its bound user id. Sessions register after the handshake binds
// an identity and unregister exactly once on teardown; the registry itself
// never drives a connection's lifecycle.
//
// The map is sharded with per-shard RWMutexes. Mutations are O(1) in-memory
// operations; no lock is held across any I/O.
package registry
