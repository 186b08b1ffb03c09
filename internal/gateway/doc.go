// ABOUTME: Package documentation for the gateway package
// ABOUTME: Describes the two surfaces and their supervision

// Package gateway wires the relay together and runs its two network
// surfaces.
//
// The gRPC control plane (user management, message submission and lookup)
// and the websocket data plane (live delivery) listen on independent
// addresses. Each runs in its own goroutine under one shutdown signal; a
// fatal error on either surface reports through a shared error channel and
// triggers graceful shutdown of the other, rather than racing the process
// down. Both surfaces share the single store and connection registry
// constructed in New - there is no ambient global state.
package gateway
