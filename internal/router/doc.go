// ABOUTME: Package documentation for the router package
// ABOUTME: States the persist-then-route contract

// Package router moves persisted messages to live recipient connections.
//
// The pipeline is persist-then-route: Submit returns once the store has the
// message, and a detached goroutine attempts delivery. An offline recipient
// leaves the message pending; undeliverable is reserved for messages whose
// every push to a live connection actively failed.
package router
