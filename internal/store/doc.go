// ABOUTME: Package documentation for the store package
// ABOUTME: Explains the persistence contract, error taxonomy, and SQLite configuration

// Package store provides durable persistence for users and messages using
// SQLite.
//
// # Contract
//
// The Store interface is the storage gateway for the whole process: the
// control-plane RPCs and the streaming sessions share one instance and its
// bounded connection pool. CreateMessage is transactional - identity checks,
// the insert, and the read-back of the generated row commit as one unit, so
// a message is durable before any delivery attempt sees it.
//
// All queries are parameterized. Interpolating caller input into query text
// is a defect, not a style choice.
//
// # Errors
//
//   - ErrValidation: bad caller input, never retried automatically
//   - ErrNotFound: referenced entity absent
//   - ErrStorageUnavailable: pool wait exceeded, retryable with backoff
//   - anything else: persistent-layer failure, surfaced to the caller
//
// # SQLite configuration
//
// WAL mode and foreign keys are enabled at open. The pool ceiling comes from
// Options.MaxConns; ":memory:" databases are pinned to one connection since
// each pooled connection would otherwise see its own empty database.
package store
