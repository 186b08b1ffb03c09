// ABOUTME: Concurrent registry mapping user ids to their live connections
// ABOUTME: Sharded per-key locking so unrelated users never contend

package registry

import (
	"log/slog"
	"sync"
)

// Conn is the registry's view of a live client connection. The registry holds
// a non-owning reference: the session that created the connection is
// responsible for unregistering it on teardown, the registry never closes or
// otherwise manages a connection's lifecycle.
type Conn interface {
	// ID uniquely identifies the connection (not the user).
	ID() string

	// UserID is the identity the connection was bound to at handshake.
	UserID() int64

	// Deliver enqueues an outbound frame. It blocks at most for the
	// connection's bounded back-pressure window and returns an error if the
	// connection is closed or too slow.
	Deliver(payload []byte) error
}

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	conns map[int64]map[Conn]struct{}
}

// Registry tracks which connections are live for each user id. One user may
// own any number of concurrent connections (multi-device).
type Registry struct {
	shards [shardCount]*shard
	logger *slog.Logger
}

// New creates an empty Registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger.With("component", "registry"),
	}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[int64]map[Conn]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID int64) *shard {
	return r.shards[uint64(userID)%shardCount]
}

// Register adds the connection to the set for its user. Registering the same
// connection twice is a no-op.
func (r *Registry) Register(c Conn) {
	userID := c.UserID()
	s := r.shardFor(userID)

	s.mu.Lock()
	set, ok := s.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		s.conns[userID] = set
	}
	set[c] = struct{}{}
	total := len(set)
	s.mu.Unlock()

	r.logger.Info("connection registered",
		"user_id", userID,
		"conn_id", c.ID(),
		"user_connections", total,
	)
}

// Unregister removes exactly this connection. Empty sets are dropped so the
// registry does not grow with stale entries. Unregistering a connection that
// is not present is a no-op.
func (r *Registry) Unregister(c Conn) {
	userID := c.UserID()
	s := r.shardFor(userID)

	s.mu.Lock()
	set, ok := s.conns[userID]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.conns, userID)
		}
	}
	s.mu.Unlock()

	if ok {
		r.logger.Info("connection unregistered",
			"user_id", userID,
			"conn_id", c.ID(),
		)
	}
}

// ConnectionsFor returns a snapshot of the live connections for a user. The
// set may change the moment the call returns; callers must tolerate delivery
// failures on connections that disconnected concurrently.
func (r *Registry) ConnectionsFor(userID int64) []Conn {
	s := r.shardFor(userID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.conns[userID]
	if !ok {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the total number of registered connections across all users.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.conns {
			total += len(set)
		}
		s.mu.RUnlock()
	}
	return total
}
