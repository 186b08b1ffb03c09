// ABOUTME: Per-connection streaming session handler over a websocket transport
// ABOUTME: Handshake, identity binding, read/write pumps, and exactly-once teardown

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/joshdirkx/chat-rs/internal/registry"
	"github.com/joshdirkx/chat-rs/internal/router"
	"github.com/joshdirkx/chat-rs/internal/store"
	"github.com/joshdirkx/chat-rs/internal/wire"
)

// ErrSessionClosed is returned by Deliver once the session has entered
// teardown.
var ErrSessionClosed = errors.New("session closed")

// ErrSlowConsumer is returned by Deliver when the outbound channel stayed
// full past the bounded wait. The session tears itself down asynchronously.
var ErrSlowConsumer = errors.New("outbound channel full")

// Session lifecycle states.
const (
	StateConnecting int32 = iota
	StateBound
	StateActive
	StateClosing
	StateClosed
)

// Config tunes per-session limits. Zero values take defaults.
type Config struct {
	// SendBuffer is the outbound channel capacity.
	SendBuffer int

	// DeliverTimeout bounds how long Deliver blocks on a full channel before
	// giving up and tearing the connection down.
	DeliverTimeout time.Duration

	// HandshakeTimeout bounds the wait for the hello frame.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each write to the transport.
	WriteTimeout time.Duration

	// PongTimeout is the read deadline; a ping goes out at a fraction of it.
	PongTimeout time.Duration

	// MaxFrameBytes caps the size of an inbound frame.
	MaxFrameBytes int64
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 250 * time.Millisecond
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = 64 * 1024
	}
	return c
}

// Session is the handler for one streaming client connection. It exclusively
// owns the websocket and the outbound channel; the registry only ever holds a
// non-owning reference for lookup and fan-out.
type Session struct {
	id     string
	userID int64

	conn     *websocket.Conn
	send     chan []byte
	cfg      Config
	registry *registry.Registry
	router   *router.Router
	store    store.Store
	logger   *slog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
}

// New wraps an accepted websocket connection in a Session. The identity is
// not bound yet; Run performs the handshake.
func New(conn *websocket.Conn, s store.Store, reg *registry.Registry, rt *router.Router, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	id := uuid.New().String()
	return &Session{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		cfg:      cfg,
		registry: reg,
		router:   rt,
		store:    s,
		logger:   logger.With("component", "session", "conn_id", id),
	}
}

// ID returns the session's connection id.
func (s *Session) ID() string { return s.id }

// UserID returns the bound user identity. Zero before the handshake.
func (s *Session) UserID() int64 { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() int32 { return s.state.Load() }

// Run drives the session until the connection closes or ctx is canceled.
// It blocks for the lifetime of the connection.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown("run exited")

	if err := s.handshake(ctx); err != nil {
		s.logger.Warn("handshake failed", "error", err)
		return
	}

	s.done = make(chan struct{})
	s.registry.Register(s)
	s.state.Store(StateActive)

	go s.writeLoop()

	// Cancellation (process shutdown) must push the session into Closing
	// even while the read loop is blocked on the transport.
	stop := context.AfterFunc(ctx, func() {
		s.teardown("shutdown signal")
	})
	defer stop()

	s.readLoop(ctx)
}

// handshake waits for the hello frame, validates the claimed identity against
// the store, and acknowledges with a ready frame.
func (s *Session) handshake(ctx context.Context) error {
	s.state.Store(StateConnecting)
	s.conn.SetReadLimit(s.cfg.MaxFrameBytes)

	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return fmt.Errorf("setting handshake deadline: %w", err)
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading hello frame: %w", err)
	}

	hello, err := wire.ParseHello(data)
	if err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, hello.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("unknown user %d", hello.UserID)
		}
		return fmt.Errorf("resolving user %d: %w", hello.UserID, err)
	}

	s.userID = user.ID
	s.logger = s.logger.With("user_id", user.ID)
	s.state.Store(StateBound)

	pending, err := s.store.CountPending(ctx, user.ID)
	if err != nil {
		// The ack is informational; a failed count must not kill the session.
		s.logger.Warn("counting pending messages", "error", err)
	}

	ready, err := json.Marshal(wire.Ready{
		Type:    wire.TypeReady,
		UserID:  user.ID,
		Pending: pending,
	})
	if err != nil {
		return fmt.Errorf("encoding ready frame: %w", err)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, ready); err != nil {
		return fmt.Errorf("sending ready frame: %w", err)
	}

	s.logger.Info("session bound", "pending", pending)
	return nil
}

// readLoop decodes inbound frames and hands submissions to the router.
// Malformed or invalid frames are logged and dropped; they never terminate
// the connection. Transport errors do.
func (s *Session) readLoop(ctx context.Context) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout)); err != nil {
		s.teardown(fmt.Sprintf("setting read deadline: %v", err))
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.teardown(fmt.Sprintf("read: %v", err))
			return
		}

		sub, err := wire.ParseSubmission(data)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		if sub.SenderID != s.userID {
			s.logger.Warn("dropping frame with foreign sender_id",
				"claimed_sender_id", sub.SenderID,
			)
			continue
		}

		if _, err := s.router.Submit(ctx, sub.SenderID, sub.RecipientID, sub.MessageContents); err != nil {
			s.logger.Warn("dropping rejected submission",
				"recipient_id", sub.RecipientID,
				"error", err,
			)
			continue
		}
	}
}

// writeLoop drains the outbound channel onto the transport and keeps the
// connection alive with pings. Frames are written in enqueue order.
func (s *Session) writeLoop() {
	pingInterval := s.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.teardown(fmt.Sprintf("setting write deadline: %v", err))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.teardown(fmt.Sprintf("write: %v", err))
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.teardown(fmt.Sprintf("ping: %v", err))
				return
			}
		}
	}
}

// Deliver enqueues an outbound frame for the write loop. It first tries a
// non-blocking send, then waits up to DeliverTimeout. A consumer that cannot
// drain within the window is torn down asynchronously rather than allowed to
// grow the channel without bound.
func (s *Session) Deliver(payload []byte) error {
	if s.state.Load() >= StateClosing {
		return ErrSessionClosed
	}

	select {
	case s.send <- payload:
		return nil
	default:
	}

	timer := time.NewTimer(s.cfg.DeliverTimeout)
	defer timer.Stop()

	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-timer.C:
		go s.teardown("slow consumer")
		return ErrSlowConsumer
	}
}

// teardown moves the session to Closed, exactly once, on every exit path.
// The registry entry is released before the transport so no router can pick
// up a connection that is already dying.
func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(StateClosing)

		if s.done != nil {
			// Registered sessions only: the handshake may have failed before
			// registration, in which case there is nothing to unregister.
			s.registry.Unregister(s)
			close(s.done)
		}

		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()

		s.state.Store(StateClosed)
		s.logger.Info("session closed", "reason", reason)
	})
}
