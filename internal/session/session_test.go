// ABOUTME: Integration tests for streaming sessions over a real websocket
// ABOUTME: Exercises handshake, submission routing, delivery, and teardown

package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdirkx/chat-rs/internal/registry"
	"github.com/joshdirkx/chat-rs/internal/router"
	"github.com/joshdirkx/chat-rs/internal/session"
	"github.com/joshdirkx/chat-rs/internal/store"
	"github.com/joshdirkx/chat-rs/internal/wire"
)

const frameWait = 2 * time.Second

type harness struct {
	store    *store.SQLiteStore
	registry *registry.Registry
	router   *router.Router
	srv      *httptest.Server

	alice *store.User
	bob   *store.User
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithSession(t, session.Config{
		HandshakeTimeout: 500 * time.Millisecond,
		DeliverTimeout:   100 * time.Millisecond,
	})
}

func newHarnessWithSession(t *testing.T, sessCfg session.Config) *harness {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "Ada", "Lovelace")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "Alan", "Turing")
	require.NoError(t, err)

	reg := registry.New(nil)
	rt := router.New(s, reg, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sess := session.New(conn, s, reg, rt, sessCfg, logger)
		go sess.Run(context.Background())
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &harness{
		store:    s,
		registry: reg,
		router:   rt,
		srv:      srv,
		alice:    alice,
		bob:      bob,
	}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// connect dials, performs the hello handshake as the given user, and returns
// the connection together with the ready acknowledgment.
func (h *harness) connect(t *testing.T, userID int64) (*websocket.Conn, wire.Ready) {
	t.Helper()
	c := h.dial(t)

	require.NoError(t, c.WriteJSON(wire.Hello{UserID: userID}))

	var ready wire.Ready
	require.NoError(t, c.SetReadDeadline(time.Now().Add(frameWait)))
	require.NoError(t, c.ReadJSON(&ready))
	return c, ready
}

func readDelivery(t *testing.T, c *websocket.Conn) wire.Delivery {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(frameWait)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)

	var d wire.Delivery
	require.NoError(t, json.Unmarshal(data, &d))
	return d
}

func TestHandshake_AcksWithPendingCount(t *testing.T) {
	h := newHarness(t)

	ctx := context.Background()
	_, err := h.store.CreateMessage(ctx, h.alice.ID, h.bob.ID, "one")
	require.NoError(t, err)
	_, err = h.store.CreateMessage(ctx, h.alice.ID, h.bob.ID, "two")
	require.NoError(t, err)

	_, ready := h.connect(t, h.bob.ID)
	assert.Equal(t, wire.TypeReady, ready.Type)
	assert.Equal(t, h.bob.ID, ready.UserID)
	assert.Equal(t, int64(2), ready.Pending)

	require.Eventually(t, func() bool {
		return h.registry.Len() == 1
	}, frameWait, 10*time.Millisecond)
}

func TestHandshake_UnknownUserCloses(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	require.NoError(t, c.WriteJSON(wire.Hello{UserID: 9999}))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(frameWait)))
	_, _, err := c.ReadMessage()
	require.Error(t, err, "server must close the connection for an unknown user")
	assert.Equal(t, 0, h.registry.Len())
}

func TestHandshake_TimesOutWithoutHello(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)

	// The harness uses a 500ms handshake timeout; a silent client gets cut.
	require.NoError(t, c.SetReadDeadline(time.Now().Add(frameWait)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, h.registry.Len())
}

func TestSubmission_DeliveredToRecipient(t *testing.T) {
	h := newHarness(t)

	sender, _ := h.connect(t, h.alice.ID)
	recipient, _ := h.connect(t, h.bob.ID)

	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.alice.ID,
		RecipientID:     h.bob.ID,
		MessageContents: "hello bob",
	}))

	d := readDelivery(t, recipient)
	assert.Equal(t, wire.TypeMessage, d.Type)
	assert.Equal(t, h.alice.ID, d.SenderID)
	assert.Equal(t, h.bob.ID, d.RecipientID)
	assert.Equal(t, "hello bob", d.MessageContents)
	assert.Greater(t, d.MessageID, int64(0))

	require.Eventually(t, func() bool {
		msg, err := h.store.GetMessage(context.Background(), d.MessageID)
		return err == nil && msg.Status == store.StatusDelivered
	}, frameWait, 10*time.Millisecond)
}

func TestSubmission_FansOutToAllRecipientDevices(t *testing.T) {
	h := newHarness(t)

	sender, _ := h.connect(t, h.alice.ID)
	phone, _ := h.connect(t, h.bob.ID)
	laptop, _ := h.connect(t, h.bob.ID)

	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.alice.ID,
		RecipientID:     h.bob.ID,
		MessageContents: "everywhere",
	}))

	d1 := readDelivery(t, phone)
	d2 := readDelivery(t, laptop)
	assert.Equal(t, d1.MessageID, d2.MessageID)
	assert.Equal(t, "everywhere", d1.MessageContents)
}

func TestSubmission_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	h := newHarness(t)

	sender, _ := h.connect(t, h.alice.ID)
	recipient, _ := h.connect(t, h.bob.ID)

	// Garbage first; the session drops it and keeps reading.
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("not a frame")))

	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.alice.ID,
		RecipientID:     h.bob.ID,
		MessageContents: "still alive",
	}))

	d := readDelivery(t, recipient)
	assert.Equal(t, "still alive", d.MessageContents)
}

func TestSubmission_ForeignSenderDropped(t *testing.T) {
	h := newHarness(t)

	sender, _ := h.connect(t, h.alice.ID)

	// Claiming someone else's identity is dropped without persisting anything.
	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.bob.ID,
		RecipientID:     h.alice.ID,
		MessageContents: "spoofed",
	}))

	time.Sleep(100 * time.Millisecond)
	n, err := h.store.CountPending(context.Background(), h.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// The connection itself survives.
	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.alice.ID,
		RecipientID:     h.bob.ID,
		MessageContents: "legitimate",
	}))
	require.Eventually(t, func() bool {
		n, err := h.store.CountPending(context.Background(), h.bob.ID)
		return err == nil && n == 1
	}, frameWait, 10*time.Millisecond)
}

func TestSubmission_OfflineRecipientStaysPending(t *testing.T) {
	h := newHarness(t)

	sender, _ := h.connect(t, h.alice.ID)

	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.alice.ID,
		RecipientID:     h.bob.ID,
		MessageContents: "for later",
	}))

	require.Eventually(t, func() bool {
		n, err := h.store.CountPending(context.Background(), h.bob.ID)
		return err == nil && n == 1
	}, frameWait, 10*time.Millisecond)
}

func TestDisconnect_Unregisters(t *testing.T) {
	h := newHarness(t)

	c, _ := h.connect(t, h.alice.ID)
	require.Eventually(t, func() bool {
		return h.registry.Len() == 1
	}, frameWait, 10*time.Millisecond)

	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		return h.registry.Len() == 0
	}, frameWait, 10*time.Millisecond)
}

func TestDisconnect_SiblingDeviceKeepsReceiving(t *testing.T) {
	h := newHarness(t)

	sender, _ := h.connect(t, h.alice.ID)
	phone, _ := h.connect(t, h.bob.ID)
	laptop, _ := h.connect(t, h.bob.ID)

	require.NoError(t, phone.Close())
	require.Eventually(t, func() bool {
		return h.registry.Len() == 2
	}, frameWait, 10*time.Millisecond)

	require.NoError(t, sender.WriteJSON(wire.Submission{
		SenderID:        h.alice.ID,
		RecipientID:     h.bob.ID,
		MessageContents: "one device left",
	}))

	d := readDelivery(t, laptop)
	assert.Equal(t, "one device left", d.MessageContents)
}

func TestDeliver_SlowConsumerIsTornDown(t *testing.T) {
	h := newHarnessWithSession(t, session.Config{
		HandshakeTimeout: 500 * time.Millisecond,
		DeliverTimeout:   50 * time.Millisecond,
		SendBuffer:       4,
	})

	// The recipient completes the handshake and then never reads again.
	_, _ = h.connect(t, h.bob.ID)
	require.Eventually(t, func() bool {
		return h.registry.Len() == 1
	}, frameWait, 10*time.Millisecond)

	conns := h.registry.ConnectionsFor(h.bob.ID)
	require.Len(t, conns, 1)

	// Push large frames until the bounded channel and the socket buffers are
	// both saturated. The session must fail the push instead of queueing
	// without bound.
	payload := bytes.Repeat([]byte("x"), 256*1024)
	var deliverErr error
	for i := 0; i < 256; i++ {
		if err := conns[0].Deliver(payload); err != nil {
			deliverErr = err
			break
		}
	}
	require.ErrorIs(t, deliverErr, session.ErrSlowConsumer)

	// The failed push tears the stalled connection down and unregisters it
	// exactly once.
	require.Eventually(t, func() bool {
		return h.registry.Len() == 0
	}, frameWait, 10*time.Millisecond)

	// A message routed during or after the teardown must not be reported
	// delivered.
	msg, err := h.router.Submit(context.Background(), h.alice.ID, h.bob.ID, "missed")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)
	stored, err := h.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.NotEqual(t, store.StatusDelivered, stored.Status)

	// Later pushes against the dead session fail fast.
	require.ErrorIs(t, conns[0].Deliver(payload), session.ErrSessionClosed)
}

func TestConcurrentSenders(t *testing.T) {
	h := newHarness(t)

	recipient, _ := h.connect(t, h.bob.ID)

	const senders = 4
	for i := 0; i < senders; i++ {
		c, _ := h.connect(t, h.alice.ID)
		require.NoError(t, c.WriteJSON(wire.Submission{
			SenderID:        h.alice.ID,
			RecipientID:     h.bob.ID,
			MessageContents: fmt.Sprintf("from device %d", i),
		}))
	}

	seen := make(map[int64]bool)
	for i := 0; i < senders; i++ {
		d := readDelivery(t, recipient)
		assert.False(t, seen[d.MessageID], "message %d delivered twice", d.MessageID)
		seen[d.MessageID] = true
	}
}
