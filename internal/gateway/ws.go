// ABOUTME: Websocket endpoint and health handlers for the data plane
// ABOUTME: Upgrades connections and hands them to per-connection sessions

package gateway

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/joshdirkx/chat-rs/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Transport-level auth is out of scope; origin policy belongs to the
	// deployment in front of the gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and runs a session for its lifetime.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := session.New(conn, g.store, g.registry, g.router, session.Config{
		SendBuffer:       g.config.Session.SendBuffer,
		DeliverTimeout:   g.config.Session.DeliverTimeout,
		HandshakeTimeout: g.config.Session.HandshakeTimeout,
		WriteTimeout:     g.config.Session.WriteTimeout,
		PongTimeout:      g.config.Session.PongTimeout,
		MaxFrameBytes:    g.config.Session.MaxFrameBytes,
	}, g.logger)

	go sess.Run(g.sessionContext())
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness and the live connection count.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connections)", g.registry.Len())
}
