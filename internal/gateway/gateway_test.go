// ABOUTME: Tests for gateway construction, health handlers, and lifecycle
// ABOUTME: Includes a full start-then-cancel smoke test on ephemeral ports

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshdirkx/chat-rs/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			GRPCAddr: "127.0.0.1:0",
			WSAddr:   "127.0.0.1:0",
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
	}
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	t.Setenv("CHAT_DB_PATH", "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := New(testConfig(), logger)
	require.NoError(t, err)
	return gw
}

func TestNew(t *testing.T) {
	gw := newTestGateway(t)
	defer gw.store.Close()

	assert.NotNil(t, gw.store)
	assert.NotNil(t, gw.registry)
	assert.NotNil(t, gw.router)
	assert.NotNil(t, gw.grpcServer)
	assert.NotNil(t, gw.httpServer)
	assert.NotEmpty(t, gw.serverID)
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t)
	defer gw.store.Close()

	rec := httptest.NewRecorder()
	gw.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleReady(t *testing.T) {
	gw := newTestGateway(t)
	defer gw.store.Close()

	rec := httptest.NewRecorder()
	gw.handleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready (0 connections)")
}

func TestRun_GracefulShutdownOnCancel(t *testing.T) {
	gw := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- gw.Run(ctx)
	}()

	// Give both listeners time to come up, then signal shutdown.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestRun_ListenFailureReported(t *testing.T) {
	t.Setenv("CHAT_DB_PATH", "")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Occupy a port so the gateway's gRPC bind fails.
	blocker, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()

	cfg := testConfig()
	cfg.Server.GRPCAddr = blocker.Addr().String()
	gw, err := New(cfg, logger)
	require.NoError(t, err)
	defer gw.store.Close()

	err = gw.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gRPC address")
}

func TestGenerateServerID(t *testing.T) {
	a := generateServerID()
	b := generateServerID()

	assert.True(t, strings.HasPrefix(a, "chat-gateway-"))
	require.NoError(t, uuid.Validate(strings.TrimPrefix(a, "chat-gateway-")))
	assert.NotEqual(t, a, b)
}

func TestSessionContext_DefaultsBeforeRun(t *testing.T) {
	gw := newTestGateway(t)
	defer gw.store.Close()

	ctx := gw.sessionContext()
	require.NotNil(t, ctx)
	assert.NoError(t, ctx.Err())
}
