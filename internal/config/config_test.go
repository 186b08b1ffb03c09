// ABOUTME: Tests for configuration loading, env expansion, and validation
// ABOUTME: Uses temp YAML files to exercise the full Load path

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc_addr: "127.0.0.1:50051"
  ws_addr: "127.0.0.1:8080"
database:
  path: "/tmp/test.db"
  max_conns: 10
  pool_timeout: "3s"
  max_message_bytes: 2048
session:
  send_buffer: 128
  deliver_timeout: "500ms"
  handshake_timeout: "5s"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.GRPCAddr != "127.0.0.1:50051" {
		t.Errorf("grpc_addr mismatch: got %q", cfg.Server.GRPCAddr)
	}
	if cfg.Server.WSAddr != "127.0.0.1:8080" {
		t.Errorf("ws_addr mismatch: got %q", cfg.Server.WSAddr)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("max_conns mismatch: got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.PoolTimeout != 3*time.Second {
		t.Errorf("pool_timeout mismatch: got %v", cfg.Database.PoolTimeout)
	}
	if cfg.Database.MaxMessageBytes != 2048 {
		t.Errorf("max_message_bytes mismatch: got %d", cfg.Database.MaxMessageBytes)
	}
	if cfg.Session.SendBuffer != 128 {
		t.Errorf("send_buffer mismatch: got %d", cfg.Session.SendBuffer)
	}
	if cfg.Session.DeliverTimeout != 500*time.Millisecond {
		t.Errorf("deliver_timeout mismatch: got %v", cfg.Session.DeliverTimeout)
	}
	if cfg.Session.HandshakeTimeout != 5*time.Second {
		t.Errorf("handshake_timeout mismatch: got %v", cfg.Session.HandshakeTimeout)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging mismatch: got %+v", cfg.Logging)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_DB_DIR", "/var/lib/chat")

	path := writeConfig(t, `
server:
  grpc_addr: "127.0.0.1:50051"
  ws_addr: "127.0.0.1:8080"
database:
  path: "${TEST_DB_DIR}/gateway.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "/var/lib/chat/gateway.db" {
		t.Errorf("env expansion failed: got %q", cfg.Database.Path)
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc_addr: "127.0.0.1:50051"
  ws_addr: "127.0.0.1:8080"
database:
  path: "${DEFINITELY_NOT_SET_ANYWHERE}"
`)

	// Empty database.path fails validation.
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for empty database.path")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/gateway.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc_addr: "127.0.0.1:50051"
  ws_addr: "127.0.0.1:8080"
database:
  path: "/tmp/test.db"
  pool_timeout: "five seconds"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
	if !strings.Contains(err.Error(), "pool_timeout") {
		t.Errorf("error should name the offending field: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg: Config{
				Server:   ServerConfig{GRPCAddr: ":50051", WSAddr: ":8080"},
				Database: DatabaseConfig{Path: "/tmp/db"},
			},
		},
		{
			name: "missing grpc addr",
			cfg: Config{
				Server:   ServerConfig{WSAddr: ":8080"},
				Database: DatabaseConfig{Path: "/tmp/db"},
			},
			wantErr: "grpc_addr",
		},
		{
			name: "missing ws addr",
			cfg: Config{
				Server:   ServerConfig{GRPCAddr: ":50051"},
				Database: DatabaseConfig{Path: "/tmp/db"},
			},
			wantErr: "ws_addr",
		},
		{
			name: "missing database path",
			cfg: Config{
				Server: ServerConfig{GRPCAddr: ":50051", WSAddr: ":8080"},
			},
			wantErr: "database.path",
		},
		{
			name: "tailscale without hostname",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true},
				Database:  DatabaseConfig{Path: "/tmp/db"},
			},
			wantErr: "tailscale.hostname",
		},
		{
			name: "tailscale makes addrs optional",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true, Hostname: "chat-gw"},
				Database:  DatabaseConfig{Path: "/tmp/db"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
