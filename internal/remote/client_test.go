package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/instance"
)

var _ Shell = (*Client)(nil)

// writeTestKey writes a throwaway ed25519 private key and returns its path.
func writeTestKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(config.SSHConfig{}, nil)

	if c.connectTimeout != 10*time.Second {
		t.Errorf("connectTimeout = %v, want 10s", c.connectTimeout)
	}
	if c.commandTimeout != 30*time.Second {
		t.Errorf("commandTimeout = %v, want 30s", c.commandTimeout)
	}
	if c.logger == nil {
		t.Error("nil logger was not replaced")
	}
}

func TestClientRun_MissingKey(t *testing.T) {
	c := NewClient(config.SSHConfig{}, nil)
	defer c.Close()

	h := instance.Handle{
		ID:      "12345",
		SSHHost: "127.0.0.1",
		SSHPort: 22,
		KeyPath: "/nonexistent/id_ed25519",
	}

	_, err := c.Run(context.Background(), h, "true")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Run error = %v, want ErrInvalidInput for a missing key", err)
	}
}

func TestClientRun_GarbageKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, []byte("this is not a private key"), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	c := NewClient(config.SSHConfig{}, nil)
	defer c.Close()

	h := instance.Handle{ID: "12345", SSHHost: "127.0.0.1", SSHPort: 22, KeyPath: path}
	_, err := c.Run(context.Background(), h, "true")
	if err == nil {
		t.Fatal("Run succeeded with an unparseable key")
	}
	if !strings.Contains(err.Error(), "parse ssh key") {
		t.Errorf("Run error = %v, want a parse failure", err)
	}
}

func TestClientRun_DialRefused(t *testing.T) {
	// Grab a loopback port and close it again so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := NewClient(config.SSHConfig{ConnectTimeoutSeconds: 2}, nil)
	defer c.Close()

	h := instance.Handle{ID: "12345", SSHHost: "127.0.0.1", SSHPort: port, KeyPath: writeTestKey(t)}
	_, err = c.Run(context.Background(), h, "true")
	if err == nil {
		t.Fatal("Run succeeded against a closed port")
	}
	if !strings.Contains(err.Error(), "dial") {
		t.Errorf("Run error = %v, want a dial failure", err)
	}
}

func TestClientRun_ContextCanceled(t *testing.T) {
	// A listener that accepts but never speaks SSH leaves the handshake
	// hanging; cancellation must still return promptly.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	hold := make(chan struct{})
	t.Cleanup(func() { close(hold) })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		<-hold
		conn.Close()
	}()

	c := NewClient(config.SSHConfig{ConnectTimeoutSeconds: 30}, nil)
	defer c.Close()

	h := instance.Handle{
		ID:      "12345",
		SSHHost: "127.0.0.1",
		SSHPort: ln.Addr().(*net.TCPAddr).Port,
		KeyPath: writeTestKey(t),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = c.Run(ctx, h, "true")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run returned after %v, want prompt return on cancel", elapsed)
	}
}

func TestClientClose_Idempotent(t *testing.T) {
	c := NewClient(config.SSHConfig{}, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}
