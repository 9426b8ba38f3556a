package backup

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestHostKeyCallbackTrustOnFirstUse(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "ssh", "known_hosts")

	callback, err := newHostKeyCallback(knownHostsPath, true)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key1 := generateTestPublicKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.5"), Port: 2222}

	if err := callback("backup.example.com:2222", addr, key1); err != nil {
		t.Fatalf("expected first key to be accepted, got %v", err)
	}

	data, err := os.ReadFile(knownHostsPath)
	if err != nil {
		t.Fatalf("expected known_hosts file to exist: %v", err)
	}
	if !strings.Contains(string(data), "[backup.example.com]:2222") {
		t.Fatalf("expected host entry in known_hosts, got %q", data)
	}

	if err := callback("backup.example.com:2222", addr, key1); err != nil {
		t.Fatalf("expected known key to be accepted, got %v", err)
	}

	key2 := generateTestPublicKey(t)
	if err := callback("backup.example.com:2222", addr, key2); err == nil {
		t.Fatalf("expected host key change to be rejected")
	}
}

func TestHostKeyCallbackRejectsUnknownWhenDisabled(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")

	callback, err := newHostKeyCallback(knownHostsPath, false)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}
	if err := callback("127.0.0.1:22", addr, generateTestPublicKey(t)); err == nil {
		t.Fatalf("expected unknown host key to be rejected")
	}
}

func TestHostKeyCallbackRequiresPath(t *testing.T) {
	if _, err := newHostKeyCallback(" ", true); err == nil {
		t.Fatalf("expected error for empty known_hosts path")
	}
}

func generateTestPublicKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pubKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to create public key: %v", err)
	}
	return pubKey
}
