package goftp

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

// generateTestRSAKey creates a test RSA private key and returns both PEM-encoded
// key content and a path to a temp file containing the key.
func generateTestRSAKey(t *testing.T) (string, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	privateKeyPEM := string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}))

	keyPath := filepath.Join(t.TempDir(), "test_key")
	if err := os.WriteFile(keyPath, []byte(privateKeyPEM), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return privateKeyPEM, keyPath
}

// createTempFile creates a temporary file with the given content.
func createTempFile(t *testing.T, content []byte) string {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "test_file")
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	return tmpFile
}

// assertFileContents verifies that a file has the expected content.
func assertFileContents(t *testing.T, path string, expected []byte) {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("failed to read file %s: %v", path, err)
		return
	}

	if string(content) != string(expected) {
		t.Errorf("file content mismatch:\nexpected: %q\ngot: %q", string(expected), string(content))
	}
}

// assertFileNotExists verifies that a file does not exist.
func assertFileNotExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Errorf("expected file to not exist: %s", path)
	}
}

// newTestConfig creates a Config pointing at a fake host with fast retries.
func newTestConfig() Config {
	return Config{
		Host:       "ftp.test",
		User:       "testuser",
		Password:   "secret",
		RetryCount: 3,
		RetryDelay: time.Millisecond,
		Logger:     logr.Discard(),
	}
}

// newTestFactory creates a factory whose sessions are served by server.
func newTestFactory(t *testing.T, server *MockServer, customize func(*Config)) *SessionFactory {
	t.Helper()

	config := newTestConfig()
	if customize != nil {
		customize(&config)
	}

	factory, err := NewSessionFactory(config, WithDialFunc(server.Dial))
	if err != nil {
		t.Fatalf("NewSessionFactory() error = %v", err)
	}
	return factory
}

// newTestPoolConfig returns pool settings with the background sweep disabled.
func newTestPoolConfig() PoolConfig {
	cfg := DefaultPoolConfig()
	cfg.EvictionInterval = -1
	cfg.MaxWait = 50 * time.Millisecond
	return cfg
}

// newTestPool creates a pool over server that is closed when the test ends.
func newTestPool(t *testing.T, server *MockServer, poolConfig PoolConfig, opts ...PoolOption) *Pool {
	t.Helper()

	pool := NewPool(newTestFactory(t, server, nil), poolConfig, opts...)
	t.Cleanup(pool.Close)
	return pool
}

// withTestProcessor creates a processor over a fresh mock server.
func withTestProcessor(t *testing.T, fn func(t *testing.T, proc *Processor, server *MockServer, pool *Pool), opts ...ProcessorOption) {
	t.Helper()

	server := NewMockServer()
	pool := newTestPool(t, server, newTestPoolConfig())
	fn(t, NewProcessor(pool, opts...), server, pool)
}

// checkPoolInvariants fails the test if the pool holds more sessions than allowed.
func checkPoolInvariants(t *testing.T, pool *Pool) {
	t.Helper()

	stats := pool.Stats()
	if stats.Idle+stats.InUse > stats.MaxTotal {
		t.Errorf("idle(%d)+inUse(%d) exceeds maxTotal %d", stats.Idle, stats.InUse, stats.MaxTotal)
	}
	if stats.Idle > stats.MaxIdle {
		t.Errorf("idle(%d) exceeds maxIdle %d", stats.Idle, stats.MaxIdle)
	}
}
