package testutil

import (
	"bytes"
	"math/rand"
	"os"
	"testing"
	"time"
)

// Random string for unique prefixes
func RandString(n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// Utility: Wait for a condition or timeout
func WaitFor(t *testing.T, cond func() bool, timeout time.Duration, tick time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("WaitFor timeout: %s", msg)
}

func SetupTempDir(t *testing.T) (string, func()) {
	tempDir, err := os.MkdirTemp("", "testutil")
	if err != nil {
		t.Fatalf("failed to create temporary directory: %v", err)
	}
	return tempDir, func() { os.RemoveAll(tempDir) }
}

// WriteCloserBuffer is a bytes.Buffer that satisfies io.WriteCloser.
type WriteCloserBuffer struct {
	bytes.Buffer
}

func (b *WriteCloserBuffer) Close() error { return nil }
