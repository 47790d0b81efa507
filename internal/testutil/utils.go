package testutil

import (
	"log"
	"os"
	"testing"
	"time"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// Eventually polls cond until it holds or the deadline passes. The
// gateway delivers events asynchronously, so tests wait rather than
// sleep fixed amounts.
func Eventually(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}

	return cond()
}
