// Package testutil holds polling helpers shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"
)

// WaitFor polls condition with a ticker until it returns true or the timeout expires.
// Returns true if the condition was met, false on timeout.
func WaitFor(t *testing.T, timeout time.Duration, interval time.Duration, condition func() bool) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if condition() {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}

// RequireEventually fails the test if condition does not hold within timeout.
func RequireEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	if !WaitFor(t, timeout, 5*time.Millisecond, condition) {
		t.Fatalf("condition not met within %v: %s", timeout, msg)
	}
}
