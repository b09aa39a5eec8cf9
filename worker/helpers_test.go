package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func waitFor(t *testing.T, done chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
