package acp

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/beeper/acp/pkg/jsonrpc"
)

func mustNotification(t *testing.T, method string) *jsonrpc.Notification {
	t.Helper()
	notif, err := jsonrpc.NewNotification(method, nil)
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}
	return notif
}

// safeBuffer is a bytes.Buffer usable as a zerolog sink from multiple
// goroutines.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(sink *safeBuffer) zerolog.Logger {
	return zerolog.New(sink).Level(zerolog.DebugLevel)
}
