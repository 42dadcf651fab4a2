package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

// mockFlusher implements Flusher for coordinator tests.
type mockFlusher struct {
	mu         sync.Mutex
	pending    []types.TicketPatch
	pendingErr error
	flushCalls int
	flushErr   error
}

func (m *mockFlusher) Pending(ctx context.Context) ([]types.TicketPatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	return m.pending, nil
}

func (m *mockFlusher) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCalls++
	if m.flushErr != nil {
		return m.flushErr
	}
	m.pending = nil
	return nil
}

func (m *mockFlusher) getFlushCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushCalls
}

func (m *mockFlusher) setPending(patches ...types.TicketPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = patches
}

func (m *mockFlusher) waitForFlushCalls(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.getFlushCalls() >= n {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func somePatch(secret string) types.TicketPatch {
	checked := true
	return types.TicketPatch{Secret: secret, CheckedIn: &checked, QueuedAt: time.Now().UTC()}
}

func TestFlushCoordinator_DrainsQueuedPatches(t *testing.T) {
	engine := &mockFlusher{}
	engine.setPending(somePatch("tk-1"), somePatch("tk-2"))
	c := NewFlushCoordinator(map[string]Flusher{"demo": engine}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if !engine.waitForFlushCalls(1, 2*time.Second) {
		t.Fatal("pending patches never flushed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestFlushCoordinator_SkipsEmptyQueues(t *testing.T) {
	engine := &mockFlusher{}
	c := NewFlushCoordinator(map[string]Flusher{"demo": engine}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if got := engine.getFlushCalls(); got != 0 {
		t.Errorf("flush calls = %d, want 0 for an empty queue", got)
	}
}

func TestFlushCoordinator_RetriesAfterRejection(t *testing.T) {
	engine := &mockFlusher{flushErr: errors.New("http 422")}
	engine.setPending(somePatch("tk-1"))
	c := NewFlushCoordinator(map[string]Flusher{"demo": engine}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if !engine.waitForFlushCalls(2, 2*time.Second) {
		t.Fatal("rejected flush was not retried on later cycles")
	}
}

func TestFlushCoordinator_SurvivesPendingInspectionFailure(t *testing.T) {
	broken := &mockFlusher{pendingErr: errors.New("database is locked")}
	healthy := &mockFlusher{}
	healthy.setPending(somePatch("tk-1"))
	c := NewFlushCoordinator(map[string]Flusher{
		"broken":  broken,
		"healthy": healthy,
	}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if !healthy.waitForFlushCalls(1, 2*time.Second) {
		t.Fatal("healthy shop never flushed while sibling inspection failed")
	}
}
