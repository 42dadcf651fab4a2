package sync

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

func boolPtr(b bool) *bool { return &b }

func queuedPatch(secret string, checkedIn bool, at time.Time) types.TicketPatch {
	return types.TicketPatch{Secret: secret, CheckedIn: boolPtr(checkedIn), QueuedAt: at}
}

// ackAll answers every submitted patch with an authoritative ticket.
func ackAll(patches []types.TicketPatch) types.PatchResponse {
	var resp types.PatchResponse
	for _, p := range patches {
		t := types.Ticket{ID: "id-" + p.Secret, Secret: p.Secret, UpdatedAt: time.Now().UTC()}
		p.Apply(&t)
		resp.Results = append(resp.Results, t)
	}
	return resp
}

func TestOutboxEnqueueLastWriterWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ft := &fakeTransport{}
	ob := NewOutbox(testSession(ft), s, nil, nil)

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", false, base.Add(time.Minute))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d queued patches, want 1", len(pending))
	}
	if pending[0].CheckedIn == nil || *pending[0].CheckedIn {
		t.Errorf("latest edit should win, got %+v", pending[0])
	}
}

func TestOutboxEnqueueWithoutSecretIsConsistencyViolation(t *testing.T) {
	ob := NewOutbox(testSession(&fakeTransport{}), newTestStore(t), nil, nil)
	err := ob.Enqueue(context.Background(), types.TicketPatch{CheckedIn: boolPtr(true)})
	if !errors.Is(err, ErrConsistency) {
		t.Errorf("expected ErrConsistency, got %v", err)
	}
}

func TestOutboxSpeculativeApply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := s.PutTickets(ctx, []types.Ticket{{ID: "t1", Secret: "sec-1", UpdatedAt: now}}); err != nil {
		t.Fatalf("PutTickets failed: %v", err)
	}

	ob := NewOutbox(testSession(&fakeTransport{}), s, nil, nil)
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, now)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	ticket, err := s.GetTicket(ctx, "sec-1")
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if !ticket.CheckedIn {
		t.Error("local read should see the edit before the server confirms it")
	}
}

func TestOutboxFlushSuccessClearsAcknowledgedKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ft := &fakeTransport{submitResponse: ackAll}
	ob := NewOutbox(testSession(ft), s, nil, nil)

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ob.Enqueue(ctx, queuedPatch("sec-2", true, base.Add(time.Second))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := ob.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("queue should be empty after acknowledged flush, got %d", len(pending))
	}

	// Authoritative tickets replaced the local copies.
	ticket, err := s.GetTicket(ctx, "sec-1")
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if !ticket.CheckedIn {
		t.Errorf("authoritative ticket not persisted: %+v", ticket)
	}

	// Sequential flushes after success make no further network requests.
	for i := 0; i < 3; i++ {
		if err := ob.Flush(ctx); err != nil {
			t.Fatalf("repeat Flush failed: %v", err)
		}
	}
	if got := ft.submitCount(); got != 1 {
		t.Errorf("submit count = %d, want 1 (empty queue must not submit)", got)
	}
}

func TestOutboxFlushPartialAcknowledgementKeepsUncovered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ft := &fakeTransport{
		submitResponse: func(patches []types.TicketPatch) types.PatchResponse {
			// Server only applied the first patch.
			return ackAll(patches[:1])
		},
	}
	ob := NewOutbox(testSession(ft), s, nil, nil)

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ob.Enqueue(ctx, queuedPatch("sec-2", true, base.Add(time.Second))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := ob.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Secret != "sec-2" {
		t.Errorf("uncovered patch should stay queued, got %+v", pending)
	}
}

func TestOutboxFlushConnectivityFailureSilentlyKeepsQueue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ft := &fakeTransport{submitErr: syscall.ECONNREFUSED}
	ob := NewOutbox(testSession(ft), s, nil, nil)

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := ob.Enqueue(ctx, queuedPatch("sec-A", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := ob.Flush(ctx); err != nil {
		t.Errorf("connectivity failure must not raise to the caller, got %v", err)
	}

	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Secret != "sec-A" {
		t.Errorf("queue should be intact after connectivity failure, got %+v", pending)
	}
}

func TestOutboxFlushServerErrorPropagates(t *testing.T) {
	ctx := context.Background()
	serverErr := errors.New("http 422: bad patch")
	ft := &fakeTransport{submitErr: serverErr}
	ob := NewOutbox(testSession(ft), newTestStore(t), nil, nil)

	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, time.Now().UTC())); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ob.Flush(ctx); !errors.Is(err, serverErr) {
		t.Errorf("non-connectivity failure must propagate, got %v", err)
	}
}

func TestOutboxFlushReentrancyGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ft := &fakeTransport{
		submitResponse: ackAll,
		blockSubmit:    make(chan struct{}),
		submitting:     make(chan struct{}, 1),
	}
	ob := NewOutbox(testSession(ft), s, nil, nil)

	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, time.Now().UTC())); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ob.Flush(ctx) }()
	<-ft.submitting // first flush has reached the network

	// A second flush while one is in progress is a no-op.
	if err := ob.Flush(ctx); err != nil {
		t.Errorf("reentrant Flush returned %v, want nil", err)
	}
	if got := ft.submitCount(); got != 1 {
		t.Errorf("submit count = %d, want 1 (no second request while in flight)", got)
	}

	close(ft.blockSubmit)
	if err := <-done; err != nil {
		t.Fatalf("first Flush failed: %v", err)
	}
}

func TestOutboxFlushInFlightOverwriteStaysQueued(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := s.PutTickets(ctx, []types.Ticket{{ID: "t1", Secret: "sec-1", UpdatedAt: base}}); err != nil {
		t.Fatalf("PutTickets failed: %v", err)
	}

	ft := &fakeTransport{
		submitResponse: ackAll,
		blockSubmit:    make(chan struct{}),
		submitting:     make(chan struct{}, 2),
	}
	ob := NewOutbox(testSession(ft), s, nil, nil)

	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ob.Flush(ctx) }()
	<-ft.submitting // scan submitted, acknowledgement held open

	// The scan is undone while its delivery is still in flight.
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", false, base.Add(time.Minute))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	close(ft.blockSubmit)
	if err := <-done; err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// The undo must survive the scan's acknowledgement.
	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d queued patches after ack, want the undo still queued", len(pending))
	}
	if pending[0].CheckedIn == nil || *pending[0].CheckedIn {
		t.Errorf("queued patch should be the undo, got %+v", pending[0])
	}

	// So must its speculative mirror state.
	ticket, err := s.GetTicket(ctx, "sec-1")
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if ticket.CheckedIn {
		t.Error("acknowledged scan clobbered the newer local undo")
	}

	// The next flush delivers the undo.
	if err := ob.Flush(ctx); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	pending, _ = ob.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("undo should deliver on the next flush, got %d queued", len(pending))
	}
}

func TestOutboxMemoryModeInFlightOverwriteStaysQueued(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{
		submitResponse: ackAll,
		blockSubmit:    make(chan struct{}),
		submitting:     make(chan struct{}, 1),
	}
	ob := NewOutbox(testSession(ft), nil, nil, nil) // no durable store

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- ob.Flush(ctx) }()
	<-ft.submitting

	if err := ob.Enqueue(ctx, queuedPatch("sec-1", false, base.Add(time.Minute))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	close(ft.blockSubmit)
	if err := <-done; err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].CheckedIn == nil || *pending[0].CheckedIn {
		t.Errorf("newer edit should stay queued after the older one's ack, got %+v", pending)
	}
}

func TestOutboxMemoryOnlyModeStillQueuesAndFlushes(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{submitResponse: ackAll}
	ob := NewOutbox(testSession(ft), nil, nil, nil) // no durable store

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, base)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ob.Enqueue(ctx, queuedPatch("sec-1", false, base.Add(time.Minute))); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pending, err := ob.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d queued patches, want 1", len(pending))
	}

	if err := ob.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	pending, _ = ob.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("memory queue should drain after flush, got %d", len(pending))
	}
}

func TestOutboxFlushCarriesIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	ft := &fakeTransport{submitResponse: ackAll}
	ob := NewOutbox(testSession(ft), newTestStore(t), nil, nil)

	if err := ob.Enqueue(ctx, queuedPatch("sec-1", true, time.Now().UTC())); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := ob.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.submittedKeys) != 1 || ft.submittedKeys[0] == "" {
		t.Errorf("flush should carry a non-empty idempotency key, got %v", ft.submittedKeys)
	}
}
