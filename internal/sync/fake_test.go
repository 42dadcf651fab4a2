package sync

import (
	"context"
	gosync "sync"
	"testing"

	"github.com/venuekit/turnstile/internal/store"
	"github.com/venuekit/turnstile/internal/types"
)

// fakeTransport scripts page responses and records every call. The block
// channels, when set, let tests hold a call open to exercise joining and
// reentrancy guarantees.
type fakeTransport struct {
	mu gosync.Mutex

	orderPages  []types.OrdersPage
	ticketPages []types.TicketsPage

	orderFetches  int
	ticketFetches int
	submits       int

	submitErr      error
	submitResponse func(patches []types.TicketPatch) types.PatchResponse
	submittedKeys  []string
	submitted      [][]types.TicketPatch

	fetchErr error

	blockSubmit chan struct{} // closed by the test to release a held submit
	submitting  chan struct{} // signalled when a submit has started

	blockFetch chan struct{}
	fetching   chan struct{}

	blockReg   chan struct{}
	regWaiting chan struct{}

	registrations []types.SealedRegistration
	groups        []types.Group
	regErr        error
	regFetches    int
}

func (f *fakeTransport) FetchOrders(ctx context.Context, shop string, filter types.CursorFilter, limit int) (types.OrdersPage, error) {
	f.mu.Lock()
	n := f.orderFetches
	f.orderFetches++
	pages := f.orderPages
	err := f.fetchErr
	blockFetch, fetching := f.blockFetch, f.fetching
	f.mu.Unlock()

	if fetching != nil {
		fetching <- struct{}{}
	}
	if blockFetch != nil {
		<-blockFetch
	}
	if cerr := ctx.Err(); cerr != nil {
		return types.OrdersPage{}, cerr
	}
	if err != nil {
		return types.OrdersPage{}, err
	}
	if n >= len(pages) {
		return types.OrdersPage{}, nil
	}
	return pages[n], nil
}

func (f *fakeTransport) FetchTickets(ctx context.Context, shop string, filter types.CursorFilter, limit int) (types.TicketsPage, error) {
	f.mu.Lock()
	n := f.ticketFetches
	f.ticketFetches++
	pages := f.ticketPages
	err := f.fetchErr
	f.mu.Unlock()

	if err != nil {
		return types.TicketsPage{}, err
	}
	if n >= len(pages) {
		return types.TicketsPage{}, nil
	}
	return pages[n], nil
}

func (f *fakeTransport) SubmitTicketPatches(ctx context.Context, shop string, patches []types.TicketPatch, idempotencyKey string) (types.PatchResponse, error) {
	f.mu.Lock()
	f.submits++
	f.submittedKeys = append(f.submittedKeys, idempotencyKey)
	f.submitted = append(f.submitted, patches)
	err := f.submitErr
	respond := f.submitResponse
	blockSubmit, submitting := f.blockSubmit, f.submitting
	f.mu.Unlock()

	if submitting != nil {
		submitting <- struct{}{}
	}
	if blockSubmit != nil {
		<-blockSubmit
	}
	if err != nil {
		return types.PatchResponse{}, err
	}
	if respond != nil {
		return respond(patches), nil
	}
	return types.PatchResponse{}, nil
}

func (f *fakeTransport) FetchRegistrations(ctx context.Context, org string) ([]types.SealedRegistration, error) {
	f.mu.Lock()
	f.regFetches++
	regs := f.registrations
	err := f.regErr
	blockReg, regWaiting := f.blockReg, f.regWaiting
	f.mu.Unlock()

	if regWaiting != nil {
		regWaiting <- struct{}{}
	}
	if blockReg != nil {
		<-blockReg
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (f *fakeTransport) FetchGroups(ctx context.Context, org string) ([]types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.regErr != nil {
		return nil, f.regErr
	}
	return f.groups, nil
}

func (f *fakeTransport) orderFetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderFetches
}

func (f *fakeTransport) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(client Transport) Session {
	return Session{Shop: "demo", Organization: "acme", Client: client}
}
