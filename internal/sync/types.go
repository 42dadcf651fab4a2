// Package sync implements the local-first synchronization engine: it
// mirrors a shop's paginated order and ticket streams into the local store,
// queues check-in patches in a durable outbox until the server acknowledges
// them, and materializes sealed attendee registrations on read.
package sync

import (
	"context"

	"github.com/venuekit/turnstile/internal/types"
	"github.com/venuekit/turnstile/pkg/sealedbox"
)

// Stream identifies one server-ordered entity stream.
type Stream string

const (
	StreamOrders  Stream = "orders"
	StreamTickets Stream = "tickets"
)

// Transport is the slice of the shop API the engine consumes. Implemented
// by transport.Client; tests substitute fakes.
type Transport interface {
	FetchOrders(ctx context.Context, shop string, filter types.CursorFilter, limit int) (types.OrdersPage, error)
	FetchTickets(ctx context.Context, shop string, filter types.CursorFilter, limit int) (types.TicketsPage, error)
	SubmitTicketPatches(ctx context.Context, shop string, patches []types.TicketPatch, idempotencyKey string) (types.PatchResponse, error)
	FetchRegistrations(ctx context.Context, org string) ([]types.SealedRegistration, error)
	FetchGroups(ctx context.Context, org string) ([]types.Group, error)
}

// Session carries everything one engine instance needs about its remote
// counterpart. It replaces any notion of a process-wide current session:
// every entry point receives it explicitly, so tests inject fakes freely.
// The key pair is borrowed from the session keychain; the engine never
// persists or logs it.
type Session struct {
	Shop         string
	Organization string
	Client       Transport
	KeyPair      sealedbox.KeyPair
}
