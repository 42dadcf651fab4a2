package store

import (
	"context"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

// Store defines the contract for one shop's local mirror: four collections
// (orders, tickets, ticketPatches, settings), each operation transactional.
// Entities are replaced wholesale; there is no field-level merge.
type Store interface {
	PutOrders(ctx context.Context, orders []types.Order) error
	GetOrder(ctx context.Context, id string) (*types.Order, error)
	GetAllOrders(ctx context.Context) ([]types.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ClearOrders(ctx context.Context) error

	PutTickets(ctx context.Context, tickets []types.Ticket) error
	GetTicket(ctx context.Context, secret string) (*types.Ticket, error)
	GetAllTickets(ctx context.Context) ([]types.Ticket, error)
	DeleteTicket(ctx context.Context, secret string) error
	ClearTickets(ctx context.Context) error

	PutPatch(ctx context.Context, patch types.TicketPatch) error
	GetAllPatches(ctx context.Context) ([]types.TicketPatch, error)
	DeletePatch(ctx context.Context, secret string) error
	DeletePatchThrough(ctx context.Context, secret string, queuedAt time.Time) (bool, error)

	GetSetting(ctx context.Context, name string) (string, error)
	SetSetting(ctx context.Context, name, value string) error
	DeleteSetting(ctx context.Context, name string) error

	SchemaVersion() (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats holds aggregate mirror statistics for one shop database.
type Stats struct {
	Orders         int64      `json:"orders"`
	Tickets        int64      `json:"tickets"`
	PendingPatches int64      `json:"pendingPatches"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt,omitempty"`
}
