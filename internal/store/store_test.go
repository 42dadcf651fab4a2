package store

import (
	"context"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

// mockStore is a compile-time check that the Store interface can be implemented.
type mockStore struct{}

var (
	_ Store = (*mockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

func (m *mockStore) PutOrders(ctx context.Context, orders []types.Order) error {
	return nil
}
func (m *mockStore) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	return nil, nil
}
func (m *mockStore) GetAllOrders(ctx context.Context) ([]types.Order, error) {
	return nil, nil
}
func (m *mockStore) DeleteOrder(ctx context.Context, id string) error {
	return nil
}
func (m *mockStore) ClearOrders(ctx context.Context) error {
	return nil
}
func (m *mockStore) PutTickets(ctx context.Context, tickets []types.Ticket) error {
	return nil
}
func (m *mockStore) GetTicket(ctx context.Context, secret string) (*types.Ticket, error) {
	return nil, nil
}
func (m *mockStore) GetAllTickets(ctx context.Context) ([]types.Ticket, error) {
	return nil, nil
}
func (m *mockStore) DeleteTicket(ctx context.Context, secret string) error {
	return nil
}
func (m *mockStore) ClearTickets(ctx context.Context) error {
	return nil
}
func (m *mockStore) PutPatch(ctx context.Context, patch types.TicketPatch) error {
	return nil
}
func (m *mockStore) GetAllPatches(ctx context.Context) ([]types.TicketPatch, error) {
	return nil, nil
}
func (m *mockStore) DeletePatch(ctx context.Context, secret string) error {
	return nil
}
func (m *mockStore) DeletePatchThrough(ctx context.Context, secret string, queuedAt time.Time) (bool, error) {
	return false, nil
}
func (m *mockStore) GetSetting(ctx context.Context, name string) (string, error) {
	return "", nil
}
func (m *mockStore) SetSetting(ctx context.Context, name, value string) error {
	return nil
}
func (m *mockStore) DeleteSetting(ctx context.Context, name string) error {
	return nil
}
func (m *mockStore) SchemaVersion() (int64, error) {
	return 0, nil
}
func (m *mockStore) Stats(ctx context.Context) (*Stats, error) {
	return nil, nil
}
func (m *mockStore) Close() error {
	return nil
}
