package sync

import (
	gosync "sync"

	"github.com/venuekit/turnstile/internal/types"
)

// Bus fans committed pages out to subscribers. The orchestrator publishes
// each page after it is committed and the cursor advanced; the outbox
// publishes acknowledged tickets. Delivery happens on the engine's task
// queue goroutine, so subscribers must not block for long.
type Bus struct {
	mu      gosync.Mutex
	nextID  int
	orders  map[int]func([]types.Order)
	tickets map[int]func([]types.Ticket)
}

// NewBus creates an empty listener registry.
func NewBus() *Bus {
	return &Bus{
		orders:  make(map[int]func([]types.Order)),
		tickets: make(map[int]func([]types.Ticket)),
	}
}

// SubscribeOrders registers fn for order pages. The returned func removes
// the subscription.
func (b *Bus) SubscribeOrders(fn func([]types.Order)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.orders[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.orders, id)
	}
}

// SubscribeTickets registers fn for ticket pages. The returned func removes
// the subscription.
func (b *Bus) SubscribeTickets(fn func([]types.Ticket)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.tickets[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.tickets, id)
	}
}

// PublishOrders delivers a committed order page to every subscriber.
func (b *Bus) PublishOrders(orders []types.Order) {
	if len(orders) == 0 {
		return
	}
	for _, fn := range b.ordersSnapshot() {
		fn(orders)
	}
}

// PublishTickets delivers a committed ticket page to every subscriber.
func (b *Bus) PublishTickets(tickets []types.Ticket) {
	if len(tickets) == 0 {
		return
	}
	for _, fn := range b.ticketsSnapshot() {
		fn(tickets)
	}
}

// Snapshots are taken under the lock so a subscriber can unsubscribe from
// inside its own callback without deadlocking.
func (b *Bus) ordersSnapshot() []func([]types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fns := make([]func([]types.Order), 0, len(b.orders))
	for _, fn := range b.orders {
		fns = append(fns, fn)
	}
	return fns
}

func (b *Bus) ticketsSnapshot() []func([]types.Ticket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fns := make([]func([]types.Ticket), 0, len(b.tickets))
	for _, fn := range b.tickets {
		fns = append(fns, fn)
	}
	return fns
}
