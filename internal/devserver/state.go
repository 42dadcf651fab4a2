package devserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/venuekit/turnstile/internal/types"
	"github.com/venuekit/turnstile/pkg/sealedbox"
)

// seedBase is the fixture clock origin. Seeded entities get strictly
// increasing updatedAt timestamps starting here, so a given seed always
// produces the same stream order.
var seedBase = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// State is the in-memory fixture the server serves from. All access goes
// through its methods; safe for concurrent use.
type State struct {
	mu      sync.Mutex
	orders  map[string]types.Order  // by ID
	tickets map[string]types.Ticket // by secret
	groups  []types.Group
	sealed  []types.SealedRegistration
	replay  map[string]types.PatchResponse // by idempotency key
	clock   time.Time
}

// NewState creates an empty fixture state.
func NewState() *State {
	return &State{
		orders:  make(map[string]types.Order),
		tickets: make(map[string]types.Ticket),
		replay:  make(map[string]types.PatchResponse),
		clock:   seedBase,
	}
}

// tick advances the fixture clock and returns it. Every mutation stamps
// entities with a strictly later updatedAt, so stream cursors never collide
// unless a test plants colliding timestamps on purpose.
func (s *State) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// SeedOptions controls fixture generation.
type SeedOptions struct {
	Seed            int64
	Orders          int
	TicketsPerOrder int
	Registrations   int
	// OrgPublicKey seals generated attendee records. Left zero, seeded
	// registrations carry no sealed envelope.
	OrgPublicKey [sealedbox.KeySize]byte
}

// Seed populates the state with a deterministic fixture: ULID-keyed orders
// and tickets, a small group set, and registrations sealed to the given
// organization key. Calling Seed on a non-empty state adds to it.
func (s *State) Seed(opts SeedOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rng := rand.New(rand.NewSource(opts.Seed))
	entropy := ulid.Monotonic(rng, 0)
	newID := func() string {
		return ulid.MustNew(ulid.Timestamp(s.clock), entropy).String()
	}

	statuses := []types.OrderStatus{types.OrderPaid, types.OrderPaid, types.OrderPaid, types.OrderPending, types.OrderCanceled}
	products := []string{"General Admission", "VIP", "Backstage", "Early Bird"}

	for i := 0; i < opts.Orders; i++ {
		created := s.tick()
		order := types.Order{
			ID:        newID(),
			Number:    fmt.Sprintf("ORD-%05d", i+1),
			Status:    statuses[rng.Intn(len(statuses))],
			Email:     fmt.Sprintf("buyer%03d@example.test", i+1),
			Total:     int64(rng.Intn(40)+1) * 1950,
			Currency:  "EUR",
			CreatedAt: created,
			UpdatedAt: s.tick(),
		}
		s.orders[order.ID] = order

		for j := 0; j < opts.TicketsPerOrder; j++ {
			id := newID()
			ticket := types.Ticket{
				ID:         id,
				OrderID:    order.ID,
				Secret:     "tk-" + id,
				Product:    products[rng.Intn(len(products))],
				HolderName: fmt.Sprintf("Holder %03d-%d", i+1, j+1),
				CreatedAt:  created,
				UpdatedAt:  s.tick(),
			}
			s.tickets[ticket.Secret] = ticket
		}
	}

	if len(s.groups) == 0 {
		s.groups = []types.Group{
			{ID: newID(), Name: "Main Floor", Capacity: 500},
			{ID: newID(), Name: "Balcony", Capacity: 120},
			{ID: newID(), Name: "Crew"},
		}
	}

	var zero [sealedbox.KeySize]byte
	for i := 0; i < opts.Registrations; i++ {
		reg := types.SealedRegistration{
			ID:        newID(),
			GroupID:   s.groups[rng.Intn(len(s.groups))].ID,
			UpdatedAt: s.tick(),
		}
		if opts.OrgPublicKey != zero {
			attendee := types.Attendee{
				Name:  fmt.Sprintf("Attendee %03d", i+1),
				Email: fmt.Sprintf("attendee%03d@example.test", i+1),
			}
			sealedText, err := sealAttendee(attendee, opts.OrgPublicKey)
			if err != nil {
				return fmt.Errorf("seal registration %d: %w", i, err)
			}
			reg.Sealed = sealedText
		}
		s.sealed = append(s.sealed, reg)
	}

	return nil
}

func sealAttendee(attendee types.Attendee, pub [sealedbox.KeySize]byte) (string, error) {
	raw, err := json.Marshal(attendee)
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]json.RawMessage{
		"v":        json.RawMessage("1"),
		"attendee": raw,
	})
	if err != nil {
		return "", err
	}
	return sealedbox.Seal(envelope, pub)
}

// PutOrder inserts or replaces an order, stamping a fresh updatedAt.
func (s *State) PutOrder(order types.Order) types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.UpdatedAt = s.tick()
	s.orders[order.ID] = order
	return order
}

// PutTicket inserts or replaces a ticket, stamping a fresh updatedAt.
func (s *State) PutTicket(ticket types.Ticket) types.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket.UpdatedAt = s.tick()
	s.tickets[ticket.Secret] = ticket
	return ticket
}

// ListOrders returns one page of the orders stream strictly after the filter
// position, ordered by (updatedAt, number).
func (s *State) ListOrders(filter types.CursorFilter, limit int) types.OrdersPage {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]types.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if afterFilter(filter, o.Cursor()) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Cursor().Before(matched[j].Cursor())
	})

	page := types.OrdersPage{Results: matched}
	if limit > 0 && len(matched) > limit {
		page.Results = matched[:limit]
		next := page.Results[limit-1].Cursor().Filter()
		page.Next = &next
	}
	if page.Results == nil {
		page.Results = []types.Order{}
	}
	return page
}

// ListTickets returns one page of the tickets stream strictly after the
// filter position, ordered by (updatedAt, secret).
func (s *State) ListTickets(filter types.CursorFilter, limit int) types.TicketsPage {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]types.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if afterFilter(filter, t.Cursor()) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Cursor().Before(matched[j].Cursor())
	})

	page := types.TicketsPage{Results: matched}
	if limit > 0 && len(matched) > limit {
		page.Results = matched[:limit]
		next := page.Results[limit-1].Cursor().Filter()
		page.Next = &next
	}
	if page.Results == nil {
		page.Results = []types.Ticket{}
	}
	return page
}

// afterFilter reports whether a stream position qualifies for the page after
// the filter. An unset filter admits everything; an empty tie-break admits
// every entity sharing the boundary timestamp.
func afterFilter(filter types.CursorFilter, c types.Cursor) bool {
	if filter.UpdatedSince == nil {
		return true
	}
	pos := types.Cursor{UpdatedAt: *filter.UpdatedSince, TieBreak: filter.TieBreak}
	return pos.Before(c)
}

// ApplyPatches applies a patch batch and returns the authoritative tickets
// for every patch that matched a known secret. Unknown secrets are skipped.
// A non-empty idempotency key that was seen before replays the recorded
// response without touching state.
func (s *State) ApplyPatches(patches []types.TicketPatch, idempotencyKey string) types.PatchResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if cached, ok := s.replay[idempotencyKey]; ok {
			return cached
		}
	}

	resp := types.PatchResponse{Results: []types.Ticket{}}
	for _, patch := range patches {
		ticket, ok := s.tickets[patch.Secret]
		if !ok {
			continue
		}
		patch.Apply(&ticket)
		ticket.UpdatedAt = s.tick()
		s.tickets[ticket.Secret] = ticket
		resp.Results = append(resp.Results, ticket)
	}

	if idempotencyKey != "" {
		s.replay[idempotencyKey] = resp
	}
	return resp
}

// Registrations returns the sealed registration listing.
func (s *State) Registrations() []types.SealedRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SealedRegistration, len(s.sealed))
	copy(out, s.sealed)
	return out
}

// Groups returns the group listing.
func (s *State) Groups() []types.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// Counts returns entity counts for the health endpoint.
func (s *State) Counts() (orders, tickets, registrations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders), len(s.tickets), len(s.sealed)
}
