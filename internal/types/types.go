package types

import (
	"encoding/json"
	"time"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderPaid     OrderStatus = "paid"
	OrderCanceled OrderStatus = "canceled"
	OrderRefunded OrderStatus = "refunded"
)

// Order represents one shop order. Orders are immutable-by-replacement: each
// sync page replaces the stored copy wholesale, never merging fields.
type Order struct {
	ID        string      `json:"id"`
	Number    string      `json:"number"`
	Status    OrderStatus `json:"status"`
	Email     string      `json:"email,omitempty"`
	Total     int64       `json:"total"` // minor currency units
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Ticket represents one admission ticket. The secret is the scan/check-in
// key and the ticket's uniqueness key.
type Ticket struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"orderId"`
	Secret      string     `json:"secret"`
	Product     string     `json:"product"`
	HolderName  string     `json:"holderName,omitempty"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TicketPatch is a partial mutation addressed to one ticket by its secret.
// Nil fields are "leave unchanged". QueuedAt records when the patch was
// enqueued locally; the server ignores it.
type TicketPatch struct {
	Secret      string     `json:"secret"`
	CheckedIn   *bool      `json:"checkedIn,omitempty"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	HolderName  *string    `json:"holderName,omitempty"`
	QueuedAt    time.Time  `json:"queuedAt"`
}

// Apply folds the patch's set fields into the ticket. Nil fields leave the
// ticket unchanged. Used for the speculative local apply while the patch
// waits for server acknowledgement.
func (p TicketPatch) Apply(t *Ticket) {
	if p.CheckedIn != nil {
		t.CheckedIn = *p.CheckedIn
	}
	if p.CheckedInAt != nil {
		t.CheckedInAt = p.CheckedInAt
	}
	if p.HolderName != nil {
		t.HolderName = *p.HolderName
	}
}

// Cursor marks the last synchronized position in a server-ordered stream.
// Streams are ordered by (updatedAt, tieBreak); the tie-break field is the
// entity's uniqueness key and must match the server's pagination contract
// exactly.
type Cursor struct {
	UpdatedAt time.Time `json:"updatedAt"`
	TieBreak  string    `json:"tieBreak"`
}

// Before reports whether c orders strictly before o in (updatedAt, tieBreak)
// order.
func (c Cursor) Before(o Cursor) bool {
	if !c.UpdatedAt.Equal(o.UpdatedAt) {
		return c.UpdatedAt.Before(o.UpdatedAt)
	}
	return c.TieBreak < o.TieBreak
}

// Filter converts the cursor into the pagination filter requesting the page
// after it.
func (c Cursor) Filter() CursorFilter {
	since := c.UpdatedAt
	return CursorFilter{UpdatedSince: &since, TieBreak: c.TieBreak}
}

// CursorFilter is the pagination filter carried on a fetch request. The zero
// value requests the stream from its origin.
type CursorFilter struct {
	UpdatedSince *time.Time `json:"updatedSince,omitempty"`
	TieBreak     string     `json:"tieBreak,omitempty"`
}

// OrdersPage is one page of the orders stream. Next is nil on the final page.
type OrdersPage struct {
	Results []Order       `json:"results"`
	Next    *CursorFilter `json:"next"`
}

// TicketsPage is one page of the tickets stream. Next is nil on the final page.
type TicketsPage struct {
	Results []Ticket      `json:"results"`
	Next    *CursorFilter `json:"next"`
}

// PatchRequest is the batch ticket-patch submission body.
type PatchRequest struct {
	Patches []TicketPatch `json:"patches"`
}

// PatchResponse carries the full authoritative ticket for every patch the
// server applied.
type PatchResponse struct {
	Results []Ticket `json:"results"`
}

// Group represents a ticket group (seating block, category) registrations
// are cross-referenced against.
type Group struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

// SealedRegistration is an attendee registration as served: the personal
// record is a sender-anonymous sealed box encrypted to the organization's
// public key, transported as base64 text. Sealed may be empty when no
// personal record was captured.
type SealedRegistration struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	Sealed    string    `json:"sealed,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attendee is the decrypted personal record carried inside a registration's
// sealed envelope.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Registration is a materialized attendee registration: group metadata
// attached, personal record decrypted when possible. Attendee is nil when
// the envelope was absent or could not be recovered; such registrations are
// still emitted.
type Registration struct {
	ID       string    `json:"id"`
	Group    *Group    `json:"group,omitempty"`
	Attendee *Attendee `json:"attendee,omitempty"`
}

// RegistrationList is the sealed-registrations listing for an organization.
type RegistrationList struct {
	Results []SealedRegistration `json:"results"`
}

// GroupList is the group listing for an organization.
type GroupList struct {
	Results []Group `json:"results"`
}

// Cursor returns the order's position in the orders stream. Orders tie-break
// on the order number.
func (o Order) Cursor() Cursor {
	return Cursor{UpdatedAt: o.UpdatedAt, TieBreak: o.Number}
}

// Cursor returns the ticket's position in the tickets stream. Tickets
// tie-break on the secret.
func (t Ticket) Cursor() Cursor {
	return Cursor{UpdatedAt: t.UpdatedAt, TieBreak: t.Secret}
}

// MarshalJSON ensures a nil Results slice marshals as [] not null.
func (p OrdersPage) MarshalJSON() ([]byte, error) {
	if p.Results == nil {
		p.Results = []Order{}
	}
	type Alias OrdersPage
	return json.Marshal(Alias(p))
}

// MarshalJSON ensures a nil Results slice marshals as [] not null.
func (p TicketsPage) MarshalJSON() ([]byte, error) {
	if p.Results == nil {
		p.Results = []Ticket{}
	}
	type Alias TicketsPage
	return json.Marshal(Alias(p))
}

// MarshalJSON ensures a nil Results slice marshals as [] not null.
func (p PatchResponse) MarshalJSON() ([]byte, error) {
	if p.Results == nil {
		p.Results = []Ticket{}
	}
	type Alias PatchResponse
	return json.Marshal(Alias(p))
}
