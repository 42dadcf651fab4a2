package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTicket_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	scanned := now.Add(-time.Minute)

	tk := Ticket{
		ID:          "01JTEST000000000000000000",
		OrderID:     "01JORDER00000000000000000",
		Secret:      "sec-abc123",
		Product:     "General Admission",
		HolderName:  "A. Holder",
		CheckedIn:   true,
		CheckedInAt: &scanned,
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now,
	}

	data, err := json.Marshal(tk)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Ticket
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.ID != tk.ID {
		t.Errorf("ID: got %q, want %q", decoded.ID, tk.ID)
	}
	if decoded.Secret != tk.Secret {
		t.Errorf("Secret: got %q, want %q", decoded.Secret, tk.Secret)
	}
	if decoded.CheckedIn != tk.CheckedIn {
		t.Errorf("CheckedIn: got %v, want %v", decoded.CheckedIn, tk.CheckedIn)
	}
	if decoded.CheckedInAt == nil {
		t.Fatal("CheckedInAt should not be nil")
	}
	if !decoded.CheckedInAt.Equal(*tk.CheckedInAt) {
		t.Errorf("CheckedInAt: got %v, want %v", *decoded.CheckedInAt, *tk.CheckedInAt)
	}
	if !decoded.UpdatedAt.Equal(tk.UpdatedAt) {
		t.Errorf("UpdatedAt: got %v, want %v", decoded.UpdatedAt, tk.UpdatedAt)
	}
}

func TestWireKeysAreCamelCase(t *testing.T) {
	now := time.Now().UTC()
	o := Order{
		ID:        "o1",
		Number:    "TS-0001",
		Status:    OrderPaid,
		Total:     2500,
		Currency:  "EUR",
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	raw := string(data)

	for _, key := range []string{`"id"`, `"number"`, `"status"`, `"total"`, `"currency"`, `"createdAt"`, `"updatedAt"`} {
		if !strings.Contains(raw, key) {
			t.Errorf("missing JSON key %s in output: %s", key, raw)
		}
	}
	for _, key := range []string{`"created_at"`, `"updated_at"`} {
		if strings.Contains(raw, key) {
			t.Errorf("found snake_case JSON key %s in output: %s", key, raw)
		}
	}
}

func TestCursor_Before(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	tests := []struct {
		name string
		a, b Cursor
		want bool
	}{
		{"earlier timestamp", Cursor{UpdatedAt: t1, TieBreak: "z"}, Cursor{UpdatedAt: t2, TieBreak: "a"}, true},
		{"later timestamp", Cursor{UpdatedAt: t2, TieBreak: "a"}, Cursor{UpdatedAt: t1, TieBreak: "z"}, false},
		{"equal timestamp, smaller tie-break", Cursor{UpdatedAt: t1, TieBreak: "a"}, Cursor{UpdatedAt: t1, TieBreak: "b"}, true},
		{"equal timestamp, larger tie-break", Cursor{UpdatedAt: t1, TieBreak: "b"}, Cursor{UpdatedAt: t1, TieBreak: "a"}, false},
		{"identical", Cursor{UpdatedAt: t1, TieBreak: "a"}, Cursor{UpdatedAt: t1, TieBreak: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("Before() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCursor_Filter(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Cursor{UpdatedAt: at, TieBreak: "TS-0042"}

	f := c.Filter()
	if f.UpdatedSince == nil {
		t.Fatal("UpdatedSince should not be nil")
	}
	if !f.UpdatedSince.Equal(at) {
		t.Errorf("UpdatedSince: got %v, want %v", *f.UpdatedSince, at)
	}
	if f.TieBreak != "TS-0042" {
		t.Errorf("TieBreak: got %q, want %q", f.TieBreak, "TS-0042")
	}
}

func TestEntityCursorTieBreaks(t *testing.T) {
	now := time.Now().UTC()

	o := Order{ID: "o1", Number: "TS-0007", UpdatedAt: now}
	if got := o.Cursor().TieBreak; got != "TS-0007" {
		t.Errorf("order tie-break: got %q, want order number", got)
	}

	tk := Ticket{ID: "t1", Secret: "sec-xyz", UpdatedAt: now}
	if got := tk.Cursor().TieBreak; got != "sec-xyz" {
		t.Errorf("ticket tie-break: got %q, want ticket secret", got)
	}
}

func TestPages_EmptyResultsMarshalAsArray(t *testing.T) {
	data, err := json.Marshal(OrdersPage{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"results":[]`) {
		t.Errorf("OrdersPage should marshal nil Results as []: %s", data)
	}
	if !strings.Contains(string(data), `"next":null`) {
		t.Errorf("OrdersPage should marshal nil Next as null: %s", data)
	}

	data, err = json.Marshal(PatchResponse{})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"results":[]`) {
		t.Errorf("PatchResponse should marshal nil Results as []: %s", data)
	}
}

func TestTicketPatch_PartialFieldsOmitted(t *testing.T) {
	p := TicketPatch{Secret: "sec-a", QueuedAt: time.Now().UTC()}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	raw := string(data)

	if strings.Contains(raw, `"checkedIn"`) {
		t.Errorf("nil CheckedIn should be omitted: %s", raw)
	}
	if strings.Contains(raw, `"holderName"`) {
		t.Errorf("nil HolderName should be omitted: %s", raw)
	}

	yes := true
	p.CheckedIn = &yes
	data, err = json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"checkedIn":true`) {
		t.Errorf("set CheckedIn should be present: %s", data)
	}
}
