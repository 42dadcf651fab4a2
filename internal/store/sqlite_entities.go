package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/venuekit/turnstile/internal/types"
)

const (
	putOrderSQL  = `INSERT OR REPLACE INTO orders (id, doc, synced_at) VALUES (?, ?, ?)`
	putTicketSQL = `INSERT OR REPLACE INTO tickets (secret, doc, synced_at) VALUES (?, ?, ?)`
)

// PutOrders replaces the stored copy of each order atomically. The whole
// batch commits or none of it does.
func (s *SQLiteStore) PutOrders(ctx context.Context, orders []types.Order) error {
	if len(orders) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, putOrderSQL)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for i := range orders {
			doc, err := json.Marshal(orders[i])
			if err != nil {
				return fmt.Errorf("marshal order %s: %w", orders[i].ID, err)
			}
			if _, err := stmt.ExecContext(ctx, orders[i].ID, string(doc), now); err != nil {
				return fmt.Errorf("put order %s: %w", orders[i].ID, err)
			}
		}
		return nil
	})
}

// GetOrder retrieves one order by id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM orders WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	var order types.Order
	if err := json.Unmarshal([]byte(doc), &order); err != nil {
		return nil, fmt.Errorf("decode order %q: %w", id, err)
	}
	return &order, nil
}

// GetAllOrders returns every mirrored order.
func (s *SQLiteStore) GetAllOrders(ctx context.Context) ([]types.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM orders ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		var order types.Order
		if err := json.Unmarshal([]byte(doc), &order); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// DeleteOrder removes one order. Deleting an absent id is a no-op.
func (s *SQLiteStore) DeleteOrder(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete order %s: %w", id, err)
		}
		return nil
	})
}

// ClearOrders removes every order.
func (s *SQLiteStore) ClearOrders(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
			return fmt.Errorf("clear orders: %w", err)
		}
		return nil
	})
}

// PutTickets replaces the stored copy of each ticket atomically.
func (s *SQLiteStore) PutTickets(ctx context.Context, tickets []types.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, putTicketSQL)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC().Format(time.RFC3339Nano)
		for i := range tickets {
			doc, err := json.Marshal(tickets[i])
			if err != nil {
				return fmt.Errorf("marshal ticket %s: %w", tickets[i].Secret, err)
			}
			if _, err := stmt.ExecContext(ctx, tickets[i].Secret, string(doc), now); err != nil {
				return fmt.Errorf("put ticket %s: %w", tickets[i].Secret, err)
			}
		}
		return nil
	})
}

// GetTicket retrieves one ticket by secret.
func (s *SQLiteStore) GetTicket(ctx context.Context, secret string) (*types.Ticket, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM tickets WHERE secret = ?`, secret).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %q: %w", secret, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	var ticket types.Ticket
	if err := json.Unmarshal([]byte(doc), &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket %q: %w", secret, err)
	}
	return &ticket, nil
}

// GetAllTickets returns every mirrored ticket.
func (s *SQLiteStore) GetAllTickets(ctx context.Context) ([]types.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM tickets ORDER BY secret ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []types.Ticket
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		var ticket types.Ticket
		if err := json.Unmarshal([]byte(doc), &ticket); err != nil {
			return nil, fmt.Errorf("decode ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// DeleteTicket removes one ticket. Deleting an absent secret is a no-op.
func (s *SQLiteStore) DeleteTicket(ctx context.Context, secret string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE secret = ?`, secret); err != nil {
			return fmt.Errorf("delete ticket %s: %w", secret, err)
		}
		return nil
	})
}

// ClearTickets removes every ticket.
func (s *SQLiteStore) ClearTickets(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tickets`); err != nil {
			return fmt.Errorf("clear tickets: %w", err)
		}
		return nil
	})
}
