package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ticketing/internal/apperr"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	uniqueViolation   = "23505"
	activeTicketIndex = "orders_active_ticket_idx"
)

// ConnectPostgres opens and verifies a connection pool.
func ConnectPostgres(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Postgres implements TicketStore, OrderStore and PaymentStore.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func violates(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
}

func dbError(op string, err error) error {
	return apperr.Infrastructure(op, err)
}

func (p *Postgres) insert(ctx context.Context, entity, id, query string, row any) error {
	_, err := p.db.NamedExecContext(ctx, query, row)
	switch {
	case isUniqueViolation(err):
		return alreadyExists(entity, id)
	case err != nil:
		return dbError("insert "+entity, err)
	}
	return nil
}

func (p *Postgres) get(ctx context.Context, entity string, dest any, query string, args ...any) error {
	err := p.db.GetContext(ctx, dest, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return notFound(entity)
	case err != nil:
		return dbError("get "+entity, err)
	}
	return nil
}

// update runs a named UPDATE guarded by "version = :expected_version".
func (p *Postgres) update(ctx context.Context, entity, id string, expected int, query string, row map[string]any) error {
	row["expected_version"] = expected
	res, err := p.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return dbError("update "+entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("update "+entity, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := p.db.GetContext(ctx, &exists,
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", tableFor[entity]), id); err != nil {
		return dbError("update "+entity, err)
	}
	if !exists {
		return notFound(entity)
	}
	return versionConflict(entity, id, expected)
}

var tableFor = map[string]string{
	"ticket":        "tickets",
	"order ticket":  "order_tickets",
	"order":         "orders",
	"payment order": "payment_orders",
}

// ====================
// Tickets
// ====================

func (p *Postgres) InsertTicket(ctx context.Context, t Ticket) error {
	return p.insert(ctx, "ticket", t.ID, `
		INSERT INTO tickets (id, title, price, user_id, order_id, version, order_versions)
		VALUES (:id, :title, :price, :user_id, :order_id, :version, :order_versions)`, t)
}

func (p *Postgres) GetTicket(ctx context.Context, id string) (Ticket, error) {
	var t Ticket
	err := p.get(ctx, "ticket", &t, `SELECT * FROM tickets WHERE id = $1`, id)
	return t, err
}

func (p *Postgres) ListTickets(ctx context.Context) ([]Ticket, error) {
	var tickets []Ticket
	if err := p.db.SelectContext(ctx, &tickets, `SELECT * FROM tickets ORDER BY id`); err != nil {
		return nil, dbError("list tickets", err)
	}
	return tickets, nil
}

func (p *Postgres) UpdateTicket(ctx context.Context, t Ticket, expectedVersion int) error {
	return p.update(ctx, "ticket", t.ID, expectedVersion, `
		UPDATE tickets SET
			title = :title,
			price = :price,
			order_id = :order_id,
			version = :version,
			order_versions = :order_versions
		WHERE id = :id AND version = :expected_version`,
		map[string]any{
			"id":             t.ID,
			"title":          t.Title,
			"price":          t.Price,
			"order_id":       t.OrderID,
			"version":        t.Version,
			"order_versions": t.OrderVersions,
		})
}

func (p *Postgres) DeleteTicket(ctx context.Context, id string, expectedVersion int) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return dbError("delete ticket", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("delete ticket", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := p.GetTicket(ctx, id); err != nil {
		return err
	}
	return versionConflict("ticket", id, expectedVersion)
}

// ====================
// Orders
// ====================

func (p *Postgres) InsertOrderTicket(ctx context.Context, t OrderTicket) error {
	return p.insert(ctx, "order ticket", t.ID, `
		INSERT INTO order_tickets (id, title, price, version)
		VALUES (:id, :title, :price, :version)`, t)
}

func (p *Postgres) GetOrderTicket(ctx context.Context, id string) (OrderTicket, error) {
	var t OrderTicket
	err := p.get(ctx, "ticket", &t, `SELECT * FROM order_tickets WHERE id = $1`, id)
	return t, err
}

func (p *Postgres) UpdateOrderTicket(ctx context.Context, t OrderTicket, expectedVersion int) error {
	return p.update(ctx, "order ticket", t.ID, expectedVersion, `
		UPDATE order_tickets SET title = :title, price = :price, version = :version
		WHERE id = :id AND version = :expected_version`,
		map[string]any{
			"id":      t.ID,
			"title":   t.Title,
			"price":   t.Price,
			"version": t.Version,
		})
}

func (p *Postgres) InsertOrder(ctx context.Context, o Order) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, expires_at, ticket_id, version)
		VALUES (:id, :user_id, :status, :expires_at, :ticket_id, :version)`, o)
	switch {
	case violates(err, activeTicketIndex):
		return ticketReserved()
	case isUniqueViolation(err):
		return alreadyExists("order", o.ID)
	case err != nil:
		return dbError("insert order", err)
	}
	return nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := p.get(ctx, "order", &o, `SELECT * FROM orders WHERE id = $1`, id)
	return o, err
}

func (p *Postgres) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	var orders []Order
	if err := p.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders WHERE user_id = $1 ORDER BY expires_at`, userID); err != nil {
		return nil, dbError("list orders", err)
	}
	return orders, nil
}

func (p *Postgres) ListOrdersByTicket(ctx context.Context, ticketID string) ([]Order, error) {
	var orders []Order
	if err := p.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders WHERE ticket_id = $1 ORDER BY expires_at`, ticketID); err != nil {
		return nil, dbError("list orders", err)
	}
	return orders, nil
}

func (p *Postgres) ListExpiredOrders(ctx context.Context, now time.Time, statuses ...string) ([]Order, error) {
	query, args, err := sqlx.In(
		`SELECT * FROM orders WHERE expires_at < ? AND status IN (?) ORDER BY expires_at`, now, statuses)
	if err != nil {
		return nil, dbError("list expired orders", err)
	}

	var orders []Order
	if err := p.db.SelectContext(ctx, &orders, p.db.Rebind(query), args...); err != nil {
		return nil, dbError("list expired orders", err)
	}
	return orders, nil
}

func (p *Postgres) UpdateOrder(ctx context.Context, o Order, expectedVersion int) error {
	return p.update(ctx, "order", o.ID, expectedVersion, `
		UPDATE orders SET status = :status, expires_at = :expires_at, version = :version
		WHERE id = :id AND version = :expected_version`,
		map[string]any{
			"id":         o.ID,
			"status":     o.Status,
			"expires_at": o.ExpiresAt,
			"version":    o.Version,
		})
}

// ====================
// Payments
// ====================

func (p *Postgres) InsertPaymentOrder(ctx context.Context, o PaymentOrder) error {
	return p.insert(ctx, "payment order", o.ID, `
		INSERT INTO payment_orders (id, user_id, price, status, version)
		VALUES (:id, :user_id, :price, :status, :version)`, o)
}

func (p *Postgres) GetPaymentOrder(ctx context.Context, id string) (PaymentOrder, error) {
	var o PaymentOrder
	err := p.get(ctx, "order", &o, `SELECT * FROM payment_orders WHERE id = $1`, id)
	return o, err
}

func (p *Postgres) UpdatePaymentOrder(ctx context.Context, o PaymentOrder, expectedVersion int) error {
	return p.update(ctx, "payment order", o.ID, expectedVersion, `
		UPDATE payment_orders SET status = :status, price = :price, version = :version
		WHERE id = :id AND version = :expected_version`,
		map[string]any{
			"id":      o.ID,
			"status":  o.Status,
			"price":   o.Price,
			"version": o.Version,
		})
}

func (p *Postgres) InsertPayment(ctx context.Context, pay Payment) error {
	return p.insert(ctx, "payment for order", pay.OrderID, `
		INSERT INTO payments (id, order_id, stripe_id)
		VALUES (:id, :order_id, :stripe_id)`, pay)
}

func (p *Postgres) GetPaymentByOrder(ctx context.Context, orderID string) (Payment, error) {
	var pay Payment
	err := p.get(ctx, "payment", &pay, `SELECT * FROM payments WHERE order_id = $1`, orderID)
	return pay, err
}
