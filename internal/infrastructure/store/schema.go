package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []struct {
	table string
	ddl   string
}{
	{"tickets", `
CREATE TABLE IF NOT EXISTS tickets (
	id VARCHAR(64) PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	user_id VARCHAR(64) NOT NULL,
	order_id VARCHAR(64) NOT NULL DEFAULT '',
	version INTEGER NOT NULL,
	order_versions JSONB NOT NULL DEFAULT '{}'
);`},
	{"order_tickets", `
CREATE TABLE IF NOT EXISTS order_tickets (
	id VARCHAR(64) PRIMARY KEY,
	title VARCHAR(255) NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	version INTEGER NOT NULL
);`},
	{"orders", `
CREATE TABLE IF NOT EXISTS orders (
	id VARCHAR(64) PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL,
	status VARCHAR(32) NOT NULL,
	expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
	ticket_id VARCHAR(64) NOT NULL,
	version INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id);
CREATE INDEX IF NOT EXISTS orders_ticket_id_idx ON orders (ticket_id);
CREATE UNIQUE INDEX IF NOT EXISTS orders_active_ticket_idx ON orders (ticket_id)
	WHERE status IN ('created', 'awaiting:payment', 'complete');`},
	{"payment_orders", `
CREATE TABLE IF NOT EXISTS payment_orders (
	id VARCHAR(64) PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	status VARCHAR(32) NOT NULL,
	version INTEGER NOT NULL
);`},
	{"payments", `
CREATE TABLE IF NOT EXISTS payments (
	id VARCHAR(64) PRIMARY KEY,
	order_id VARCHAR(64) NOT NULL UNIQUE,
	stripe_id VARCHAR(255) NOT NULL
);`},
}

// InitializeSchema creates the tables of every service. Each service only
// touches its own.
func InitializeSchema(ctx context.Context, db *sqlx.DB) error {
	for _, s := range schema {
		if _, err := db.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", s.table, err)
		}
	}
	return nil
}
