package order

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const ordersSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id         BIGSERIAL PRIMARY KEY,
	product_id TEXT        NOT NULL,
	quantity   INTEGER     NOT NULL,
	status     TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists orders in the order service's own database. The
// capture adapter taps this table, so a committed insert here is what
// ultimately becomes an order-created event.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the orders table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if _, err := pool.Exec(ctx, ordersSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to create orders table")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx,
		"SELECT id, product_id, quantity, status, created_at, updated_at FROM orders WHERE id = $1",
		id).Scan(&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query order")
	}
	return &o, nil
}

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusPending
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	err := s.pool.QueryRow(ctx,
		"INSERT INTO orders (product_id, quantity, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		o.ProductID, o.Quantity, o.Status, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		return errors.Wrap(err, "failed to insert order")
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, product_id, quantity, status, created_at, updated_at FROM orders ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query orders")
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-swap on the status column. The WHERE clause
// carries the expected current status, so a stale writer changes nothing.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3",
		to, id, from)
	if err != nil {
		return false, errors.Wrap(err, "failed to update order status")
	}
	return tag.RowsAffected() == 1, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
