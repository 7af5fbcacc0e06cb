package inventory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const inventorySchema = `
CREATE TABLE IF NOT EXISTS products (
	product_id      TEXT        PRIMARY KEY,
	available_stock INTEGER     NOT NULL CHECK (available_stock >= 0),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS inventory (
	order_id              BIGINT      PRIMARY KEY,
	product_id            TEXT        NOT NULL,
	quantity_reserved     INTEGER     NOT NULL,
	available_at_decision INTEGER     NOT NULL,
	status                TEXT        NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists products and reservations in the inventory service's
// own database. The capture adapter taps the inventory table, so a committed
// decision row is what becomes an inventory-updated event.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the tables exist.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if _, err := pool.Exec(ctx, inventorySchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to create inventory tables")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx,
		"SELECT product_id, available_stock, updated_at FROM products WHERE product_id = $1",
		productID).Scan(&p.ProductID, &p.AvailableStock, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query product")
	}
	return &p, nil
}

func (s *PostgresStore) PutProduct(ctx context.Context, p *Product) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (product_id, available_stock, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (product_id) DO UPDATE SET available_stock = $2, updated_at = $3`,
		p.ProductID, p.AvailableStock, p.UpdatedAt)
	return errors.Wrap(err, "failed to upsert product")
}

func (s *PostgresStore) GetReservation(ctx context.Context, orderID int64) (*Reservation, error) {
	res, err := getReservation(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getReservation(ctx context.Context, q querier, orderID int64) (*Reservation, error) {
	var res Reservation
	err := q.QueryRow(ctx,
		`SELECT order_id, product_id, quantity_reserved, available_at_decision, status, created_at
		 FROM inventory WHERE order_id = $1`,
		orderID).Scan(&res.OrderID, &res.ProductID, &res.QuantityReserved,
		&res.AvailableAtDecision, &res.Status, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reservation")
	}
	return &res, nil
}

// Reserve runs the whole decision in one transaction. The product row is
// locked FOR UPDATE so two concurrent orders for the same product serialize
// on the stock check, and the decision insert uses ON CONFLICT DO NOTHING so
// a racing duplicate backs off without touching stock.
func (s *PostgresStore) Reserve(ctx context.Context, orderID int64, productID string, quantity int) (*Reservation, bool, error) {
	existing, err := getReservation(ctx, s.pool, orderID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrReservationNotFound) {
		return nil, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var available int
	err = tx.QueryRow(ctx,
		"SELECT available_stock FROM products WHERE product_id = $1 FOR UPDATE",
		productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrProductNotFound
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to lock product")
	}

	res := &Reservation{
		OrderID:             orderID,
		ProductID:           productID,
		QuantityReserved:    quantity,
		AvailableAtDecision: available,
		Status:              StatusFailed,
		CreatedAt:           time.Now().UTC(),
	}
	if available >= quantity {
		res.Status = StatusReserved
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO inventory (order_id, product_id, quantity_reserved, available_at_decision, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (order_id) DO NOTHING`,
		res.OrderID, res.ProductID, res.QuantityReserved, res.AvailableAtDecision, res.Status, res.CreatedAt)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to insert reservation")
	}
	if tag.RowsAffected() == 0 {
		// A concurrent handler decided first; give back its decision.
		tx.Rollback(ctx)
		existing, err := getReservation(ctx, s.pool, orderID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if res.Status == StatusReserved {
		_, err = tx.Exec(ctx,
			"UPDATE products SET available_stock = available_stock - $1, updated_at = now() WHERE product_id = $2",
			quantity, productID)
		if err != nil {
			return nil, false, errors.Wrap(err, "failed to decrement stock")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, errors.Wrap(err, "failed to commit reservation")
	}
	return res, true, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
