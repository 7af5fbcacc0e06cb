package billing

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const invoicesSchema = `
CREATE TABLE IF NOT EXISTS invoices (
	order_id     INTEGER PRIMARY KEY,
	customer_id  TEXT    NOT NULL,
	amount_cents INTEGER NOT NULL,
	status       TEXT    NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
)`

// SQLiteStore persists invoices in a local SQLite file. SQLite has no
// logical replication to tap, so committed writes are mirrored onto the
// change feed directly; the relay treats that feed exactly like a WAL source.
type SQLiteStore struct {
	db   *sqlx.DB
	feed *capture.Feed
}

// NewSQLiteStore opens (or creates) the invoice database at the given path.
func NewSQLiteStore(path string, feed *capture.Feed) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open invoice database")
	}
	if _, err := db.Exec(invoicesSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create invoices table")
	}
	return &SQLiteStore{db: db, feed: feed}, nil
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, orderID int64) (*Invoice, error) {
	var inv Invoice
	err := s.db.GetContext(ctx, &inv,
		"SELECT order_id, customer_id, amount_cents, status, created_at, updated_at FROM invoices WHERE order_id = $1",
		orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query invoice")
	}
	return &inv, nil
}

func (s *SQLiteStore) CreateInvoice(ctx context.Context, inv *Invoice) (bool, error) {
	if inv.Status == "" {
		inv.Status = StatusInvoiced
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (order_id, customer_id, amount_cents, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (order_id) DO NOTHING`,
		inv.OrderID, inv.CustomerID, inv.AmountCents, inv.Status, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert invoice")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read insert result")
	}
	if affected == 0 {
		return false, nil
	}

	s.emit(events.OpCreate, inv)
	return true, nil
}

func (s *SQLiteStore) MarkPaid(ctx context.Context, orderID int64) (*Invoice, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE invoices SET status = $1, updated_at = $2 WHERE order_id = $3 AND status = $4",
		StatusPaid, time.Now().UTC(), orderID, StatusInvoiced)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update invoice")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read update result")
	}

	inv, err := s.GetInvoice(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if affected == 1 {
		s.emit(events.OpUpdate, inv)
	}
	return inv, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) emit(op string, inv *Invoice) {
	if s.feed == nil {
		return
	}
	s.feed.Emit(capture.Change{
		Op:    op,
		Table: Table,
		After: map[string]string{
			"order_id":     strconv.FormatInt(inv.OrderID, 10),
			"customer_id":  inv.CustomerID,
			"amount_cents": strconv.FormatInt(inv.AmountCents, 10),
			"status":       string(inv.Status),
		},
	})
}
