package billing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLiteStore(t *testing.T, feed *capture.Feed) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "billing.db"), feed)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteCreateInvoice(t *testing.T) {
	feed := capture.NewFeed(8)
	store := openTestSQLiteStore(t, feed)
	ctx := context.Background()

	created, err := store.CreateInvoice(ctx, &Invoice{
		OrderID:     7,
		CustomerID:  PlaceholderCustomerID(7),
		AmountCents: PlaceholderAmountCents,
	})
	require.NoError(t, err)
	assert.True(t, created)

	inv, err := store.GetInvoice(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusInvoiced, inv.Status)
	assert.Equal(t, "CUSTOMER_7", inv.CustomerID)
	assert.Equal(t, PlaceholderAmountCents, inv.AmountCents)

	// Insert-if-absent: the second create changes nothing and emits nothing.
	created, err = store.CreateInvoice(ctx, &Invoice{
		OrderID:     7,
		CustomerID:  "CUSTOMER_OTHER",
		AmountCents: 999,
	})
	require.NoError(t, err)
	assert.False(t, created)

	inv, err = store.GetInvoice(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "CUSTOMER_7", inv.CustomerID)

	feed.Close()
	changes := drainFeed(t, feed)
	require.Len(t, changes, 1)
	assert.Equal(t, events.OpCreate, changes[0].Op)
	assert.Equal(t, Table, changes[0].Table)
	assert.Equal(t, "7", changes[0].After["order_id"])
	assert.Equal(t, "INVOICED", changes[0].After["status"])
}

func TestSQLiteMarkPaid(t *testing.T) {
	feed := capture.NewFeed(8)
	store := openTestSQLiteStore(t, feed)
	ctx := context.Background()

	_, err := store.MarkPaid(ctx, 7)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)

	created, err := store.CreateInvoice(ctx, &Invoice{
		OrderID:     7,
		CustomerID:  PlaceholderCustomerID(7),
		AmountCents: PlaceholderAmountCents,
	})
	require.NoError(t, err)
	require.True(t, created)

	inv, err := store.MarkPaid(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)

	// Paying twice is a no-op and must not emit a second update.
	inv, err = store.MarkPaid(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)

	feed.Close()
	changes := drainFeed(t, feed)
	require.Len(t, changes, 2)
	assert.Equal(t, events.OpCreate, changes[0].Op)
	assert.Equal(t, events.OpUpdate, changes[1].Op)
	assert.Equal(t, "PAID", changes[1].After["status"])
}

func drainFeed(t *testing.T, feed *capture.Feed) []capture.Change {
	t.Helper()
	ch, err := feed.Changes(context.Background())
	require.NoError(t, err)

	var out []capture.Change
	for change := range ch {
		out = append(out, change)
	}
	return out
}
