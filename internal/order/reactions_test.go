package order

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func eventMsg(t *testing.T, topic, op string, payload interface{}) bus.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	env := events.Envelope{ID: "evt-test", Operation: op, Data: data}
	raw, err := env.Marshal()
	require.NoError(t, err)
	return bus.Message{Topic: topic, Value: raw}
}

func createTestOrder(t *testing.T, store Store) *Order {
	t.Helper()
	o := &Order{ProductID: "PROD-001", Quantity: 2}
	require.NoError(t, store.Create(context.Background(), o))
	return o
}

func TestHandleInventoryUpdatedReserved(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	o := createTestOrder(t, store)

	msg := eventMsg(t, events.TopicInventoryUpdated, events.OpCreate,
		events.InventoryUpdated{OrderID: o.ID, Status: events.InventoryStatusReserved})
	require.NoError(t, r.HandleInventoryUpdated(context.Background(), msg))

	got, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInventoryReserved, got.Status)

	// Redelivery of the same event is a no-op.
	require.NoError(t, r.HandleInventoryUpdated(context.Background(), msg))
	got, err = store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInventoryReserved, got.Status)
}

func TestHandleInventoryUpdatedFailed(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	o := createTestOrder(t, store)

	msg := eventMsg(t, events.TopicInventoryUpdated, events.OpCreate,
		events.InventoryUpdated{OrderID: o.ID, Status: events.InventoryStatusFailed})
	require.NoError(t, r.HandleInventoryUpdated(context.Background(), msg))

	got, err := store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInventoryFailed, got.Status)
	assert.True(t, got.Status.Terminal())
}

func TestHandleBillingUpdated(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	o := createTestOrder(t, store)
	ctx := context.Background()

	msg := eventMsg(t, events.TopicInventoryUpdated, events.OpCreate,
		events.InventoryUpdated{OrderID: o.ID, Status: events.InventoryStatusReserved})
	require.NoError(t, r.HandleInventoryUpdated(ctx, msg))

	msg = eventMsg(t, events.TopicBillingUpdated, events.OpCreate,
		events.BillingUpdated{OrderID: o.ID, Status: events.BillingStatusInvoiced})
	require.NoError(t, r.HandleBillingUpdated(ctx, msg))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBilled, got.Status)

	msg = eventMsg(t, events.TopicBillingUpdated, events.OpUpdate,
		events.BillingUpdated{OrderID: o.ID, Status: events.BillingStatusPaid})
	require.NoError(t, r.HandleBillingUpdated(ctx, msg))

	got, err = store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestReplayedInventoryEventDoesNotRegress(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	o := createTestOrder(t, store)
	ctx := context.Background()

	reserved := eventMsg(t, events.TopicInventoryUpdated, events.OpCreate,
		events.InventoryUpdated{OrderID: o.ID, Status: events.InventoryStatusReserved})
	invoiced := eventMsg(t, events.TopicBillingUpdated, events.OpCreate,
		events.BillingUpdated{OrderID: o.ID, Status: events.BillingStatusInvoiced})

	require.NoError(t, r.HandleInventoryUpdated(ctx, reserved))
	require.NoError(t, r.HandleBillingUpdated(ctx, invoiced))

	// A replay of the earlier inventory decision must not pull the order
	// back from BILLED.
	require.NoError(t, r.HandleInventoryUpdated(ctx, reserved))

	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBilled, got.Status)
}

func TestHandleUnknownOrderIsDropped(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())

	msg := eventMsg(t, events.TopicInventoryUpdated, events.OpCreate,
		events.InventoryUpdated{OrderID: 999, Status: events.InventoryStatusReserved})
	assert.NoError(t, r.HandleInventoryUpdated(context.Background(), msg))
}

func TestHandleMalformedEvents(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	o := createTestOrder(t, store)
	ctx := context.Background()

	err := r.HandleInventoryUpdated(ctx, bus.Message{Value: []byte("not json")})
	assert.True(t, errors.Is(err, events.ErrMalformed))

	err = r.HandleInventoryUpdated(ctx, eventMsg(t, events.TopicInventoryUpdated, events.OpCreate,
		events.InventoryUpdated{OrderID: o.ID, Status: "SOMETHING_ELSE"}))
	assert.True(t, errors.Is(err, events.ErrMalformed))

	err = r.HandleBillingUpdated(ctx, eventMsg(t, events.TopicBillingUpdated, events.OpCreate,
		events.BillingUpdated{OrderID: o.ID, Status: "REFUNDED"}))
	assert.True(t, errors.Is(err, events.ErrMalformed))

	// Malformed events must not have touched the order.
	got, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
