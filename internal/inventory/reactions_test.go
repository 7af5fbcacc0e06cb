package inventory

import (
	"context"
	"encoding/json"
	"io"
	"sync"
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

func orderCreatedMsg(t *testing.T, payload events.OrderCreated) bus.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	env := events.Envelope{ID: "evt-test", Operation: events.OpCreate, Data: data}
	raw, err := env.Marshal()
	require.NoError(t, err)
	return bus.Message{Topic: events.TopicOrderCreated, Value: raw}
}

func seedProduct(t *testing.T, store Store, productID string, stock int) {
	t.Helper()
	require.NoError(t, store.PutProduct(context.Background(), &Product{
		ProductID:      productID,
		AvailableStock: stock,
	}))
}

func TestHandleOrderCreatedReserves(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	ctx := context.Background()
	seedProduct(t, store, "PROD-001", 5)

	msg := orderCreatedMsg(t, events.OrderCreated{ID: 1, ProductID: "PROD-001", Quantity: 3})
	require.NoError(t, r.HandleOrderCreated(ctx, msg))

	res, err := store.GetReservation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, res.Status)
	assert.Equal(t, 3, res.QuantityReserved)
	assert.Equal(t, 5, res.AvailableAtDecision)

	p, err := store.GetProduct(ctx, "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 2, p.AvailableStock)
}

func TestHandleOrderCreatedDuplicateDecrementsOnce(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	ctx := context.Background()
	seedProduct(t, store, "PROD-001", 5)

	msg := orderCreatedMsg(t, events.OrderCreated{ID: 1, ProductID: "PROD-001", Quantity: 3})
	require.NoError(t, r.HandleOrderCreated(ctx, msg))
	require.NoError(t, r.HandleOrderCreated(ctx, msg))
	require.NoError(t, r.HandleOrderCreated(ctx, msg))

	p, err := store.GetProduct(ctx, "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 2, p.AvailableStock, "duplicate deliveries must decrement stock once")
}

func TestHandleOrderCreatedInsufficientStock(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	ctx := context.Background()
	seedProduct(t, store, "PROD-001", 2)

	msg := orderCreatedMsg(t, events.OrderCreated{ID: 1, ProductID: "PROD-001", Quantity: 3})
	require.NoError(t, r.HandleOrderCreated(ctx, msg))

	res, err := store.GetReservation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 2, res.AvailableAtDecision)

	// A failed decision must leave the stock untouched.
	p, err := store.GetProduct(ctx, "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 2, p.AvailableStock)
}

func TestHandleOrderCreatedExactStock(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	ctx := context.Background()
	seedProduct(t, store, "PROD-001", 3)

	msg := orderCreatedMsg(t, events.OrderCreated{ID: 1, ProductID: "PROD-001", Quantity: 3})
	require.NoError(t, r.HandleOrderCreated(ctx, msg))

	res, err := store.GetReservation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, res.Status)

	p, err := store.GetProduct(ctx, "PROD-001")
	require.NoError(t, err)
	assert.Equal(t, 0, p.AvailableStock)
}

func TestHandleOrderCreatedUnknownProduct(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	ctx := context.Background()

	msg := orderCreatedMsg(t, events.OrderCreated{ID: 1, ProductID: "NOPE", Quantity: 1})
	assert.NoError(t, r.HandleOrderCreated(ctx, msg))

	_, err := store.GetReservation(ctx, 1)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestHandleOrderCreatedMalformed(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewReactions(store, testLogger())
	ctx := context.Background()

	err := r.HandleOrderCreated(ctx, bus.Message{Value: []byte("not json")})
	assert.True(t, errors.Is(err, events.ErrMalformed))

	err = r.HandleOrderCreated(ctx, orderCreatedMsg(t, events.OrderCreated{ID: 1, ProductID: "P", Quantity: -1}))
	assert.True(t, errors.Is(err, events.ErrMalformed))
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	seedProduct(t, store, "PROD-001", 10)

	const orders = 50
	var wg sync.WaitGroup
	for i := 1; i <= orders; i++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			_, _, err := store.Reserve(ctx, orderID, "PROD-001", 3)
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	p, err := store.GetProduct(ctx, "PROD-001")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.AvailableStock, 0, "stock must never go negative")

	reserved := 0
	for i := 1; i <= orders; i++ {
		res, err := store.GetReservation(ctx, int64(i))
		require.NoError(t, err)
		if res.Status == StatusReserved {
			reserved += res.QuantityReserved
		}
	}
	assert.Equal(t, 10-reserved, p.AvailableStock)
	assert.Equal(t, 9, reserved, "exactly three of the three-unit orders fit the seeded stock")
}

func TestChangeRouteMap(t *testing.T) {
	route := ChangeRoute()
	assert.Equal(t, Table, route.Table)
	assert.Equal(t, events.TopicInventoryUpdated, route.Topic)

	key, payload, err := route.Map(events.OpCreate, map[string]string{
		"order_id":              "7",
		"product_id":            "PROD-001",
		"quantity_reserved":     "3",
		"available_at_decision": "5",
		"status":                "RESERVED",
	})
	require.NoError(t, err)
	assert.Equal(t, "7", key)
	assert.Equal(t, events.InventoryUpdated{OrderID: 7, Status: "RESERVED"}, payload)

	_, _, err = route.Map(events.OpCreate, map[string]string{"order_id": "x", "status": "RESERVED"})
	assert.Error(t, err)

	_, _, err = route.Map(events.OpCreate, map[string]string{"order_id": "7", "status": "MAYBE"})
	assert.Error(t, err)
}
