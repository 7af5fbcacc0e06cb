// Package workflow wires the three services together for in-process runs:
// the demo binary and the end-to-end tests. The wiring has the same shape as
// the real deployment (store writes surface on a change feed, a relay
// publishes them, reactions subscribe per topic) with the in-memory bus and
// stores substituted for Kafka and the databases.
package workflow

import (
	"context"

	"github.com/Ramnathnaik/system-design-workspace/internal/billing"
	"github.com/Ramnathnaik/system-design-workspace/internal/inventory"
	"github.com/Ramnathnaik/system-design-workspace/internal/order"
	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// Local is the full choreography running in one process.
type Local struct {
	Bus       *bus.MemoryBus
	Orders    *order.MemoryStore
	Inventory *inventory.MemoryStore
	Billing   *billing.MemoryStore

	feeds  []*capture.Feed
	relays []*capture.Relay
}

// NewLocal builds the three services over an in-memory bus.
func NewLocal(log *logger.Logger) (*Local, error) {
	memBus := bus.NewMemoryBus(log)

	orderFeed := capture.NewFeed(0)
	inventoryFeed := capture.NewFeed(0)
	billingFeed := capture.NewFeed(0)

	l := &Local{
		Bus:       memBus,
		Orders:    order.NewMemoryStore(orderFeed),
		Inventory: inventory.NewMemoryStore(inventoryFeed),
		Billing:   billing.NewMemoryStore(billingFeed),
		feeds:     []*capture.Feed{orderFeed, inventoryFeed, billingFeed},
	}

	wiring := []struct {
		feed  *capture.Feed
		route capture.Route
	}{
		{orderFeed, order.ChangeRoute()},
		{inventoryFeed, inventory.ChangeRoute()},
		{billingFeed, billing.ChangeRoute()},
	}
	for _, w := range wiring {
		relay, err := capture.NewRelay(w.feed, memBus, []capture.Route{w.route}, log)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build relay")
		}
		l.relays = append(l.relays, relay)
	}

	subscribe(memBus, order.NewReactions(l.Orders, log).Handlers())
	subscribe(memBus, inventory.NewReactions(l.Inventory, log).Handlers())
	subscribe(memBus, billing.NewReactions(l.Billing, log).Handlers())

	return l, nil
}

// Start runs the relays until the context is cancelled.
func (l *Local) Start(ctx context.Context) {
	for _, relay := range l.relays {
		go relay.Run(ctx)
	}
}

// Close stops the change feeds.
func (l *Local) Close() {
	for _, feed := range l.feeds {
		feed.Close()
	}
}

func subscribe(memBus *bus.MemoryBus, handlers map[string]bus.Handler) {
	for topic, handler := range handlers {
		memBus.Subscribe(topic, handler)
	}
}
