package billing

import (
	"context"

	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// Reactions creates an invoice when the inventory service reserved stock for
// an order. Creation is idempotent on the order id, so duplicate
// inventory-updated events never produce a second invoice; FAILED decisions
// produce none at all.
type Reactions struct {
	store  Store
	logger *logger.Logger
}

// NewReactions creates the billing service's reaction handlers.
func NewReactions(store Store, log *logger.Logger) *Reactions {
	return &Reactions{store: store, logger: log}
}

// Handlers returns the topic subscriptions for the billing service.
func (r *Reactions) Handlers() map[string]bus.Handler {
	return map[string]bus.Handler{
		events.TopicInventoryUpdated: r.HandleInventoryUpdated,
	}
}

// HandleInventoryUpdated invoices orders whose stock was reserved.
func (r *Reactions) HandleInventoryUpdated(ctx context.Context, msg bus.Message) error {
	env, err := events.Decode(msg.Value)
	if err != nil {
		return err
	}

	var payload events.InventoryUpdated
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if payload.Status != events.InventoryStatusReserved {
		r.logger.Debug("no invoice for unreserved order",
			"order_id", payload.OrderID,
			"status", payload.Status,
			"event_id", env.ID)
		return nil
	}

	inv := &Invoice{
		OrderID:     payload.OrderID,
		CustomerID:  PlaceholderCustomerID(payload.OrderID),
		AmountCents: PlaceholderAmountCents,
		Status:      StatusInvoiced,
	}
	created, err := r.store.CreateInvoice(ctx, inv)
	if err != nil {
		return errors.Wrap(err, "failed to create invoice")
	}
	if !created {
		r.logger.Debug("duplicate inventory-updated, invoice already exists",
			"order_id", payload.OrderID,
			"event_id", env.ID)
		return nil
	}

	r.logger.Info("invoice created",
		"order_id", payload.OrderID,
		"customer_id", inv.CustomerID,
		"amount_cents", inv.AmountCents)
	return nil
}
