package order

import (
	"context"

	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// Reactions advances order status in response to events from the inventory
// and billing services. Every transition is guarded three ways: the order
// must exist, the target status must be a forward move, and the write is a
// compare-and-swap on the current status. Duplicate or out-of-order delivery
// therefore degrades to a no-op.
type Reactions struct {
	store  Store
	logger *logger.Logger
}

// NewReactions creates the order service's reaction handlers.
func NewReactions(store Store, log *logger.Logger) *Reactions {
	return &Reactions{store: store, logger: log}
}

// Handlers returns the topic subscriptions for the order service.
func (r *Reactions) Handlers() map[string]bus.Handler {
	return map[string]bus.Handler{
		events.TopicInventoryUpdated: r.HandleInventoryUpdated,
		events.TopicBillingUpdated:   r.HandleBillingUpdated,
	}
}

// HandleInventoryUpdated reacts to the inventory service's reservation
// decision.
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

	var next Status
	switch payload.Status {
	case events.InventoryStatusReserved:
		next = StatusInventoryReserved
	case events.InventoryStatusFailed:
		next = StatusInventoryFailed
	default:
		return errors.Wrapf(events.ErrMalformed, "unknown inventory status %q", payload.Status)
	}

	return r.advance(ctx, payload.OrderID, next, env.ID)
}

// HandleBillingUpdated reacts to invoice creation and payment.
func (r *Reactions) HandleBillingUpdated(ctx context.Context, msg bus.Message) error {
	env, err := events.Decode(msg.Value)
	if err != nil {
		return err
	}

	var payload events.BillingUpdated
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	var next Status
	switch payload.Status {
	case events.BillingStatusInvoiced:
		next = StatusBilled
	case events.BillingStatusPaid:
		next = StatusPaid
	default:
		return errors.Wrapf(events.ErrMalformed, "unknown billing status %q", payload.Status)
	}

	return r.advance(ctx, payload.OrderID, next, env.ID)
}

func (r *Reactions) advance(ctx context.Context, orderID int64, next Status, eventID string) error {
	o, err := r.store.Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		r.logger.Warn("dropping event for unknown order", "order_id", orderID, "event_id", eventID)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to load order")
	}

	if !o.Status.CanAdvanceTo(next) {
		r.logger.Debug("ignoring non-forward transition",
			"order_id", orderID,
			"current", o.Status,
			"next", next,
			"event_id", eventID)
		return nil
	}

	swapped, err := r.store.UpdateStatus(ctx, orderID, o.Status, next)
	if err != nil {
		return errors.Wrap(err, "failed to update order status")
	}
	if !swapped {
		r.logger.Debug("lost status race, treating as no-op",
			"order_id", orderID,
			"next", next,
			"event_id", eventID)
		return nil
	}

	r.logger.Info("order status advanced",
		"order_id", orderID,
		"from", o.Status,
		"to", next)
	return nil
}
