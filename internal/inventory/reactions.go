package inventory

import (
	"context"

	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// Reactions makes the reservation decision when an order is created. The
// handler is idempotent: a duplicate order-created event finds the existing
// decision and changes nothing, so stock is decremented at most once per
// order.
type Reactions struct {
	store  Store
	logger *logger.Logger
}

// NewReactions creates the inventory service's reaction handlers.
func NewReactions(store Store, log *logger.Logger) *Reactions {
	return &Reactions{store: store, logger: log}
}

// Handlers returns the topic subscriptions for the inventory service.
func (r *Reactions) Handlers() map[string]bus.Handler {
	return map[string]bus.Handler{
		events.TopicOrderCreated: r.HandleOrderCreated,
	}
}

// HandleOrderCreated reserves stock for a new order.
func (r *Reactions) HandleOrderCreated(ctx context.Context, msg bus.Message) error {
	env, err := events.Decode(msg.Value)
	if err != nil {
		return err
	}

	var payload events.OrderCreated
	if err := env.DecodeData(&payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	res, created, err := r.store.Reserve(ctx, payload.ID, payload.ProductID, payload.Quantity)
	if errors.Is(err, ErrProductNotFound) {
		// Fail closed: the order stays PENDING. A failure event for unknown
		// products is a known gap.
		r.logger.Warn("dropping order for unknown product",
			"order_id", payload.ID,
			"product_id", payload.ProductID,
			"event_id", env.ID)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to reserve inventory")
	}

	if !created {
		r.logger.Debug("duplicate order-created, decision already made",
			"order_id", payload.ID,
			"status", res.Status,
			"event_id", env.ID)
		return nil
	}

	switch res.Status {
	case StatusReserved:
		r.logger.Info("inventory reserved",
			"order_id", payload.ID,
			"product_id", payload.ProductID,
			"quantity", payload.Quantity)
	case StatusFailed:
		r.logger.Warn("insufficient inventory",
			"order_id", payload.ID,
			"product_id", payload.ProductID,
			"requested", payload.Quantity,
			"available", res.AvailableAtDecision)
	}
	return nil
}
