package capture

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Route maps one source table to one topic. Map selects the business-relevant
// subset of the after-image and the partition key; it never forwards the full
// row.
type Route struct {
	Table string
	Topic string
	Map   func(op string, after map[string]string) (key string, payload interface{}, err error)
}

// Relay consumes a change stream and publishes one envelope per routed
// change. A change is acknowledged to the source only after the bus accepted
// the event, so a crash in between re-emits (at-least-once). Publish failures
// are retried with backoff; a change the route cannot map is logged, skipped
// and acknowledged so corruption does not stall the stream.
type Relay struct {
	source Source
	pub    bus.Publisher
	routes map[string]Route
	logger *logger.Logger
}

// NewRelay creates a relay over the given source and routes.
func NewRelay(source Source, pub bus.Publisher, routes []Route, log *logger.Logger) (*Relay, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	if len(routes) == 0 {
		return nil, errors.New("at least one route is required")
	}

	byTable := make(map[string]Route, len(routes))
	for _, route := range routes {
		if route.Table == "" || route.Topic == "" || route.Map == nil {
			return nil, errors.New("route requires table, topic and map function")
		}
		byTable[route.Table] = route
	}

	return &Relay{
		source: source,
		pub:    pub,
		routes: byTable,
		logger: log,
	}, nil
}

// Run consumes changes until the context is cancelled or the source closes.
func (r *Relay) Run(ctx context.Context) error {
	changes, err := r.source.Changes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open change stream")
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping", "reason", ctx.Err())
			return nil
		case change, ok := <-changes:
			if !ok {
				r.logger.Info("change stream closed, relay stopping")
				return nil
			}
			r.handle(ctx, change)
		}
	}
}

func (r *Relay) handle(ctx context.Context, change Change) {
	route, ok := r.routes[change.Table]
	if !ok {
		// Not a routed table; acknowledge so the position can advance.
		r.ack(change)
		return
	}

	key, payload, err := route.Map(change.Op, change.After)
	if err != nil {
		r.logger.Warn("skipping unmappable change",
			"table", change.Table,
			"op", change.Op,
			"error", err.Error())
		metrics.CaptureErrors.WithLabelValues(change.Table, "map").Inc()
		r.ack(change)
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to marshal payload", err, "table", change.Table)
		metrics.CaptureErrors.WithLabelValues(change.Table, "marshal").Inc()
		r.ack(change)
		return
	}

	env := events.Envelope{
		ID:        uuid.New().String(),
		Operation: change.Op,
		Data:      data,
	}
	raw, err := env.Marshal()
	if err != nil {
		r.logger.Error("failed to marshal envelope", err, "table", change.Table)
		r.ack(change)
		return
	}

	if err := r.publish(ctx, route.Topic, key, raw); err != nil {
		// Context cancelled mid-retry: the change stays unacknowledged and
		// will be re-emitted on restart.
		r.logger.Error("publish abandoned", err, "topic", route.Topic, "key", key)
		return
	}

	r.logger.Debug("published",
		"topic", route.Topic,
		"key", key,
		"op", change.Op,
		"event_id", env.ID,
		"pos", change.Pos)
	r.ack(change)
}

// publish retries with exponential backoff until the bus accepts the event or
// the context ends.
func (r *Relay) publish(ctx context.Context, topic, key string, value []byte) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 1; ; attempt++ {
		err := r.pub.Publish(ctx, topic, []byte(key), value)
		if err == nil {
			return nil
		}

		r.logger.Warn("failed to publish, retrying",
			"topic", topic,
			"key", key,
			"attempt", attempt,
			"error", err.Error())

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled during publish retry")
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

func (r *Relay) ack(change Change) {
	if change.Pos != "" {
		r.source.Ack(change.Pos)
	}
}
