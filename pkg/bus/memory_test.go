package bus

import (
	"context"
	"io"
	"testing"

	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	b := NewMemoryBus(testLogger())

	var first, second []Message
	b.Subscribe("order-created", func(ctx context.Context, msg Message) error {
		first = append(first, msg)
		return nil
	})
	b.Subscribe("order-created", func(ctx context.Context, msg Message) error {
		second = append(second, msg)
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), "order-created", []byte("1"), []byte(`{"x":1}`)))
	require.NoError(t, b.Publish(context.Background(), "order-created", []byte("2"), []byte(`{"x":2}`)))

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, "1", string(first[0].Key))
	assert.Equal(t, "2", string(first[1].Key))
}

func TestMemoryBusIgnoresUnsubscribedTopics(t *testing.T) {
	b := NewMemoryBus(testLogger())
	require.NoError(t, b.Publish(context.Background(), "no-subscribers", nil, []byte("{}")))
}

func TestMemoryBusDeadLettersMalformed(t *testing.T) {
	b := NewMemoryBus(testLogger())

	var delivered int
	b.Subscribe("inventory-updated", func(ctx context.Context, msg Message) error {
		delivered++
		if delivered == 1 {
			return errors.Wrap(events.ErrMalformed, "bad payload")
		}
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), "inventory-updated", []byte("1"), []byte("not json")))
	require.NoError(t, b.Publish(context.Background(), "inventory-updated", []byte("2"), []byte(`{"ok":true}`)))

	dead := b.DeadLetters("inventory-updated")
	require.Len(t, dead, 1)
	assert.Equal(t, "1", string(dead[0].Key))
	assert.Equal(t, 2, delivered)
}

func TestMemoryBusKeepsDeliveringAfterHandlerError(t *testing.T) {
	b := NewMemoryBus(testLogger())

	var second int
	b.Subscribe("billing-updated", func(ctx context.Context, msg Message) error {
		return errors.New("transient failure")
	})
	b.Subscribe("billing-updated", func(ctx context.Context, msg Message) error {
		second++
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), "billing-updated", []byte("1"), []byte("{}")))
	assert.Equal(t, 1, second)
	assert.Empty(t, b.DeadLetters("billing-updated"))
}

func TestDeadLetterTopic(t *testing.T) {
	assert.Equal(t, "order-created.dlq", DeadLetterTopic("order-created"))
}
