package bus

import (
	"context"
	"sync"

	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/pkg/errors"
)

// MemoryBus is an in-process bus used by the demo binary and the tests. Every
// subscriber of a topic receives every message, mirroring one consumer group
// per subscribing service. Delivery is synchronous and in publish order, which
// trivially satisfies the per-key ordering guarantee. Unlike the Kafka
// consumer it does not retry transient handler errors; they are logged, and
// the failure-path tests drive handlers directly.
type MemoryBus struct {
	mu      sync.Mutex
	deliver sync.Mutex
	subs    map[string][]Handler
	dead    map[string][]Message
	logger  *logger.Logger
}

// NewMemoryBus creates a new in-memory bus
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[string][]Handler),
		dead:   make(map[string][]Message),
		logger: log,
	}
}

// Subscribe registers a handler for a topic.
func (b *MemoryBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// Publish delivers the message to every subscriber of the topic.
func (b *MemoryBus) Publish(ctx context.Context, topic string, key []byte, value []byte) error {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.subs[topic]...)
	b.mu.Unlock()

	msg := Message{Topic: topic, Key: key, Value: value}

	b.deliver.Lock()
	defer b.deliver.Unlock()

	for _, handler := range handlers {
		if err := handler(ctx, msg); err != nil {
			if errors.Is(err, events.ErrMalformed) {
				b.logger.Warn("dead-lettering malformed message",
					"topic", topic,
					"key", string(key),
					"error", err.Error())
				b.mu.Lock()
				b.dead[topic] = append(b.dead[topic], msg)
				b.mu.Unlock()
				continue
			}
			b.logger.Error("handler failed", err, "topic", topic, "key", string(key))
		}
	}
	return nil
}

// DeadLetters returns the messages dead-lettered for a topic.
func (b *MemoryBus) DeadLetters(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.dead[topic]...)
}

// Close is a no-op for the in-memory bus.
func (b *MemoryBus) Close() error {
	return nil
}
