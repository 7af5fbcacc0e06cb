package bus

import "context"

// Message is a single event as seen on the bus.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Handler processes one message. Returning an error wrapping
// events.ErrMalformed dead-letters the message; any other error is treated as
// transient and the message is delivered again until the handler succeeds.
type Handler func(ctx context.Context, msg Message) error

// Publisher writes events to the bus. Delivery is at-least-once and ordered
// per key within a topic.
type Publisher interface {
	// Publish writes one event. It returns only after the bus has
	// acknowledged the write.
	Publish(ctx context.Context, topic string, key []byte, value []byte) error

	// Close flushes and closes the publisher.
	Close() error
}

// DeadLetterTopic returns the dead-letter topic paired with a source topic.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}
