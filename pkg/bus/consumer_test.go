package bus

import (
	"context"
	"sync"
	"testing"

	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

// stubProducer records dead-letter writes.
type stubProducer struct {
	mu       sync.Mutex
	produced []*kgo.Record
}

func (p *stubProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.produced = append(p.produced, rs...)
	return kgo.ProduceResults{}
}

func (p *stubProducer) records() []*kgo.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*kgo.Record(nil), p.produced...)
}

func newTestConsumer(handlers map[string]Handler) (*GroupConsumer, *stubProducer) {
	metrics.Register()
	producer := &stubProducer{}
	return &GroupConsumer{
		producer: producer,
		handlers: handlers,
		logger:   testLogger(),
	}, producer
}

func testRecord(topic, key, value string) *kgo.Record {
	return &kgo.Record{Topic: topic, Key: []byte(key), Value: []byte(value)}
}

func TestProcessCommitsHandledRecord(t *testing.T) {
	var handled []Message
	consumer, producer := newTestConsumer(map[string]Handler{
		"inventory-updated": func(ctx context.Context, msg Message) error {
			handled = append(handled, msg)
			return nil
		},
	})

	ok := consumer.process(context.Background(), testRecord("inventory-updated", "7", `{"x":1}`))
	assert.True(t, ok, "a handled record must be committed")
	require.Len(t, handled, 1)
	assert.Equal(t, "7", string(handled[0].Key))
	assert.Empty(t, producer.records())
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	attempts := 0
	consumer, producer := newTestConsumer(map[string]Handler{
		"inventory-updated": func(ctx context.Context, msg Message) error {
			attempts++
			if attempts == 1 {
				return errors.New("database unavailable")
			}
			return nil
		},
	})

	ok := consumer.process(context.Background(), testRecord("inventory-updated", "7", `{"x":1}`))
	assert.True(t, ok, "the record must be committed once the retry succeeded")
	assert.Equal(t, 2, attempts)
	assert.Empty(t, producer.records(), "transient failures must not be dead-lettered")
}

func TestProcessLeavesRecordUncommittedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	consumer, producer := newTestConsumer(map[string]Handler{
		"inventory-updated": func(ctx context.Context, msg Message) error {
			attempts++
			cancel()
			return errors.New("database unavailable")
		},
	})

	ok := consumer.process(ctx, testRecord("inventory-updated", "7", `{"x":1}`))
	assert.False(t, ok, "the offset must not advance past an unhandled record")
	assert.Equal(t, 1, attempts)
	assert.Empty(t, producer.records())

	// Once the context ended, further records are not processed either.
	ok = consumer.process(ctx, testRecord("inventory-updated", "8", `{"x":2}`))
	assert.False(t, ok)
	assert.Equal(t, 1, attempts)
}

func TestProcessDeadLettersMalformedRecord(t *testing.T) {
	consumer, producer := newTestConsumer(map[string]Handler{
		"inventory-updated": func(ctx context.Context, msg Message) error {
			return errors.Wrap(events.ErrMalformed, "bad payload")
		},
	})

	record := testRecord("inventory-updated", "7", "not json")
	ok := consumer.process(context.Background(), record)
	assert.True(t, ok, "a dead-lettered record must be committed")

	dead := producer.records()
	require.Len(t, dead, 1)
	assert.Equal(t, "inventory-updated.dlq", dead[0].Topic)
	assert.Equal(t, record.Key, dead[0].Key)
	assert.Equal(t, record.Value, dead[0].Value)
	require.Len(t, dead[0].Headers, 1)
	assert.Equal(t, "source_topic", dead[0].Headers[0].Key)
	assert.Equal(t, "inventory-updated", string(dead[0].Headers[0].Value))
}

func TestProcessSkipsUnhandledTopic(t *testing.T) {
	consumer, producer := newTestConsumer(map[string]Handler{
		"inventory-updated": func(ctx context.Context, msg Message) error {
			t.Fatal("handler for another topic must not run")
			return nil
		},
	})

	ok := consumer.process(context.Background(), testRecord("billing-updated", "7", "{}"))
	assert.True(t, ok)
	assert.Empty(t, producer.records())
}

func TestNewGroupConsumerValidation(t *testing.T) {
	log := testLogger()
	handlers := map[string]Handler{
		"inventory-updated": func(ctx context.Context, msg Message) error { return nil },
	}

	_, err := NewGroupConsumer(ConsumerConfig{Group: "g"}, handlers, log)
	assert.Error(t, err)

	_, err = NewGroupConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}}, handlers, log)
	assert.Error(t, err)

	_, err = NewGroupConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, Group: "g"}, nil, log)
	assert.Error(t, err)
}
