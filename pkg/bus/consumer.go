package bus

import (
	"context"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ConsumerConfig represents the configuration for a GroupConsumer
type ConsumerConfig struct {
	Brokers  []string
	Group    string
	ClientID string
	SSL      bool
	User     *string
	Password *string
}

// recordProducer is the slice of the Kafka client the dead-letter path needs.
type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// GroupConsumer polls a set of topics inside one consumer group and dispatches
// each record to the handler registered for its topic. A record's offset is
// committed only after the record was handled or dead-lettered, so a crash or
// shutdown mid-record redelivers it (at-least-once). Transient handler
// failures are retried in place with backoff: committed offsets never advance
// past an unhandled record, at the cost of stalling that partition until the
// handler recovers.
type GroupConsumer struct {
	client   *kgo.Client
	producer recordProducer
	handlers map[string]Handler
	logger   *logger.Logger
}

// NewGroupConsumer creates a consumer for the topics present in handlers.
func NewGroupConsumer(cfg ConsumerConfig, handlers map[string]Handler, log *logger.Logger) (*GroupConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers is required")
	}
	if cfg.Group == "" {
		return nil, errors.New("consumer group is required")
	}
	if len(handlers) == 0 {
		return nil, errors.New("at least one handler is required")
	}

	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	}
	opts = append(opts, saslOpts(KafkaConfig{SSL: cfg.SSL, User: cfg.User, Password: cfg.Password}, log)...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Kafka client")
	}

	log.Info("created group consumer", "group", cfg.Group, "topics", topics)

	return &GroupConsumer{
		client:   client,
		producer: client,
		handlers: handlers,
		logger:   log,
	}, nil
}

// Run polls until the context is cancelled.
func (c *GroupConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error", err, "topic", topic, "partition", partition)
		})

		var done []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			if c.process(ctx, record) {
				done = append(done, record)
			}
		})

		if len(done) > 0 {
			if err := c.client.CommitRecords(ctx, done...); err != nil {
				c.logger.Error("failed to commit records", err)
			}
		}
	}
}

// process runs the handler for one record and reports whether its offset may
// be committed. Malformed records are dead-lettered and committed so they
// never stall the partition. Any other handler error is retried with backoff
// until it succeeds or the context ends, because committing a later record
// would silently skip this one; handlers are idempotent, so redoing work on
// restart is safe.
func (c *GroupConsumer) process(ctx context.Context, record *kgo.Record) bool {
	if ctx.Err() != nil {
		return false
	}

	handler, ok := c.handlers[record.Topic]
	if !ok {
		c.logger.Warn("no handler registered for topic", "topic", record.Topic)
		return true
	}

	metrics.EventsConsumed.WithLabelValues(record.Topic).Inc()

	backoff := 250 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := handler(ctx, Message{Topic: record.Topic, Key: record.Key, Value: record.Value})
		metrics.HandlerLatency.WithLabelValues(record.Topic).Observe(time.Since(start).Seconds())

		if err == nil {
			return true
		}

		if errors.Is(err, events.ErrMalformed) {
			c.logger.Warn("dead-lettering malformed message",
				"topic", record.Topic,
				"key", string(record.Key),
				"error", err.Error())
			metrics.EventsDropped.WithLabelValues(record.Topic, "malformed").Inc()
			c.deadLetter(ctx, record)
			return true
		}

		metrics.HandlerFailures.WithLabelValues(record.Topic, "handler").Inc()
		c.logger.Warn("handler failed, retrying",
			"topic", record.Topic,
			"key", string(record.Key),
			"attempt", attempt,
			"error", err.Error())

		select {
		case <-ctx.Done():
			// Shutdown mid-retry: the offset stays uncommitted and the record
			// is redelivered on restart.
			c.logger.Info("abandoning record for redelivery",
				"topic", record.Topic,
				"key", string(record.Key))
			return false
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// deadLetter copies the raw record onto the paired dead-letter topic so it
// stays inspectable. A failed dead-letter write is logged and the original is
// dropped regardless; a poison message must not stall the consumer group.
func (c *GroupConsumer) deadLetter(ctx context.Context, record *kgo.Record) {
	dlq := &kgo.Record{
		Topic: DeadLetterTopic(record.Topic),
		Key:   record.Key,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: "source_topic", Value: []byte(record.Topic)},
		},
	}
	if err := c.producer.ProduceSync(ctx, dlq).FirstErr(); err != nil {
		c.logger.Error("failed to write to dead-letter topic", err, "topic", dlq.Topic)
	}
}

// Close closes the underlying client.
func (c *GroupConsumer) Close() error {
	c.client.Close()
	return nil
}
