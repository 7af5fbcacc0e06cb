package bus

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// KafkaConfig represents the configuration for the Kafka adapter
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	SSL      bool    // Enable SSL
	User     *string // SASL user
	Password *string // SASL password
}

// KafkaPublisher implements the Publisher interface on top of franz-go.
// Records are partitioned by key so that all events sharing a business key
// land on the same partition and stay ordered.
type KafkaPublisher struct {
	client *kgo.Client
	logger *logger.Logger
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(cfg KafkaConfig, log *logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Millisecond * time.Duration(100*(attempt+1))
		}),
	}
	opts = append(opts, saslOpts(cfg, log)...)

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Kafka client")
	}

	// Initial ping to verify connection
	if err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Kafka brokers")
	}

	return &KafkaPublisher{
		client: client,
		logger: log,
	}, nil
}

// Publish produces a message and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key []byte, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}

	start := time.Now()
	result := p.client.ProduceSync(ctx, record)
	if result.FirstErr() != nil {
		metrics.PublishFailures.WithLabelValues(topic, "produce").Inc()
		return errors.Wrap(result.FirstErr(), "failed to produce message")
	}

	metrics.EventsPublished.WithLabelValues(topic).Inc()
	metrics.PublishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	p.logger.Debug("produced message", "topic", topic, "key", string(key))
	return nil
}

// Close closes the publisher
func (p *KafkaPublisher) Close() error {
	p.client.Flush(context.Background())
	p.client.Close()
	return nil
}

func saslOpts(cfg KafkaConfig, log *logger.Logger) []kgo.Opt {
	if !cfg.SSL {
		return nil
	}
	log.Info("Using SSL for Kafka connection")
	return []kgo.Opt{
		kgo.SASL(scram.Auth{
			User: *cfg.User,
			Pass: *cfg.Password,
		}.AsSha512Mechanism()),
		kgo.DialTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		}),
	}
}
