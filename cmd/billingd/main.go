package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Ramnathnaik/system-design-workspace/internal/billing"
	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/httpserver"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        int    `env:"BILLING_PORT" envDefault:"8083"`
	MetricsPort int    `env:"BILLING_METRICS_PORT" envDefault:"9093"`

	DatabasePath string `env:"BILLING_DATABASE_PATH" envDefault:"billingd.db"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaSSL      bool     `env:"KAFKA_SSL" envDefault:"false"`
	KafkaUser     *string  `env:"KAFKA_USER"`
	KafkaPassword *string  `env:"KAFKA_PASSWORD"`
}

func main() {
	_ = godotenv.Load()

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel})
	log = log.With("service", "billingd")

	metrics.Register()
	httpserver.StartMetricsServer(cfg.MetricsPort, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SQLite has no replication log to tap, so committed invoice writes are
	// mirrored onto an in-process feed and relayed from there.
	feed := capture.NewFeed(0)
	defer feed.Close()

	store, err := billing.NewSQLiteStore(cfg.DatabasePath, feed)
	if err != nil {
		log.Fatal("failed to open invoice store", err)
	}
	defer store.Close()

	pub, err := bus.NewKafkaPublisher(bus.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		ClientID: "billingd",
		SSL:      cfg.KafkaSSL,
		User:     cfg.KafkaUser,
		Password: cfg.KafkaPassword,
	}, log)
	if err != nil {
		log.Fatal("failed to create Kafka publisher", err)
	}
	defer pub.Close()

	relay, err := capture.NewRelay(feed, pub, []capture.Route{billing.ChangeRoute()}, log)
	if err != nil {
		log.Fatal("failed to create relay", err)
	}

	consumer, err := bus.NewGroupConsumer(bus.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		Group:    "billing-service",
		ClientID: "billingd",
		SSL:      cfg.KafkaSSL,
		User:     cfg.KafkaUser,
		Password: cfg.KafkaPassword,
	}, billing.NewReactions(store, log).Handlers(), log)
	if err != nil {
		log.Fatal("failed to create consumer", err)
	}
	defer consumer.Close()

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", err)
			stop()
		}
	}()
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", err)
			stop()
		}
	}()

	httpserver.Serve(ctx, cfg.Port, billing.NewAPI(store, log).Routes(), log)
	log.Info("billing service stopped")
}
