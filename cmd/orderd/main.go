package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Ramnathnaik/system-design-workspace/internal/order"
	"github.com/Ramnathnaik/system-design-workspace/pkg/bus"
	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/capture/offset"
	"github.com/Ramnathnaik/system-design-workspace/pkg/httpserver"
	"github.com/Ramnathnaik/system-design-workspace/pkg/logger"
	"github.com/Ramnathnaik/system-design-workspace/pkg/metrics"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        int    `env:"ORDER_PORT" envDefault:"8081"`
	MetricsPort int    `env:"ORDER_METRICS_PORT" envDefault:"9091"`

	DatabaseURL string `env:"ORDER_DATABASE_URL,required"`
	OffsetPath  string `env:"ORDER_OFFSET_PATH" envDefault:"orderd.offsets.db"`
	StartMode   string `env:"ORDER_START_MODE" envDefault:"latest"`

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
	log = log.With("service", "orderd")

	metrics.Register()
	httpserver.StartMetricsServer(cfg.MetricsPort, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := order.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open order store", err)
	}
	defer store.Close()

	offsets, err := offset.Open(cfg.OffsetPath)
	if err != nil {
		log.Fatal("failed to open offset store", err)
	}
	defer offsets.Close()

	source, err := capture.NewWALSource(capture.WALConfig{
		DatabaseURL: cfg.DatabaseURL,
		Table:       order.Table,
		StartMode:   capture.StartMode(cfg.StartMode),
	}, offsets, log)
	if err != nil {
		log.Fatal("failed to create WAL source", err)
	}
	defer source.Close()

	pub, err := bus.NewKafkaPublisher(bus.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		ClientID: "orderd",
		SSL:      cfg.KafkaSSL,
		User:     cfg.KafkaUser,
		Password: cfg.KafkaPassword,
	}, log)
	if err != nil {
		log.Fatal("failed to create Kafka publisher", err)
	}
	defer pub.Close()

	relay, err := capture.NewRelay(source, pub, []capture.Route{order.ChangeRoute()}, log)
	if err != nil {
		log.Fatal("failed to create relay", err)
	}

	consumer, err := bus.NewGroupConsumer(bus.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		Group:    "order-service",
		ClientID: "orderd",
		SSL:      cfg.KafkaSSL,
		User:     cfg.KafkaUser,
		Password: cfg.KafkaPassword,
	}, order.NewReactions(store, log).Handlers(), log)
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

	httpserver.Serve(ctx, cfg.Port, order.NewAPI(store, log).Routes(), log)
	log.Info("order service stopped")
}
