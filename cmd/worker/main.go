// Worker consumes login events from Kafka and stores them in Loki and the
// login_events table. Set KAFKA_BROKERS and at least one of LOKI_URL or DATABASE_URL.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"userbot-connect/internal/config"
	"userbot-connect/internal/db"
	"userbot-connect/internal/telemetry"
	"userbot-connect/internal/telemetry/consumer"
	"userbot-connect/internal/telemetry/loki"
	telemetryrepo "userbot-connect/internal/telemetry/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" && cfg.DatabaseURL == "" {
		log.Fatal("worker: LOKI_URL or DATABASE_URL is required")
	}

	var (
		sinks telemetry.MultiEmitter
		raw   consumer.RawPusher
	)
	if cfg.LokiURL != "" {
		lc, err := loki.NewClient(cfg.LokiURL)
		if err != nil {
			log.Fatalf("worker: %v", err)
		}
		sinks = append(sinks, lc)
		raw = lc
	}
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("worker: db: %v", err)
		}
		defer conn.Close()
		sinks = append(sinks, telemetryrepo.NewPostgresRepository(conn))
	}

	reader := consumer.NewKafkaReader(brokers, cfg.TelemetryKafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: consuming from %s (group %s)", cfg.TelemetryKafkaTopic, cfg.KafkaGroupID)
	if err := consumer.New(reader, sinks, raw).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
