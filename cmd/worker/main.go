// Worker consumes session telemetry events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"pawsit/agent/internal/config"
	"pawsit/agent/internal/telemetry/loki"
	otelsetup "pawsit/agent/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: otelsetup.ParseLevel(cfg.LogLevel)}))

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Error("worker: KAFKA_BROKERS is required")
		os.Exit(1)
	}
	lokiClient, err := loki.NewClient(cfg.LokiURL, cfg.ServiceName, nil)
	if err != nil {
		log.Error("worker: loki client", "error", err)
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.TelemetryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker: consuming", "topic", cfg.TelemetryKafkaTopic, "group", cfg.KafkaGroupID, "loki", cfg.LokiURL)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker: stopped")
				return
			}
			log.Warn("worker: kafka read failed", "error", err)
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := lokiClient.PushEventJSON(pushCtx, msg.Value); err != nil {
			log.Warn("worker: loki push failed", "offset", msg.Offset, "error", err)
		}
		pushCancel()
	}
}
