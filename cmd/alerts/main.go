package main

import (
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitcast/cmd"
	"waitcast/internal/alerting"
	"waitcast/pkg/models"

	"github.com/caarlos0/env/v11"
)

// Tails the tick alert queue and writes each report to the log. Useful for
// watching a deployment without wiring up a real alerting destination.

type AlertsConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
}

func main() {
	log.Println("Starting Alert Tail...")

	cmd.LoadEnvFile()

	var cfg AlertsConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	receiver, err := alerting.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		receiver.Close()
	}()

	log.Println("Waiting for tick alerts. Press Ctrl+C to exit.")

	for alert := range receiver.Alerts() {
		var payload models.TickAlertPayload
		if err := json.Unmarshal(alert.Payload(), &payload); err != nil {
			slog.Error("error parsing tick alert", "error", err)
			alert.Reject() //nolint:errcheck
			continue
		}

		slog.Warn("tick completed with failures",
			"tick_id", payload.TickId,
			"started_at", payload.StartedAt.Format(time.RFC3339),
			"models", payload.ModelCount,
			"succeeded", payload.SuccessCount,
			"failed", payload.FailureCount)
		for _, failure := range payload.Failures {
			slog.Warn("model failure",
				"model", failure.ModelName+"@"+failure.ModelVersion,
				"stage", failure.Stage,
				"error", failure.Error)
		}

		alert.Ack() //nolint:errcheck
	}

	log.Println("Alert tail stopped.")
}
