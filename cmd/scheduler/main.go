package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitcast/cmd"
	"waitcast/internal/alerting"
	"waitcast/internal/database"
	"waitcast/internal/scheduler"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SchedulerConfig struct {
	DatabaseURL          string `env:"DATABASE_URL,notEmpty,required"`
	WarehouseDatabaseURL string `env:"WAREHOUSE_DATABASE_URL" envDefault:""`
	RabbitMQURL          string `env:"RABBITMQ_URL" envDefault:""`
	ModelRosterPath      string `env:"MODEL_ROSTER_PATH" envDefault:""`

	DatasetSource string `env:"DATASET_SOURCE" envDefault:"warehouse"`
	DatasetBucket string `env:"DATASET_BUCKET" envDefault:""`
	DatasetPrefix string `env:"DATASET_PREFIX" envDefault:""`

	ArchiveBucket string `env:"ARCHIVE_BUCKET" envDefault:""`
	ArchivePrefix string `env:"ARCHIVE_PREFIX" envDefault:"ticks/"`

	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"15m"`
	FetchLookback  time.Duration `env:"FETCH_LOOKBACK" envDefault:"24h"`
	PredictTimeout time.Duration `env:"PREDICT_TIMEOUT" envDefault:"30s"`
	Concurrency    int           `env:"WORKER_CONCURRENCY" envDefault:"0"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9102"`

	S3 cmd.S3Settings
}

func main() {
	log.Println("Starting Scheduler...")

	cmd.LoadEnvFile()

	var cfg SchedulerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Single database deployments keep observations next to the serving
	// tables, so the warehouse URL may be omitted.
	if cfg.WarehouseDatabaseURL == "" {
		cfg.WarehouseDatabaseURL = cfg.DatabaseURL
	}

	fetcher, err := cmd.NewDatasetFetcher(ctx, cfg.DatasetSource, cfg.WarehouseDatabaseURL, cfg.S3, cfg.DatasetBucket, cfg.DatasetPrefix)
	if err != nil {
		log.Fatalf("Failed to create dataset fetcher: %v", err)
	}

	registry := cmd.BuildModelRegistry(cfg.ModelRosterPath)

	var publisher alerting.Publisher
	if cfg.RabbitMQURL != "" {
		rabbit, err := alerting.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		publisher = rabbit
	} else {
		slog.Warn("RABBITMQ_URL not set, tick alerts are disabled")
	}

	executor := scheduler.NewExecutor(db, fetcher, registry, publisher, scheduler.ExecutorConfig{
		TickInterval:   cfg.TickInterval,
		FetchLookback:  cfg.FetchLookback,
		PredictTimeout: cfg.PredictTimeout,
		Concurrency:    cfg.Concurrency,
	})

	if cfg.ArchiveBucket != "" {
		store, err := cfg.S3.ObjectStore()
		if err != nil {
			log.Fatalf("Failed to create archive store: %v", err)
		}
		if err := store.CheckAccess(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix); err != nil {
			log.Fatalf("Cannot access archive bucket %s: %v", cfg.ArchiveBucket, err)
		}
		executor.SetArchive(&scheduler.TickArchive{Store: store, Bucket: cfg.ArchiveBucket, Prefix: cfg.ArchivePrefix})
	}

	go serveMetrics(":" + cfg.MetricsPort)

	slog.Info("scheduler started",
		"tick_interval", cfg.TickInterval,
		"dataset_source", cfg.DatasetSource,
		"models", registry.Len())

	executor.Run(ctx)

	slog.Info("scheduler stopped")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("metrics server failed: %v", err)
	}
}
