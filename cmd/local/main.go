package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"waitcast/cmd"
	"waitcast/internal/alerting"
	"waitcast/internal/api"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/internal/dataset"
	"waitcast/internal/scheduler"
	"waitcast/internal/storage"
	"waitcast/pkg/models"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

type Config struct {
	Root             string        `env:"ROOT" envDefault:"./waitcast"`
	Port             int           `env:"PORT" envDefault:"8002"`
	ModelRosterPath  string        `env:"MODEL_ROSTER_PATH" envDefault:""`
	TickInterval     time.Duration `env:"TICK_INTERVAL" envDefault:"1m"`
	FetchLookback    time.Duration `env:"FETCH_LOOKBACK" envDefault:"24h"`
	QueryWindow      time.Duration `env:"QUERY_WINDOW" envDefault:"6h"`
	SeedObservations bool          `env:"SEED_OBSERVATIONS" envDefault:"true"`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "waitcast.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDatabase(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Model results are written concurrently during a tick. A single
	// connection keeps sqlite from returning busy errors under that load.
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to access database pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db
}

// seedObservations fills an empty local database with a day of synthetic
// wait times so the models have something to forecast. Waits peak around
// lunch and dinner.
func seedObservations(db *gorm.DB) {
	var count int64
	if err := db.Model(&database.WaitObservation{}).Count(&count).Error; err != nil {
		log.Fatalf("Failed to count observations: %v", err)
	}
	if count > 0 {
		return
	}

	now := time.Now().UTC().Truncate(time.Minute)
	start := now.Add(-24 * time.Hour)

	var rows []database.WaitObservation
	for at := start; !at.After(now); at = at.Add(5 * time.Minute) {
		hour := float64(at.Hour()) + float64(at.Minute())/60
		wait := 240.0 +
			180*math.Exp(-(hour-12)*(hour-12)/8) +
			300*math.Exp(-(hour-19)*(hour-19)/8) +
			rand.Float64()*60 - 30
		rows = append(rows, database.WaitObservation{ObservedAt: at, WaitSeconds: math.Max(0, wait)})
	}

	if err := db.CreateInBatches(rows, 100).Error; err != nil {
		log.Fatalf("Failed to seed observations: %v", err)
	}

	slog.Info("seeded synthetic wait observations", "count", len(rows))
}

// logAlerts drains the in memory alert queue so tick failures show up in the
// local log instead of a broker.
func logAlerts(queue *alerting.InMemoryQueue) {
	for alert := range queue.Alerts() {
		var payload models.TickAlertPayload
		if err := json.Unmarshal(alert.Payload(), &payload); err != nil {
			slog.Error("error parsing tick alert", "error", err)
			alert.Reject() //nolint:errcheck
			continue
		}

		slog.Warn("tick completed with failures",
			"tick_id", payload.TickId,
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
}

func createServer(db *gorm.DB, registry *core.Registry, defaults api.QueryDefaults, port int) *http.Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},                                       // Allow all origins (TODO: make this an env var)
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, // Allow all HTTP methods
		AllowedHeaders:   []string{"*"},                                       // Allow all headers
		ExposedHeaders:   []string{"*"},                                       // Expose all headers
		AllowCredentials: true,                                                // Allow cookies/auth headers
		MaxAge:           300,                                                 // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	apiHandler := api.NewQueryService(db, registry, defaults)

	apiHandler.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "waitcast.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting waitcast", "root", cfg.Root, "port", cfg.Port, "tick_interval", cfg.TickInterval)

	db := createDatabase(cfg.Root)

	if cfg.SeedObservations {
		seedObservations(db)
	}

	registry := cmd.BuildModelRegistry(cfg.ModelRosterPath)

	queue := alerting.NewInMemoryQueue()
	go logAlerts(queue)

	executor := scheduler.NewExecutor(db, dataset.NewSQLFetcher(db), registry, queue, scheduler.ExecutorConfig{
		TickInterval:  cfg.TickInterval,
		FetchLookback: cfg.FetchLookback,
	})

	archiveStore, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create archive store: %v", err)
	}
	executor.SetArchive(&scheduler.TickArchive{Store: archiveStore, Bucket: "archive", Prefix: "ticks/"})

	defaults := api.QueryDefaults{Window: cfg.QueryWindow}
	if registry.Len() > 0 {
		lead := registry.Entries()[0].Spec
		defaults.ModelName = lead.Name
		defaults.ModelVersion = lead.Version
	}

	server := createServer(db, registry, defaults, cfg.Port)

	tickCtx, stopTicks := context.WithCancel(context.Background())

	slog.Info("starting scheduler", "models", registry.Len())
	go executor.Run(tickCtx)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down scheduler")
		stopTicks()
		queue.Close()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
