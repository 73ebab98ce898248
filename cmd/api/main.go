package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waitcast/cmd"
	"waitcast/internal/api"
	"waitcast/internal/database"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIConfig struct {
	DatabaseURL         string        `env:"DATABASE_URL,notEmpty,required"`
	APIPort             string        `env:"API_PORT" envDefault:"8002"`
	CORSOrigins         []string      `env:"CORS_ORIGINS" envDefault:"*"`
	ModelRosterPath     string        `env:"MODEL_ROSTER_PATH" envDefault:""`
	DefaultModelName    string        `env:"DEFAULT_MODEL_NAME" envDefault:""`
	DefaultModelVersion string        `env:"DEFAULT_MODEL_VERSION" envDefault:""`
	QueryWindow         time.Duration `env:"QUERY_WINDOW" envDefault:"6h"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	registry := cmd.BuildModelRegistry(cfg.ModelRosterPath)

	// The first roster entry serves queries that do not name a model.
	defaults := api.QueryDefaults{
		ModelName:    cfg.DefaultModelName,
		ModelVersion: cfg.DefaultModelVersion,
		Window:       cfg.QueryWindow,
	}
	if defaults.ModelName == "" && registry.Len() > 0 {
		lead := registry.Entries()[0].Spec
		defaults.ModelName = lead.Name
		defaults.ModelVersion = lead.Version
	}

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	apiHandler := api.NewQueryService(db, registry, defaults)

	apiHandler.AddRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
