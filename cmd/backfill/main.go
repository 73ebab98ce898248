package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"time"

	"waitcast/cmd"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/internal/dataset"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
)

// Recomputes predictions over a historical range, one production timestamp
// per step. Existing rows are left untouched, so reruns are safe.

type BackfillConfig struct {
	DatabaseURL          string `env:"DATABASE_URL,notEmpty,required"`
	WarehouseDatabaseURL string `env:"WAREHOUSE_DATABASE_URL" envDefault:""`
	ModelRosterPath      string `env:"MODEL_ROSTER_PATH" envDefault:""`

	DatasetSource string `env:"DATASET_SOURCE" envDefault:"warehouse"`
	DatasetBucket string `env:"DATASET_BUCKET" envDefault:""`
	DatasetPrefix string `env:"DATASET_PREFIX" envDefault:""`

	FetchLookback  time.Duration `env:"FETCH_LOOKBACK" envDefault:"24h"`
	PredictTimeout time.Duration `env:"PREDICT_TIMEOUT" envDefault:"30s"`

	S3 cmd.S3Settings
}

var (
	fromArg = flag.String("from", "", "start of the backfill range (RFC3339)")
	toArg   = flag.String("to", "", "end of the backfill range (RFC3339), defaults to now")
	stepArg = flag.Duration("step", 15*time.Minute, "spacing between recomputed predictions")
)

func recompute(ctx context.Context, entry core.Entry, ds *dataset.Dataset, timeout time.Duration) (core.Identity, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	identity, err := entry.Model.Identity(ctx)
	if err != nil {
		return core.Identity{}, 0, err
	}

	value, err := entry.Model.Predict(ctx, ds)
	if err != nil {
		return identity, 0, err
	}

	if err := core.ValidatePrediction(value); err != nil {
		return identity, 0, err
	}

	return identity, value, nil
}

func main() {
	log.Println("Starting Backfill...")

	cmd.LoadEnvFile() // also parses the flags above

	var cfg BackfillConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if *fromArg == "" {
		log.Fatalf("-from is required")
	}
	from, err := time.Parse(time.RFC3339, *fromArg)
	if err != nil {
		log.Fatalf("invalid -from value %q: %v", *fromArg, err)
	}
	from = from.UTC().Truncate(time.Second)

	to := time.Now().UTC().Truncate(time.Second)
	if *toArg != "" {
		to, err = time.Parse(time.RFC3339, *toArg)
		if err != nil {
			log.Fatalf("invalid -to value %q: %v", *toArg, err)
		}
		to = to.UTC().Truncate(time.Second)
	}

	if to.Before(from) {
		log.Fatalf("backfill range ends before it starts: %s > %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	step := *stepArg
	if step <= 0 {
		log.Fatalf("-step must be positive")
	}

	ctx := context.Background()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if cfg.WarehouseDatabaseURL == "" {
		cfg.WarehouseDatabaseURL = cfg.DatabaseURL
	}

	fetcher, err := cmd.NewDatasetFetcher(ctx, cfg.DatasetSource, cfg.WarehouseDatabaseURL, cfg.S3, cfg.DatasetBucket, cfg.DatasetPrefix)
	if err != nil {
		log.Fatalf("Failed to create dataset fetcher: %v", err)
	}

	registry := cmd.BuildModelRegistry(cfg.ModelRosterPath)

	steps := 0
	for at := from; !at.After(to); at = at.Add(step) {
		steps++
	}

	slog.Info("backfilling predictions",
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339),
		"step", step,
		"timestamps", steps,
		"models", registry.Len())

	bar := progressbar.NewOptions(steps,
		progressbar.OptionSetDescription("⏳ backfilling"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	var produced, skipped, failed int
	for at := from; !at.After(to); at = at.Add(step) {
		window := dataset.TimeRange{From: at.Add(-cfg.FetchLookback), To: at}
		ds, err := fetcher.Fetch(ctx, window)
		if err != nil {
			log.Fatalf("Failed to fetch observations for %s: %v", at.Format(time.RFC3339), err)
		}

		for _, entry := range registry.Entries() {
			identity, value, err := recompute(ctx, entry, ds, cfg.PredictTimeout)
			if err != nil {
				failed++
				slog.Warn("model failed during backfill",
					"model", entry.Spec.Label(),
					"produced_at", at.Format(time.RFC3339),
					"error", err)
				continue
			}

			err = database.SavePrediction(ctx, db, &database.Prediction{
				ModelName:    identity.Name,
				ModelVersion: identity.Version,
				ProducedAt:   at,
				WaitSeconds:  value,
			})
			switch {
			case errors.Is(err, database.ErrDuplicatePrediction):
				skipped++
			case err != nil:
				log.Fatalf("Failed to save prediction for %s: %v", identity, err)
			default:
				produced++
			}
		}

		_ = bar.Add(1)
	}

	slog.Info("backfill complete", "produced", produced, "skipped_existing", skipped, "failed", failed)
}
