package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"

	"waitcast/internal/config"
	"waitcast/internal/core"
	"waitcast/internal/database"
	"waitcast/internal/dataset"
	"waitcast/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// S3Settings groups the object store options shared by the scheduler and
// backfill entrypoints. With no endpoint the AWS default credential chain
// applies, which covers EC2 instance roles.
type S3Settings struct {
	EndpointURL     string `env:"S3_ENDPOINT_URL"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func (s S3Settings) ObjectStore() (*storage.S3ObjectStore, error) {
	return storage.NewS3ObjectStore(storage.S3Config{
		Endpoint:        s.EndpointURL,
		Region:          s.Region,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
	})
}

// BuildModelRegistry loads the roster file (or the embedded default roster
// when path is empty) and instantiates every model in it.
func BuildModelRegistry(rosterPath string) *core.Registry {
	roster, err := config.LoadRoster(rosterPath)
	if err != nil {
		log.Fatalf("Failed to load model roster: %v", err)
	}

	registry, err := core.BuildRegistry(roster.Models)
	if err != nil {
		log.Fatalf("Failed to build model registry: %v", err)
	}

	return registry
}

// NewDatasetFetcher builds the observation source selected by DATASET_SOURCE.
func NewDatasetFetcher(ctx context.Context, source, warehouseURL string, s3 S3Settings, bucket, prefix string) (dataset.Fetcher, error) {
	switch source {
	case "warehouse":
		warehouse, err := database.NewWarehouse(warehouseURL)
		if err != nil {
			return nil, fmt.Errorf("error connecting to warehouse: %w", err)
		}
		return dataset.NewSQLFetcher(warehouse), nil
	case "object":
		store, err := s3.ObjectStore()
		if err != nil {
			return nil, err
		}
		if err := store.CheckAccess(ctx, bucket, prefix); err != nil {
			return nil, fmt.Errorf("cannot access dataset bucket %s: %w", bucket, err)
		}
		return dataset.NewObjectFetcher(store, bucket, prefix), nil
	default:
		return nil, fmt.Errorf("unknown dataset source %q, must be 'warehouse' or 'object'", source)
	}
}
