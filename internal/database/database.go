package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDialector(databaseURL string) gorm.Dialector {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgres.Open(databaseURL)
	}
	return sqlite.Open(databaseURL)
}

// NewDatabase connects to the serving database and applies any pending
// migrations. TranslateError is enabled so unique constraint violations
// surface as gorm.ErrDuplicatedKey across both postgres and sqlite.
func NewDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(openDialector(databaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	log.Println("Running database migrations...")
	if err := GetMigrator(db).Migrate(); err != nil {
		return nil, fmt.Errorf("unable to migrate database: %w", err)
	}

	return db, nil
}

// NewWarehouse connects to the observations database without running
// migrations. The warehouse schema is owned by the ingestion side, this
// service only reads from it.
func NewWarehouse(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(openDialector(databaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to warehouse database: %w", err)
	}

	return db, nil
}
