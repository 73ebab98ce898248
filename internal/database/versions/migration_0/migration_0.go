package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Prediction struct {
	ModelName    string    `gorm:"primaryKey;size:255"`
	ModelVersion string    `gorm:"primaryKey;size:64"`
	ProducedAt   time.Time `gorm:"primaryKey"`

	WaitSeconds float64 `gorm:"not null"`

	TickId uuid.UUID `gorm:"type:uuid;index"`
}

type TickRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Status string `gorm:"size:20;not null"`

	StartedAt   time.Time
	CompletedAt sql.NullTime

	WindowFrom time.Time
	WindowTo   time.Time

	ModelCount   int `gorm:"default:0"`
	SuccessCount int `gorm:"default:0"`
	FailureCount int `gorm:"default:0"`

	Error sql.NullString
}

type WaitObservation struct {
	ObservedAt  time.Time `gorm:"primaryKey"`
	WaitSeconds float64   `gorm:"not null"`
}

func Migration(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Prediction{}, &TickRun{}, &WaitObservation{},
	)
	if err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
