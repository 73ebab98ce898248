package migration_1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TickRun struct {
	Roster datatypes.JSON
}

type RunFailure struct {
	TickId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	FailureId uuid.UUID `gorm:"type:uuid;primaryKey"`

	ModelName    string
	ModelVersion string
	Stage        string `gorm:"size:20;not null"`
	Error        string
	Timestamp    time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&TickRun{}, "roster"); err != nil {
		return fmt.Errorf("error adding Roster column: %w", err)
	}

	if err := db.AutoMigrate(&RunFailure{}); err != nil {
		return fmt.Errorf("error creating run_failures table: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&RunFailure{}); err != nil {
		return fmt.Errorf("error dropping run_failures table: %w", err)
	}

	if err := db.Migrator().DropColumn(&TickRun{}, "Roster"); err != nil {
		return fmt.Errorf("error dropping Roster column: %w", err)
	}

	return nil
}
