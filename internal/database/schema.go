package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Prediction rows are keyed by the producing model's resolved identity plus
// the production timestamp, so a model version can never record two values
// for the same instant.
type Prediction struct {
	ModelName    string    `gorm:"primaryKey;size:255"`
	ModelVersion string    `gorm:"primaryKey;size:64"`
	ProducedAt   time.Time `gorm:"primaryKey"`

	WaitSeconds float64 `gorm:"not null"`

	TickId uuid.UUID `gorm:"type:uuid;index"`
}

const (
	TickRunning   string = "RUNNING"
	TickCompleted string = "COMPLETED"
	TickFailed    string = "FAILED"
	TickSkipped   string = "SKIPPED"
)

const (
	StageFetch    string = "fetch"
	StageIdentity string = "identity"
	StagePredict  string = "predict"
	StageValidate string = "validate"
	StagePersist  string = "persist"
)

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

	// Snapshot of the model roster the tick ran with, as []api.ModelInfo.
	Roster datatypes.JSON

	Failures []RunFailure `gorm:"foreignKey:TickId;constraint:OnDelete:CASCADE"`
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

// WaitObservation rows are the raw wait time measurements models consume. In
// production these usually live in a separate warehouse database; local mode
// and tests keep them alongside the serving tables.
type WaitObservation struct {
	ObservedAt  time.Time `gorm:"primaryKey"`
	WaitSeconds float64   `gorm:"not null"`
}
