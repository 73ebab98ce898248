package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Alert Payload Structs ---

type ModelFailure struct {
	ModelName    string
	ModelVersion string
	Stage        string
	Error        string
}

type TickAlertPayload struct {
	TickId    uuid.UUID
	StartedAt time.Time

	WindowFrom time.Time
	WindowTo   time.Time

	ModelCount   int
	SuccessCount int
	FailureCount int

	Failures []ModelFailure
}
