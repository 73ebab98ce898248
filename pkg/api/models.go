package api

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is the external query record. Field names and the epoch-second
// produced_at are a published contract for downstream display clients.
type Prediction struct {
	Value        float64 `json:"value"`
	ModelName    string  `json:"model_name"`
	ModelVersion string  `json:"model_version"`
	ProducedAt   int64   `json:"produced_at"`
}

type ModelInfo struct {
	Name    string
	Version string
	Kind    string

	Endpoint string `json:"Endpoint,omitempty"`
}

type TickRun struct {
	Id     uuid.UUID
	Status string

	StartedAt   time.Time
	CompletedAt *time.Time `json:"CompletedAt,omitempty"`

	WindowFrom time.Time
	WindowTo   time.Time

	ModelCount   int
	SuccessCount int
	FailureCount int

	Error string `json:"Error,omitempty"`
}

type RunFailure struct {
	ModelName    string
	ModelVersion string
	Stage        string
	Error        string
	Timestamp    time.Time
}

type TickRunDetail struct {
	TickRun

	Roster   []ModelInfo  `json:"Roster,omitempty"`
	Failures []RunFailure `json:"Failures,omitempty"`
}

type GetPredictionsParams struct {
	ModelName    string `schema:"model_name"`
	ModelVersion string `schema:"model_version"`
	FromTs       *int64 `schema:"from_ts"`
	ToTs         *int64 `schema:"to_ts"`
}

type ListTicksParams struct {
	Limit int `schema:"limit"`
}
