package core

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoObservations        = errors.New("dataset has no observations")
	ErrNotEnoughObservations = errors.New("not enough observations")
	ErrInvalidPrediction     = errors.New("prediction must be a non-negative finite number")
	ErrModelUnavailable      = errors.New("model unavailable")
	ErrUnknownModelKind      = errors.New("unknown model kind")
)

// ValidatePrediction rejects forecasts that cannot be served as wait times.
// Values are never clamped, a model producing garbage should fail loudly.
func ValidatePrediction(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidPrediction, value)
	}
	return nil
}
