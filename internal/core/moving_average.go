package core

import (
	"context"
	"fmt"
	"time"

	"waitcast/internal/dataset"

	"gonum.org/v1/gonum/stat"
)

// MovingAverageModel forecasts the mean wait over the trailing lookback slice
// of the dataset.
type MovingAverageModel struct {
	identity Identity
	lookback time.Duration
}

var _ Model = (*MovingAverageModel)(nil)

func NewMovingAverageModel(identity Identity, lookback time.Duration) (*MovingAverageModel, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("moving average model requires a positive lookback, got %v", lookback)
	}

	return &MovingAverageModel{identity: identity, lookback: lookback}, nil
}

func (m *MovingAverageModel) Identity(ctx context.Context) (Identity, error) {
	return m.identity, nil
}

func (m *MovingAverageModel) Predict(ctx context.Context, ds *dataset.Dataset) (float64, error) {
	recent := ds.Since(ds.Window.To.Add(-m.lookback))
	if len(recent) == 0 {
		return 0, ErrNoObservations
	}

	values := make([]float64, len(recent))
	for i, obs := range recent {
		values[i] = obs.WaitSeconds
	}

	return stat.Mean(values, nil), nil
}
