package core

import (
	"context"
	"fmt"

	"waitcast/internal/dataset"
)

// ETSModel applies Holt's double exponential smoothing to the series and
// forecasts one step ahead. Alpha smooths the level, beta the trend.
type ETSModel struct {
	identity Identity
	alpha    float64
	beta     float64
}

var _ Model = (*ETSModel)(nil)

func NewETSModel(identity Identity, alpha, beta float64) (*ETSModel, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("ets model requires alpha in (0, 1], got %v", alpha)
	}
	if beta < 0 || beta > 1 {
		return nil, fmt.Errorf("ets model requires beta in [0, 1], got %v", beta)
	}

	return &ETSModel{identity: identity, alpha: alpha, beta: beta}, nil
}

func (m *ETSModel) Identity(ctx context.Context) (Identity, error) {
	return m.identity, nil
}

func (m *ETSModel) Predict(ctx context.Context, ds *dataset.Dataset) (float64, error) {
	values := ds.Values()
	if len(values) == 0 {
		return 0, ErrNoObservations
	}
	if len(values) == 1 {
		return values[0], nil
	}

	level := values[0]
	trend := values[1] - values[0]
	for _, v := range values[1:] {
		prevLevel := level
		level = m.alpha*v + (1-m.alpha)*(level+trend)
		trend = m.beta*(level-prevLevel) + (1-m.beta)*trend
	}

	forecast := level + trend
	if forecast < 0 {
		// A downward trend can overshoot zero, which just means no wait.
		forecast = 0
	}

	return forecast, nil
}
