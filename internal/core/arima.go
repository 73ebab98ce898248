package core

import (
	"context"
	"fmt"

	"waitcast/internal/dataset"

	"gonum.org/v1/gonum/mat"
)

// ARIMAModel fits an AR(p) process to the d-times differenced series by least
// squares, forecasts one step ahead, and integrates the differences back.
type ARIMAModel struct {
	identity Identity
	p        int
	d        int
}

var _ Model = (*ARIMAModel)(nil)

func NewARIMAModel(identity Identity, p, d int) (*ARIMAModel, error) {
	if p < 1 {
		return nil, fmt.Errorf("arima model requires p >= 1, got %d", p)
	}
	if d < 0 {
		return nil, fmt.Errorf("arima model requires d >= 0, got %d", d)
	}

	return &ARIMAModel{identity: identity, p: p, d: d}, nil
}

func (m *ARIMAModel) Identity(ctx context.Context) (Identity, error) {
	return m.identity, nil
}

func (m *ARIMAModel) Predict(ctx context.Context, ds *dataset.Dataset) (float64, error) {
	series := ds.Values()
	if len(series) == 0 {
		return 0, ErrNoObservations
	}

	// The last value at each differencing level is needed to integrate the
	// forecast back to the original scale.
	lasts := make([]float64, 0, m.d)
	for i := 0; i < m.d; i++ {
		if len(series) < 2 {
			return 0, fmt.Errorf("%w: need at least %d observations for d=%d", ErrNotEnoughObservations, m.d+1, m.d)
		}
		lasts = append(lasts, series[len(series)-1])
		series = difference(series)
	}

	var next float64
	if constant(series) {
		// A flat series makes the regression singular and needs no fit.
		next = series[len(series)-1]
	} else {
		if len(series) < 2*m.p+1 {
			return 0, fmt.Errorf("%w: ar(%d) fit needs at least %d observations after differencing, have %d", ErrNotEnoughObservations, m.p, 2*m.p+1, len(series))
		}

		coeffs, err := fitAR(series, m.p)
		if err != nil {
			return 0, err
		}

		next = coeffs[0]
		for lag := 1; lag <= m.p; lag++ {
			next += coeffs[lag] * series[len(series)-lag]
		}
	}

	for i := m.d - 1; i >= 0; i-- {
		next += lasts[i]
	}

	if next < 0 {
		next = 0
	}

	return next, nil
}

func difference(values []float64) []float64 {
	diffed := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffed[i-1] = values[i] - values[i-1]
	}
	return diffed
}

func constant(values []float64) bool {
	for _, v := range values {
		if v != values[0] {
			return false
		}
	}
	return true
}

// fitAR solves the least squares system for an AR(p) model with intercept,
// returning [c, phi_1, ..., phi_p]. An ill-conditioned but solvable system
// still yields usable coefficients.
func fitAR(series []float64, p int) ([]float64, error) {
	n := len(series) - p

	X := mat.NewDense(n, p+1, nil)
	y := mat.NewVecDense(n, nil)
	for row := 0; row < n; row++ {
		X.Set(row, 0, 1)
		for lag := 1; lag <= p; lag++ {
			X.Set(row, lag, series[p+row-lag])
		}
		y.SetVec(row, series[p+row])
	}

	var coeffs mat.VecDense
	if err := coeffs.SolveVec(X, y); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, fmt.Errorf("error fitting ar(%d) coefficients: %w", p, err)
		}
	}

	result := make([]float64, p+1)
	for i := range result {
		result[i] = coeffs.AtVec(i)
	}

	return result, nil
}
