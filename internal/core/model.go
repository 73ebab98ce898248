package core

import (
	"context"

	"waitcast/internal/dataset"
)

// ModelKind selects the forecasting strategy for a roster entry.
type ModelKind string

// Available model kinds
const (
	MovingAverage ModelKind = "moving_average"
	ETS           ModelKind = "ets"
	ARIMA         ModelKind = "arima"
	RemoteHTTP    ModelKind = "remote_http"
)

// Identity names the model and version predictions are attributed to.
type Identity struct {
	Name    string
	Version string
}

func (id Identity) String() string {
	return id.Name + "@" + id.Version
}

func (id Identity) Valid() bool {
	return id.Name != "" && id.Version != ""
}

// Model produces wait time forecasts from an observation dataset.
//
// Identity reports the name and version to attribute predictions to. Built-in
// models fix it at construction, remote models resolve it from the serving
// endpoint. Predict returns the forecast wait in seconds. A model given an
// empty dataset must return an error rather than panic.
type Model interface {
	Identity(ctx context.Context) (Identity, error)

	Predict(ctx context.Context, ds *dataset.Dataset) (float64, error)
}
