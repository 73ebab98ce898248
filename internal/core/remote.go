package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"waitcast/internal/dataset"

	"github.com/go-resty/resty/v2"
)

// RemoteModel proxies predictions to an external model server.
//
// The server reports its own identity via GET /metadata, which is cached for
// identityTTL (0 caches for the process lifetime). Predictions come from
// POST /predict with the fetched dataset as the request body.
type RemoteModel struct {
	client      *resty.Client
	declared    Identity
	identityTTL time.Duration

	mu         sync.Mutex
	resolved   Identity
	resolvedAt time.Time
}

var _ Model = (*RemoteModel)(nil)

func NewRemoteModel(declared Identity, baseURL string, timeout, identityTTL time.Duration) (*RemoteModel, error) {
	if baseURL == "" {
		return nil, errors.New("remote model requires a base url")
	}

	client := resty.New().SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	return &RemoteModel{
		client:      client,
		declared:    declared,
		identityTTL: identityTTL,
	}, nil
}

type remoteMetadata struct {
	Name    string
	Version string
}

type remoteObservation struct {
	ObservedAt  time.Time
	WaitSeconds float64
}

type remotePredictRequest struct {
	WindowFrom   time.Time
	WindowTo     time.Time
	Observations []remoteObservation
}

type remotePredictResponse struct {
	WaitSeconds float64
}

func (m *RemoteModel) Identity(ctx context.Context) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved.Valid() && (m.identityTTL == 0 || time.Since(m.resolvedAt) < m.identityTTL) {
		return m.resolved, nil
	}

	var meta remoteMetadata
	resp, err := m.client.R().
		SetContext(ctx).
		SetResult(&meta).
		Get("/metadata")
	if err != nil {
		return Identity{}, fmt.Errorf("error fetching identity of model %s: %w", m.declared, err)
	}
	if resp.IsError() {
		return Identity{}, fmt.Errorf("model server for %s returned status %d for metadata", m.declared, resp.StatusCode())
	}

	resolved := Identity{Name: meta.Name, Version: meta.Version}
	if !resolved.Valid() {
		return Identity{}, fmt.Errorf("model server for %s returned incomplete identity: name=%q version=%q", m.declared, meta.Name, meta.Version)
	}

	m.resolved = resolved
	m.resolvedAt = time.Now()

	return m.resolved, nil
}

func (m *RemoteModel) Predict(ctx context.Context, ds *dataset.Dataset) (float64, error) {
	request := remotePredictRequest{
		WindowFrom:   ds.Window.From,
		WindowTo:     ds.Window.To,
		Observations: make([]remoteObservation, len(ds.Observations)),
	}
	for i, obs := range ds.Observations {
		request.Observations[i] = remoteObservation{ObservedAt: obs.ObservedAt, WaitSeconds: obs.WaitSeconds}
	}

	var result remotePredictResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&result).
		Post("/predict")
	if err != nil {
		return 0, fmt.Errorf("error calling model server for %s: %w", m.declared, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("model server for %s returned status %d: %s", m.declared, resp.StatusCode(), resp.String())
	}

	return result.WaitSeconds, nil
}
