package core

import (
	"fmt"
	"time"

	"waitcast/internal/config"
	"waitcast/pkg/api"
)

const defaultIdentityTTL = 5 * time.Minute

// Entry pairs a constructed model with its roster declaration. The declared
// label attributes failures that happen before a remote model resolves its
// identity.
type Entry struct {
	Spec  config.ModelSpec
	Model Model
}

// Registry holds the models built from the roster, in roster order.
type Registry struct {
	entries []Entry
}

func NewRegistry(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

func BuildRegistry(specs []config.ModelSpec) (*Registry, error) {
	entries := make([]Entry, 0, len(specs))
	for _, spec := range specs {
		model, err := buildModel(spec)
		if err != nil {
			return nil, fmt.Errorf("error building model %s: %w", spec.Label(), err)
		}
		entries = append(entries, Entry{Spec: spec, Model: model})
	}

	return NewRegistry(entries...), nil
}

func buildModel(spec config.ModelSpec) (Model, error) {
	identity := Identity{Name: spec.Name, Version: spec.Version}

	switch ModelKind(spec.Kind) {
	case MovingAverage:
		return NewMovingAverageModel(identity, time.Duration(spec.LookbackSeconds)*time.Second)
	case ETS:
		return NewETSModel(identity, spec.Alpha, spec.Beta)
	case ARIMA:
		return NewARIMAModel(identity, spec.P, spec.D)
	case RemoteHTTP:
		identityTTL := defaultIdentityTTL
		if spec.IdentityTTLSeconds > 0 {
			identityTTL = time.Duration(spec.IdentityTTLSeconds) * time.Second
		}
		return NewRemoteModel(identity, spec.BaseURL, time.Duration(spec.TimeoutSeconds)*time.Second, identityTTL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModelKind, spec.Kind)
	}
}

func (r *Registry) Entries() []Entry {
	return r.entries
}

func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) Infos() []api.ModelInfo {
	infos := make([]api.ModelInfo, len(r.entries))
	for i, entry := range r.entries {
		infos[i] = api.ModelInfo{
			Name:     entry.Spec.Name,
			Version:  entry.Spec.Version,
			Kind:     entry.Spec.Kind,
			Endpoint: entry.Spec.BaseURL,
		}
	}
	return infos
}
