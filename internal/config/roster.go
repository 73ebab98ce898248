package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

//go:embed default_models.yaml
var defaultRosterYAML []byte

// ModelSpec declares one model in the roster. Kind selects which of the
// kind-specific fields apply.
type ModelSpec struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Kind    string `yaml:"kind"`

	// moving_average
	LookbackSeconds int `yaml:"lookback_seconds,omitempty"`

	// ets
	Alpha float64 `yaml:"alpha,omitempty"`
	Beta  float64 `yaml:"beta,omitempty"`

	// arima
	P int `yaml:"p,omitempty"`
	D int `yaml:"d,omitempty"`

	// remote_http
	BaseURL            string `yaml:"base_url,omitempty"`
	TimeoutSeconds     int    `yaml:"timeout_seconds,omitempty"`
	IdentityTTLSeconds int    `yaml:"identity_ttl_seconds,omitempty"`
}

func (s ModelSpec) Label() string {
	return s.Name + "@" + s.Version
}

type Roster struct {
	Models []ModelSpec `yaml:"models"`
}

// LoadRoster reads the model roster from path, falling back to the embedded
// default roster when path is empty. Kind-specific parameters are validated
// later when the registry instantiates each model.
func LoadRoster(path string) (*Roster, error) {
	raw := defaultRosterYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading model roster %s: %w", path, err)
		}
		raw = data
	}

	var roster Roster
	if err := yaml.Unmarshal(raw, &roster); err != nil {
		return nil, fmt.Errorf("error parsing model roster: %w", err)
	}

	if err := roster.Validate(); err != nil {
		return nil, err
	}

	return &roster, nil
}

func (r *Roster) Validate() error {
	if len(r.Models) == 0 {
		return errors.New("model roster is empty")
	}

	seen := make(map[string]bool)
	for _, spec := range r.Models {
		if spec.Name == "" || spec.Version == "" {
			return fmt.Errorf("model roster entries require a name and version, got name=%q version=%q", spec.Name, spec.Version)
		}
		if spec.Kind == "" {
			return fmt.Errorf("model %s is missing a kind", spec.Label())
		}

		if seen[spec.Label()] {
			return fmt.Errorf("duplicate model %s in roster", spec.Label())
		}
		seen[spec.Label()] = true
	}

	return nil
}
