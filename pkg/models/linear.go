package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"
)

// LinearModel is a pretrained linear regression exported as a JSON artifact:
//
//	{
//	  "name": "cpu-linear-v3",
//	  "feature_names": ["month", "usage_cpu_lag_1", ...],
//	  "intercept": 4.2,
//	  "coefficients": {"month": 0.1, "usage_cpu_lag_1": 0.93, ...}
//	}
//
// Every declared feature needs a coefficient.
type LinearModel struct {
	name         string
	featureNames []string
	intercept    float64
	weights      []float64
}

type linearArtifact struct {
	Name         string             `json:"name"`
	FeatureNames []string           `json:"feature_names"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// NewLinearModel creates a linear model over featureNames.
func NewLinearModel(name string, featureNames []string, intercept float64, coefficients map[string]float64) (*LinearModel, error) {
	if len(featureNames) == 0 {
		return nil, fmt.Errorf("linear model %q: no feature names", name)
	}
	if name == "" {
		name = "linear"
	}

	seen := make(map[string]bool, len(featureNames))
	weights := make([]float64, len(featureNames))
	for i, f := range featureNames {
		if seen[f] {
			return nil, fmt.Errorf("linear model %q: duplicate feature %q", name, f)
		}
		seen[f] = true

		w, ok := coefficients[f]
		if !ok {
			return nil, fmt.Errorf("linear model %q: no coefficient for feature %q", name, f)
		}
		weights[i] = w
	}

	names := make([]string, len(featureNames))
	copy(names, featureNames)

	return &LinearModel{
		name:         name,
		featureNames: names,
		intercept:    intercept,
		weights:      weights,
	}, nil
}

// ParseLinearModel decodes a JSON model artifact.
func ParseLinearModel(data []byte) (*LinearModel, error) {
	var a linearArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode linear model: %w", err)
	}
	return NewLinearModel(a.Name, a.FeatureNames, a.Intercept, a.Coefficients)
}

// LoadLinearModel reads a JSON model artifact from path.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read linear model: %w", err)
	}
	return ParseLinearModel(data)
}

// Name returns the model identifier.
func (m *LinearModel) Name() string {
	return m.name
}

// FeatureNames returns the ordered training features.
func (m *LinearModel) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// Predict computes intercept + w·x for every row.
func (m *LinearModel) Predict(ctx context.Context, rows []FeatureRow) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: rows cannot be empty", m.name)
	}

	out := make([]float64, len(rows))
	for i, row := range rows {
		if err := CheckRow(m.featureNames, row); err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", m.name, i, err)
		}
		out[i] = m.intercept + floats.Dot(m.weights, row.Values)
	}
	return out, nil
}
