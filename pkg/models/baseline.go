package models

import (
	"context"
	"fmt"
)

// BaselineModel is a training-free predictor used when no model artifact is
// configured. It reads the target's own lag and rolling features and combines:
//   - Linear trend (slope between lag 1 and lag 3)
//   - Momentum (recent slope minus the slope between lag 3 and lag 7)
//   - Weekly level (7-day rolling mean)
//
// Algorithm:
//  1. Base = lag1 + trend + 0.5*momentum
//  2. Blend base with the weekly level; the further apart they are the more
//     the level is trusted
//  3. Clamp to non-negative values
type BaselineModel struct {
	target       string
	featureNames []string
}

// NewBaselineModel creates a baseline predictor for target, e.g. "usage_cpu".
func NewBaselineModel(target string) *BaselineModel {
	return &BaselineModel{
		target: target,
		featureNames: []string{
			fmt.Sprintf("%s_lag_1", target),
			fmt.Sprintf("%s_lag_3", target),
			fmt.Sprintf("%s_lag_7", target),
			fmt.Sprintf("%s_rolling_mean_7", target),
		},
	}
}

// Name returns the model identifier.
func (m *BaselineModel) Name() string {
	return "baseline"
}

// FeatureNames returns the ordered features the baseline reads.
func (m *BaselineModel) FeatureNames() []string {
	out := make([]string, len(m.featureNames))
	copy(out, m.featureNames)
	return out
}

// Predict extrapolates each row.
func (m *BaselineModel) Predict(ctx context.Context, rows []FeatureRow) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("rows cannot be empty")
	}

	out := make([]float64, len(rows))
	for i, row := range rows {
		if err := CheckRow(m.featureNames, row); err != nil {
			return nil, fmt.Errorf("baseline: row %d: %w", i, err)
		}
		out[i] = baselineValue(row.Values[0], row.Values[1], row.Values[2], row.Values[3])
	}
	return out, nil
}

func baselineValue(lag1, lag3, lag7, mean7 float64) float64 {
	trend := (lag1 - lag3) / 2
	older := (lag3 - lag7) / 4
	momentum := trend - older

	base := lag1 + trend + 0.5*momentum

	// +1 avoids division by zero
	ratio := mean7 / (base + 1.0)

	var v float64
	switch {
	case ratio > 1.5:
		v = 0.2*base + 0.8*mean7
	case ratio > 1.2:
		v = 0.3*base + 0.7*mean7
	case ratio < 0.8:
		v = 0.4*base + 0.6*mean7
	default:
		v = 0.5*base + 0.5*mean7
	}

	if v < 0 {
		v = 0
	}
	return v
}
