// Package models defines the single-step predictor contract the forecast
// engine drives and the predictor implementations the service ships with.
//
// A predictor answers one question: given a fully-featured row for a day,
// what is that day's value of the target metric. It declares, in order, the
// feature names it was trained on; that list is the contract for which
// features a caller has to build.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FeatureRow is the ordered feature vector handed to a predictor.
// Names and Values have the same length; Names follows the predictor's
// declared order.
type FeatureRow struct {
	Names  []string
	Values []float64
}

// NewFeatureRow builds a row, rejecting mismatched lengths.
func NewFeatureRow(names []string, values []float64) (FeatureRow, error) {
	if len(names) != len(values) {
		return FeatureRow{}, fmt.Errorf("feature row: %d names, %d values", len(names), len(values))
	}
	n := make([]string, len(names))
	copy(n, names)
	v := make([]float64, len(values))
	copy(v, values)
	return FeatureRow{Names: n, Values: v}, nil
}

// Get returns the value of name.
func (r FeatureRow) Get(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return 0, false
}

// Map returns the row as a name → value map.
func (r FeatureRow) Map() map[string]float64 {
	m := make(map[string]float64, len(r.Names))
	for i, n := range r.Names {
		m[n] = r.Values[i]
	}
	return m
}

// MarshalJSON encodes the row as a JSON object whose keys keep the row order.
func (r FeatureRow) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, n := range r.Names {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", n, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Predictor is a trained single-step regression model.
//
// Implementations must be deterministic for identical input and safe for
// concurrent use; the service shares one instance per target across requests.
type Predictor interface {
	// Name returns a short identifier for logs and metrics.
	Name() string

	// FeatureNames returns the ordered feature names the model was trained on.
	FeatureNames() []string

	// Predict returns one value per row.
	Predict(ctx context.Context, rows []FeatureRow) ([]float64, error)
}

// PredictOne runs p on a single row and validates the result.
func PredictOne(ctx context.Context, p Predictor, row FeatureRow) (float64, error) {
	values, err := p.Predict(ctx, []FeatureRow{row})
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%s: expected 1 prediction, got %d", p.Name(), len(values))
	}
	if math.IsNaN(values[0]) || math.IsInf(values[0], 0) {
		return 0, fmt.Errorf("%s: non-finite prediction %v", p.Name(), values[0])
	}
	return values[0], nil
}

// CheckRow verifies that row carries exactly names, in order, with finite values.
func CheckRow(names []string, row FeatureRow) error {
	if len(row.Names) != len(names) || len(row.Values) != len(names) {
		return fmt.Errorf("feature row has %d features, model expects %d", len(row.Names), len(names))
	}
	for i, n := range names {
		if row.Names[i] != n {
			return fmt.Errorf("feature %d is %q, model expects %q", i, row.Names[i], n)
		}
		if v := row.Values[i]; math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %q has non-finite value %v", n, v)
		}
	}
	return nil
}
