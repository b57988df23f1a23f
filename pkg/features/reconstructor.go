package features

import (
	"fmt"

	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/models"
)

// Step is the outcome of reconstructing one day.
type Step struct {
	// Next is the next-day record before prediction: the template with every
	// produced feature merged in.
	Next history.Record

	// Row is the predictor input, in the predictor's feature order.
	Row models.FeatureRow
}

// Reconstructor builds the next-day feature row for a fixed list of
// required features. Only rules whose name is required run.
//
// A Reconstructor holds no per-call state and is safe for concurrent use.
type Reconstructor struct {
	required []string
	stages   map[Stage][]Rule
	registry *Registry
}

// NewReconstructor creates a reconstructor for the ordered required names
// using the default registry.
func NewReconstructor(required []string) (*Reconstructor, error) {
	return NewReconstructorWithRegistry(DefaultRegistry(), required)
}

// NewReconstructorWithRegistry creates a reconstructor over reg.
func NewReconstructorWithRegistry(reg *Registry, required []string) (*Reconstructor, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if len(required) == 0 {
		return nil, fmt.Errorf("required feature list cannot be empty")
	}

	want := make(map[string]bool, len(required))
	for _, name := range required {
		if name == "" {
			return nil, fmt.Errorf("required feature list contains an empty name")
		}
		if want[name] {
			return nil, fmt.Errorf("required feature %q listed twice", name)
		}
		want[name] = true
	}

	stages := make(map[Stage][]Rule, len(Stages))
	for _, rule := range reg.Rules() {
		if want[rule.Name] {
			stages[rule.Stage] = append(stages[rule.Stage], rule)
		}
	}

	req := make([]string, len(required))
	copy(req, required)

	return &Reconstructor{
		required: req,
		stages:   stages,
		registry: reg,
	}, nil
}

// Required returns the ordered required feature names.
func (r *Reconstructor) Required() []string {
	out := make([]string, len(r.required))
	copy(out, r.required)
	return out
}

// Next reconstructs the day after hist's last record.
//
// The draft starts as the last record and passes through the calendar, lag,
// rolling and derived stages; each stage evaluates its rules against the
// history and the draft it received, then merges its output into a new
// draft. The row is finally reindexed to the required order.
func (r *Reconstructor) Next(hist history.Series) (Step, error) {
	template, ok := hist.Back(1)
	if !ok {
		return Step{}, fmt.Errorf("%w: empty history", history.ErrInsufficientHistory)
	}

	draft := template
	for _, stage := range Stages {
		draft = r.apply(stage, hist, draft)
	}

	row, err := r.reindex(draft)
	if err != nil {
		return Step{}, err
	}
	return Step{Next: draft, Row: row}, nil
}

func (r *Reconstructor) apply(stage Stage, hist history.Series, draft history.Record) history.Record {
	rules := r.stages[stage]
	if len(rules) == 0 {
		return draft
	}

	out := make(map[string]float64, len(rules))
	for _, rule := range rules {
		if v, ok := rule.Eval(hist, draft); ok {
			out[rule.Name] = v
		}
	}
	return draft.Merge(out)
}

func (r *Reconstructor) reindex(draft history.Record) (models.FeatureRow, error) {
	values := make([]float64, len(r.required))
	for i, name := range r.required {
		v, ok := draft.Get(name)
		if !ok {
			stage := StageReindex
			if rule, known := r.registry.Lookup(name); known {
				stage = rule.Stage
			}
			return models.FeatureRow{}, &GapError{Stage: stage, Feature: name}
		}
		values[i] = v
	}
	return models.FeatureRow{Names: r.Required(), Values: values}, nil
}
