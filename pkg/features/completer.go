package features

import (
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/models"
)

// Completer fills the gaps of a caller-supplied feature row for a one-off
// prediction, using the same rules as the Reconstructor evaluated once
// against the most recent SeedSize records of a dataset.
//
// Unlike the Reconstructor it is permissive: derived features with missing
// operands are computed with 0 for numerators and 1 for denominators.
type Completer struct {
	registry *Registry
}

// NewCompleter creates a completer over the default registry.
func NewCompleter() *Completer {
	return &Completer{registry: DefaultRegistry()}
}

// NewCompleterWithRegistry creates a completer over reg.
func NewCompleterWithRegistry(reg *Registry) *Completer {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Completer{registry: reg}
}

// Complete returns partial with missing lag, rolling and derived features
// filled in. Values the caller supplied are never overwritten, and neither
// partial nor ds is modified.
//
// Lag and rolling features are only recomputed from history when the caller
// did not supply usage_cpu_lag_1. That single name is the trigger: a caller
// that supplies only usage_storage_lag_1 still gets every other lag and
// rolling value filled from history.
//
// Each lag or rolling value needs its full offset or window within the
// dataset tail. With fewer than 7 rows the *_lag_7 and *_rolling_*_7
// features stay absent rather than being averaged over the shorter tail.
func (c *Completer) Complete(partial map[string]float64, ds *history.Dataset) map[string]float64 {
	out := make(map[string]float64, len(partial)+len(c.registry.rules))
	for k, v := range partial {
		out[k] = v
	}

	if _, ok := out[LagName(history.ColUsageCPU, 1)]; !ok && ds != nil {
		recent := ds.Tail(history.SeedSize)
		for _, stage := range []Stage{StageLag, StageRolling} {
			for _, rule := range c.registry.Stage(stage) {
				if _, supplied := out[rule.Name]; supplied {
					continue
				}
				if v, ok := rule.Eval(recent, history.Record{}); ok {
					out[rule.Name] = v
				}
			}
		}
	}

	get := func(name string) (float64, bool) {
		v, ok := out[name]
		return v, ok
	}
	for _, rule := range c.registry.Stage(StageDerived) {
		if _, supplied := out[rule.Name]; supplied || rule.ratio == nil {
			continue
		}
		out[rule.Name] = rule.ratio.permissive(get)
	}

	return out
}

// CompleteRow completes partial and reindexes it to required. Names still
// missing after completion, such as calendar fields the caller omitted,
// are reported as a GapError.
func (c *Completer) CompleteRow(partial map[string]float64, ds *history.Dataset, required []string) (models.FeatureRow, error) {
	full := c.Complete(partial, ds)

	values := make([]float64, len(required))
	for i, name := range required {
		v, ok := full[name]
		if !ok {
			stage := StageReindex
			if rule, known := c.registry.Lookup(name); known {
				stage = rule.Stage
			}
			return models.FeatureRow{}, &GapError{Stage: stage, Feature: name}
		}
		values[i] = v
	}

	names := make([]string, len(required))
	copy(names, required)
	return models.FeatureRow{Names: names, Values: values}, nil
}
