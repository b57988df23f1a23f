// Package capacity turns a demand forecast into capacity recommendations
// using deterministic utilisation thresholds.
package capacity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Status is the outcome of a capacity analysis.
type Status string

const (
	StatusScaleUp   Status = "scale_up"
	StatusScaleDown Status = "scale_down"
	StatusStable    Status = "stable"
)

// Action is the next-cycle optimisation action.
type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionStable   Action = "stable"
)

// Policy holds the utilisation thresholds, in percent.
type Policy struct {
	// ScaleUpAbove is the average utilisation above which capacity should grow.
	ScaleUpAbove float64
	// ScaleDownBelow is the average utilisation below which capacity can shrink.
	ScaleDownBelow float64
	// ScaleUpPercent and ScaleDownPercent size the recommended change.
	ScaleUpPercent   float64
	ScaleDownPercent float64

	// IncreaseAt and DecreaseAt apply to next-cycle utilisation (Suggest).
	IncreaseAt      float64
	DecreaseAt      float64
	IncreasePercent int
	DecreasePercent int
}

// DefaultPolicy returns the thresholds the service ships with.
func DefaultPolicy() Policy {
	return Policy{
		ScaleUpAbove:     80,
		ScaleDownBelow:   40,
		ScaleUpPercent:   15,
		ScaleDownPercent: 10,
		IncreaseAt:       85,
		DecreaseAt:       40,
		IncreasePercent:  12,
		DecreasePercent:  10,
	}
}

// Validate checks threshold ordering.
func (p Policy) Validate() error {
	if p.ScaleDownBelow >= p.ScaleUpAbove {
		return fmt.Errorf("scale-down threshold %v must be below scale-up threshold %v", p.ScaleDownBelow, p.ScaleUpAbove)
	}
	if p.DecreaseAt >= p.IncreaseAt {
		return fmt.Errorf("decrease threshold %v must be below increase threshold %v", p.DecreaseAt, p.IncreaseAt)
	}
	if p.ScaleUpPercent < 0 || p.ScaleDownPercent < 0 || p.IncreasePercent < 0 || p.DecreasePercent < 0 {
		return fmt.Errorf("change percentages must be >= 0")
	}
	return nil
}

// Analysis is the average-utilisation verdict for a forecast.
type Analysis struct {
	AvgForecast    float64 `json:"avg_forecast"`
	Capacity       float64 `json:"capacity"`
	Utilization    float64 `json:"utilization"`
	Status         Status  `json:"status"`
	ChangeUnits    int     `json:"change_units"`
	Recommendation string  `json:"recommendation"`
}

// Report extends Analysis with the spread of the forecast.
type Report struct {
	Analysis
	ForecastMin     float64 `json:"forecast_min"`
	ForecastMax     float64 `json:"forecast_max"`
	ForecastStd     float64 `json:"forecast_std"`
	PeakUtilization float64 `json:"peak_utilization"`
	MinUtilization  float64 `json:"min_utilization"`
	CapacityBuffer  float64 `json:"capacity_buffer"`
	DaysAnalyzed    int     `json:"days_analyzed"`
}

// Optimal is the capacity that keeps peak demand at a target utilisation.
type Optimal struct {
	OptimalCapacity   float64 `json:"optimal_capacity"`
	PeakDemand        float64 `json:"peak_demand"`
	AvgDemand         float64 `json:"avg_demand"`
	TargetUtilization float64 `json:"target_utilization"`
	BufferPercentage  float64 `json:"buffer_percentage"`
	Reasoning         string  `json:"reasoning"`
}

// Suggestion is the next-cycle optimisation hint for a region.
type Suggestion struct {
	Region               string  `json:"region"`
	LoadLevel            string  `json:"status"`
	Recommendation       string  `json:"recommendation"`
	SuggestedChange      int     `json:"suggested_change"`
	NextCycleUtilization float64 `json:"cpu_forecast_next_cycle_percent"`
	Action               Action  `json:"action"`
}

// Analyze applies DefaultPolicy.
func Analyze(forecast []float64, capacity float64) (Analysis, error) {
	return DefaultPolicy().Analyze(forecast, capacity)
}

// Analyze compares the mean forecast with capacity.
// A non-positive capacity yields 0% utilisation.
func (p Policy) Analyze(forecast []float64, capacity float64) (Analysis, error) {
	if len(forecast) == 0 {
		return Analysis{}, fmt.Errorf("forecast cannot be empty")
	}

	avg := stat.Mean(forecast, nil)
	util := utilization(avg, capacity)

	a := Analysis{
		AvgForecast: Round2(avg),
		Capacity:    capacity,
		Utilization: Round2(util),
	}

	switch {
	case util > p.ScaleUpAbove:
		a.Status = StatusScaleUp
		a.ChangeUnits = int(capacity * p.ScaleUpPercent / 100)
		a.Recommendation = fmt.Sprintf("Scale UP: add approx %d units (%s increase recommended)", a.ChangeUnits, FormatPercent(p.ScaleUpPercent))
	case util < p.ScaleDownBelow:
		a.Status = StatusScaleDown
		a.ChangeUnits = int(capacity * p.ScaleDownPercent / 100)
		a.Recommendation = fmt.Sprintf("Scale DOWN: remove approx %d units (%s reduction possible)", a.ChangeUnits, FormatPercent(p.ScaleDownPercent))
	default:
		a.Status = StatusStable
		a.Recommendation = "STABLE: current capacity is adequate, no action needed"
	}
	return a, nil
}

// DetailedReport applies DefaultPolicy.
func DetailedReport(forecast []float64, capacity float64) (Report, error) {
	return DefaultPolicy().DetailedReport(forecast, capacity)
}

// DetailedReport adds min/max/std and peak figures to Analyze.
func (p Policy) DetailedReport(forecast []float64, capacity float64) (Report, error) {
	a, err := p.Analyze(forecast, capacity)
	if err != nil {
		return Report{}, err
	}

	lo, hi := floats.Min(forecast), floats.Max(forecast)
	_, std := stat.PopMeanStdDev(forecast, nil)

	return Report{
		Analysis:        a,
		ForecastMin:     Round2(lo),
		ForecastMax:     Round2(hi),
		ForecastStd:     Round2(std),
		PeakUtilization: Round2(utilization(hi, capacity)),
		MinUtilization:  Round2(utilization(lo, capacity)),
		CapacityBuffer:  Round2(capacity - hi),
		DaysAnalyzed:    len(forecast),
	}, nil
}

// OptimalCapacity sizes capacity so that peak demand runs at
// targetUtilization percent, plus bufferPercentage on top.
func OptimalCapacity(forecast []float64, targetUtilization, bufferPercentage float64) (Optimal, error) {
	if len(forecast) == 0 {
		return Optimal{}, fmt.Errorf("forecast cannot be empty")
	}
	if targetUtilization <= 0 || targetUtilization > 100 {
		return Optimal{}, fmt.Errorf("target utilization must be in (0, 100], got %v", targetUtilization)
	}
	if bufferPercentage < 0 {
		return Optimal{}, fmt.Errorf("buffer percentage must be >= 0, got %v", bufferPercentage)
	}

	peak := floats.Max(forecast)
	optimal := peak / (targetUtilization / 100) * (1 + bufferPercentage/100)

	return Optimal{
		OptimalCapacity:   Round2(optimal),
		PeakDemand:        Round2(peak),
		AvgDemand:         Round2(stat.Mean(forecast, nil)),
		TargetUtilization: targetUtilization,
		BufferPercentage:  bufferPercentage,
		Reasoning: fmt.Sprintf("Optimal capacity keeps peak utilization at %s with a %s safety buffer",
			FormatPercent(targetUtilization), FormatPercent(bufferPercentage)),
	}, nil
}

// Suggest applies DefaultPolicy.
func Suggest(forecast []float64, capacity float64, region string) Suggestion {
	return DefaultPolicy().Suggest(forecast, capacity, region)
}

// Suggest judges the first forecast day against capacity.
// An empty forecast or non-positive capacity counts as 0% utilisation.
func (p Policy) Suggest(forecast []float64, capacity float64, region string) Suggestion {
	if region == "" {
		region = "unknown"
	}

	var util float64
	if len(forecast) > 0 {
		util = utilization(forecast[0], capacity)
	}

	s := Suggestion{
		Region:               region,
		NextCycleUtilization: Round2(util),
	}

	switch {
	case util >= p.IncreaseAt:
		s.Action = ActionIncrease
		s.LoadLevel = "High Load"
		s.SuggestedChange = p.IncreasePercent
		s.Recommendation = fmt.Sprintf("Increase CPU capacity by +%d%%", p.IncreasePercent)
	case util <= p.DecreaseAt:
		s.Action = ActionDecrease
		s.LoadLevel = "Low Load"
		s.SuggestedChange = p.DecreasePercent
		s.Recommendation = fmt.Sprintf("Reduce CPU capacity by -%d%%", p.DecreasePercent)
	default:
		s.Action = ActionStable
		s.LoadLevel = "Normal"
		s.Recommendation = "Capacity is adequate"
	}
	return s
}

func utilization(demand, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return demand / capacity * 100
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
