// Package monitoring judges model health: forecast error against actuals,
// model age, and drift of incoming data against a training baseline.
package monitoring

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Status is the model health verdict.
type Status string

const (
	StatusStable Status = "stable"
	StatusDrift  Status = "drift_detected"
	StatusStale  Status = "stale"
)

const (
	// DefaultMAPEThreshold is the MAPE, in percent, above which the model is drifting.
	DefaultMAPEThreshold = 10.0

	// DefaultMaxAge is how long a model may go without retraining.
	DefaultMaxAge = 30 * 24 * time.Hour

	// DefaultDataDriftThreshold is the relative change of mean or std that counts as data drift.
	DefaultDataDriftThreshold = 0.2
)

// MAPE returns the mean absolute percentage error, in percent, over the
// pairs whose actual value is non-zero. It returns 0 when every actual is 0.
func MAPE(actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("actual has %d values, predicted %d", len(actual), len(predicted))
	}

	ape := make([]float64, 0, len(actual))
	for i, a := range actual {
		if a == 0 {
			continue
		}
		ape = append(ape, math.Abs((a-predicted[i])/a))
	}
	if len(ape) == 0 {
		return 0, nil
	}
	return stat.Mean(ape, nil) * 100, nil
}

// Accuracy holds the standard regression error metrics.
type Accuracy struct {
	MAPE float64 `json:"mape"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2_score"`
}

// Evaluate compares predictions with actual observations.
func Evaluate(actual, predicted []float64) (Accuracy, error) {
	if len(actual) == 0 {
		return Accuracy{}, fmt.Errorf("no observations")
	}
	mape, err := MAPE(actual, predicted)
	if err != nil {
		return Accuracy{}, err
	}

	abs := make([]float64, len(actual))
	sq := make([]float64, len(actual))
	for i, a := range actual {
		d := a - predicted[i]
		abs[i] = math.Abs(d)
		sq[i] = d * d
	}

	// constant actuals leave R² undefined
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	return Accuracy{
		MAPE: mape,
		MAE:  stat.Mean(abs, nil),
		RMSE: math.Sqrt(stat.Mean(sq, nil)),
		R2:   r2,
	}, nil
}

// Check is the outcome of a model health check.
type Check struct {
	MAPE             float64 `json:"mape"`
	Threshold        float64 `json:"threshold"`
	DaysSinceRetrain int     `json:"days_since_retrain"`
	Status           Status  `json:"status"`
	Message          string  `json:"message"`
	Recommendation   string  `json:"recommendation"`
	RetrainTriggered bool    `json:"retrain_triggered"`
}

// Monitor evaluates model health against a MAPE threshold and a maximum model age.
type Monitor struct {
	Threshold float64
	MaxAge    time.Duration
}

// NewMonitor returns a monitor with the default limits.
func NewMonitor() Monitor {
	return Monitor{Threshold: DefaultMAPEThreshold, MaxAge: DefaultMaxAge}
}

// Check reports drift when mape exceeds the threshold and staleness when the
// model was trained more than MaxAge before now. Staleness takes precedence
// in Status; either one sets RetrainTriggered.
func (m Monitor) Check(mape float64, trainedAt, now time.Time) Check {
	days := int(now.Sub(trainedAt).Hours() / 24)
	maxDays := int(m.MaxAge.Hours() / 24)

	c := Check{
		MAPE:             round2(mape),
		Threshold:        m.Threshold,
		DaysSinceRetrain: days,
		Status:           StatusStable,
		Message:          "Model stable",
		Recommendation:   "No action required.",
	}

	if mape > m.Threshold {
		c.Status = StatusDrift
		c.Message = "Drift detected (high error)"
		c.Recommendation = fmt.Sprintf("Model MAPE (%.2f%%) exceeds threshold (%v%%).", mape, m.Threshold)
		c.RetrainTriggered = true
	}

	if now.Sub(trainedAt) > m.MaxAge {
		c.Status = StatusStale
		c.Message = fmt.Sprintf("Model stale (data > %d days old)", maxDays)
		c.Recommendation = fmt.Sprintf("Model hasn't been retrained in %d days.", days)
		c.RetrainTriggered = true
	}

	if c.RetrainTriggered {
		c.Message += ", retraining recommended"
		c.Recommendation += " Schedule a retraining run."
	}
	return c
}

// Grade maps MAPE to a coarse health grade.
func Grade(mape float64) string {
	switch {
	case mape <= 5:
		return "Excellent"
	case mape <= 10:
		return "Good"
	case mape <= 15:
		return "Fair"
	default:
		return "Poor"
	}
}

// Health combines a check, the error metrics and the grade.
type Health struct {
	Drift   Check    `json:"drift_status"`
	Metrics Accuracy `json:"performance_metrics"`
	Overall string   `json:"overall_health"`
}

// Assess builds a Health report from accuracy metrics.
func (m Monitor) Assess(acc Accuracy, trainedAt, now time.Time) Health {
	return Health{
		Drift: m.Check(acc.MAPE, trainedAt, now),
		Metrics: Accuracy{
			MAPE: round2(acc.MAPE),
			MAE:  round2(acc.MAE),
			RMSE: round2(acc.RMSE),
			R2:   math.Round(acc.R2*1e4) / 1e4,
		},
		Overall: Grade(acc.MAPE),
	}
}

// Baseline is the training-time distribution of a metric.
type Baseline struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// BaselineOf computes the population mean and std of values.
func BaselineOf(values []float64) Baseline {
	mean, std := stat.PopMeanStdDev(values, nil)
	return Baseline{Mean: mean, Std: std}
}

// DataDrift compares recent data with a baseline.
type DataDrift struct {
	DriftDetected        bool    `json:"drift_detected"`
	MeanDrift            bool    `json:"mean_drift"`
	StdDrift             bool    `json:"std_drift"`
	RecentMean           float64 `json:"recent_mean"`
	HistoricalMean       float64 `json:"historical_mean"`
	MeanChangePercentage float64 `json:"mean_change_percentage"`
	RecentStd            float64 `json:"recent_std"`
	HistoricalStd        float64 `json:"historical_std"`
	StdChangePercentage  float64 `json:"std_change_percentage"`
}

// DetectDataDrift flags drift when the relative change of the mean or of the
// std of recent exceeds threshold (a fraction, e.g. 0.2).
func DetectDataDrift(recent []float64, base Baseline, threshold float64) (DataDrift, error) {
	if len(recent) == 0 {
		return DataDrift{}, fmt.Errorf("recent data cannot be empty")
	}

	mean, std := stat.PopMeanStdDev(recent, nil)
	meanChange := math.Abs(mean-base.Mean) / (base.Mean + 1e-6)
	stdChange := math.Abs(std-base.Std) / (base.Std + 1e-6)

	d := DataDrift{
		MeanDrift:            meanChange > threshold,
		StdDrift:             stdChange > threshold,
		RecentMean:           round2(mean),
		HistoricalMean:       round2(base.Mean),
		MeanChangePercentage: round2(meanChange * 100),
		RecentStd:            round2(std),
		HistoricalStd:        round2(base.Std),
		StdChangePercentage:  round2(stdChange * 100),
	}
	d.DriftDetected = d.MeanDrift || d.StdDrift
	return d, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
