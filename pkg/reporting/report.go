// Package reporting assembles the periodic capacity report: a forecast
// summary, the capacity verdict, model health and the estimated cost impact.
package reporting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/HatiCode/demandcast/pkg/capacity"
	"github.com/HatiCode/demandcast/pkg/monitoring"
)

const reportType = "comprehensive"

var (
	// SavingsPerUnit is the monthly cost of one idle capacity unit.
	SavingsPerUnit = decimal.NewFromInt(10)

	// SLAPenalty is the flat penalty a timely scale-up avoids.
	SLAPenalty = decimal.NewFromInt(500)
)

// Trend is the direction of a forecast from its first to its last day.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendFlat       Trend = "flat"
)

// ForecastSummary describes the forecast a report was built from.
type ForecastSummary struct {
	Target      string    `json:"target"`
	Days        int       `json:"days_forecasted"`
	Predictions []float64 `json:"predictions"`
	Avg         float64   `json:"avg_forecast"`
	Min         float64   `json:"min_forecast"`
	Max         float64   `json:"max_forecast"`
	Trend       Trend     `json:"trend"`
}

// Impact classifies a cost estimate.
type Impact string

const (
	ImpactSavings     Impact = "savings"
	ImpactRiskAvoided Impact = "risk_avoided"
	ImpactNone        Impact = "none"
)

// CostImpact is the estimated financial effect of following a recommendation.
type CostImpact struct {
	Kind        Impact          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Report is one generated capacity report.
type Report struct {
	ID          uuid.UUID         `json:"id"`
	Type        string            `json:"report_type"`
	Region      string            `json:"region"`
	GeneratedAt time.Time         `json:"generated_at"`
	Forecast    ForecastSummary   `json:"forecast_summary"`
	Capacity    capacity.Analysis `json:"capacity_analysis"`
	Health      monitoring.Check  `json:"model_health"`
	CostImpact  CostImpact        `json:"cost_impact"`
}

// Input collects what a report is built from.
type Input struct {
	Region   string
	Target   string
	Forecast []float64
	Capacity float64
	Policy   capacity.Policy
	Health   monitoring.Check
	Now      time.Time
}

// Build assembles a report. The forecast must not be empty.
func Build(in Input) (Report, error) {
	if len(in.Forecast) == 0 {
		return Report{}, fmt.Errorf("report: forecast cannot be empty")
	}
	if in.Region == "" {
		return Report{}, fmt.Errorf("report: region is required")
	}

	analysis, err := in.Policy.Analyze(in.Forecast, in.Capacity)
	if err != nil {
		return Report{}, fmt.Errorf("report: %w", err)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	predictions := make([]float64, len(in.Forecast))
	copy(predictions, in.Forecast)

	return Report{
		ID:          uuid.New(),
		Type:        reportType,
		Region:      in.Region,
		GeneratedAt: now.UTC(),
		Forecast: ForecastSummary{
			Target:      in.Target,
			Days:        len(predictions),
			Predictions: predictions,
			Avg:         stat.Mean(predictions, nil),
			Min:         floats.Min(predictions),
			Max:         floats.Max(predictions),
			Trend:       TrendOf(predictions),
		},
		Capacity:   analysis,
		Health:     in.Health,
		CostImpact: EstimateCostImpact(analysis),
	}, nil
}

// TrendOf compares the last forecast day with the first.
func TrendOf(values []float64) Trend {
	if len(values) < 2 {
		return TrendFlat
	}
	first, last := values[0], values[len(values)-1]
	switch {
	case last > first:
		return TrendIncreasing
	case last < first:
		return TrendDecreasing
	default:
		return TrendFlat
	}
}

// EstimateCostImpact prices a capacity verdict: scaling down saves
// SavingsPerUnit per removed unit each month; scaling up avoids SLAPenalty.
func EstimateCostImpact(a capacity.Analysis) CostImpact {
	switch a.Status {
	case capacity.StatusScaleDown:
		amount := SavingsPerUnit.Mul(decimal.NewFromInt(int64(a.ChangeUnits)))
		return CostImpact{
			Kind:        ImpactSavings,
			Amount:      amount,
			Description: fmt.Sprintf("Estimated $%s/mo savings", amount.StringFixed(2)),
		}
	case capacity.StatusScaleUp:
		return CostImpact{
			Kind:        ImpactRiskAvoided,
			Amount:      SLAPenalty,
			Description: fmt.Sprintf("Risk avoided (SLA penalty $%s)", SLAPenalty.StringFixed(2)),
		}
	default:
		return CostImpact{
			Kind:        ImpactNone,
			Amount:      decimal.Zero,
			Description: "N/A",
		}
	}
}
