// Package forecast turns a single-step predictor into a multi-day forecast.
//
// Each day the loop reconstructs the predictor's feature row from the
// history buffer, predicts the target metric, and appends the next-day
// record with the prediction written into the target column. The following
// day's lag and rolling features therefore read the prediction as the most
// recent observation.
//
// Only the target column is overwritten. In a storage forecast usage_cpu is
// copied forward unchanged, so CPU-derived features stay constant after the
// first step; run a CPU forecast separately when both are needed.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/models"
)

const (
	TargetCPU     = history.ColUsageCPU
	TargetStorage = history.ColUsageStorage
)

// Targets lists the metrics a forecast can be run for.
var Targets = []string{TargetCPU, TargetStorage}

// ValidTarget reports whether target can be forecast.
func ValidTarget(target string) bool {
	for _, t := range Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Observer receives per-call timings. It must be safe for concurrent use.
type Observer interface {
	ObservePredict(model string, d time.Duration)
	ObserveForecast(target string, days int, d time.Duration)
}

// Result is a completed forecast.
type Result struct {
	Target string

	// Values holds one prediction per day; Values[i] is day i+1.
	Values []float64

	// Rows are the feature rows handed to the predictor, one per day.
	Rows []models.FeatureRow

	// History is the buffer after the last append: the seed followed by
	// one synthetic record per day.
	History *history.Buffer
}

// Loop runs recursive forecasts. It holds no per-call state and may be
// shared across goroutines.
type Loop struct {
	logger   *slog.Logger
	observer Observer
}

// NewLoop creates a forecast loop. Both arguments are optional.
func NewLoop(logger *slog.Logger, observer Observer) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:   logger.With("component", "forecast"),
		observer: observer,
	}
}

// Forecast returns nDays predictions of target.
func (l *Loop) Forecast(ctx context.Context, ds *history.Dataset, p models.Predictor, target string, nDays int) ([]float64, error) {
	res, err := l.Run(ctx, ds, p, target, nDays)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// Run forecasts target for nDays days after the last row of ds.
//
// The call fails as a whole on the first reconstruction gap or predictor
// failure; no partial forecast is returned. ctx is passed to the predictor
// and is not otherwise checked.
func (l *Loop) Run(ctx context.Context, ds *history.Dataset, p models.Predictor, target string, nDays int) (Result, error) {
	if !ValidTarget(target) {
		return Result{}, fmt.Errorf("%w: unknown target %q", ErrInvalidArgument, target)
	}
	if nDays < 0 {
		return Result{}, fmt.Errorf("%w: days must be >= 0, got %d", ErrInvalidArgument, nDays)
	}
	if p == nil {
		return Result{}, fmt.Errorf("%w: predictor is nil", ErrInvalidArgument)
	}

	buf, err := history.Seed(ds)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Target:  target,
		Values:  make([]float64, 0, nDays),
		Rows:    make([]models.FeatureRow, 0, nDays),
		History: buf,
	}
	if nDays == 0 {
		return res, nil
	}

	rec, err := features.NewReconstructor(p.FeatureNames())
	if err != nil {
		return Result{}, fmt.Errorf("%w: predictor %s: %v", ErrInvalidArgument, p.Name(), err)
	}

	start := time.Now()
	for day := 1; day <= nDays; day++ {
		step, err := rec.Next(buf)
		if err != nil {
			return Result{}, fmt.Errorf("day %d: %w", day, err)
		}

		predictStart := time.Now()
		v, err := models.PredictOne(ctx, p, step.Row)
		if l.observer != nil {
			l.observer.ObservePredict(p.Name(), time.Since(predictStart))
		}
		if err != nil {
			return Result{}, &PredictorError{Model: p.Name(), Day: day, Err: err}
		}

		res.Values = append(res.Values, v)
		res.Rows = append(res.Rows, step.Row)
		buf.Append(step.Next.With(target, v))
	}

	elapsed := time.Since(start)
	if l.observer != nil {
		l.observer.ObserveForecast(target, nDays, elapsed)
	}

	l.logger.Debug("forecast complete",
		"target", target,
		"days", nDays,
		"model", p.Name(),
		"first", res.Values[0],
		"last", res.Values[len(res.Values)-1],
		"duration_ms", elapsed.Milliseconds(),
	)

	return res, nil
}
