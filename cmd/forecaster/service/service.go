// Package service implements the forecaster's operations on top of the
// forecast engine: regional forecasts, single-shot predictions, capacity
// planning, model monitoring and capacity reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/demandcast/cmd/forecaster/metrics"
	"github.com/HatiCode/demandcast/pkg/capacity"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/monitoring"
	"github.com/HatiCode/demandcast/pkg/reporting"
	"github.com/HatiCode/demandcast/pkg/storage"
)

const (
	// MaxForecastDays bounds a single forecast request.
	MaxForecastDays = 365

	// MonitoringWindow is how many trailing dataset rows the backtest scores.
	MonitoringWindow = 30

	// multiRegionDays is the horizon compared across regions.
	multiRegionDays = 4
)

// Options configures a Service. Dataset, CPU, Storage and Store are required.
type Options struct {
	Dataset    *history.Dataset
	SourceName string
	CPU        models.Predictor
	Storage    models.Predictor
	Store      storage.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	Policy          capacity.Policy
	Monitor         monitoring.Monitor
	TrainedAt       time.Time
	DefaultCapacity float64
	DefaultMAPE     float64
	ReportDays      int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is safe for concurrent use. The dataset and predictors are
// read-only; reports go to the store.
type Service struct {
	dataset    *history.Dataset
	sourceName string
	cpu        models.Predictor
	storage    models.Predictor
	store      storage.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger
	loop       *forecast.Loop
	completer  *features.Completer

	policy          capacity.Policy
	monitor         monitoring.Monitor
	trainedAt       time.Time
	defaultCapacity float64
	defaultMAPE     float64
	reportDays      int
	now             func() time.Time
}

// New validates opts and creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Dataset == nil {
		return nil, errors.New("service: dataset is required")
	}
	if opts.CPU == nil || opts.Storage == nil {
		return nil, errors.New("service: CPU and storage predictors are required")
	}
	if opts.Store == nil {
		return nil, errors.New("service: report store is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	trainedAt := opts.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = now()
	}
	reportDays := opts.ReportDays
	if reportDays <= 0 {
		reportDays = 7
	}
	defaultCapacity := opts.DefaultCapacity
	if defaultCapacity <= 0 {
		defaultCapacity = 10000
	}
	monitor := opts.Monitor
	if monitor.Threshold <= 0 || monitor.MaxAge <= 0 {
		monitor = monitoring.NewMonitor()
	}

	var observer forecast.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}

	return &Service{
		dataset:         opts.Dataset,
		sourceName:      opts.SourceName,
		cpu:             opts.CPU,
		storage:         opts.Storage,
		store:           opts.Store,
		metrics:         opts.Metrics,
		logger:          logger,
		loop:            forecast.NewLoop(logger, observer),
		completer:       features.NewCompleter(),
		policy:          opts.Policy,
		monitor:         monitor,
		trainedAt:       trainedAt,
		defaultCapacity: defaultCapacity,
		defaultMAPE:     opts.DefaultMAPE,
		reportDays:      reportDays,
		now:             now,
	}, nil
}

// ModelInfo describes a loaded predictor.
type ModelInfo struct {
	Name      string   `json:"name"`
	NFeatures int      `json:"n_features"`
	Features  []string `json:"features"`
}

// DatasetInfo describes the loaded dataset.
type DatasetInfo struct {
	Source string `json:"source"`
	Rows   int    `json:"rows"`
}

// Info is the model and dataset metadata.
type Info struct {
	CPUModel     ModelInfo   `json:"cpu_model"`
	StorageModel ModelInfo   `json:"storage_model"`
	Dataset      DatasetInfo `json:"dataset"`
	TrainedAt    time.Time   `json:"trained_at"`
}

// Info returns model and dataset metadata.
func (s *Service) Info() Info {
	describe := func(p models.Predictor) ModelInfo {
		names := p.FeatureNames()
		return ModelInfo{Name: p.Name(), NFeatures: len(names), Features: names}
	}
	return Info{
		CPUModel:     describe(s.cpu),
		StorageModel: describe(s.storage),
		Dataset:      DatasetInfo{Source: s.sourceName, Rows: s.dataset.Len()},
		TrainedAt:    s.trainedAt.UTC(),
	}
}

// Ready reports whether the service can forecast.
func (s *Service) Ready() error {
	if s.dataset.Len() < history.SeedSize {
		return fmt.Errorf("%w: dataset has %d rows, need %d", history.ErrInsufficientHistory, s.dataset.Len(), history.SeedSize)
	}
	return nil
}

// Prediction is a single-shot CPU prediction.
type Prediction struct {
	Prediction    float64            `json:"prediction"`
	InputFeatures map[string]float64 `json:"input_features"`
}

// PredictCPU completes a partial feature row from the dataset tail and
// predicts usage_cpu for it.
func (s *Service) PredictCPU(ctx context.Context, input map[string]float64) (Prediction, error) {
	if len(input) == 0 {
		return Prediction{}, fmt.Errorf("%w: no input data provided", ErrInvalidRequest)
	}

	row, err := s.completer.CompleteRow(input, s.dataset, s.cpu.FeatureNames())
	if err != nil {
		return Prediction{}, err
	}

	start := time.Now()
	v, err := models.PredictOne(ctx, s.cpu, row)
	s.metrics.ObservePredict(s.cpu.Name(), time.Since(start))
	if err != nil {
		s.metrics.RecordError("model", "predict_failed")
		return Prediction{}, fmt.Errorf("%w: %s: %v", forecast.ErrPredictorFailed, s.cpu.Name(), err)
	}

	return Prediction{Prediction: v, InputFeatures: row.Map()}, nil
}

// RegionalForecast is a CPU and storage forecast scaled to a region.
type RegionalForecast struct {
	ForecastDays       int       `json:"forecast_days"`
	Region             string    `json:"region"`
	Multiplier         float64   `json:"multiplier"`
	Predictions        []float64 `json:"predictions"`
	PredictionsCPU     []float64 `json:"predictions_cpu"`
	PredictionsStorage []float64 `json:"predictions_storage"`
}

// Forecast forecasts CPU and storage for days days and scales both by the
// region's multiplier.
func (s *Service) Forecast(ctx context.Context, days int, region string) (RegionalForecast, error) {
	if err := validDays(days); err != nil {
		return RegionalForecast{}, err
	}
	if region == "" {
		region = DefaultRegion
	}

	cpu, err := s.run(ctx, s.cpu, forecast.TargetCPU, days)
	if err != nil {
		return RegionalForecast{}, err
	}
	stor, err := s.run(ctx, s.storage, forecast.TargetStorage, days)
	if err != nil {
		return RegionalForecast{}, err
	}

	m := RegionMultiplier(region)
	scaledCPU := scale(cpu, m)
	return RegionalForecast{
		ForecastDays:       days,
		Region:             region,
		Multiplier:         m,
		Predictions:        scaledCPU,
		PredictionsCPU:     scaledCPU,
		PredictionsStorage: scale(stor, m),
	}, nil
}

// CapacityPlan is the detailed capacity analysis of a CPU forecast plus the
// capacity that would hold peak demand at the target utilisation.
type CapacityPlan struct {
	capacity.Report
	Optimal capacity.Optimal `json:"optimal"`
}

// PlanCapacity forecasts CPU for days days and analyses it against the
// provisioned capacity.
func (s *Service) PlanCapacity(ctx context.Context, provisioned float64, days int) (CapacityPlan, error) {
	if provisioned < 0 {
		return CapacityPlan{}, fmt.Errorf("%w: capacity must be >= 0", ErrInvalidRequest)
	}
	if err := validDays(days); err != nil {
		return CapacityPlan{}, err
	}

	values, err := s.run(ctx, s.cpu, forecast.TargetCPU, days)
	if err != nil {
		return CapacityPlan{}, err
	}

	report, err := s.policy.DetailedReport(values, provisioned)
	if err != nil {
		return CapacityPlan{}, err
	}
	optimal, err := capacity.OptimalCapacity(values, 70, 10)
	if err != nil {
		return CapacityPlan{}, err
	}
	return CapacityPlan{Report: report, Optimal: optimal}, nil
}

// Optimize forecasts CPU for days days and suggests the next-cycle change.
func (s *Service) Optimize(ctx context.Context, provisioned float64, days int, region string) (capacity.Suggestion, error) {
	if provisioned < 0 {
		return capacity.Suggestion{}, fmt.Errorf("%w: capacity must be >= 0", ErrInvalidRequest)
	}
	if err := validDays(days); err != nil {
		return capacity.Suggestion{}, err
	}

	values, err := s.run(ctx, s.cpu, forecast.TargetCPU, days)
	if err != nil {
		return capacity.Suggestion{}, err
	}
	return s.policy.Suggest(values, provisioned, region), nil
}

// MonitoringResult is the CPU model health.
type MonitoringResult struct {
	monitoring.Health
	// Source is "backtest" when MAPE was measured on the dataset, "supplied" otherwise.
	Source    string                `json:"mape_source"`
	Samples   int                   `json:"samples"`
	DataDrift *monitoring.DataDrift `json:"data_drift,omitempty"`
}

// Monitor assesses the CPU model. When mape is nil the model is backtested
// one step ahead on the last MonitoringWindow dataset rows.
func (s *Service) Monitor(ctx context.Context, mape *float64) (MonitoringResult, error) {
	now := s.now()

	var res MonitoringResult
	if mape != nil {
		if *mape < 0 {
			return MonitoringResult{}, fmt.Errorf("%w: mape must be >= 0", ErrInvalidRequest)
		}
		res.Health = s.monitor.Assess(monitoring.Accuracy{MAPE: *mape}, s.trainedAt, now)
		res.Source = "supplied"
	} else {
		actual, predicted, err := s.backtest(ctx)
		if err != nil {
			return MonitoringResult{}, err
		}
		acc, err := monitoring.Evaluate(actual, predicted)
		if err != nil {
			return MonitoringResult{}, fmt.Errorf("%w: %v", history.ErrInsufficientHistory, err)
		}
		res.Health = s.monitor.Assess(acc, s.trainedAt, now)
		res.Source = "backtest"
		res.Samples = len(actual)
	}

	if drift, ok := s.dataDrift(); ok {
		res.DataDrift = &drift
	}

	s.metrics.SetMAPE(res.Metrics.MAPE)
	if res.Drift.RetrainTriggered {
		s.logger.Warn("model retraining recommended",
			"status", res.Drift.Status,
			"mape", res.Drift.MAPE,
			"days_since_retrain", res.Drift.DaysSinceRetrain,
		)
	}
	return res, nil
}

// backtest predicts each of the trailing dataset rows from the rows before
// it. Rows that already carry every CPU feature are scored as they are;
// the others get their features reconstructed from the preceding rows.
// When no row can be reconstructed the first reconstruction error is
// returned.
func (s *Service) backtest(ctx context.Context) (actual, predicted []float64, err error) {
	names := s.cpu.FeatureNames()
	rec, err := features.NewReconstructor(names)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", forecast.ErrInvalidArgument, err)
	}

	n := s.dataset.Len()
	first := n - MonitoringWindow
	if first < 1 {
		first = 1
	}

	var (
		rows     []models.FeatureRow
		firstErr error
	)
	for i := first; i < n; i++ {
		target := s.dataset.At(i)
		y, ok := target.Get(forecast.TargetCPU)
		if !ok {
			continue
		}

		row, ok := materialized(target, names)
		if !ok {
			step, err := rec.Next(s.dataset.Head(i))
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			row = step.Row
		}
		rows = append(rows, row)
		actual = append(actual, y)
	}
	if len(rows) == 0 {
		if firstErr != nil {
			return nil, nil, fmt.Errorf("backtest: %w", firstErr)
		}
		return nil, nil, fmt.Errorf("%w: no dataset rows can be backtested", history.ErrInsufficientHistory)
	}

	start := time.Now()
	predicted, err = s.cpu.Predict(ctx, rows)
	s.metrics.ObservePredict(s.cpu.Name(), time.Since(start))
	if err != nil {
		s.metrics.RecordError("model", "backtest_failed")
		return nil, nil, fmt.Errorf("%w: %s: %v", forecast.ErrPredictorFailed, s.cpu.Name(), err)
	}
	if len(predicted) != len(rows) {
		return nil, nil, fmt.Errorf("%w: %s returned %d predictions for %d rows", forecast.ErrPredictorFailed, s.cpu.Name(), len(predicted), len(rows))
	}
	return actual, predicted, nil
}

func materialized(r history.Record, names []string) (models.FeatureRow, bool) {
	values := make([]float64, len(names))
	for i, name := range names {
		v, ok := r.Get(name)
		if !ok {
			return models.FeatureRow{}, false
		}
		values[i] = v
	}
	row, err := models.NewFeatureRow(names, values)
	return row, err == nil
}

// dataDrift compares the trailing MonitoringWindow CPU values with the rows before them.
func (s *Service) dataDrift() (monitoring.DataDrift, bool) {
	cpu, err := s.dataset.Column(forecast.TargetCPU)
	if err != nil || len(cpu) <= MonitoringWindow {
		return monitoring.DataDrift{}, false
	}
	split := len(cpu) - MonitoringWindow
	drift, err := monitoring.DetectDataDrift(cpu[split:], monitoring.BaselineOf(cpu[:split]), monitoring.DefaultDataDriftThreshold)
	if err != nil {
		return monitoring.DataDrift{}, false
	}
	return drift, true
}

// ReportRequest parameterises GenerateReport. Zero values use the service defaults.
type ReportRequest struct {
	Region   string
	Capacity float64
	MAPE     *float64
}

// GenerateReport forecasts CPU for the report horizon, builds a capacity
// report for the region and stores it.
func (s *Service) GenerateReport(ctx context.Context, req ReportRequest) (reporting.Report, error) {
	region := req.Region
	if region == "" {
		region = DefaultRegion
	}
	if err := storage.ValidateRegion(region); err != nil {
		return reporting.Report{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	provisioned := req.Capacity
	if provisioned == 0 {
		provisioned = s.defaultCapacity
	}
	if provisioned < 0 {
		return reporting.Report{}, fmt.Errorf("%w: capacity must be >= 0", ErrInvalidRequest)
	}
	mape := s.defaultMAPE
	if req.MAPE != nil {
		mape = *req.MAPE
	}
	if mape < 0 {
		return reporting.Report{}, fmt.Errorf("%w: mape must be >= 0", ErrInvalidRequest)
	}

	values, err := s.run(ctx, s.cpu, forecast.TargetCPU, s.reportDays)
	if err != nil {
		return reporting.Report{}, err
	}

	now := s.now()
	report, err := reporting.Build(reporting.Input{
		Region:   region,
		Target:   forecast.TargetCPU,
		Forecast: scale(values, RegionMultiplier(region)),
		Capacity: provisioned,
		Policy:   s.policy,
		Health:   s.monitor.Check(mape, s.trainedAt, now),
		Now:      now,
	})
	if err != nil {
		return reporting.Report{}, err
	}

	if err := s.store.Put(ctx, report); err != nil {
		s.metrics.RecordError("store", "put_failed")
		return reporting.Report{}, fmt.Errorf("store report: %w", err)
	}
	s.metrics.RecordReport(string(report.Capacity.Status))

	s.logger.Info("capacity report generated",
		"id", report.ID,
		"region", region,
		"status", report.Capacity.Status,
		"utilization", report.Capacity.Utilization,
		"model_status", report.Health.Status,
	)
	return report, nil
}

// LatestReport returns the newest stored report for region.
func (s *Service) LatestReport(ctx context.Context, region string) (reporting.Report, bool, error) {
	if region == "" {
		region = DefaultRegion
	}
	if err := storage.ValidateRegion(region); err != nil {
		return reporting.Report{}, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.store.GetLatest(ctx, region)
}

// ListReports returns up to limit stored reports for region, newest first.
func (s *Service) ListReports(ctx context.Context, region string, limit int) ([]reporting.Report, error) {
	if region == "" {
		region = DefaultRegion
	}
	if err := storage.ValidateRegion(region); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be >= 0", ErrInvalidRequest)
	}
	return s.store.List(ctx, region, limit)
}

// RegionSummary is one region of a multi-region comparison.
type RegionSummary struct {
	Name           string    `json:"name"`
	CPUUsage       float64   `json:"cpuUsage"`
	StorageUsage   float64   `json:"storageUsage"`
	Forecast       []float64 `json:"forecast"`
	PeakHours      []string  `json:"peakHours"`
	Recommendation string    `json:"recommendation"`
}

// MultiRegion is a simulated comparison of regions.
type MultiRegion struct {
	Regions []RegionSummary `json:"regions"`
}

// CompareRegions simulates the next days of demand per region. The idx-th
// region gets a (1 + 0.05*idx) variation of the CPU forecast and of the last
// observed usage.
func (s *Service) CompareRegions(ctx context.Context, regions []string) (MultiRegion, error) {
	if len(regions) == 0 {
		regions = DefaultRegions
	}

	values, err := s.run(ctx, s.cpu, forecast.TargetCPU, s.reportDays)
	if err != nil {
		return MultiRegion{}, err
	}
	if len(values) > multiRegionDays {
		values = values[:multiRegionDays]
	}

	last, _ := s.dataset.Back(1)
	lastCPU, _ := last.Get(forecast.TargetCPU)
	lastStorage, _ := last.Get(forecast.TargetStorage)

	out := MultiRegion{Regions: make([]RegionSummary, 0, len(regions))}
	for idx, name := range regions {
		variation := 1.0 + float64(idx)*0.05

		regional := make([]float64, len(values))
		for i, v := range values {
			regional[i] = round(v*variation, 1)
		}

		suggestion := s.policy.Suggest(regional, s.defaultCapacity, name)
		out.Regions = append(out.Regions, RegionSummary{
			Name:           name,
			CPUUsage:       round(lastCPU*variation, 1),
			StorageUsage:   round(lastStorage*variation, 1),
			Forecast:       regional,
			PeakHours:      peakHours(idx),
			Recommendation: suggestion.Recommendation,
		})
	}
	return out, nil
}

func (s *Service) run(ctx context.Context, p models.Predictor, target string, days int) ([]float64, error) {
	values, err := s.loop.Forecast(ctx, s.dataset, p, target, days)
	if err != nil {
		s.metrics.RecordError("forecast", reason(err))
		return nil, err
	}
	if len(values) > 0 {
		s.metrics.SetPredictedValue(target, values[0])
	}
	return values, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, features.ErrReconstructionGap):
		return "reconstruction_gap"
	case errors.Is(err, history.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, forecast.ErrPredictorFailed):
		return "predict_failed"
	default:
		return "other"
	}
}

func validDays(days int) error {
	if days < 1 || days > MaxForecastDays {
		return fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidRequest, MaxForecastDays, days)
	}
	return nil
}
