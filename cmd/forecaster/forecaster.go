// Package main implements the scheduled capacity report loop.
//
// This file contains the Forecaster type which regenerates capacity reports
// on a fixed interval:
//
//	forecast → analyse capacity → check model health → store report
//
// The Forecaster runs continuously via Run(), executing Tick() at regular
// intervals. Each tick builds one report per configured region so that
// /api/reports/latest always serves a recent report without forecasting on
// the request path.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/demandcast/cmd/forecaster/metrics"
	"github.com/HatiCode/demandcast/cmd/forecaster/service"
	"github.com/HatiCode/demandcast/pkg/reporting"
)

// ReportGenerator builds and stores one capacity report.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, req service.ReportRequest) (reporting.Report, error)
}

// Forecaster regenerates capacity reports for a set of regions.
type Forecaster struct {
	generator ReportGenerator
	regions   []string
	capacity  float64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a new Forecaster. A zero capacity uses the service default.
func New(
	generator ReportGenerator,
	regions []string,
	capacity float64,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if len(regions) == 0 {
		regions = []string{service.DefaultRegion}
	}

	return &Forecaster{
		generator: generator,
		regions:   regions,
		capacity:  capacity,
		logger:    logger.With("component", "scheduler"),
		metrics:   metrics,
	}
}

// Run executes the report loop at regular intervals.
// Blocks until context is canceled.
func (f *Forecaster) Run(ctx context.Context, interval time.Duration) error {
	f.logger.Info("starting report loop", "interval", interval, "regions", f.regions)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := f.Tick(ctx); err != nil {
		f.logger.Error("initial report tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("report loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := f.Tick(ctx); err != nil {
				f.logger.Error("report tick failed", "error", err)
			}
		}
	}
}

// Tick generates one report per region. A failing region does not stop
// the others; the joined errors are returned.
// Exported for testing purposes.
func (f *Forecaster) Tick(ctx context.Context) error {
	start := time.Now()
	f.logger.Debug("starting report tick")

	var errs []error
	generated := 0
	for _, region := range f.regions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		report, err := f.generator.GenerateReport(ctx, service.ReportRequest{
			Region:   region,
			Capacity: f.capacity,
		})
		if err != nil {
			f.metrics.RecordReport("failed")
			errs = append(errs, fmt.Errorf("region %s: %w", region, err))
			continue
		}
		generated++

		f.logger.Debug("report stored",
			"region", region,
			"id", report.ID,
			"status", report.Capacity.Status,
		)
	}

	f.logger.Info("report tick complete",
		"regions", len(f.regions),
		"generated", generated,
		"total_ms", time.Since(start).Milliseconds(),
	)

	return errors.Join(errs...)
}

// Regions returns the regions reported on each tick.
func (f *Forecaster) Regions() []string {
	return f.regions
}
