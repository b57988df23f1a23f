package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/demandcast/cmd/forecaster/metrics"
	"github.com/HatiCode/demandcast/cmd/forecaster/service"
	"github.com/HatiCode/demandcast/pkg/capacity"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/reporting"
	"github.com/HatiCode/demandcast/pkg/storage"
)

// fakeGenerator records requests and fails for the regions in fail.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []service.ReportRequest
	fail     map[string]bool
}

func (g *fakeGenerator) GenerateReport(_ context.Context, req service.ReportRequest) (reporting.Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.fail[req.Region] {
		return reporting.Report{}, errors.New("forecast unavailable")
	}
	return reporting.Report{ID: uuid.New(), Region: req.Region}, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	gen := &fakeGenerator{}
	f := New(gen, []string{"East", "West"}, 500, discardLogger(), nil)

	if f == nil {
		t.Fatal("New() returned nil")
	}
	if len(f.Regions()) != 2 {
		t.Errorf("regions = %v, want 2 regions", f.Regions())
	}
	if f.capacity != 500 {
		t.Errorf("capacity = %v, want 500", f.capacity)
	}
}

func TestNew_Defaults(t *testing.T) {
	f := New(&fakeGenerator{}, nil, 0, nil, nil)

	if f.logger == nil {
		t.Error("logger should not be nil when nil is passed")
	}
	if len(f.regions) != 1 || f.regions[0] != service.DefaultRegion {
		t.Errorf("regions = %v, want [%s]", f.regions, service.DefaultRegion)
	}
}

func TestForecaster_Tick(t *testing.T) {
	gen := &fakeGenerator{}
	f := New(gen, []string{"East", "West"}, 250, discardLogger(), nil)

	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if len(gen.requests) != 2 {
		t.Fatalf("GenerateReport called %d times, want 2", len(gen.requests))
	}
	for i, want := range []string{"East", "West"} {
		if gen.requests[i].Region != want {
			t.Errorf("request[%d].Region = %q, want %q", i, gen.requests[i].Region, want)
		}
		if gen.requests[i].Capacity != 250 {
			t.Errorf("request[%d].Capacity = %v, want 250", i, gen.requests[i].Capacity)
		}
		if gen.requests[i].MAPE != nil {
			t.Errorf("request[%d].MAPE should be left to the service default", i)
		}
	}
}

func TestForecaster_Tick_PartialFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	gen := &fakeGenerator{fail: map[string]bool{"West": true}}
	f := New(gen, []string{"East", "West", "North"}, 0, discardLogger(), m)

	err := f.Tick(context.Background())
	if err == nil {
		t.Fatal("Tick() should report the failing region")
	}
	if gen.calls() != 3 {
		t.Errorf("GenerateReport called %d times, want 3 (failure must not stop the tick)", gen.calls())
	}
	if got := testutil.ToFloat64(m.ReportsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed reports = %v, want 1", got)
	}
}

func TestForecaster_Tick_CanceledContext(t *testing.T) {
	gen := &fakeGenerator{}
	f := New(gen, []string{"East", "West"}, 0, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Tick() error = %v, want context.Canceled", err)
	}
	if gen.calls() != 0 {
		t.Errorf("GenerateReport called %d times after cancel, want 0", gen.calls())
	}
}

func TestForecaster_Run_ContextCancellation(t *testing.T) {
	gen := &fakeGenerator{}
	f := New(gen, nil, 0, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Run(ctx, time.Hour)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for gen.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if gen.calls() == 0 {
		t.Fatal("Run() should tick immediately")
	}

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestForecaster_Run_Ticks(t *testing.T) {
	gen := &fakeGenerator{}
	f := New(gen, nil, 0, discardLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	if err := f.Run(ctx, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if gen.calls() < 3 {
		t.Errorf("GenerateReport called %d times, want at least 3", gen.calls())
	}
}

func TestForecaster_Tick_WithService(t *testing.T) {
	records := make([]history.Record, 20)
	for i := range records {
		records[i] = history.NewRecord(map[string]float64{
			history.ColUsageCPU:          70 + float64(i),
			history.ColUsageStorage:      900,
			history.ColUsersActive:       250,
			history.ColEconomicIndex:     1,
			history.ColCloudMarketDemand: 1,
			history.ColMonth:             float64(i%12 + 1),
			history.ColYear:              2024,
			history.ColIsWeekend:         0,
		})
	}
	ds, err := history.NewDataset(records)
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}

	lag := features.LagName(history.ColUsageCPU, 1)
	cpu, err := models.NewLinearModel("persistence", []string{lag}, 0, map[string]float64{lag: 1})
	if err != nil {
		t.Fatalf("NewLinearModel() error = %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := storage.NewMemoryStore(5)
	svc, err := service.New(service.Options{
		Dataset: ds,
		CPU:     cpu,
		Storage: models.NewBaselineModel(history.ColUsageStorage),
		Store:   store,
		Metrics: m,
		Logger:  discardLogger(),
		Policy:  capacity.DefaultPolicy(),
	})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}

	f := New(svc, []string{"East", "Central India"}, 100, discardLogger(), m)
	if err := f.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	for _, region := range f.Regions() {
		report, found, err := store.GetLatest(context.Background(), region)
		if err != nil || !found {
			t.Fatalf("GetLatest(%q) found=%v error=%v", region, found, err)
		}
		if report.Capacity.Status != capacity.StatusScaleUp {
			t.Errorf("%s status = %v, want %v", region, report.Capacity.Status, capacity.StatusScaleUp)
		}
	}
	if got := testutil.ToFloat64(m.ReportsTotal.WithLabelValues(string(capacity.StatusScaleUp))); got != 2 {
		t.Errorf("scale_up reports = %v, want 2", got)
	}
}
