package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/demandcast/cmd/forecaster/service"
	"github.com/HatiCode/demandcast/pkg/capacity"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/httpx"
	"github.com/HatiCode/demandcast/pkg/models"
	"github.com/HatiCode/demandcast/pkg/storage"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testDataset(t *testing.T, n int) *history.Dataset {
	t.Helper()
	records := make([]history.Record, n)
	for i := range records {
		records[i] = history.NewRecord(map[string]float64{
			history.ColUsageCPU:          50 + float64(i),
			history.ColUsageStorage:      500 + 2*float64(i),
			history.ColUsersActive:       100,
			history.ColEconomicIndex:     1,
			history.ColCloudMarketDemand: 1,
			history.ColMonth:             float64(i%12 + 1),
			history.ColYear:              2023,
			history.ColIsWeekend:         float64(i % 2),
		})
	}
	ds, err := history.NewDataset(records)
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}
	return ds
}

func persistence(t *testing.T, metric string) models.Predictor {
	t.Helper()
	lag := features.LagName(metric, 1)
	m, err := models.NewLinearModel("persistence-"+metric, []string{lag}, 0, map[string]float64{lag: 1})
	if err != nil {
		t.Fatalf("NewLinearModel() error = %v", err)
	}
	return m
}

func newTestHandler(t *testing.T, rows int) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.New(service.Options{
		Dataset:    testDataset(t, rows),
		SourceName: "csv",
		CPU:        persistence(t, history.ColUsageCPU),
		Storage:    persistence(t, history.ColUsageStorage),
		Store:      storage.NewMemoryStore(10),
		Logger:     logger,
		Policy:     capacity.DefaultPolicy(),
		TrainedAt:  testNow.Add(-24 * time.Hour),
		Now:        func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}
	return SetupRoutes(svc, logger)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name string
		rows int
		want int
	}{
		{"ready", 40, http.StatusOK},
		{"dataset too short", 3, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestHandler(t, tt.rows), http.MethodGet, "/healthz", "")
			if w.Code != tt.want {
				t.Errorf("status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, newTestHandler(t, 40), http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("Content-Type") == "" {
		t.Error("Content-Type header should be set for metrics endpoint")
	}
}

func TestInfoEndpoint(t *testing.T) {
	w := do(t, newTestHandler(t, 40), http.MethodGet, "/api/info", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var info service.Info
	decode(t, w, &info)
	if info.Dataset.Rows != 40 {
		t.Errorf("dataset rows = %d, want 40", info.Dataset.Rows)
	}
	if info.CPUModel.NFeatures != 1 {
		t.Errorf("cpu model features = %d, want 1", info.CPUModel.NFeatures)
	}
}

func TestRequestIDHeader(t *testing.T) {
	w := do(t, newTestHandler(t, 40), http.MethodGet, "/api/info", "")
	if w.Header().Get(httpx.RequestIDHeader) == "" {
		t.Errorf("response is missing %s", httpx.RequestIDHeader)
	}
}

func TestForecastEndpoints(t *testing.T) {
	h := newTestHandler(t, 40)

	tests := []struct {
		target   string
		wantDays int
		wantCPU  float64
	}{
		{"/api/forecast", 7, 89},
		{"/api/forecast?days=3", 3, 89},
		{"/api/forecast?days=2&region=West", 2, 102.35},
		{"/api/forecast_7?region=North", 7, 80.1},
		{"/api/forecast_30", 30, 89},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
			}

			var res service.RegionalForecast
			decode(t, w, &res)
			if res.ForecastDays != tt.wantDays || len(res.PredictionsCPU) != tt.wantDays {
				t.Fatalf("forecast days = %d (%d values), want %d", res.ForecastDays, len(res.PredictionsCPU), tt.wantDays)
			}
			if res.PredictionsCPU[0] != tt.wantCPU {
				t.Errorf("day 1 cpu = %v, want %v", res.PredictionsCPU[0], tt.wantCPU)
			}
		})
	}
}

func TestForecastEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		rows   int
		target string
		want   int
	}{
		{"non-numeric days", 40, "/api/forecast?days=abc", http.StatusBadRequest},
		{"zero days", 40, "/api/forecast?days=0", http.StatusBadRequest},
		{"too many days", 40, "/api/forecast?days=1000", http.StatusBadRequest},
		{"short dataset", 3, "/api/forecast_7", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newTestHandler(t, tt.rows), http.MethodGet, tt.target, "")
			if w.Code != tt.want {
				t.Errorf("status code = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			var body map[string]string
			decode(t, w, &body)
			if body["error"] == "" {
				t.Error("error response should carry an error message")
			}
		})
	}
}

func TestPredictCPUEndpoint(t *testing.T) {
	h := newTestHandler(t, 40)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantPred float64
	}{
		{"supplied lag", `{"usage_cpu_lag_1": 70}`, http.StatusOK, 70},
		{"completed lag", `{"month": 3}`, http.StatusOK, 89},
		{"empty object", `{}`, http.StatusBadRequest, 0},
		{"empty body", ``, http.StatusBadRequest, 0},
		{"malformed", `{"month":`, http.StatusBadRequest, 0},
		{"non-numeric feature", `{"month": "March"}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/predict_cpu", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var p service.Prediction
			decode(t, w, &p)
			if p.Prediction != tt.wantPred {
				t.Errorf("prediction = %v, want %v", p.Prediction, tt.wantPred)
			}
		})
	}
}

func TestPredictCPUEndpoint_MethodNotAllowed(t *testing.T) {
	w := do(t, newTestHandler(t, 40), http.MethodGet, "/api/predict_cpu", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestCapacityPlanningEndpoint(t *testing.T) {
	h := newTestHandler(t, 40)

	w := do(t, h, http.MethodPost, "/api/capacity_planning", `{"capacity": 100, "forecast_days": 5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var plan map[string]any
	decode(t, w, &plan)
	if plan["status"] != string(capacity.StatusScaleUp) {
		t.Errorf("status = %v, want %v", plan["status"], capacity.StatusScaleUp)
	}
	if plan["days_analyzed"] != float64(5) {
		t.Errorf("days_analyzed = %v, want 5", plan["days_analyzed"])
	}
	if _, ok := plan["optimal"]; !ok {
		t.Error("response should include the optimal capacity")
	}

	w = do(t, h, http.MethodPost, "/api/capacity_planning", `{"forecast_days": 5}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing capacity: status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestOptimizationEndpoint(t *testing.T) {
	h := newTestHandler(t, 40)

	w := do(t, h, http.MethodPost, "/api/optimization", `{"capacity": 100, "region": "East US"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var s capacity.Suggestion
	decode(t, w, &s)
	if s.Action != capacity.ActionIncrease {
		t.Errorf("action = %v, want %v", s.Action, capacity.ActionIncrease)
	}
	if s.Region != "East US" {
		t.Errorf("region = %q, want %q", s.Region, "East US")
	}

	w = do(t, h, http.MethodPost, "/api/optimization", `{"capacity": 100, "forecast_days": -2}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative days: status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestMonitoringEndpoint(t *testing.T) {
	h := newTestHandler(t, 40)

	tests := []struct {
		target     string
		wantCode   int
		wantSource string
	}{
		{"/api/monitoring", http.StatusOK, "backtest"},
		{"/api/monitoring?mape=12.5", http.StatusOK, "supplied"},
		{"/api/monitoring?mape=abc", http.StatusBadRequest, ""},
		{"/api/monitoring?mape=-1", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var res map[string]any
			decode(t, w, &res)
			if res["mape_source"] != tt.wantSource {
				t.Errorf("mape_source = %v, want %v", res["mape_source"], tt.wantSource)
			}
			if _, ok := res["drift_status"]; !ok {
				t.Error("response should include drift_status")
			}
		})
	}
}

func TestReportEndpoints(t *testing.T) {
	h := newTestHandler(t, 40)

	w := do(t, h, http.MethodGet, "/api/reports/latest?region=West", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("latest before any report: status code = %d, want %d", w.Code, http.StatusNotFound)
	}

	for _, target := range []string{"/api/report?region=West&capacity=100", "/api/report?region=West&mape=20"} {
		w = do(t, h, http.MethodGet, target, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status code = %d, want %d: %s", target, w.Code, http.StatusOK, w.Body.String())
		}
	}

	w = do(t, h, http.MethodGet, "/api/reports/latest?region=West", "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest: status code = %d, want %d", w.Code, http.StatusOK)
	}
	var latest map[string]any
	decode(t, w, &latest)
	health, _ := latest["model_health"].(map[string]any)
	if health["status"] != "drift_detected" {
		t.Errorf("latest model_health.status = %v, want drift_detected", health["status"])
	}

	w = do(t, h, http.MethodGet, "/api/reports?region=West&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status code = %d, want %d", w.Code, http.StatusOK)
	}
	var list struct {
		Reports []json.RawMessage `json:"reports"`
	}
	decode(t, w, &list)
	if len(list.Reports) != 1 {
		t.Errorf("list returned %d reports, want 1", len(list.Reports))
	}

	w = do(t, h, http.MethodGet, "/api/reports?region=West&format=csv", "")
	if w.Code != http.StatusOK {
		t.Fatalf("csv: status code = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if lines := strings.Count(strings.TrimSpace(w.Body.String()), "\n"); lines != 2 {
		t.Errorf("csv has %d data rows, want 2", lines)
	}
}

func TestReportEndpoints_Errors(t *testing.T) {
	h := newTestHandler(t, 40)

	tests := []struct {
		target string
		want   int
	}{
		{"/api/report?capacity=abc", http.StatusBadRequest},
		{"/api/report?capacity=-10", http.StatusBadRequest},
		{"/api/report?mape=x", http.StatusBadRequest},
		{"/api/report?region=a/b", http.StatusBadRequest},
		{"/api/reports/latest?region=a:b", http.StatusBadRequest},
		{"/api/reports?limit=x", http.StatusBadRequest},
		{"/api/reports?format=xml", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != tt.want {
				t.Errorf("status code = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestMultiRegionEndpoint(t *testing.T) {
	h := newTestHandler(t, 40)

	tests := []struct {
		target string
		want   []string
	}{
		{"/api/multi_region?regions=East%20US,%20West%20US", []string{"East US", "West US"}},
		{"/api/multi_region", service.DefaultRegions},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
			}
			var res service.MultiRegion
			decode(t, w, &res)
			if len(res.Regions) != len(tt.want) {
				t.Fatalf("got %d regions, want %d", len(res.Regions), len(tt.want))
			}
			for i, name := range tt.want {
				if res.Regions[i].Name != name {
					t.Errorf("region[%d] = %q, want %q", i, res.Regions[i].Name, name)
				}
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", service.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: bad target", forecast.ErrInvalidArgument), http.StatusBadRequest},
		{&features.GapError{Stage: features.StageLag, Feature: "usage_cpu_lag_7"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("seed: %w", history.ErrInsufficientHistory), http.StatusUnprocessableEntity},
		{&forecast.PredictorError{Model: "m", Day: 1, Err: errors.New("boom")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
