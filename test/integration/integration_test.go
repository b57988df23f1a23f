//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/HatiCode/demandcast/cmd/forecaster/config"
	"github.com/HatiCode/demandcast/cmd/forecaster/metrics"
	"github.com/HatiCode/demandcast/cmd/forecaster/models"
	"github.com/HatiCode/demandcast/cmd/forecaster/router"
	"github.com/HatiCode/demandcast/cmd/forecaster/service"
	"github.com/HatiCode/demandcast/cmd/forecaster/store"
	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/monitoring"
	"github.com/HatiCode/demandcast/pkg/reporting"
	"github.com/HatiCode/demandcast/pkg/storage"
)

// startRedis starts a Redis container and returns its host:port.
func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

// newWarehouse serves 40 daily East US rows (usage_cpu 50..89) interleaved
// with West US rows that the region filter must drop.
func newWarehouse(t *testing.T) *httptest.Server {
	t.Helper()
	var rows []map[string]any
	for i := 0; i < 40; i++ {
		for _, region := range []string{"East US", "West US"} {
			cpu := 50 + float64(i)
			if region == "West US" {
				cpu = 1000
			}
			rows = append(rows, map[string]any{
				"date":                fmt.Sprintf("2023-%02d-%02d", i/28+1, i%28+1),
				"region":              region,
				"usage_cpu":           cpu,
				"usage_storage":       1200 + 3*float64(i),
				"users_active":        400,
				"economic_index":      1.02,
				"cloud_market_demand": 0.97,
				"month":               i/28 + 1,
				"year":                2023,
				"is_weekend":          i%7 >= 5,
			})
		}
	}
	body, err := json.Marshal(map[string]any{"data": map[string]any{"rows": rows}})
	if err != nil {
		t.Fatalf("marshal rows: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newInferenceService publishes its feature list on GET and predicts
// usage_cpu_lag_1 + 1 on POST.
func newInferenceService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"model": {"name": "rf_cpu", "inputs": ["usage_cpu_lag_1", "month", "is_weekend"]}}`)
			return
		}

		var req struct {
			Features []map[string]float64 `json:"features"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		values := make([]float64, len(req.Features))
		for i, row := range req.Features {
			values[i] = row["usage_cpu_lag_1"] + 1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestForecasterE2E wires the forecaster the way the binary does: an HTTP
// dataset source, a remote CPU model, a baseline storage model and a Redis
// report store, served through the HTTP router.
func TestForecasterE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	redisAddr := startRedis(t)
	warehouse := newWarehouse(t)
	inference := newInferenceService(t)

	t.Setenv("SOURCE_ROWS_PATH", "data.rows")
	cfg, err := config.Parse([]string{
		"-source=http",
		"-data-url=" + warehouse.URL + "/daily",
		"-data-region=East US",
		"-cpu-model=byom",
		"-cpu-model-url=" + inference.URL + "/predict",
		"-model-metadata-path=model.inputs",
		"-storage-model=baseline",
		"-storage=redis",
		"-redis-addr=" + redisAddr,
		"-report-interval=0",
		"-model-trained-at=" + time.Now().AddDate(0, 0, -3).Format(time.DateOnly),
	})
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	source, err := adapters.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		t.Fatalf("adapters.New() error = %v", err)
	}
	dataset, err := source.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if dataset.Len() != 40 {
		t.Fatalf("dataset rows = %d, want 40 after the region filter", dataset.Len())
	}

	cpu, stor, err := models.FromConfig(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("models.FromConfig() error = %v", err)
	}
	if got := cpu.FeatureNames(); len(got) != 3 || got[0] != "usage_cpu_lag_1" {
		t.Fatalf("cpu features = %v, want the inference service inputs", got)
	}

	reports, err := store.New(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() {
		if closer, ok := reports.(io.Closer); ok {
			_ = closer.Close()
		}
	})

	svc, err := service.New(service.Options{
		Dataset:         dataset,
		SourceName:      source.Name(),
		CPU:             cpu,
		Storage:         stor,
		Store:           reports,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		Logger:          logger,
		Policy:          cfg.Policy,
		Monitor:         monitoring.Monitor{Threshold: cfg.MAPEThreshold, MaxAge: cfg.MaxModelAge},
		TrainedAt:       cfg.TrainedAt,
		DefaultCapacity: cfg.DefaultCapacity,
		DefaultMAPE:     cfg.DefaultMAPE,
		ReportDays:      cfg.ReportDays,
	})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}

	api := httptest.NewServer(router.SetupRoutes(svc, logger))
	t.Cleanup(api.Close)

	t.Run("health", func(t *testing.T) {
		resp := get(t, api.URL+"/healthz")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("healthz status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("forecast through remote model", func(t *testing.T) {
		var res service.RegionalForecast
		decodeBody(t, get(t, api.URL+"/api/forecast?days=3&region=East"), &res)

		want := []float64{90, 91, 92}
		for i, v := range want {
			if res.PredictionsCPU[i] != v {
				t.Errorf("cpu day %d = %v, want %v", i+1, res.PredictionsCPU[i], v)
			}
		}
		if len(res.PredictionsStorage) != 3 {
			t.Errorf("storage predictions = %v, want 3 values", res.PredictionsStorage)
		}
	})

	t.Run("reports persist in redis", func(t *testing.T) {
		var created reporting.Report
		decodeBody(t, get(t, api.URL+"/api/report?region=East%20US&capacity=100"), &created)
		if created.Capacity.Status != "scale_up" {
			t.Errorf("report status = %v, want scale_up", created.Capacity.Status)
		}
		if created.Health.Status != monitoring.StatusStable {
			t.Errorf("model health = %v, want stable", created.Health.Status)
		}

		var latest reporting.Report
		decodeBody(t, get(t, api.URL+"/api/reports/latest?region=East%20US"), &latest)
		if latest.ID != created.ID {
			t.Errorf("latest report ID = %v, want %v", latest.ID, created.ID)
		}

		// a second store instance sees the same report
		other, err := storage.NewRedisStore(redisAddr, "", 0, time.Hour, storage.DefaultHistory)
		if err != nil {
			t.Fatalf("NewRedisStore() error = %v", err)
		}
		defer other.Close()

		stored, found, err := other.GetLatest(ctx, "East US")
		if err != nil || !found {
			t.Fatalf("GetLatest() found=%v error=%v", found, err)
		}
		if stored.ID != created.ID {
			t.Errorf("stored report ID = %v, want %v", stored.ID, created.ID)
		}
	})

	t.Run("monitoring backtest", func(t *testing.T) {
		var res service.MonitoringResult
		decodeBody(t, get(t, api.URL+"/api/monitoring"), &res)
		if res.Source != "backtest" || res.Samples != service.MonitoringWindow {
			t.Errorf("monitoring source=%q samples=%d", res.Source, res.Samples)
		}
		if res.Metrics.MAPE != 0 {
			t.Errorf("backtest MAPE = %v, want 0 for a perfect model", res.Metrics.MAPE)
		}
	})

	t.Run("inference outage maps to 502", func(t *testing.T) {
		inference.Close()
		resp := get(t, api.URL+"/api/forecast?days=1")
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
	})
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
