// Command forecaster implements the demandcast forecast service.
//
// On startup the forecaster:
//  1. Loads the historical feature dataset from a CSV file or an HTTP source
//  2. Loads the CPU and storage predictors (linear artifacts, a remote
//     inference service, or the built-in baseline)
//  3. Opens the report store (memory, Redis or PostgreSQL)
//  4. Serves forecasts, capacity planning and monitoring over HTTP
//  5. Regenerates capacity reports on a fixed interval
//
// The forecaster serves an HTTP API on port 8081 (configurable); see package
// router for the full route list. When GRPC_HEALTH_LISTEN is set it also
// serves the standard gRPC health service.
//
// Usage:
//
//	forecaster \
//	  -data=data/mlmodeltrainingdataset.csv \
//	  -cpu-model-path=models/cpu_model.json \
//	  -storage-model-path=models/storage_model.json \
//	  -storage=redis -redis-addr=redis:6379 \
//	  -capacity=10000
//
// Environment variables:
//
//	LISTEN              - HTTP listen address (default: :8081)
//	GRPC_HEALTH_LISTEN  - gRPC health listen address (default: disabled)
//	SOURCE              - Dataset source: csv, http (default: csv)
//	DATA_PATH           - CSV dataset path
//	DATA_URL            - Dataset URL (SOURCE=http)
//	SOURCE_*            - Extra source settings, e.g. SOURCE_ROWS_PATH
//	CPU_MODEL           - CPU predictor: linear, byom, baseline (default: linear)
//	STORAGE_MODEL       - Storage predictor: linear, byom, baseline (default: linear)
//	STORAGE             - Report store: memory, redis, postgres (default: memory)
//	REPORT_INTERVAL     - Scheduled report interval, 0 disables (default: 5m)
//	REPORT_REGIONS      - Regions reported each interval (default: East)
//	CAPACITY            - Default provisioned capacity (default: 10000)
//	MAPE_THRESHOLD      - Drift threshold in percent (default: 10)
//	MAX_MODEL_AGE       - Staleness limit (default: 720h)
//	MODEL_TRAINED_AT    - Model training time, RFC3339 or YYYY-MM-DD
//	LOG_LEVEL           - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT          - Logging format: text, json (default: text)
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/demandcast/cmd/forecaster/config"
	"github.com/HatiCode/demandcast/cmd/forecaster/logger"
	"github.com/HatiCode/demandcast/cmd/forecaster/metrics"
	"github.com/HatiCode/demandcast/cmd/forecaster/models"
	"github.com/HatiCode/demandcast/cmd/forecaster/router"
	"github.com/HatiCode/demandcast/cmd/forecaster/service"
	"github.com/HatiCode/demandcast/cmd/forecaster/store"
	"github.com/HatiCode/demandcast/pkg/adapters"
	"github.com/HatiCode/demandcast/pkg/httpx"
	"github.com/HatiCode/demandcast/pkg/monitoring"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting demandcast forecaster",
		"version", version,
		"source", cfg.Source,
		"cpu_model", cfg.CPUModel,
		"storage_model", cfg.StorageModel,
		"storage", cfg.Storage,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, log); err != nil {
		log.Error("forecaster failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log *slog.Logger) error {
	source, err := adapters.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		return err
	}
	loadStart := time.Now()
	dataset, err := source.Load(ctx)
	if err != nil {
		return err
	}
	log.Info("dataset loaded",
		"source", source.Name(),
		"rows", dataset.Len(),
		"duration_ms", time.Since(loadStart).Milliseconds(),
	)

	cpu, stor, err := models.FromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}

	reports, err := store.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closer, ok := reports.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}()
	}

	m := metrics.New(nil)
	svc, err := service.New(service.Options{
		Dataset:         dataset,
		SourceName:      source.Name(),
		CPU:             cpu,
		Storage:         stor,
		Store:           reports,
		Metrics:         m,
		Logger:          log,
		Policy:          cfg.Policy,
		Monitor:         monitoring.Monitor{Threshold: cfg.MAPEThreshold, MaxAge: cfg.MaxModelAge},
		TrainedAt:       cfg.TrainedAt,
		DefaultCapacity: cfg.DefaultCapacity,
		DefaultMAPE:     cfg.DefaultMAPE,
		ReportDays:      cfg.ReportDays,
	})
	if err != nil {
		return err
	}
	if err := svc.Ready(); err != nil {
		log.Warn("service not ready, forecasts will fail", "error", err)
	}

	if cfg.ReportInterval > 0 {
		f := New(svc, cfg.ReportRegions, cfg.DefaultCapacity, log, m)
		go func() {
			if err := f.Run(ctx, cfg.ReportInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("report loop failed", "error", err)
			}
		}()
	}

	httpServer := httpx.NewServer(cfg.Listen, router.SetupRoutes(svc, log), log)

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		grpcServer, err = startHealthServer(cfg.GRPCListen, svc, log)
		if err != nil {
			return err
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case runErr = <-serverErr:
	}

	log.Info("shutting down")
	cancel()

	if grpcServer != nil {
		log.Info("shutting down grpc health server")
		grpcServer.GracefulStop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// startHealthServer serves grpc.health.v1.Health on addr. The overall status
// is SERVING once the dataset can seed a forecast.
func startHealthServer(addr string, svc *service.Service, log *slog.Logger) (*grpc.Server, error) {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := svc.Ready(); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	healthServer.SetServingStatus("", status)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		log.Info("grpc health server listening", "address", addr, "status", status)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server failed", "error", err)
		}
	}()
	return grpcServer, nil
}
