// Package router configures HTTP routes for the forecaster's HTTP API.
//
// The forecaster exposes an HTTP server on port 8081 (configurable) that serves
// forecasts, capacity planning, model monitoring and stored capacity reports,
// along with health checks and Prometheus metrics.
//
// Routes configured:
//   - GET  /healthz - Health check (503 until the dataset can seed a forecast)
//   - GET  /metrics - Prometheus metrics endpoint
//   - GET  /api/info - Model and dataset metadata
//   - POST /api/predict_cpu - Single-shot CPU prediction from a partial feature row
//   - GET  /api/forecast?days=<n>&region=<r> - Regional CPU and storage forecast
//   - GET  /api/forecast_7, /api/forecast_30 - Fixed-horizon forecasts
//   - POST /api/capacity_planning - Capacity analysis of a CPU forecast
//   - POST /api/optimization - Next-cycle optimisation hint
//   - GET  /api/monitoring[?mape=] - Model health
//   - GET  /api/report[?capacity=&mape=&region=] - Generate and store a report
//   - GET  /api/reports/latest?region=<r> - Latest stored report
//   - GET  /api/reports?region=<r>&limit=<n>[&format=csv] - Report history
//   - GET  /api/multi_region?regions=<a,b> - Simulated regional comparison
//
// Errors are returned as {"error": "..."}: invalid requests map to 400,
// reconstruction gaps and short history to 422, predictor failures to 502.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/demandcast/cmd/forecaster/service"
	"github.com/HatiCode/demandcast/pkg/features"
	"github.com/HatiCode/demandcast/pkg/forecast"
	"github.com/HatiCode/demandcast/pkg/history"
	"github.com/HatiCode/demandcast/pkg/httpx"
	"github.com/HatiCode/demandcast/pkg/reporting"
)

// requestTimeout bounds a single API call, remote predictor round-trips included.
const requestTimeout = 30 * time.Second

// SetupRoutes configures HTTP endpoints for the forecaster and wraps them in
// request logging and panic recovery.
func SetupRoutes(svc *service.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(svc.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/info", h.info)
	mux.HandleFunc("POST /api/predict_cpu", h.predictCPU)
	mux.HandleFunc("GET /api/forecast", h.forecast(0))
	mux.HandleFunc("GET /api/forecast_7", h.forecast(7))
	mux.HandleFunc("GET /api/forecast_30", h.forecast(30))
	mux.HandleFunc("POST /api/capacity_planning", h.capacityPlanning)
	mux.HandleFunc("POST /api/optimization", h.optimization)
	mux.HandleFunc("GET /api/monitoring", h.monitoring)
	mux.HandleFunc("GET /api/report", h.report)
	mux.HandleFunc("GET /api/reports/latest", h.latestReport)
	mux.HandleFunc("GET /api/reports", h.listReports)
	mux.HandleFunc("GET /api/multi_region", h.multiRegion)

	return httpx.Chain(mux,
		httpx.RequestIDMiddleware,
		httpx.LoggingMiddleware(logger),
		httpx.RecoveryMiddleware(logger),
	)
}

type handlers struct {
	svc    *service.Service
	logger *slog.Logger
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.svc.Info())
}

func (h *handlers) predictCPU(w http.ResponseWriter, r *http.Request) {
	var input map[string]float64
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.svc.PredictCPU(ctx, input)
	if err != nil {
		h.fail(w, "predict_cpu", err)
		return
	}
	h.writeJSON(w, p)
}

// forecast serves a fixed horizon, or the days query parameter when days is 0.
func (h *handlers) forecast(days int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		n := days
		if n == 0 {
			var err error
			if n, err = queryInt(q.Get("days"), 7); err != nil {
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid days parameter")
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		res, err := h.svc.Forecast(ctx, n, q.Get("region"))
		if err != nil {
			h.fail(w, "forecast", err)
			return
		}
		h.writeJSON(w, res)
	}
}

type capacityRequest struct {
	Capacity     *float64 `json:"capacity"`
	ForecastDays *int     `json:"forecast_days"`
	Region       string   `json:"region"`
}

func (h *handlers) decodeCapacity(w http.ResponseWriter, r *http.Request, defaultDays int) (capacityRequest, bool) {
	var req capacityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if req.Capacity == nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "missing 'capacity' in request body")
		return req, false
	}
	if req.ForecastDays == nil {
		req.ForecastDays = &defaultDays
	}
	return req, true
}

func (h *handlers) capacityPlanning(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCapacity(w, r, 7)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	plan, err := h.svc.PlanCapacity(ctx, *req.Capacity, *req.ForecastDays)
	if err != nil {
		h.fail(w, "capacity_planning", err)
		return
	}
	h.writeJSON(w, plan)
}

func (h *handlers) optimization(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCapacity(w, r, 1)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	s, err := h.svc.Optimize(ctx, *req.Capacity, *req.ForecastDays, req.Region)
	if err != nil {
		h.fail(w, "optimization", err)
		return
	}
	h.writeJSON(w, s)
}

func (h *handlers) monitoring(w http.ResponseWriter, r *http.Request) {
	mape, err := queryFloatPtr(r.URL.Query().Get("mape"))
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid mape parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.Monitor(ctx, mape)
	if err != nil {
		h.fail(w, "monitoring", err)
		return
	}
	h.writeJSON(w, res)
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	capacity, err := queryFloat(q.Get("capacity"), 0)
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid capacity parameter")
		return
	}
	mape, err := queryFloatPtr(q.Get("mape"))
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid mape parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.svc.GenerateReport(ctx, service.ReportRequest{
		Region:   q.Get("region"),
		Capacity: capacity,
		MAPE:     mape,
	})
	if err != nil {
		h.fail(w, "report", err)
		return
	}
	h.writeJSON(w, report)
}

func (h *handlers) latestReport(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	report, found, err := h.svc.LatestReport(ctx, region)
	if err != nil {
		h.fail(w, "reports", err)
		return
	}
	if !found {
		if region == "" {
			region = service.DefaultRegion
		}
		httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("no report found for region %q", region))
		return
	}
	h.writeJSON(w, report)
}

func (h *handlers) listReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 0)
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	reports, err := h.svc.ListReports(ctx, q.Get("region"), limit)
	if err != nil {
		h.fail(w, "reports", err)
		return
	}

	switch q.Get("format") {
	case "", "json":
		h.writeJSON(w, map[string]any{"reports": reports})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="reports.csv"`)
		if err := reporting.WriteCSV(w, reports); err != nil {
			h.logger.Error("failed to write CSV response", "error", err)
		}
	default:
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "format must be json or csv")
	}
}

func (h *handlers) multiRegion(w http.ResponseWriter, r *http.Request) {
	var regions []string
	for _, name := range strings.Split(r.URL.Query().Get("regions"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			regions = append(regions, name)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.CompareRegions(ctx, regions)
	if err != nil {
		h.fail(w, "multi_region", err)
		return
	}
	h.writeJSON(w, res)
}

func (h *handlers) writeJSON(w http.ResponseWriter, v any) {
	if err := httpx.WriteJSON(w, http.StatusOK, v); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

// fail maps err to a status code. Server-side failures are logged; their
// details are not returned to the caller.
func (h *handlers) fail(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("request failed", "op", op, "error", err)
		httpx.WriteErrorMessage(w, status, "internal server error")
		return
	case http.StatusBadGateway:
		h.logger.Error("request failed", "op", op, "error", err)
	default:
		h.logger.Debug("request rejected", "op", op, "error", err)
	}
	httpx.WriteError(w, status, err)
}

// StatusFor maps service and engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, forecast.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, features.ErrReconstructionGap), errors.Is(err, history.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, forecast.ErrPredictorFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func queryFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func queryFloatPtr(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
