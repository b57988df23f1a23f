// Package metrics provides Prometheus metrics instrumentation for the forecaster.
//
// It exposes operational metrics about forecast and report generation. All
// metrics are exposed via the /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - demandcast_forecast_seconds: Histogram of recursive forecast duration by target
//   - demandcast_forecast_days: Histogram of forecast horizons by target
//   - demandcast_model_predict_seconds: Histogram of predictor call duration by model
//   - demandcast_predicted_value: Gauge of the latest day-1 prediction by target
//   - demandcast_reports_total: Counter of generated reports by capacity status
//   - demandcast_model_mape: Gauge of the latest monitored MAPE
//   - demandcast_errors_total: Counter of errors by component and reason
//
// Metrics implements forecast.Observer so the forecast loop reports its own
// timings.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	ForecastSeconds     *prometheus.HistogramVec
	ForecastDays        *prometheus.HistogramVec
	ModelPredictSeconds *prometheus.HistogramVec
	PredictedValue      *prometheus.GaugeVec
	ReportsTotal        *prometheus.CounterVec
	ModelMAPE           prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ForecastSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demandcast_forecast_seconds",
			Help:    "Time spent producing a recursive forecast",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),

		ForecastDays: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demandcast_forecast_days",
			Help:    "Forecast horizon in days",
			Buckets: []float64{1, 7, 14, 30, 60, 90, 180, 365},
		}, []string{"target"}),

		ModelPredictSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "demandcast_model_predict_seconds",
			Help:    "Time spent in a single predictor call",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),

		PredictedValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "demandcast_predicted_value",
			Help: "Latest day-1 prediction",
		}, []string{"target"}),

		ReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_reports_total",
			Help: "Total number of generated capacity reports by status",
		}, []string{"status"}),

		ModelMAPE: factory.NewGauge(prometheus.GaugeOpts{
			Name: "demandcast_model_mape",
			Help: "Latest monitored CPU model MAPE in percent",
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "demandcast_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// ObservePredict records one predictor call.
func (m *Metrics) ObservePredict(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelPredictSeconds.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveForecast records one completed forecast.
func (m *Metrics) ObserveForecast(target string, days int, d time.Duration) {
	if m == nil {
		return
	}
	m.ForecastSeconds.WithLabelValues(target).Observe(d.Seconds())
	m.ForecastDays.WithLabelValues(target).Observe(float64(days))
}

// SetPredictedValue sets the latest day-1 prediction for target.
func (m *Metrics) SetPredictedValue(target string, value float64) {
	if m == nil {
		return
	}
	m.PredictedValue.WithLabelValues(target).Set(value)
}

// RecordReport counts a generated report.
func (m *Metrics) RecordReport(status string) {
	if m == nil {
		return
	}
	m.ReportsTotal.WithLabelValues(status).Inc()
}

// SetMAPE sets the latest monitored MAPE.
func (m *Metrics) SetMAPE(mape float64) {
	if m == nil {
		return
	}
	m.ModelMAPE.Set(mape)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
