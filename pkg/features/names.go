// Package features rebuilds the engineered feature vector a point predictor
// was trained on, one day ahead of a history.
//
// Every feature is declared once, as a Rule in a Registry: its name, the
// pipeline stage that produces it, how much history it reads and its
// formula. The Reconstructor runs the rules stage by stage for a recursive
// forecast; the Completer reuses the same rules once to fill the gaps of a
// caller-supplied row.
package features

import (
	"fmt"

	"github.com/HatiCode/demandcast/pkg/history"
)

// Epsilon is added to derived-feature denominators.
const Epsilon = 1e-6

// LagOffsets are the lags materialised for every lagged metric.
var LagOffsets = []int{1, 3, 7}

// RollingWindows are the rolling-statistic window sizes.
var RollingWindows = []int{3, 7}

// LaggedMetrics are the raw metrics that get lag and rolling features.
var LaggedMetrics = []string{
	history.ColUsageCPU,
	history.ColUsageStorage,
	history.ColUsersActive,
}

// Derived feature names.
const (
	CPUPerUser          = "cpu_per_user"
	StoragePerUser      = "storage_per_user"
	CPUStorageRatio     = "cpu_storage_ratio"
	EconDemandRatio     = "econ_demand_ratio"
	SystemStress        = "system_stress"
	CPUUtilizationRatio = "cpu_utilization_ratio"
	StorageEfficiency   = "storage_efficiency"
)

// LagName returns the lag-k feature name of metric, e.g. "usage_cpu_lag_1".
func LagName(metric string, k int) string {
	return fmt.Sprintf("%s_lag_%d", metric, k)
}

// RollingMeanName returns e.g. "usage_cpu_rolling_mean_3".
func RollingMeanName(metric string, w int) string {
	return fmt.Sprintf("%s_rolling_mean_%d", metric, w)
}

// RollingStdName returns e.g. "usage_cpu_rolling_std_7".
func RollingStdName(metric string, w int) string {
	return fmt.Sprintf("%s_rolling_std_%d", metric, w)
}
