package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id",
	"generated_at",
	"region",
	"target",
	"days",
	"avg_forecast",
	"min_forecast",
	"max_forecast",
	"trend",
	"utilization",
	"status",
	"recommendation",
	"mape",
	"model_status",
	"financial_impact",
	"impact_amount",
}

// WriteCSV writes reports as CSV, one row per report, with a header row.
func WriteCSV(w io.Writer, reports []Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i, r := range reports {
		record := []string{
			r.ID.String(),
			r.GeneratedAt.Format(time.RFC3339),
			r.Region,
			r.Forecast.Target,
			strconv.Itoa(r.Forecast.Days),
			formatFloat(r.Forecast.Avg),
			formatFloat(r.Forecast.Min),
			formatFloat(r.Forecast.Max),
			string(r.Forecast.Trend),
			formatFloat(r.Capacity.Utilization),
			string(r.Capacity.Status),
			r.Capacity.Recommendation,
			formatFloat(r.Health.MAPE),
			string(r.Health.Status),
			r.CostImpact.Description,
			r.CostImpact.Amount.StringFixed(2),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
