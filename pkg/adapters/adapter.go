// Package adapters provides the data sources the forecaster loads its
// historical feature dataset from and normalizes into a history.Dataset.
//
// Each source implements the Source interface. Available sources:
//   - CSVSource  — reads a feature-engineered CSV file
//   - HTTPSource — generic source for any REST API returning JSON rows
//
// Sources only pull and shape rows. Feature reconstruction and forecasting
// live in the upper layers.
package adapters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/HatiCode/demandcast/pkg/history"
)

// RegionColumn is the optional non-numeric column sources can filter on.
const RegionColumn = "region"

// Source is the interface that all dataset sources must implement.
//
// Load is synchronous and should respect context cancellation and
// deadlines. The returned dataset is in chronological order and has passed
// history.NewDataset validation.
type Source interface {
	// Load fetches every row and returns them as a dataset.
	Load(ctx context.Context) (*history.Dataset, error)

	// Name returns a short, unique identifier for the source.
	// Example: "csv", "http".
	Name() string
}

// parseCell converts a cell to a float. Booleans map to 1 and 0 so that
// flags such as is_weekend survive pandas-style exports.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	case "":
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func buildDataset(source string, records []history.Record) (*history.Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s source: no rows", source)
	}
	ds, err := history.NewDataset(records)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", source, err)
	}
	return ds, nil
}
