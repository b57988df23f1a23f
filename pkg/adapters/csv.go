package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/HatiCode/demandcast/pkg/history"
)

// CSVSource reads a feature-engineered CSV file with a header row.
//
// The history.RequiredColumns must hold a finite number (or boolean) on every
// row. Any other column is numeric when its first non-empty cell parses as a
// number; in those columns an empty or NaN cell leaves the feature absent for
// that row. Remaining columns (date, region, ...) are ignored, except that
// Region, when set, keeps only the rows whose region column matches it.
type CSVSource struct {
	// Path is the CSV file to read (required).
	Path string

	// Region optionally filters rows on the region column.
	Region string
}

func (c *CSVSource) Name() string { return "csv" }

// Load implements Source.
func (c *CSVSource) Load(ctx context.Context) (*history.Dataset, error) {
	if c.Path == "" {
		return nil, errors.New("csv source: path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("csv source: %w", err)
	}
	defer f.Close()

	records, err := ReadCSV(f, c.Region)
	if err != nil {
		return nil, fmt.Errorf("csv source %s: %w", c.Path, err)
	}
	return buildDataset("csv", records)
}

// ReadCSV parses CSV rows into records. An empty region keeps every row.
func ReadCSV(r io.Reader, region string) ([]history.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	regionIdx := -1
	for i, name := range header {
		if name == RegionColumn {
			regionIdx = i
		}
	}
	if region != "" && regionIdx < 0 {
		return nil, fmt.Errorf("region filter %q set but no %q column", region, RegionColumn)
	}

	kinds := make([]columnKind, len(header))
	for i, name := range header {
		switch {
		case slices.Contains(history.RequiredColumns, name):
			kinds[i] = columnRequired
		case name == RegionColumn:
			kinds[i] = columnText
		}
	}

	var records []history.Record
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make(map[string]float64, len(row))
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if kinds[i] == columnUnknown && cell != "" {
				if _, ok := parseCell(cell); ok {
					kinds[i] = columnOptional
				} else {
					kinds[i] = columnText
				}
			}

			switch kinds[i] {
			case columnRequired:
				v, ok := parseCell(cell)
				if !ok {
					return nil, fmt.Errorf("line %d: column %q: invalid number %q", line, header[i], cell)
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("line %d: column %q: non-finite value %q", line, header[i], cell)
				}
				values[header[i]] = v
			case columnOptional:
				if cell == "" {
					continue
				}
				v, ok := parseCell(cell)
				if !ok {
					return nil, fmt.Errorf("line %d: column %q: invalid number %q", line, header[i], cell)
				}
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				values[header[i]] = v
			}
		}

		if region != "" && strings.TrimSpace(row[regionIdx]) != region {
			continue
		}
		records = append(records, history.NewRecord(values))
	}

	return records, nil
}

type columnKind int

const (
	columnUnknown columnKind = iota
	columnRequired
	columnOptional
	columnText
)
