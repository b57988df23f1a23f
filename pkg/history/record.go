// Package history holds the daily feature records a forecast is built from:
// the read-only source dataset and the append-only buffer a forecast grows.
package history

import (
	"encoding/json"
	"sort"
)

// Column names every source dataset must carry.
const (
	ColMonth             = "month"
	ColYear              = "year"
	ColIsWeekend         = "is_weekend"
	ColUsageCPU          = "usage_cpu"
	ColUsageStorage      = "usage_storage"
	ColUsersActive       = "users_active"
	ColEconomicIndex     = "economic_index"
	ColCloudMarketDemand = "cloud_market_demand"
)

// RequiredColumns lists the calendar and raw metric columns of a dataset row.
var RequiredColumns = []string{
	ColUsageCPU,
	ColUsageStorage,
	ColUsersActive,
	ColEconomicIndex,
	ColCloudMarketDemand,
	ColMonth,
	ColYear,
	ColIsWeekend,
}

// Record is one day's feature row: calendar fields, raw metrics and any
// lag/rolling/derived columns that were materialized for that day.
//
// Records behave as values. With and Merge return modified copies; the
// receiver is never changed, so a record can be shared freely once built.
type Record struct {
	values map[string]float64
}

// NewRecord copies values into a new Record.
func NewRecord(values map[string]float64) Record {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{values: cp}
}

// Get returns the value stored under name.
func (r Record) Get(name string) (float64, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether the record carries name.
func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Len returns the number of columns in the record.
func (r Record) Len() int {
	return len(r.values)
}

// With returns a copy of r with name set to v.
func (r Record) With(name string, v float64) Record {
	return r.Merge(map[string]float64{name: v})
}

// Merge returns a copy of r with every entry of values set on it.
func (r Record) Merge(values map[string]float64) Record {
	cp := make(map[string]float64, len(r.values)+len(values))
	for k, v := range r.values {
		cp[k] = v
	}
	for k, v := range values {
		cp[k] = v
	}
	return Record{values: cp}
}

// Names returns the record's column names in lexical order.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.values))
	for k := range r.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the record's columns.
func (r Record) Values() map[string]float64 {
	cp := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		cp[k] = v
	}
	return cp
}

// MarshalJSON encodes the record as a flat JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.values)
}

// UnmarshalJSON decodes a flat JSON object of numbers.
func (r *Record) UnmarshalJSON(data []byte) error {
	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	r.values = values
	return nil
}
