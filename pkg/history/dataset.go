package history

import (
	"fmt"
)

// Series is a chronologically ordered run of records addressed from its end.
// Both the source dataset and a forecast buffer satisfy it.
type Series interface {
	// Len returns the number of records.
	Len() int

	// Back returns the record k positions from the end (k=1 is the last one).
	Back(k int) (Record, bool)

	// Window returns the last w values of metric, oldest first.
	// It reports false when fewer than w records exist or any of them lacks metric.
	Window(metric string, w int) ([]float64, bool)
}

// Dataset is the ordered, read-only table of historical records that
// forecasts are seeded from. It is safe for concurrent readers.
type Dataset struct {
	records []Record
}

// NewDataset validates that every record carries the required columns and
// returns a dataset over them in the given (chronological) order.
func NewDataset(records []Record) (*Dataset, error) {
	for i, rec := range records {
		for _, col := range RequiredColumns {
			if !rec.Has(col) {
				return nil, fmt.Errorf("dataset row %d: missing column %q", i, col)
			}
		}
	}

	cp := make([]Record, len(records))
	copy(cp, records)
	return &Dataset{records: cp}, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.records)
}

// At returns row i.
func (d *Dataset) At(i int) Record {
	return d.records[i]
}

// Back returns the row k positions from the end (k=1 is the last row).
func (d *Dataset) Back(k int) (Record, bool) {
	return back(d.records, k)
}

// Window returns the last w values of metric.
func (d *Dataset) Window(metric string, w int) ([]float64, bool) {
	return window(d.records, metric, w)
}

// Tail returns a dataset over the last n rows (all rows when n exceeds Len).
func (d *Dataset) Tail(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.records) {
		n = len(d.records)
	}
	cp := make([]Record, n)
	copy(cp, d.records[len(d.records)-n:])
	return &Dataset{records: cp}
}

// Head returns a dataset over the first n rows (all rows when n exceeds Len).
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.records) {
		n = len(d.records)
	}
	cp := make([]Record, n)
	copy(cp, d.records[:n])
	return &Dataset{records: cp}
}

// Records returns a copy of the rows.
func (d *Dataset) Records() []Record {
	cp := make([]Record, len(d.records))
	copy(cp, d.records)
	return cp
}

// Column returns every value of name, oldest first.
func (d *Dataset) Column(name string) ([]float64, error) {
	out := make([]float64, len(d.records))
	for i, rec := range d.records {
		v, ok := rec.Get(name)
		if !ok {
			return nil, fmt.Errorf("dataset row %d: missing column %q", i, name)
		}
		out[i] = v
	}
	return out, nil
}

func back(records []Record, k int) (Record, bool) {
	if k < 1 || k > len(records) {
		return Record{}, false
	}
	return records[len(records)-k], true
}

func window(records []Record, metric string, w int) ([]float64, bool) {
	if w < 1 || w > len(records) {
		return nil, false
	}
	out := make([]float64, 0, w)
	for _, rec := range records[len(records)-w:] {
		v, ok := rec.Get(metric)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
