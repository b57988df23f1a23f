package history

import (
	"errors"
	"fmt"
)

// SeedSize is the number of trailing dataset rows a buffer starts from.
// It covers the longest lag (7) and the widest rolling window (7).
const SeedSize = 7

// ErrInsufficientHistory is returned when a dataset is too short to seed a buffer.
var ErrInsufficientHistory = errors.New("insufficient history")

// Buffer is the append-only history a recursive forecast grows: the seed
// rows first, then one synthetic row per forecast step. It never shrinks or
// reorders and is only addressed from its end.
//
// A Buffer belongs to a single forecast call and is not safe for concurrent use.
type Buffer struct {
	records []Record
}

// Seed creates a buffer from the last SeedSize rows of d.
// No buffer is created when d holds fewer rows.
func Seed(d *Dataset) (*Buffer, error) {
	if d == nil || d.Len() < SeedSize {
		n := 0
		if d != nil {
			n = d.Len()
		}
		return nil, fmt.Errorf("%w: need %d rows, dataset has %d", ErrInsufficientHistory, SeedSize, n)
	}

	records := make([]Record, SeedSize, SeedSize+32)
	copy(records, d.records[d.Len()-SeedSize:])
	return &Buffer{records: records}, nil
}

// Len returns the number of records in the buffer.
func (b *Buffer) Len() int {
	return len(b.records)
}

// Last returns the most recent record.
func (b *Buffer) Last() Record {
	return b.records[len(b.records)-1]
}

// Back returns the record k positions from the end (k=1 is Last).
func (b *Buffer) Back(k int) (Record, bool) {
	return back(b.records, k)
}

// Window returns the last w values of metric.
func (b *Buffer) Window(metric string, w int) ([]float64, bool) {
	return window(b.records, metric, w)
}

// Append adds r as the newest record.
func (b *Buffer) Append(r Record) {
	b.records = append(b.records, r)
}

// Records returns a copy of the buffer contents, oldest first.
func (b *Buffer) Records() []Record {
	cp := make([]Record, len(b.records))
	copy(cp, b.records)
	return cp
}
