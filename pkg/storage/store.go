// Package storage persists generated capacity reports.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/HatiCode/demandcast/pkg/reporting"
)

// DefaultHistory is how many reports per region a store keeps when not configured.
const DefaultHistory = 100

// Store keeps reports per region.
type Store interface {
	// Put stores a report as the latest for its region.
	Put(ctx context.Context, report reporting.Report) error

	// GetLatest returns the newest report for region.
	GetLatest(ctx context.Context, region string) (reporting.Report, bool, error)

	// List returns up to limit reports for region, newest first.
	// limit <= 0 returns every kept report.
	List(ctx context.Context, region string, limit int) ([]reporting.Report, error)
}

// ValidateRegion checks that region is usable as a store key: letters,
// digits, spaces, hyphens and underscores.
func ValidateRegion(region string) error {
	if region == "" {
		return errors.New("region name required")
	}
	for _, c := range region {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == ' ') {
			return fmt.Errorf("invalid region name %q: only alphanumeric, spaces, hyphens, and underscores allowed", region)
		}
	}
	return nil
}
