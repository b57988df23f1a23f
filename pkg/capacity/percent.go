package capacity

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePercent parses a threshold given as a percentage ("80", "80%") or a
// fraction ("0.8"). Values up to 1 without a percent sign are treated as
// fractions.
//
// Examples:
//   - "80%" → 80
//   - "80" → 80
//   - "0.85" → 85
//   - "0" → 0
//
// Returns error if the format is invalid or the value is out of range [0, 100].
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty percentage")
	}

	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
		}
		if v < 0 || v > 100 {
			return 0, fmt.Errorf("percentage %v out of range [0, 100]", v)
		}
		return v, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	if v > 0 && v <= 1 {
		v *= 100
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("percentage %v out of range [0, 100]", v)
	}
	return v, nil
}

// FormatPercent formats a percentage for display.
//
// Examples:
//   - 15 → "15%"
//   - 12.5 → "12.5%"
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}
