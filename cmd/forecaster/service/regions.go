package service

import (
	"fmt"
	"math"
)

// DefaultRegion is used when a request names no region.
const DefaultRegion = "East"

// DefaultRegions are compared by MultiRegion when none are requested.
var DefaultRegions = []string{"East US", "West US", "North Europe", "Southeast Asia"}

// regionMultipliers scale a forecast to simulate regional demand.
var regionMultipliers = map[string]float64{
	"East":          1.0,
	"West":          1.15,
	"North":         0.9,
	"South":         1.05,
	"East US":       1.0,
	"West Europe":   0.95,
	"Central India": 1.2,
}

// RegionMultiplier returns the demand multiplier of region; unknown regions get 1.
func RegionMultiplier(region string) float64 {
	if m, ok := regionMultipliers[region]; ok {
		return m
	}
	return 1.0
}

// scale multiplies values by m and rounds to 2 decimals.
func scale(values []float64, m float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = round(v*m, 2)
	}
	return out
}

// peakHours returns the simulated busiest hours of the idx-th region.
func peakHours(idx int) []string {
	base := 14 + idx*2
	return []string{
		fmt.Sprintf("%02d:00", (base-1)%24),
		fmt.Sprintf("%02d:00", base%24),
		fmt.Sprintf("%02d:00", (base+1)%24),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
