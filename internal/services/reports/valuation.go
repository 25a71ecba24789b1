package reports

import (
	"math"

	"github.com/valora-io/valora/internal/models"
)

// Fixed valuation constants
const (
	decayPercent             = 12.5
	lowerBoundDiscountPct    = 30.0
	defaultScarcityPercent   = 50.0
	defaultOwnershipPercent  = 80.0
	defaultUniquenessPercent = 50.0
	defaultMetricPercent     = 50.0
)

// sanitizePercent replaces unrealistic percentages. A submitted value at
// or beyond either boundary is treated as noise and swapped for the
// fallback; anything strictly between 0 and 100 passes through.
func sanitizePercent(value, fallback float64) float64 {
	if value <= 0 || value >= 100 {
		return fallback
	}
	return value
}

// metricOr returns the stage-1 extracted metric or the default when the
// metric is absent
func metricOr(metrics map[string]float64, name string, fallback float64) float64 {
	if v, ok := metrics[name]; ok && v > 0 {
		return v
	}
	return fallback
}

// computeValuation runs the valuation arithmetic over sanitized inputs.
// Order matters: total, reliance scaling, decay, quality multiplier,
// then the discounted lower bound. Both bounds round to the nearest
// whole currency unit.
func computeValuation(input models.ValuationInput, quality models.QualityMetrics) models.ValuationResult {
	total := 0.0
	for _, v := range input.YearlyValuations {
		total += v
	}

	reliance := total * input.ReliancePercent / 100
	afterDecay := reliance * (1 - decayPercent/100)

	qualityAvg := (quality.Scarcity + quality.Ownership + quality.Uniqueness) / 3
	upper := afterDecay * qualityAvg / 100
	lower := math.Round(upper * (1 - lowerBoundDiscountPct/100))

	return models.ValuationResult{
		TotalValue:      total,
		RelianceValue:   reliance,
		ValueAfterDecay: afterDecay,
		UpperBound:      math.Round(upper),
		LowerBound:      lower,
		Input:           input,
		Quality:         quality,
	}
}
