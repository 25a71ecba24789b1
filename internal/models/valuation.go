package models

// ValuationInput is the parsed form of the intake answers used by the
// valuation stage. Percent fields arrive unsanitized.
type ValuationInput struct {
	YearsCollecting     int       `json:"yearsCollecting"`
	AttributablePercent float64   `json:"attributablePercent"`
	ReliancePercent     float64   `json:"reliancePercent"`
	CurrentValue        float64   `json:"currentValue"`
	YearlyValuations    []float64 `json:"yearlyValuations"`
}

// QualityMetrics are the three data-quality percentages that scale the
// valuation upper bound. Each is a percent in [0,100].
type QualityMetrics struct {
	Scarcity   float64 `json:"scarcity"`
	Ownership  float64 `json:"ownership"`
	Uniqueness float64 `json:"uniqueness"`
}

// ValuationResult holds the computed valuation figures. Bounds are
// rounded to the nearest whole unit.
type ValuationResult struct {
	TotalValue      float64 `json:"totalValue"`      // Sum of yearly valuations
	RelianceValue   float64 `json:"relianceValue"`   // Total scaled by reliance percent
	ValueAfterDecay float64 `json:"valueAfterDecay"` // Reliance value less annual decay
	UpperBound      float64 `json:"upperBound"`
	LowerBound      float64 `json:"lowerBound"`

	Input   ValuationInput `json:"input"`
	Quality QualityMetrics `json:"quality"`
}
