// Package policy holds the fallback values, tuned constants and clamping
// rules shared by the telemetry engine.
package policy

import "math"

// Sentinels substituted for missing record fields.
const (
	Unknown              = "<unknown>"
	UncategorizedFeature = "Uncategorized"
)

// Clustering defaults. The heuristic constants were tuned on sample data and
// are kept as configuration rather than derived.
const (
	DefaultSimilarityThreshold = 0.8

	// Token-heavy merge: word sets overlap strongly, characters moderately.
	TokenHeavyMinToken     = 0.6
	TokenHeavyMinChar      = 0.5
	TokenHeavyMaxThreshold = 0.9

	// Char-heavy merge: characters overlap strongly, word sets moderately.
	CharHeavyMinToken     = 0.4
	CharHeavyMinChar      = 0.6
	CharHeavyMaxThreshold = 0.85
)

// Flakiness defaults.
const (
	DefaultFailureRateThreshold = 0.20
	DefaultRecentWindow         = 20
	MinFlakyRuns                = 2
	TrendEpsilon                = 0.05
)

// DefaultHistoryBuilds is the number of history columns when none is given.
const DefaultHistoryBuilds = 5

// ClampUnit clamps v into [0,1]. NaN maps to def.
func ClampUnit(v, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Max(0, math.Min(1, v))
}

// ClampMin returns v, or min when v is smaller.
func ClampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}
