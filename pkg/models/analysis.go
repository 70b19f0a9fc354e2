package models

import "time"

// FailureGroup is a set of failing records believed to share a root cause.
type FailureGroup struct {
	Key                   string       `json:"key"`
	RepresentativeMessage string       `json:"representative_message"`
	TestCount             int          `json:"test_count"`
	DomainIDs             []string     `json:"domain_ids"`
	FeatureIDs            []string     `json:"feature_ids"`
	Records               []TestRecord `json:"records"`
	// SimilarityScore is 1.0 for exact groups and the weakest merge otherwise.
	SimilarityScore float64 `json:"similarity_score"`
}

// Trend is the direction of a test's failure rate inside its window
type Trend string

const (
	TrendImproving Trend = "Improving"
	TrendStable    Trend = "Stable"
	TrendWorsening Trend = "Worsening"
)

// FlakyTestReport describes one test whose recent failure rate marks it flaky.
type FlakyTestReport struct {
	TestFullName string       `json:"test_full_name"`
	FailureRate  float64      `json:"failure_rate"`
	TotalRuns    int          `json:"total_runs"`
	FailureCount int          `json:"failure_count"`
	PassCount    int          `json:"pass_count"`
	LastStatus   Status       `json:"last_status"`
	LastFailure  *time.Time   `json:"last_failure,omitempty"`
	LastPass     *time.Time   `json:"last_pass,omitempty"`
	Trend        Trend        `json:"trend"`
	Runs         []TestRecord `json:"runs"`
}
