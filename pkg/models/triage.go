package models

// TriageEntry aggregates one test across every configuration it changed in.
type TriageEntry struct {
	TestFullName     string   `json:"test_full_name"`
	ClassName        string   `json:"class_name"`
	MethodName       string   `json:"method_name"`
	DomainID         string   `json:"domain_id"`
	FeatureID        string   `json:"feature_id"`
	ConfigurationIDs []string `json:"configuration_ids"`
	ErrorMessage     string   `json:"error_message,omitempty"`
}

// PassRate summarises one build's outcomes. Skips are excluded from Rate.
type PassRate struct {
	Passed  int     `json:"passed"`
	Failed  int     `json:"failed"`
	Skipped int     `json:"skipped"`
	Rate    float64 `json:"rate"`
}

// TriageResult is the diff between two builds.
type TriageResult struct {
	TodayBuildID     string        `json:"today_build_id"`
	YesterdayBuildID string        `json:"yesterday_build_id"`
	DomainFilter     string        `json:"domain_filter,omitempty"`
	NewFailures      []TriageEntry `json:"new_failures"`
	FixedTests       []TriageEntry `json:"fixed_tests"`
	StillFailing     []TriageEntry `json:"still_failing"`
	Today            PassRate      `json:"today"`
	Yesterday        PassRate      `json:"yesterday"`
	PassRateDelta    float64       `json:"pass_rate_delta"`
}
