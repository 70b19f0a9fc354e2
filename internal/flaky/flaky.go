// Package flaky detects tests whose recent results alternate between
// passing and failing.
package flaky

import (
	"sort"
	"time"

	"github.com/kamilpajak/testpulse/internal/policy"
	"github.com/kamilpajak/testpulse/pkg/models"
)

// Analyzer computes rolling-window failure statistics per test.
type Analyzer struct{}

// New creates an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// DetectFlaky reports every test whose failure rate over its most recent
// window runs lies in [threshold, 1). Tests that never fail and tests that
// always fail are excluded.
// threshold is clamped to [0,1] and window to at least 1.
func (a *Analyzer) DetectFlaky(records []models.TestRecord, threshold float64, window int) []models.FlakyTestReport {
	threshold = policy.ClampUnit(threshold, policy.DefaultFailureRateThreshold)
	window = policy.ClampMin(window, 1)

	byTest := make(map[string][]models.TestRecord)
	for _, r := range records {
		byTest[r.TestFullName] = append(byTest[r.TestFullName], r)
	}

	var reports []models.FlakyTestReport
	for name, runs := range byTest {
		report, ok := analyze(name, recentWindow(runs, window))
		if !ok {
			continue
		}
		if report.FailureCount == 0 || report.FailureRate < threshold || report.FailureRate >= 1 {
			continue
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		ri, rj := reports[i], reports[j]
		if ri.FailureRate != rj.FailureRate {
			return ri.FailureRate > rj.FailureRate
		}
		ti, tj := timeOrZero(ri.LastFailure), timeOrZero(rj.LastFailure)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ri.TestFullName < rj.TestFullName
	})
	return reports
}

// recentWindow returns the newest n runs in ascending timestamp order.
func recentWindow(runs []models.TestRecord, n int) []models.TestRecord {
	sorted := append([]models.TestRecord(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted
}

func analyze(name string, runs []models.TestRecord) (models.FlakyTestReport, bool) {
	if len(runs) < policy.MinFlakyRuns {
		return models.FlakyTestReport{}, false
	}

	report := models.FlakyTestReport{TestFullName: name, Runs: runs}
	for _, r := range runs {
		ts := r.Timestamp
		switch r.Status {
		case models.Fail:
			report.FailureCount++
			report.LastFailure = &ts
		case models.Pass:
			report.PassCount++
			report.LastPass = &ts
		}
	}
	report.TotalRuns = report.FailureCount + report.PassCount
	if report.TotalRuns == 0 {
		return models.FlakyTestReport{}, false
	}
	report.FailureRate = float64(report.FailureCount) / float64(report.TotalRuns)
	report.LastStatus = runs[len(runs)-1].Status
	report.Trend = trend(runs)
	return report, true
}

// trend compares the failure rate of the newer half of the window with the
// older half.
func trend(runs []models.TestRecord) models.Trend {
	mid := len(runs) / 2
	diff := failureRate(runs[mid:]) - failureRate(runs[:mid])
	switch {
	case diff > policy.TrendEpsilon:
		return models.TrendWorsening
	case diff < -policy.TrendEpsilon:
		return models.TrendImproving
	default:
		return models.TrendStable
	}
}

func failureRate(runs []models.TestRecord) float64 {
	var fail, pass int
	for _, r := range runs {
		switch r.Status {
		case models.Fail:
			fail++
		case models.Pass:
			pass++
		}
	}
	if fail+pass == 0 {
		return 0
	}
	return float64(fail) / float64(fail+pass)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
