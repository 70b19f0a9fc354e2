// Package triage compares two builds and reports what broke, what was fixed
// and what keeps failing.
package triage

import (
	"sort"

	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/pkg/models"
)

// Comparator diffs builds held in a store.
type Comparator struct {
	store *store.Store
}

// New creates a Comparator over s.
func New(s *store.Store) *Comparator {
	return &Comparator{store: s}
}

// CompareLatest compares the two highest numbered builds in the store.
func (c *Comparator) CompareLatest(domainFilter string) *models.TriageResult {
	today, yesterday, ok := c.latestPair()
	if !ok {
		return nil
	}
	return c.Compare(today, yesterday, domainFilter)
}

// Compare diffs today against yesterday, optionally restricted to one domain.
// It returns nil when the store holds fewer than two builds or either build
// has no records after filtering.
func (c *Comparator) Compare(todayBuildID, yesterdayBuildID, domainFilter string) *models.TriageResult {
	if len(c.store.BuildIDs()) < 2 {
		return nil
	}
	today := filter(c.store.QueryBy(store.DimensionBuild, todayBuildID), domainFilter)
	yesterday := filter(c.store.QueryBy(store.DimensionBuild, yesterdayBuildID), domainFilter)
	if len(today) == 0 || len(yesterday) == 0 {
		return nil
	}

	res := Diff(today, yesterday)
	res.TodayBuildID = todayBuildID
	res.YesterdayBuildID = yesterdayBuildID
	res.DomainFilter = domainFilter
	return res
}

// Diff classifies every (test, configuration) pair present in both record
// sets. Entries are merged per test name.
func Diff(today, yesterday []models.TestRecord) *models.TriageResult {
	todayRuns := latestByPair(today)
	yesterdayRuns := latestByPair(yesterday)

	newFailures := newMerger()
	fixed := newMerger()
	stillFailing := newMerger()
	for k, t := range todayRuns {
		y, ok := yesterdayRuns[k]
		if !ok {
			continue
		}
		switch {
		case t.Status == models.Fail && y.Status == models.Pass:
			newFailures.add(t)
		case t.Status == models.Pass && y.Status == models.Fail:
			fixed.add(t)
		case t.Status == models.Fail && y.Status == models.Fail:
			stillFailing.add(t)
		}
	}

	res := &models.TriageResult{
		NewFailures:  newFailures.entries(),
		FixedTests:   fixed.entries(),
		StillFailing: stillFailing.entries(),
		Today:        passRate(todayRuns),
		Yesterday:    passRate(yesterdayRuns),
	}
	res.PassRateDelta = res.Today.Rate - res.Yesterday.Rate
	return res
}

func (c *Comparator) latestPair() (string, string, bool) {
	type build struct {
		id     string
		number int
	}
	numbers := make(map[string]int)
	for _, id := range c.store.BuildIDs() {
		numbers[id] = models.ExtractBuildNumber(id)
	}
	for _, r := range c.store.All() {
		if r.BuildNumber > numbers[r.BuildID] {
			numbers[r.BuildID] = r.BuildNumber
		}
	}
	if len(numbers) < 2 {
		return "", "", false
	}

	builds := make([]build, 0, len(numbers))
	for id, n := range numbers {
		builds = append(builds, build{id: id, number: n})
	}
	sort.Slice(builds, func(i, j int) bool {
		if builds[i].number != builds[j].number {
			return builds[i].number > builds[j].number
		}
		return builds[i].id > builds[j].id
	})
	return builds[0].id, builds[1].id, true
}

func filter(records []models.TestRecord, domain string) []models.TestRecord {
	if domain == "" {
		return records
	}
	out := records[:0:0]
	for _, r := range records {
		if r.DomainID == domain {
			out = append(out, r)
		}
	}
	return out
}

type pair struct {
	test          string
	configuration string
}

// latestByPair keeps the latest run of each (test, configuration) pair.
func latestByPair(records []models.TestRecord) map[pair]models.TestRecord {
	runs := make(map[pair]models.TestRecord, len(records))
	for _, r := range records {
		k := pair{test: r.TestFullName, configuration: r.ConfigurationID}
		if cur, ok := runs[k]; ok && r.Timestamp.Before(cur.Timestamp) {
			continue
		}
		runs[k] = r
	}
	return runs
}

func passRate(runs map[pair]models.TestRecord) models.PassRate {
	var pr models.PassRate
	for _, r := range runs {
		switch r.Status {
		case models.Pass:
			pr.Passed++
		case models.Fail:
			pr.Failed++
		case models.Skip:
			pr.Skipped++
		}
	}
	if n := pr.Passed + pr.Failed; n > 0 {
		pr.Rate = float64(pr.Passed) / float64(n)
	}
	return pr
}

// merger folds per-configuration hits into one entry per test name.
type merger struct {
	byName map[string]*models.TriageEntry
}

func newMerger() *merger {
	return &merger{byName: make(map[string]*models.TriageEntry)}
}

func (m *merger) add(r models.TestRecord) {
	e, ok := m.byName[r.TestFullName]
	if !ok {
		e = &models.TriageEntry{
			TestFullName: r.TestFullName,
			ClassName:    r.ClassName,
			MethodName:   r.MethodName,
			DomainID:     r.DomainID,
			FeatureID:    r.FeatureID,
			ErrorMessage: r.ErrorMessage,
		}
		m.byName[r.TestFullName] = e
	}
	if e.ErrorMessage == "" {
		e.ErrorMessage = r.ErrorMessage
	}
	e.ConfigurationIDs = append(e.ConfigurationIDs, r.ConfigurationID)
}

func (m *merger) entries() []models.TriageEntry {
	out := make([]models.TriageEntry, 0, len(m.byName))
	for _, e := range m.byName {
		sort.Strings(e.ConfigurationIDs)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestFullName < out[j].TestFullName })
	return out
}
