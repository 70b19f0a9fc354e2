package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/pkg/models"
)

var now = time.Date(2026, 1, 25, 6, 0, 0, 0, time.UTC)

func rec(build, config, test string, status models.Status) models.TestRecord {
	return models.TestRecord{
		TestFullName:    test,
		MethodName:      test,
		Status:          status,
		Timestamp:       now,
		DomainID:        "payments",
		FeatureID:       "checkout",
		ConfigurationID: config,
		BuildID:         build,
	}
}

func TestCompare_NewAndFixed(t *testing.T) {
	s := store.New()
	s.UpsertBatch([]models.TestRecord{
		rec("b2", "cfg", "A", models.Fail),
		rec("b2", "cfg", "B", models.Pass),
		rec("b1", "cfg", "A", models.Pass),
		rec("b1", "cfg", "B", models.Fail),
	})

	res := New(s).Compare("b2", "b1", "")

	require.NotNil(t, res)
	require.Len(t, res.NewFailures, 1)
	assert.Equal(t, "A", res.NewFailures[0].TestFullName)
	require.Len(t, res.FixedTests, 1)
	assert.Equal(t, "B", res.FixedTests[0].TestFullName)
	assert.Empty(t, res.StillFailing)
	assert.Equal(t, "b2", res.TodayBuildID)
	assert.Equal(t, "b1", res.YesterdayBuildID)
	assert.InDelta(t, 0.5, res.Today.Rate, 1e-9)
	assert.InDelta(t, 0, res.PassRateDelta, 1e-9)
}

func TestCompare_MergesConfigurations(t *testing.T) {
	s := store.New()
	s.UpsertBatch([]models.TestRecord{
		rec("b2", "linux", "A", models.Fail),
		rec("b2", "windows", "A", models.Fail),
		rec("b2", "mac", "A", models.Fail),
		rec("b2", "linux", "C", models.Fail),
		rec("b2", "linux", "D", models.Skip),
		rec("b1", "windows", "A", models.Pass),
		rec("b1", "linux", "A", models.Pass),
		rec("b1", "mac", "A", models.Fail),
		rec("b1", "linux", "C", models.Fail),
		rec("b1", "linux", "D", models.Pass),
	})

	res := New(s).Compare("b2", "b1", "")

	require.NotNil(t, res)
	require.Len(t, res.NewFailures, 1)
	assert.Equal(t, []string{"linux", "windows"}, res.NewFailures[0].ConfigurationIDs)
	require.Len(t, res.StillFailing, 2)
	assert.Equal(t, "A", res.StillFailing[0].TestFullName)
	assert.Equal(t, []string{"mac"}, res.StillFailing[0].ConfigurationIDs)
	assert.Equal(t, "C", res.StillFailing[1].TestFullName)
	assert.Empty(t, res.FixedTests)

	assert.Equal(t, models.PassRate{Failed: 4, Skipped: 1, Rate: 0}, res.Today)
	assert.Equal(t, models.PassRate{Passed: 3, Failed: 2, Rate: 0.6}, res.Yesterday)
	assert.InDelta(t, -0.6, res.PassRateDelta, 1e-9)
}

func TestCompare_DomainFilter(t *testing.T) {
	s := store.New()
	a := rec("b2", "cfg", "A", models.Fail)
	a.DomainID = "search"
	s.UpsertBatch([]models.TestRecord{
		a,
		rec("b2", "cfg", "B", models.Fail),
		rec("b1", "cfg", "A", models.Pass),
		rec("b1", "cfg", "B", models.Pass),
	})

	res := New(s).Compare("b2", "b1", "payments")

	require.NotNil(t, res)
	require.Len(t, res.NewFailures, 1)
	assert.Equal(t, "B", res.NewFailures[0].TestFullName)
	assert.Equal(t, "payments", res.DomainFilter)

	assert.Nil(t, New(s).Compare("b2", "b1", "search"), "yesterday has no search records")
}

func TestCompare_NilResults(t *testing.T) {
	s := store.New()
	c := New(s)
	assert.Nil(t, c.Compare("b2", "b1", ""))
	assert.Nil(t, c.CompareLatest(""))

	s.Upsert(rec("b1", "cfg", "A", models.Pass))
	assert.Nil(t, c.Compare("b1", "b1", ""), "single build")

	s.Upsert(rec("b2", "cfg", "A", models.Fail))
	assert.Nil(t, c.Compare("b2", "missing", ""))
}

func TestCompareLatest_PicksHighestBuildNumbers(t *testing.T) {
	s := store.New()
	s.UpsertBatch([]models.TestRecord{
		rec("nightly-9", "cfg", "A", models.Pass),
		rec("nightly-10", "cfg", "A", models.Pass),
		rec("nightly-11", "cfg", "A", models.Fail),
	})

	res := New(s).CompareLatest("")

	require.NotNil(t, res)
	assert.Equal(t, "nightly-11", res.TodayBuildID)
	assert.Equal(t, "nightly-10", res.YesterdayBuildID)
	require.Len(t, res.NewFailures, 1)
}

func TestDiff_RerunLatestWins(t *testing.T) {
	first := rec("b2", "cfg", "A", models.Fail)
	rerun := rec("b2", "cfg", "A", models.Pass)
	rerun.Timestamp = now.Add(time.Minute)

	res := Diff([]models.TestRecord{rerun, first}, []models.TestRecord{rec("b1", "cfg", "A", models.Pass)})

	assert.Empty(t, res.NewFailures)
	assert.Equal(t, models.PassRate{Passed: 1, Rate: 1}, res.Today)
}
