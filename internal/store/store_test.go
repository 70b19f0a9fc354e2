package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/testpulse/internal/policy"
	"github.com/kamilpajak/testpulse/pkg/models"
)

var baseTime = time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)

func record(config, build, test string, status models.Status) models.TestRecord {
	return models.TestRecord{
		ClassName:       "com.example.Suite",
		MethodName:      test,
		TestFullName:    "com.example.Suite." + test,
		Status:          status,
		Timestamp:       baseTime,
		DomainID:        "payments",
		FeatureID:       "checkout",
		TestSuiteID:     "Suite",
		ConfigurationID: config,
		BuildID:         build,
	}
}

// assertConsistent checks that the primary map and every index agree.
func assertConsistent(t *testing.T, s *Store) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()

	for d := Dimension(0); d < dimensionCount; d++ {
		seen := 0
		for value, set := range s.indices[d] {
			assert.NotEmpty(t, set, "empty set left in %s index for %q", d, value)
			for id := range set {
				r, ok := s.records.Load(id)
				if assert.True(t, ok, "%s index references missing id %q", d, id) {
					assert.Equal(t, value, d.valueOf(r))
				}
				seen++
			}
		}
		assert.Equal(t, s.records.Size(), seen, "%s index size", d)
	}
}

func TestUpsertBatch_DuplicatesCollapse(t *testing.T) {
	s := New()

	res := s.UpsertBatch([]models.TestRecord{
		record("cfg", "b1", "a", models.Pass),
		record("cfg", "b1", "b", models.Pass),
		record("cfg", "b1", "a", models.Fail),
	})

	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Replaced)
	assert.Equal(t, 2, s.TotalCount())

	got, ok := s.GetByID(models.NewRecordID("cfg", "b1", "com.example.Suite.a"))
	require.True(t, ok)
	assert.Equal(t, models.Fail, got.Status, "last write wins within a batch")
	assertConsistent(t, s)
}

func TestUpsert_ReplaceMovesIndices(t *testing.T) {
	s := New()
	r := record("cfg", "b1", "a", models.Pass)
	s.Upsert(r)

	r.DomainID = "billing"
	r.FeatureID = "invoices"
	res := s.Upsert(r)

	assert.Equal(t, 1, res.Replaced)
	assert.Empty(t, s.QueryBy(DimensionDomain, "payments"))
	assert.Len(t, s.QueryBy(DimensionDomain, "billing"), 1)
	assert.Len(t, s.QueryBy(DimensionFeature, "invoices"), 1)
	assert.Equal(t, []string{"billing"}, s.DomainIDs())
	assertConsistent(t, s)
}

func TestQueryBy_MatchesAttribute(t *testing.T) {
	s := New()
	recs := []models.TestRecord{
		record("cfg1", "b1", "a", models.Pass),
		record("cfg1", "b2", "a", models.Fail),
		record("cfg2", "b1", "b", models.Skip),
	}
	recs[2].DomainID = "search"
	s.UpsertBatch(recs)

	tests := []struct {
		dim   Dimension
		value string
		want  int
	}{
		{DimensionConfiguration, "cfg1", 2},
		{DimensionConfiguration, "cfg2", 1},
		{DimensionBuild, "b1", 2},
		{DimensionBuild, "b2", 1},
		{DimensionDomain, "payments", 2},
		{DimensionDomain, "search", 1},
		{DimensionFeature, "checkout", 3},
		{DimensionTestName, "com.example.Suite.a", 2},
		{DimensionBuild, "missing", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s=%s", tt.dim, tt.value), func(t *testing.T) {
			got := s.QueryBy(tt.dim, tt.value)
			require.Len(t, got, tt.want)
			for _, r := range got {
				assert.Equal(t, tt.value, tt.dim.valueOf(r))
				byID, ok := s.GetByID(r.ID)
				require.True(t, ok)
				assert.Equal(t, r, byID)
			}
		})
	}
}

func TestQueryBy_InvalidDimension(t *testing.T) {
	s := New()
	s.Upsert(record("cfg", "b1", "a", models.Pass))
	assert.Nil(t, s.QueryBy(Dimension(42), "cfg"))
	assert.Nil(t, s.Values(Dimension(-1)))
}

func TestSelect(t *testing.T) {
	s := New()
	recs := []models.TestRecord{
		record("cfg1", "b1", "a", models.Pass),
		record("cfg1", "b2", "a", models.Fail),
		record("cfg2", "b1", "b", models.Skip),
	}
	recs[1].DomainID = "search"
	s.UpsertBatch(recs)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty selects all", Filter{}, []string{"cfg1::b1::com.example.Suite.a", "cfg1::b2::com.example.Suite.a", "cfg2::b1::com.example.Suite.b"}},
		{"configuration", Filter{Configuration: "cfg1"}, []string{"cfg1::b1::com.example.Suite.a", "cfg1::b2::com.example.Suite.a"}},
		{"configuration and build", Filter{Configuration: "cfg1", Build: "b2"}, []string{"cfg1::b2::com.example.Suite.a"}},
		{"build and domain", Filter{Build: "b1", Domain: "payments"}, []string{"cfg1::b1::com.example.Suite.a", "cfg2::b1::com.example.Suite.b"}},
		{"domain", Filter{Domain: "search"}, []string{"cfg1::b2::com.example.Suite.a"}},
		{"no match", Filter{Configuration: "cfg2", Domain: "search"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{}
			for _, r := range s.Select(tt.filter) {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestUpsertBatch_Idempotent(t *testing.T) {
	s := New()
	batch := []models.TestRecord{
		record("cfg", "b1", "a", models.Pass),
		record("cfg", "b1", "b", models.Fail),
	}

	s.UpsertBatch(batch)
	first := s.All()
	firstBuild := s.QueryBy(DimensionBuild, "b1")

	res := s.UpsertBatch(batch)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.Replaced)
	assert.Equal(t, first, s.All())
	assert.Equal(t, firstBuild, s.QueryBy(DimensionBuild, "b1"))
	assertConsistent(t, s)
}

func TestSanitize_Sentinels(t *testing.T) {
	r := Sanitize(models.TestRecord{
		ClassName:       "pkg.Class",
		MethodName:      "testIt",
		Status:          "weird",
		DurationSeconds: -4,
		BuildID:         "nightly-117",
		Timestamp:       time.Date(2026, 1, 25, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
	})

	assert.Equal(t, "pkg.Class.testIt", r.TestFullName)
	assert.Equal(t, "pkg.Class", r.TestSuiteID)
	assert.Equal(t, policy.Unknown, r.DomainID)
	assert.Equal(t, policy.UncategorizedFeature, r.FeatureID)
	assert.Equal(t, policy.Unknown, r.ConfigurationID)
	assert.Equal(t, models.Skip, r.Status)
	assert.Zero(t, r.DurationSeconds)
	assert.Equal(t, 117, r.BuildNumber)
	assert.Equal(t, time.UTC, r.Timestamp.Location())
	assert.Equal(t, models.NewRecordID(policy.Unknown, "nightly-117", "pkg.Class.testIt"), r.ID)
}

func TestSanitize_EmptyRecord(t *testing.T) {
	r := Sanitize(models.TestRecord{Status: "passed"})

	assert.Equal(t, policy.Unknown, r.TestFullName)
	assert.Equal(t, policy.Unknown, r.TestSuiteID)
	assert.Equal(t, policy.Unknown, r.BuildID)
	assert.Equal(t, models.Pass, r.Status)
	assert.True(t, r.Timestamp.IsZero())
}

func TestUpsert_IgnoresCallerID(t *testing.T) {
	s := New()
	r := record("cfg", "b1", "a", models.Pass)
	r.ID = "bogus"
	s.Upsert(r)

	_, ok := s.GetByID("bogus")
	assert.False(t, ok)
	_, ok = s.GetByID(models.NewRecordID("cfg", "b1", "com.example.Suite.a"))
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	s := New()
	s.UpsertBatch([]models.TestRecord{
		record("cfg", "b1", "a", models.Pass),
		record("cfg", "b2", "a", models.Pass),
	})

	s.Clear()

	assert.Zero(t, s.TotalCount())
	assert.Empty(t, s.BuildIDs())
	assert.Empty(t, s.QueryBy(DimensionConfiguration, "cfg"))
	assertConsistent(t, s)
}

func TestDistinctValues(t *testing.T) {
	s := New()
	cfgA := models.ConfigurationID("25.1", "smoke", "linux-x64", "payments")
	cfgB := models.ConfigurationID("25.2", "regression", "linux-x64", "payments")
	cfgC := models.ConfigurationID("25.2", "regression", "windows", "search")
	s.UpsertBatch([]models.TestRecord{
		record(cfgA, "b1", "a", models.Pass),
		record(cfgB, "b2", "a", models.Pass),
		record(cfgC, "b3", "a", models.Pass),
	})

	assert.Equal(t, []string{"25.1", "25.2"}, s.Versions())
	assert.Equal(t, []string{"linux-x64", "windows"}, s.NamedConfigs())
	assert.Equal(t, []string{"b1", "b2", "b3"}, s.BuildIDs())
	assert.Len(t, s.ConfigurationIDs(), 3)
	assert.Equal(t, []string{"com.example.Suite.a"}, s.TestNames())
}

func TestObserver(t *testing.T) {
	var got []BatchResult
	s := New(WithObserver(func(r BatchResult) { got = append(got, r) }))

	s.UpsertBatch([]models.TestRecord{record("cfg", "b1", "a", models.Pass)})
	s.Upsert(record("cfg", "b1", "a", models.Fail))

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Inserted)
	assert.Equal(t, 1, got[1].Replaced)
	assert.Equal(t, 1, got[1].Total)
}

func TestConcurrentBatches(t *testing.T) {
	s := New()
	const writers, perBatch = 8, 400

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]models.TestRecord, 0, perBatch)
			for i := 0; i < perBatch; i++ {
				r := record(fmt.Sprintf("cfg-%d", w%3), fmt.Sprintf("b%d", w), fmt.Sprintf("t%d", i), models.Pass)
				r.DomainID = fmt.Sprintf("domain-%d", i%5)
				batch = append(batch, r)
			}
			s.UpsertBatch(batch)
		}(w)
	}

	// Readers run alongside the writers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			for _, r := range s.QueryBy(DimensionDomain, "domain-1") {
				assert.Equal(t, "domain-1", r.DomainID)
			}
			_ = s.BuildIDs()
		}
	}()

	wg.Wait()
	<-done

	assert.Equal(t, writers*perBatch, s.TotalCount())
	assert.Len(t, s.BuildIDs(), writers)
	assertConsistent(t, s)
}
