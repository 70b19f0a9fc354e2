package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kamilpajak/testpulse/pkg/models"
)

// dbURL is DATABASE_URL, or the URL of a throwaway container when
// TESTPULSE_TESTCONTAINERS=1.
var dbURL string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	dbURL = os.Getenv("DATABASE_URL")
	if dbURL != "" || os.Getenv("TESTPULSE_TESTCONTAINERS") != "1" {
		return m.Run()
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testpulse"),
		postgres.WithUsername("testpulse"),
		postgres.WithPassword("testpulse"),
		postgres.BasicWaitStrategies(),
	)
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		return 1
	}

	dbURL, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		return 1
	}
	return m.Run()
}

// testDB returns a connected, migrated DB or skips if no database is available.
func testDB(t *testing.T) *DB {
	t.Helper()
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	require.NoError(t, Migrate(dbURL))

	ctx := context.Background()
	db, err := New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func sampleRecord(build, test string, status models.Status, at time.Time) models.TestRecord {
	cfg := models.ConfigurationID("25.1", "regression", "linux-x64", "payments")
	return models.TestRecord{
		ID:              models.NewRecordID(cfg, build, test),
		ClassName:       "com.shop.CartSuite",
		MethodName:      test,
		TestFullName:    test,
		Status:          status,
		DurationSeconds: 1.25,
		Timestamp:       at,
		DomainID:        "payments",
		FeatureID:       "checkout",
		TestSuiteID:     "CartSuite",
		ConfigurationID: cfg,
		BuildID:         build,
		BuildNumber:     models.ExtractBuildNumber(build),
		Tickets:         []string{"SHOP-1"},
	}
}

func TestMigrations(t *testing.T) {
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	// Migrations are idempotent; MigrateDown is left out so parallel
	// packages sharing the database are not disturbed.
	require.NoError(t, Migrate(dbURL))
	require.NoError(t, Migrate(dbURL))
}

func TestMigrate_UnknownDriver(t *testing.T) {
	err := Migrate("nosuchdb://localhost/testpulse")
	assert.ErrorContains(t, err, "failed to create migrator")

	err = MigrateDown("nosuchdb://localhost/testpulse")
	assert.ErrorContains(t, err, "failed to create migrator")
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, "postgres://testpulse@127.0.0.1:1/testpulse?connect_timeout=1")
	assert.ErrorContains(t, err, "failed to ping archive")
}

func TestRecordsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	build := "it-" + uuid.New().String()[:8]
	at := time.Date(2026, 1, 25, 10, 0, 0, 0, time.UTC)
	t.Cleanup(func() { _, _ = db.DeleteBuild(ctx, build) })

	pass := sampleRecord(build, "addItem", models.Pass, at)
	fail := sampleRecord(build, "removeItem", models.Fail, at)
	fail.ErrorMessage = "expected 2 but was 3"
	fail.Tickets = nil
	require.NoError(t, db.SaveRecords(ctx, []models.TestRecord{pass, fail}))

	// Saving again replaces by id.
	fail.Status = models.Pass
	fail.ErrorMessage = ""
	require.NoError(t, db.SaveRecords(ctx, []models.TestRecord{fail}))

	loaded := map[string]models.TestRecord{}
	require.NoError(t, db.LoadRecords(ctx, func(r models.TestRecord) error {
		if r.BuildID == build {
			loaded[r.ID] = r
		}
		return nil
	}))

	require.Len(t, loaded, 2)
	assert.Equal(t, pass.Tickets, loaded[pass.ID].Tickets)
	assert.Equal(t, at, loaded[pass.ID].Timestamp)
	assert.Equal(t, models.Pass, loaded[fail.ID].Status)
	assert.Empty(t, loaded[fail.ID].ErrorMessage)
	assert.Empty(t, loaded[fail.ID].Tickets)

	n, err := db.DeleteBuild(ctx, build)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLoadRecords_StopsOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	build := "it-" + uuid.New().String()[:8]
	t.Cleanup(func() { _, _ = db.DeleteBuild(ctx, build) })
	require.NoError(t, db.SaveRecords(ctx, []models.TestRecord{sampleRecord(build, "a", models.Pass, time.Now().UTC())}))

	stop := fmt.Errorf("stop")
	err := db.LoadRecords(ctx, func(models.TestRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestDeleteOlderThan(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	build := "it-" + uuid.New().String()[:8]
	t.Cleanup(func() { _, _ = db.DeleteBuild(ctx, build) })

	ancient := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveRecords(ctx, []models.TestRecord{
		sampleRecord(build, "old", models.Pass, ancient),
		sampleRecord(build, "new", models.Pass, time.Now().UTC()),
	}))
	before, err := db.CountRecords(ctx)
	require.NoError(t, err)

	n, err := db.DeleteOlderThan(ctx, ancient.Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	after, err := db.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-int(n), after)
}

func TestIngestBatches(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	created, err := db.CreateIngestBatch(ctx, CreateIngestBatchParams{
		Source:   "api",
		Records:  42,
		Failures: 1,
		Builds:   []string{"b1", "b2"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, []string{"b1", "b2"}, created.Builds)

	found, err := db.GetIngestBatch(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, found.Records)

	missing, err := db.GetIngestBatch(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	recent, err := db.ListIngestBatches(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, recent)
}

func TestSaveRecords_Empty(t *testing.T) {
	// An empty batch never touches the pool.
	var db DB
	assert.NoError(t, db.SaveRecords(context.Background(), nil))
}
