package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kamilpajak/testpulse/pkg/models"
)

// recordColumns is the column list shared by inserts and selects.
const recordColumns = `id, class_name, method_name, test_full_name, status, duration_seconds, executed_at,
	error_message, stack_trace, domain_id, feature_id, test_suite_id, configuration_id,
	build_id, build_number, machine, tickets, report_directory`

const upsertRecord = `INSERT INTO test_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (id) DO UPDATE SET
		class_name = EXCLUDED.class_name,
		method_name = EXCLUDED.method_name,
		test_full_name = EXCLUDED.test_full_name,
		status = EXCLUDED.status,
		duration_seconds = EXCLUDED.duration_seconds,
		executed_at = EXCLUDED.executed_at,
		error_message = EXCLUDED.error_message,
		stack_trace = EXCLUDED.stack_trace,
		domain_id = EXCLUDED.domain_id,
		feature_id = EXCLUDED.feature_id,
		test_suite_id = EXCLUDED.test_suite_id,
		configuration_id = EXCLUDED.configuration_id,
		build_id = EXCLUDED.build_id,
		build_number = EXCLUDED.build_number,
		machine = EXCLUDED.machine,
		tickets = EXCLUDED.tickets,
		report_directory = EXCLUDED.report_directory,
		updated_at = now()`

// SaveRecords upserts records by id in a single transaction. Records are
// expected to be sanitized already.
func (db *DB) SaveRecords(ctx context.Context, records []models.TestRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, r := range records {
		tickets := r.Tickets
		if tickets == nil {
			tickets = []string{}
		}
		batch.Queue(upsertRecord,
			r.ID, r.ClassName, r.MethodName, r.TestFullName, string(r.Status), r.DurationSeconds, r.Timestamp,
			r.ErrorMessage, r.StackTrace, r.DomainID, r.FeatureID, r.TestSuiteID, r.ConfigurationID,
			r.BuildID, r.BuildNumber, r.Machine, tickets, r.ReportDirectory,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save records: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

// LoadRecords streams every archived record to fn in id order. Returning an
// error from fn stops the scan.
func (db *DB) LoadRecords(ctx context.Context, fn func(models.TestRecord) error) error {
	rows, err := db.pool.Query(ctx, `SELECT `+recordColumns+` FROM test_records ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}

	var (
		r      models.TestRecord
		status string
	)
	_, err = pgx.ForEachRow(rows, []any{
		&r.ID, &r.ClassName, &r.MethodName, &r.TestFullName, &status, &r.DurationSeconds, &r.Timestamp,
		&r.ErrorMessage, &r.StackTrace, &r.DomainID, &r.FeatureID, &r.TestSuiteID, &r.ConfigurationID,
		&r.BuildID, &r.BuildNumber, &r.Machine, &r.Tickets, &r.ReportDirectory,
	}, func() error {
		r.Status = models.Status(status)
		r.Timestamp = r.Timestamp.UTC()
		out := r
		out.Tickets = append([]string(nil), r.Tickets...)
		return fn(out)
	})
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	return nil
}

// CountRecords returns the number of archived records.
func (db *DB) CountRecords(ctx context.Context) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM test_records`).Scan(&count)
	return count, err
}

// DeleteBuild removes every record of a build and returns how many were removed.
func (db *DB) DeleteBuild(ctx context.Context, buildID string) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM test_records WHERE build_id = $1`,
		buildID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// DeleteOlderThan removes records executed before cutoff.
func (db *DB) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM test_records WHERE executed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
