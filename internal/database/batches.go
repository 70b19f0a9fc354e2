package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IngestBatch is the audit entry of one ingestion run.
type IngestBatch struct {
	ID        uuid.UUID
	Source    string
	Records   int
	Failures  int
	Builds    []string
	CreatedAt time.Time
}

// CreateIngestBatchParams contains parameters for logging an ingestion run.
type CreateIngestBatchParams struct {
	ID       uuid.UUID
	Source   string
	Records  int
	Failures int
	Builds   []string
}

const batchColumns = `id, source, records, failures, builds, created_at`

func scanBatch(row pgx.Row) (*IngestBatch, error) {
	var b IngestBatch
	err := row.Scan(&b.ID, &b.Source, &b.Records, &b.Failures, &b.Builds, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateIngestBatch stores an ingestion run. A nil ID is generated.
func (db *DB) CreateIngestBatch(ctx context.Context, params CreateIngestBatchParams) (*IngestBatch, error) {
	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}
	builds := params.Builds
	if builds == nil {
		builds = []string{}
	}
	row := db.pool.QueryRow(ctx,
		`INSERT INTO ingest_batches (id, source, records, failures, builds)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+batchColumns,
		params.ID, params.Source, params.Records, params.Failures, builds,
	)
	return scanBatch(row)
}

// GetIngestBatch retrieves an ingestion run by ID.
func (db *DB) GetIngestBatch(ctx context.Context, id uuid.UUID) (*IngestBatch, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM ingest_batches WHERE id = $1`,
		id,
	)
	return scanBatch(row)
}

// ListIngestBatches returns the most recent ingestion runs first.
func (db *DB) ListIngestBatches(ctx context.Context, limit int) ([]IngestBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM ingest_batches
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []IngestBatch
	for rows.Next() {
		var b IngestBatch
		if err := rows.Scan(&b.ID, &b.Source, &b.Records, &b.Failures, &b.Builds, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
