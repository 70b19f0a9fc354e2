// Package database archives test records in PostgreSQL so the in-memory
// store can be rebuilt after a restart.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the durable copy of the telemetry store. Every committed ingestion
// batch is written to test_records and audited in ingest_batches; on
// startup the records are streamed back into memory. It is never queried
// for analytics.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to the archive at databaseURL and verifies it is reachable.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Migrate applies every pending archive migration.
func Migrate(databaseURL string) error {
	return runMigrations(databaseURL, "migration", (*migrate.Migrate).Up)
}

// MigrateDown drops the archive tables by rolling back all migrations.
func MigrateDown(databaseURL string) error {
	return runMigrations(databaseURL, "rollback", (*migrate.Migrate).Down)
}

func runMigrations(databaseURL, action string, step func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s failed: %w", action, err)
	}
	return nil
}
