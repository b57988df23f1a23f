package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/HatiCode/demandcast/pkg/reporting"
)

const reportsSchema = `
CREATE TABLE IF NOT EXISTS capacity_reports (
	id           UUID PRIMARY KEY,
	region       TEXT        NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	status       TEXT        NOT NULL,
	payload      JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS capacity_reports_region_generated_at
	ON capacity_reports (region, generated_at DESC);`

// PostgresConfig configures the PostgreSQL connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// PostgresStore implements Store on a PostgreSQL table, keeping the full
// report history. The report body is stored as JSONB next to indexed
// region and timestamp columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool, verifies it and creates the
// reports table if needed.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres DSN cannot be empty")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = 30 * time.Minute
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 5 * time.Minute
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout == 0 {
		pingTimeout = 10 * time.Second
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewPostgresStoreFromDB(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromDB wraps an existing pool. The schema is not created.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the reports table and index if they do not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, reportsSchema); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// Put inserts a report.
func (p *PostgresStore) Put(ctx context.Context, report reporting.Report) error {
	if err := ValidateRegion(report.Region); err != nil {
		return err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO capacity_reports (id, region, generated_at, status, payload)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = p.db.ExecContext(ctx, query,
		report.ID.String(), report.Region, report.GeneratedAt, string(report.Capacity.Status), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetLatest returns the newest report for region.
func (p *PostgresStore) GetLatest(ctx context.Context, region string) (reporting.Report, bool, error) {
	reports, err := p.List(ctx, region, 1)
	if err != nil {
		return reporting.Report{}, false, err
	}
	if len(reports) == 0 {
		return reporting.Report{}, false, nil
	}
	return reports[0], true, nil
}

// List returns up to limit reports for region, newest first.
func (p *PostgresStore) List(ctx context.Context, region string, limit int) ([]reporting.Report, error) {
	if region == "" {
		return nil, errors.New("region name required")
	}

	query := `
		SELECT payload
		FROM capacity_reports
		WHERE region = $1
		ORDER BY generated_at DESC`
	args := []any{region}
	if limit > 0 {
		query += `
		LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []reporting.Report
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		var report reporting.Report
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// Ping checks the database connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
