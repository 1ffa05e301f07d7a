package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/opscart/vm-reclaim/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store interface using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := pingWithRetry(db, connectTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// connectTimeout bounds the retries of the initial ping
var connectTimeout = 15 * time.Second

// pingWithRetry waits for the database to accept connections, e.g. while
// a local container is still starting
func pingWithRetry(db *sql.DB, maxElapsed time.Duration) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(
		db.Ping,
		expBackoff,
		func(err error, d time.Duration) {
			slog.Warn("database not reachable, retrying", "error", err, "retry_in", d)
		},
	)
}

// migrate runs database migrations
func (s *PostgresStore) migrate() error {
	schema, err := postgresFS.ReadFile("migrations/001_postgres_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

const reclamationColumns = `
	id, session_id, pid, name,
	avg_cpu_percent, avg_mem_percent, avg_disk_kbps,
	sample_count, underutilized,
	cpu_threshold, mem_threshold, disk_threshold,
	created_at`

// SaveReclamation saves a classification result
func (s *PostgresStore) SaveReclamation(ctx context.Context, rec *models.Reclamation) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Worker == nil {
		return fmt.Errorf("reclamation %s has no worker", rec.ID)
	}

	query := `INSERT INTO reclamations (` + reclamationColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.Worker.PID, rec.Worker.Name,
		rec.AvgCPU, rec.AvgMem, rec.AvgDisk,
		rec.SampleCount, rec.Underutilized,
		rec.Thresholds.CPU, rec.Thresholds.Mem, rec.Thresholds.Disk,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reclamation %s: %w", rec.ID, err)
	}

	return nil
}

// GetReclamation retrieves a reclamation by ID
func (s *PostgresStore) GetReclamation(ctx context.Context, id string) (*models.Reclamation, error) {
	query := `SELECT ` + reclamationColumns + ` FROM reclamations WHERE id = $1`

	rec, err := scanReclamation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListReclamations retrieves the newest reclamations
func (s *PostgresStore) ListReclamations(ctx context.Context, sessionID string, limit int) ([]*models.Reclamation, error) {
	query, args := listQuery(sessionID, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reclamations []*models.Reclamation
	for rows.Next() {
		rec, err := scanReclamation(rows)
		if err != nil {
			return nil, err
		}
		reclamations = append(reclamations, rec)
	}

	return reclamations, rows.Err()
}

// listQuery builds the history query. A limit <= 0 returns every row,
// as in MemoryStore.
func listQuery(sessionID string, limit int) (string, []any) {
	query := `SELECT ` + reclamationColumns + ` FROM reclamations`
	var args []any

	if sessionID != "" {
		args = append(args, sessionID)
		query += fmt.Sprintf(` WHERE session_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReclamation(row rowScanner) (*models.Reclamation, error) {
	var rec models.Reclamation
	var worker models.Worker

	err := row.Scan(
		&rec.ID, &rec.SessionID, &worker.PID, &worker.Name,
		&rec.AvgCPU, &rec.AvgMem, &rec.AvgDisk,
		&rec.SampleCount, &rec.Underutilized,
		&rec.Thresholds.CPU, &rec.Thresholds.Mem, &rec.Thresholds.Disk,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Worker = &worker
	return &rec, nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
