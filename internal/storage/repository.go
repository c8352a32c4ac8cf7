// Package storage persists imported data files in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"findash/internal/core"
	"findash/internal/log"
	"findash/internal/sources"
)

// pragmas apply to every pooled connection.
const pragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Import job states recorded by RecordImport.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// ImportJob is the outcome of one queued import.
type ImportJob struct {
	JobID      string
	File       string
	Status     string
	Rows       int
	Error      string
	FinishedAt time.Time
}

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var (
	_ sources.Source   = (*SQLiteRepository)(nil)
	_ sources.Importer = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger.WithComponent(log.ComponentStorage)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListFiles implements sources.FileLister
func (r *SQLiteRepository) ListFiles(ctx context.Context) ([]core.FileInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.name, COUNT(t.id)
		FROM files f
		LEFT JOIN transactions t ON t.file = f.name
		GROUP BY f.name
		ORDER BY COUNT(t.id) DESC, f.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []core.FileInfo{}
	for rows.Next() {
		var f core.FileInfo
		if err := rows.Scan(&f.Name, &f.TransactionsCount); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FetchTransactions implements sources.TransactionFetcher. Rows come back
// in import order.
func (r *SQLiteRepository) FetchTransactions(ctx context.Context, filename string) ([]core.Transaction, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM files WHERE name = ?`, filename).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", sources.ErrFileNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup file %s: %w", filename, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, description, amount, category, source, currency
		FROM transactions
		WHERE file = ?
		ORDER BY position`, filename)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var (
			t    core.Transaction
			date string
		)
		if err := rows.Scan(&t.ID, &date, &t.Description, &t.Amount, &t.Category, &t.Source, &t.Currency); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("%w: stored row %s: %v", sources.ErrDataIntegrity, t.ID, err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ImportFile replaces every stored row of filename with txs in a single
// database transaction.
func (r *SQLiteRepository) ImportFile(ctx context.Context, filename string, txs []core.Transaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO files (name, imported_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET imported_at = excluded.imported_at`, filename, now); err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE file = ?`, filename); err != nil {
		return fmt.Errorf("clear file rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (file, position, id, date, description, amount, category, source, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range txs {
		if _, err := stmt.ExecContext(ctx, filename, i, t.ID, t.Date.String(), t.Description, t.Amount, t.Category, t.Source, t.Currency); err != nil {
			return fmt.Errorf("insert %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	r.logger.InfoContext(ctx, "Data file imported", log.FieldFile, filename, log.FieldCount, len(txs))
	return nil
}

// RecordImport stores the outcome of an import job.
func (r *SQLiteRepository) RecordImport(ctx context.Context, job ImportJob) error {
	if job.FinishedAt.IsZero() {
		job.FinishedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_jobs (job_id, file, status, row_count, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status, row_count = excluded.row_count,
			error = excluded.error, finished_at = excluded.finished_at`,
		job.JobID, job.File, job.Status, job.Rows, job.Error, job.FinishedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record import job %s: %w", job.JobID, err)
	}
	return nil
}

// ImportJobByID returns a recorded job, or sql.ErrNoRows wrapped when absent.
func (r *SQLiteRepository) ImportJobByID(ctx context.Context, jobID string) (ImportJob, error) {
	var (
		job      ImportJob
		finished string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT job_id, file, status, row_count, error, finished_at
		FROM import_jobs WHERE job_id = ?`, jobID).
		Scan(&job.JobID, &job.File, &job.Status, &job.Rows, &job.Error, &finished)
	if err != nil {
		return ImportJob{}, fmt.Errorf("get import job %s: %w", jobID, err)
	}
	job.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return job, nil
}
