package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	_ "github.com/lib/pq"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS render_jobs (
	job_id        TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	stage         TEXT NOT NULL DEFAULT '',
	output_url    TEXT,
	error_message TEXT,
	storyboard    JSONB,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

const jobColumns = `job_id, status, progress, stage, output_url, error_message,
	storyboard, started_at, finished_at, created_at, updated_at`

// Postgres stores jobs in the render_jobs table.
type Postgres struct {
	*sql.DB
}

var _ JobStore = (*Postgres)(nil)

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, jobsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	return &Postgres{DB: db}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID, &job.Status, &job.Progress, &job.Stage, &job.OutputURL,
		&job.ErrorMessage, &job.Storyboard, &job.StartedAt, &job.FinishedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func (db *Postgres) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO render_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.ExecContext(ctx, query,
		job.ID, job.Status, job.Progress, job.Stage, job.OutputURL,
		job.ErrorMessage, job.Storyboard, job.StartedAt, job.FinishedAt,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (db *Postgres) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE job_id = $1`
	return scanJob(db.QueryRowContext(ctx, query, id))
}

// Update locks the row for the duration of fn.
func (db *Postgres) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE job_id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	touch(job)

	update := `
		UPDATE render_jobs
		SET status = $2, progress = $3, stage = $4, output_url = $5, error_message = $6,
			storyboard = $7, started_at = $8, finished_at = $9, updated_at = $10
		WHERE job_id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		job.ID, job.Status, job.Progress, job.Stage, job.OutputURL, job.ErrorMessage,
		job.Storyboard, job.StartedAt, job.FinishedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}
	return job, nil
}
