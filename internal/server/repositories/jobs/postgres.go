// Package jobs persists queued jobs in Postgres. Workers lease rows with
// FOR UPDATE SKIP LOCKED so concurrent consumers never receive the same job
// while its lease is live.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Enqueue(ctx context.Context, id, kind string, payload []byte, delay time.Duration) error {
	query := `INSERT INTO jobs (id, kind, payload, available_at)
		VALUES ($1, $2, $3::jsonb, now() + make_interval(secs => $4))`

	_, err := r.db.ExecContext(ctx, query, id, kind, string(payload), delay.Seconds())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Receive(ctx context.Context, batch int, visibility time.Duration) ([]*models.QueuedJob, error) {
	query := `UPDATE jobs SET attempts = attempts + 1, locked_until = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM jobs
			WHERE available_at <= now() AND (locked_until IS NULL OR locked_until < now())
			ORDER BY available_at, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload::text, attempts, created_at`

	rows, err := r.db.QueryContext(ctx, query, batch, visibility.Seconds())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.QueuedJob
	for rows.Next() {
		j := &models.QueuedJob{}
		var payload string
		if err := rows.Scan(&j.ID, &j.Kind, &payload, &j.Attempts, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		j.Payload = []byte(payload)
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Ack(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM jobs WHERE id = $1`, id)
}

func (r *PostgresRepository) Retry(ctx context.Context, id string, delay time.Duration, lastErr string) error {
	query := `UPDATE jobs
		SET locked_until = NULL, available_at = now() + make_interval(secs => $2), last_error = $3
		WHERE id = $1`
	return r.execOne(ctx, query, id, delay.Seconds(), lastErr)
}

func (r *PostgresRepository) DeadLetter(ctx context.Context, id, reason string) error {
	query := `WITH moved AS (
			DELETE FROM jobs WHERE id = $1
			RETURNING id, kind, payload, attempts, created_at
		)
		INSERT INTO dead_jobs (id, kind, payload, attempts, last_error, created_at)
		SELECT id, kind, payload, attempts, $2, created_at FROM moved`
	return r.execOne(ctx, query, id, reason)
}

func (r *PostgresRepository) ListDead(ctx context.Context, limit int) ([]*models.DeadJob, error) {
	query := `SELECT id, kind, payload::text, attempts, last_error, created_at, died_at
		FROM dead_jobs ORDER BY died_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.DeadJob
	for rows.Next() {
		d := &models.DeadJob{}
		if err := rows.Scan(&d.ID, &d.Kind, &d.Payload, &d.Attempts, &d.LastError, &d.CreatedAt, &d.DiedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Pending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
