// Package modelstats tracks which upstream model actually answered requests.
package modelstats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Current(ctx context.Context) (*models.ModelObservation, error) {
	o := &models.ModelObservation{}
	err := r.db.QueryRowContext(ctx, `SELECT model, family, provider, seen_at FROM model_state WHERE id = 1`).
		Scan(&o.Model, &o.Family, &o.Provider, &o.SeenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (r *PostgresRepository) SetCurrent(ctx context.Context, o models.ModelObservation) error {
	query := `INSERT INTO model_state (id, model, family, provider, seen_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET model = EXCLUDED.model, family = EXCLUDED.family, provider = EXCLUDED.provider, seen_at = EXCLUDED.seen_at`

	if _, err := r.db.ExecContext(ctx, query, o.Model, o.Family, o.Provider, o.SeenAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementFamily(ctx context.Context, o models.ModelObservation) error {
	query := `INSERT INTO model_family_counts (family, provider, requests, last_seen)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (family) DO UPDATE
		SET requests = model_family_counts.requests + 1, provider = EXCLUDED.provider, last_seen = EXCLUDED.last_seen`

	if _, err := r.db.ExecContext(ctx, query, o.Family, o.Provider, o.SeenAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddChange(ctx context.Context, c models.ModelChange, keep int) error {
	insert := `INSERT INTO model_changes (from_model, from_family, from_provider, to_model, to_family, to_provider, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, insert, c.From, c.FromFamily, c.FromProvider, c.To, c.ToFamily, c.ToProvider, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	trim := `DELETE FROM model_changes
		WHERE id NOT IN (SELECT id FROM model_changes ORDER BY changed_at DESC, id DESC LIMIT $1)`
	if _, err := r.db.ExecContext(ctx, trim, keep); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Counts(ctx context.Context) ([]models.FamilyCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT family, provider, requests, last_seen FROM model_family_counts ORDER BY requests DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.FamilyCount
	for rows.Next() {
		var fc models.FamilyCount
		if err := rows.Scan(&fc.Family, &fc.Provider, &fc.Requests, &fc.LastSeen); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Changes(ctx context.Context, limit int) ([]models.ModelChange, error) {
	query := `SELECT from_model, from_family, from_provider, to_model, to_family, to_provider, changed_at
		FROM model_changes ORDER BY changed_at DESC, id DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.ModelChange
	for rows.Next() {
		var c models.ModelChange
		if err := rows.Scan(&c.From, &c.FromFamily, &c.FromProvider, &c.To, &c.ToFamily, &c.ToProvider, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
