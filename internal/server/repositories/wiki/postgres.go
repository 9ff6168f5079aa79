// Package wiki reads wiki pages for preamble injection and records the
// version snapshots written to blob storage.
package wiki

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

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(s scanner) (*models.WikiPage, error) {
	p := &models.WikiPage{}
	if err := s.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Summary); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.WikiPage, error) {
	query := `SELECT id, title, slug, content, summary FROM wiki_pages WHERE id = $1`
	return r.one(ctx, query, id)
}

func (r *PostgresRepository) Pinned(ctx context.Context, conversationID string) ([]*models.WikiPage, error) {
	query := `SELECT w.id, w.title, w.slug, w.content, w.summary
		FROM conversation_wiki_pins p
		JOIN wiki_pages w ON w.id = p.page_id
		WHERE p.conversation_id = $1
		ORDER BY p.created_at ASC`
	return r.list(ctx, query, conversationID)
}

func (r *PostgresRepository) FindByTitleOrSlug(ctx context.Context, title, slug string) (*models.WikiPage, error) {
	query := `SELECT id, title, slug, content, summary FROM wiki_pages
		WHERE lower(title) = lower($1) OR slug = $2
		LIMIT 1`
	return r.one(ctx, query, title, slug)
}

func (r *PostgresRepository) Search(ctx context.Context, q string, excludeIDs []string, limit int) ([]*models.WikiPage, error) {
	query := `SELECT id, title, slug, content, summary FROM wiki_pages
		WHERE search @@ plainto_tsquery('english', $1)`
	args := []any{q, limit}
	if len(excludeIDs) > 0 {
		query += ` AND id NOT IN (` + dbx.Placeholders(3, len(excludeIDs)) + `)`
		args = append(args, dbx.Args(excludeIDs)...)
	}
	query += ` ORDER BY ts_rank(search, plainto_tsquery('english', $1)) DESC LIMIT $2`

	return r.list(ctx, query, args...)
}

func (r *PostgresRepository) NextVersion(ctx context.Context, pageID string) (int, error) {
	var v int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM wiki_versions WHERE page_id = $1`, pageID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) AddVersion(ctx context.Context, v *models.WikiVersion) error {
	query := `INSERT INTO wiki_versions (page_id, version, title, storage_key, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, v.PageID, v.Version, v.Title, v.StorageKey, v.SizeBytes).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) PruneVersions(ctx context.Context, pageID string, keep int) ([]string, error) {
	query := `DELETE FROM wiki_versions
		WHERE page_id = $1 AND version NOT IN (
			SELECT version FROM wiki_versions WHERE page_id = $1
			ORDER BY version DESC LIMIT $2
		)
		RETURNING storage_key`

	rows, err := r.db.QueryContext(ctx, query, pageID, keep)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return keys, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.WikiPage, error) {
	p, err := scanPage(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.WikiPage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var pages []*models.WikiPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return pages, nil
}
