// Package backup dumps the relational store to JSON for the periodic backup
// job.
package backup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/njarm23/ClaudeMemories/internal/dbx"
)

type PostgresDumper struct {
	db dbx.DBTX
}

func NewPostgresDumper(db dbx.DBTX) *PostgresDumper {
	return &PostgresDumper{db: db}
}

func (d *PostgresDumper) Dump(ctx context.Context) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(Tables))
	for _, table := range Tables {
		// table comes from the fixed allowlist above, never from input
		query := `SELECT COALESCE(json_agg(row_to_json(t)), '[]'::json)::text FROM ` + table + ` t`

		var rows string
		if err := d.db.QueryRowContext(ctx, query).Scan(&rows); err != nil {
			return nil, fmt.Errorf("db error: dump %s: %w", table, err)
		}
		out[table] = json.RawMessage(rows)
	}
	return out, nil
}
