package modelstats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCurrent_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+model_state\s+WHERE\s+id\s*=\s*1`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Current(context.Background())
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestObservationWrites(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	o := models.ModelObservation{Model: "claude-sonnet-4-20250514", Family: "claude-sonnet-4", Provider: "anthropic", SeenAt: at}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+model_state.*ON\s+CONFLICT\s+\(id\)\s+DO\s+UPDATE`).
		WithArgs(o.Model, o.Family, o.Provider, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+model_family_counts.*requests\s*=\s*model_family_counts\.requests\s*\+\s*1`).
		WithArgs(o.Family, o.Provider, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, repo.SetCurrent(ctx, o))
	require.NoError(t, repo.IncrementFamily(ctx, o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddChange_Trims(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	c := models.ModelChange{From: "a", FromFamily: "fa", FromProvider: "p", To: "b", ToFamily: "fb", ToProvider: "p", ChangedAt: at}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+model_changes`).
		WithArgs("a", "fa", "p", "b", "fb", "p", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+model_changes\s+WHERE\s+id\s+NOT\s+IN.*LIMIT\s+\$1\)\s*$`).
		WithArgs(20).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddChange(context.Background(), c, 20))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountsAndChanges(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM\s+model_family_counts\s+ORDER\s+BY\s+requests\s+DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"family", "provider", "requests", "last_seen"}).
			AddRow("claude-sonnet-4", "anthropic", int64(12), now))
	mock.ExpectQuery(`(?s)FROM\s+model_changes\s+ORDER\s+BY\s+changed_at\s+DESC`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}))

	ctx := context.Background()
	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, int64(12), counts[0].Requests)

	changes, err := repo.Changes(ctx, 20)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
