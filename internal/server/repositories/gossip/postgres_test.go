package gossip

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	ev := "stream_complete"
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+gossip_messages.*RETURNING\s+created_at\s*$`).
		WithArgs("g1", "Stream", "⚡", "done!", ev, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	g := &models.GossipMessage{ID: "g1", WorkerName: "Stream", WorkerEmoji: "⚡", Message: "done!", EventType: &ev}
	require.NoError(t, repo.Create(context.Background(), g))
	assert.Equal(t, now, g.CreatedAt)
}

func TestRecent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM\s+gossip_messages\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$1\s*$`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "worker_name", "worker_emoji", "message", "event_type", "conversation_id", "created_at"}).
			AddRow("g2", "Cron", "⏰", "tick", nil, "c1", now))

	got, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].EventType)
	assert.Equal(t, "c1", *got[0].ConversationID)
}

func TestCountSince(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	since := time.Now().Add(-6 * time.Hour)
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+gossip_messages\s+WHERE\s+created_at\s*>\s*\$1`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(5))

	n, err := repo.CountSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
