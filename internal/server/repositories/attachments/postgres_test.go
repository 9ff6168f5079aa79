package attachments

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
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

var attColumns = []string{"id", "kind", "message_id", "conversation_id", "storage_key", "media_type",
	"original_name", "size_bytes", "created_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+attachments.*RETURNING\s+created_at\s*$`).
		WithArgs("a1", models.AttachmentImage, "c1", "images/a1", "image/png", "cat.png", int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	a := &models.Attachment{ID: "a1", Kind: models.AttachmentImage, ConversationID: "c1",
		StorageKey: "images/a1", MediaType: "image/png", OriginalName: "cat.png", SizeBytes: 12}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.Equal(t, now, a.CreatedAt)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+attachments\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLink_ScopedToConversation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+attachments\s+SET\s+message_id\s*=\s*\$1\s+WHERE\s+conversation_id\s*=\s*\$2\s+AND\s+message_id\s+IS\s+NULL\s+AND\s+id\s+IN\s+\(\$3,\s*\$4\)\s*$`
	mock.ExpectExec(q).
		WithArgs("m1", "c1", "a1", "a2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.Link(context.Background(), "c1", "m1", []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLink_NoIDsIsNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	n, err := repo.Link(context.Background(), "c1", "m1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByMessages(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)WHERE\s+message_id\s+IN\s+\(\$1,\s*\$2\)`).
		WithArgs("m1", "m2").
		WillReturnRows(sqlmock.NewRows(attColumns).
			AddRow("a1", "image", "m1", "c1", "images/a1", "image/png", "a.png", int64(3), now))

	got, err := repo.ListByMessages(context.Background(), []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].MessageID)
	assert.Equal(t, "m1", *got[0].MessageID)
}

func TestDetach(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+attachments\s+SET\s+message_id\s*=\s*NULL\s+WHERE\s+conversation_id\s*=\s*\$1`).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.Detach(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestRelink_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+attachments\s+SET\s+message_id\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+conversation_id\s*=\s*\$3`).
		WithArgs("m1", "a1", "c1").
		WillReturnError(errors.New("boom"))

	ok, err := repo.Relink(context.Background(), "c1", "m1", "a1")
	assert.False(t, ok)
	if err == nil || !regexp.MustCompile(`db error: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
