package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchagent/core"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS conversations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := New(db)
	require.NoError(t, err)
	return store, mock
}

func TestStore_NewMigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(errors.New("read-only database"))

	_, err = New(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadQueryFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT created, updated FROM conversations WHERE id = ?")).
		WithArgs("c1").
		WillReturnError(errors.New("database is locked"))

	_, err := store.Load(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM messages WHERE conversation_id = ?")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs("c1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO messages")).
		ExpectExec().
		WithArgs("c1", 0, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Append(context.Background(), "c1", core.NewUserMessage("hi"), core.NewAssistantMessage("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendRollsBackOnOrderingViolation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM messages")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))
	mock.ExpectRollback()

	err := store.Append(context.Background(), "c1", core.NewToolMessage("call-1", "search", "orphan", false))
	require.ErrorIs(t, err, core.ErrOrderingViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
