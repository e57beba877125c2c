package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/schedule-sync/internal/models"
	"github.com/noah-isme/schedule-sync/pkg/cache"
	"github.com/noah-isme/schedule-sync/pkg/storage"
)

type selectionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

func exerciseStore(t *testing.T, store selectionStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, models.SelectionKeyFacultyID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, models.SelectionKeyFacultyID, "7"))
	require.NoError(t, store.Set(ctx, models.SelectionKeyGroupID, "42"))
	require.NoError(t, store.Set(ctx, models.SelectionKeyGroupName, "ПИ-21"))
	require.NoError(t, store.Set(ctx, models.SelectionKeyGroupID, "43"))

	v, ok, err := store.Get(ctx, models.SelectionKeyGroupID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "43", v)

	require.NoError(t, store.Delete(ctx, models.SelectionKeyGroupID, models.SelectionKeyGroupName))
	_, ok, err = store.Get(ctx, models.SelectionKeyGroupName)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err = store.Get(ctx, models.SelectionKeyFacultyID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestMemorySelectionStore(t *testing.T) {
	exerciseStore(t, NewMemorySelectionStore())
}

func TestFileSelectionStore(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	exerciseStore(t, NewFileSelectionStore(local))

	raw, err := os.ReadFile(filepath.Join(dir, selectionFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_faculty_id": "7"`)

	reopened := NewFileSelectionStore(local)
	v, ok, err := reopened.Get(context.Background(), models.SelectionKeyFacultyID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestFileSelectionStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, selectionFileName), []byte("{not json"), 0o644))

	_, _, err = NewFileSelectionStore(local).Get(context.Background(), models.SelectionKeyFacultyID)
	assert.Error(t, err)
}

func newSelectionMock(t *testing.T) (*PostgresSelectionStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	store := NewPostgresSelectionStore(sqlx.NewDb(db, "sqlmock"))
	store.now = func() time.Time { return time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC) }
	return store, mock, func() { db.Close() }
}

func TestPostgresSelectionStoreGet(t *testing.T) {
	store, mock, cleanup := newSelectionMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM selection_entries WHERE key = $1")).
		WithArgs(models.SelectionKeyFacultyID).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("7"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM selection_entries WHERE key = $1")).
		WithArgs(models.SelectionKeyGroupID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM selection_entries WHERE key = $1")).
		WithArgs(models.SelectionKeyGroupName).
		WillReturnError(errors.New("connection lost"))

	v, ok, err := store.Get(context.Background(), models.SelectionKeyFacultyID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok, err = store.Get(context.Background(), models.SelectionKeyGroupID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Get(context.Background(), models.SelectionKeyGroupName)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSelectionStoreSetAndDelete(t *testing.T) {
	store, mock, cleanup := newSelectionMock(t)
	defer cleanup()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS selection_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`(?s)INSERT INTO selection_entries .*ON CONFLICT \(key\) DO UPDATE`).
		WithArgs(models.SelectionKeyGroupID, "42", time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM selection_entries WHERE key = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Set(context.Background(), models.SelectionKeyGroupID, "42"))
	require.NoError(t, store.Delete(context.Background(), models.SelectionKeyGroupID, models.SelectionKeyGroupName))
	require.NoError(t, store.Delete(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSelectionStore(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	store := NewRedisSelectionStore(client)
	hash := cache.Key("selection")

	mock.ExpectHGet(hash, models.SelectionKeyFacultyID).RedisNil()
	mock.ExpectHSet(hash, models.SelectionKeyFacultyID, "7").SetVal(1)
	mock.ExpectHGet(hash, models.SelectionKeyFacultyID).SetVal("7")
	mock.ExpectHDel(hash, models.SelectionKeyGroupID, models.SelectionKeyGroupName).SetVal(2)

	_, ok, err := store.Get(ctx, models.SelectionKeyFacultyID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, models.SelectionKeyFacultyID, "7"))

	v, ok, err := store.Get(ctx, models.SelectionKeyFacultyID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	require.NoError(t, store.Delete(ctx, models.SelectionKeyGroupID, models.SelectionKeyGroupName))
	require.NoError(t, store.Delete(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSelectionStoreErrors(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	store := NewRedisSelectionStore(client)
	hash := cache.Key("selection")
	down := errors.New("connection reset")

	mock.ExpectHGet(hash, models.SelectionKeyGroupID).SetErr(down)
	mock.ExpectHSet(hash, models.SelectionKeyGroupID, "42").SetErr(down)
	mock.ExpectHDel(hash, models.SelectionKeyGroupID).SetErr(down)

	_, ok, err := store.Get(ctx, models.SelectionKeyGroupID)
	assert.ErrorIs(t, err, down)
	assert.False(t, ok)
	assert.ErrorIs(t, store.Set(ctx, models.SelectionKeyGroupID, "42"), down)
	assert.ErrorIs(t, store.Delete(ctx, models.SelectionKeyGroupID), down)
	require.NoError(t, mock.ExpectationsWereMet())
}
