package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/schedule-sync/pkg/cache"
)

// MemorySelectionStore keeps the persisted selection in process memory.
type MemorySelectionStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySelectionStore constructs an empty in-memory store.
func NewMemorySelectionStore() *MemorySelectionStore {
	return &MemorySelectionStore{values: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *MemorySelectionStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemorySelectionStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes keys.
func (s *MemorySelectionStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

type fileBackend interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

const selectionFileName = "selection.json"

// FileSelectionStore persists the selection as a small JSON document.
type FileSelectionStore struct {
	mu      sync.Mutex
	storage fileBackend
}

// NewFileSelectionStore constructs a store writing through storage.
func NewFileSelectionStore(storage fileBackend) *FileSelectionStore {
	return &FileSelectionStore{storage: storage}
}

// Get returns the stored value for key.
func (s *FileSelectionStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *FileSelectionStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

// Delete removes keys.
func (s *FileSelectionStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	for _, key := range keys {
		delete(values, key)
	}
	return s.save(values)
}

func (s *FileSelectionStore) load() (map[string]string, error) {
	values := make(map[string]string)
	file, err := s.storage.Open(selectionFileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read selection file: %w", err)
	}
	if len(raw) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode selection file: %w", err)
	}
	return values, nil
}

func (s *FileSelectionStore) save(values map[string]string) error {
	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode selection file: %w", err)
	}
	_, err = s.storage.Save(selectionFileName, raw)
	return err
}

// RedisSelectionStore keeps the selection in a single Redis hash.
type RedisSelectionStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisSelectionStore constructs a Redis backed store.
func NewRedisSelectionStore(client redis.Cmdable) *RedisSelectionStore {
	return &RedisSelectionStore{client: client, key: cache.Key("selection")}
}

// Get returns the stored value for key.
func (s *RedisSelectionStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.key, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key.
func (s *RedisSelectionStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (s *RedisSelectionStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key, keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

const selectionSchema = `CREATE TABLE IF NOT EXISTS selection_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresSelectionStore persists the selection in the selection_entries table.
type PostgresSelectionStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresSelectionStore constructs a Postgres backed store.
func NewPostgresSelectionStore(db *sqlx.DB) *PostgresSelectionStore {
	return &PostgresSelectionStore{db: db, now: time.Now}
}

// EnsureSchema creates the backing table when missing.
func (s *PostgresSelectionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, selectionSchema); err != nil {
		return fmt.Errorf("create selection_entries: %w", err)
	}
	return nil
}

// Get returns the stored value for key.
func (s *PostgresSelectionStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM selection_entries WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select selection entry %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *PostgresSelectionStore) Set(ctx context.Context, key, value string) error {
	const query = `INSERT INTO selection_entries (key, value, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert selection entry %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (s *PostgresSelectionStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM selection_entries WHERE key = ANY($1)`, pq.Array(keys)); err != nil {
		return fmt.Errorf("delete selection entries: %w", err)
	}
	return nil
}
