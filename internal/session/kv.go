package session

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KV ключ-значение с областью видимости (чат = «устройство»).
// Отсутствующий ключ не ошибка: ok=false.
type KV interface {
	Get(ctx context.Context, scope int64, key string) (string, bool, error)
	SetMany(ctx context.Context, scope int64, values map[string]string) error
	Delete(ctx context.Context, scope int64, keys ...string) error
}

/* Postgres */

type PgKV struct {
	pool *pgxpool.Pool
}

func NewPgKV(pool *pgxpool.Pool) *PgKV { return &PgKV{pool: pool} }

func (r *PgKV) Get(ctx context.Context, scope int64, key string) (string, bool, error) {
	var v string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM session_kv WHERE chat_id = $1 AND key = $2`, scope, key).Scan(&v)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *PgKV) SetMany(ctx context.Context, scope int64, values map[string]string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for k, v := range values {
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_kv (chat_id, key, value, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (chat_id, key) DO UPDATE SET
			  value=$3, updated_at=now()
		`, scope, k, v); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PgKV) Delete(ctx context.Context, scope int64, keys ...string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM session_kv WHERE chat_id = $1 AND key = ANY($2)`, scope, keys)
	return err
}

/* Memory */

type MemoryKV struct {
	mu   sync.Mutex
	data map[int64]map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: map[int64]map[string]string{}}
}

func (m *MemoryKV) Get(_ context.Context, scope int64, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[scope][key]
	return v, ok, nil
}

func (m *MemoryKV) SetMany(_ context.Context, scope int64, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[scope]
	if !ok {
		bucket = map[string]string{}
		m.data[scope] = bucket
	}
	for k, v := range values {
		bucket[k] = v
	}
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, scope int64, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data[scope], k)
	}
	if len(m.data[scope]) == 0 {
		delete(m.data, scope)
	}
	return nil
}
