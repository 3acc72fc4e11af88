package database

import (
	"context"
	"database/sql"
	"sync"
)

// Entry is one key/value pair in a bucket
type Entry struct {
	Key   string
	Value []byte
}

// Store is the small key/value surface the job cache and upload ledger persist through
type Store interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put inserts or replaces a value; replacing keeps the original position in List
	Put(ctx context.Context, bucket, key string, value []byte) error
	// List returns every entry of a bucket in insertion order
	List(ctx context.Context, bucket string) ([]Entry, error)
	// Clear removes every entry of a bucket
	Clear(ctx context.Context, bucket string) error
}

var _ Store = (*DB)(nil)
var _ Store = (*Memory)(nil)

func (db *DB) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	query := `SELECT value FROM kv WHERE bucket=? AND key=?`
	var value string
	err := db.conn.QueryRowContext(ctx, query, bucket, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (db *DB) Put(ctx context.Context, bucket, key string, value []byte) error {
	query := `INSERT INTO kv (bucket, key, value) VALUES (?, ?, ?)
			  ON CONFLICT(bucket, key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`
	_, err := db.conn.ExecContext(ctx, query, bucket, key, string(value))
	return err
}

func (db *DB) List(ctx context.Context, bucket string) ([]Entry, error) {
	query := `SELECT key, value FROM kv WHERE bucket=? ORDER BY id`
	rows, err := db.conn.QueryContext(ctx, query, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: []byte(value)})
	}
	return entries, rows.Err()
}

func (db *DB) Clear(ctx context.Context, bucket string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE bucket=?`, bucket)
	return err
}

// Memory is an in-process Store for tests and dry runs
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
}

type memBucket struct {
	order  []string
	values map[string][]byte
}

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*memBucket)}
}

func (m *Memory) bucket(name string) *memBucket {
	b, ok := m.buckets[name]
	if !ok {
		b = &memBucket{values: make(map[string][]byte)}
		m.buckets[name] = b
	}
	return b
}

func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.bucket(bucket).values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(bucket)
	if _, ok := b.values[key]; !ok {
		b.order = append(b.order, key)
	}
	b.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) List(_ context.Context, bucket string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(bucket)
	entries := make([]Entry, 0, len(b.order))
	for _, k := range b.order {
		entries = append(entries, Entry{Key: k, Value: append([]byte(nil), b.values[k]...)})
	}
	return entries, nil
}

func (m *Memory) Clear(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, bucket)
	return nil
}

// Overlay reads through to a backing store but keeps every write in memory.
// Dry runs use it so planning sees persisted state without changing it.
type Overlay struct {
	base  Store
	mem   *Memory
	clear map[string]bool
	mu    sync.Mutex
}

var _ Store = (*Overlay)(nil)

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, mem: NewMemory(), clear: map[string]bool{}}
}

func (o *Overlay) cleared(bucket string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clear[bucket]
}

func (o *Overlay) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	v, err := o.mem.Get(ctx, bucket, key)
	if err != ErrNotFound || o.cleared(bucket) {
		return v, err
	}
	return o.base.Get(ctx, bucket, key)
}

func (o *Overlay) Put(ctx context.Context, bucket, key string, value []byte) error {
	return o.mem.Put(ctx, bucket, key, value)
}

func (o *Overlay) List(ctx context.Context, bucket string) ([]Entry, error) {
	local, err := o.mem.List(ctx, bucket)
	if err != nil || o.cleared(bucket) {
		return local, err
	}
	base, err := o.base.List(ctx, bucket)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(base))
	for i, e := range base {
		index[e.Key] = i
	}
	for _, e := range local {
		if i, ok := index[e.Key]; ok {
			base[i] = e
			continue
		}
		base = append(base, e)
	}
	return base, nil
}

func (o *Overlay) Clear(ctx context.Context, bucket string) error {
	o.mu.Lock()
	o.clear[bucket] = true
	o.mu.Unlock()
	return o.mem.Clear(ctx, bucket)
}
