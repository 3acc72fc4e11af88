package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// createTestDB creates a temporary test database
func createTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stores returns both Store implementations so behavior is checked against each
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": createTestDB(t),
		"memory": NewMemory(),
	}
}

func TestGetMissingKey(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "jobs", "nope")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPutReplacesValue(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, "jobs", "a", []byte(`{"v":1}`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Put(ctx, "jobs", "a", []byte(`{"v":2}`)); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := s.Get(ctx, "jobs", "a")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != `{"v":2}` {
				t.Errorf("expected replaced value, got %s", got)
			}

			entries, err := s.List(ctx, "jobs")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(entries) != 1 {
				t.Errorf("expected 1 entry after replace, got %d", len(entries))
			}
		})
	}
}

// TestListInsertionOrder checks that replacing a key keeps its original position
func TestListInsertionOrder(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				key := fmt.Sprintf("k%d", i)
				if err := s.Put(ctx, "b", key, []byte(key)); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			if err := s.Put(ctx, "b", "k1", []byte("updated")); err != nil {
				t.Fatalf("put: %v", err)
			}

			entries, err := s.List(ctx, "b")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []string{"k1", "k2", "k3"}
			if len(entries) != len(want) {
				t.Fatalf("expected %d entries, got %d", len(want), len(entries))
			}
			for i, e := range entries {
				if e.Key != want[i] {
					t.Errorf("entry %d: expected %s, got %s", i, want[i], e.Key)
				}
			}
		})
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Put(ctx, "jobs", "x", []byte("1"))
			s.Put(ctx, "uploads", "x", []byte("2"))

			if err := s.Clear(ctx, "uploads"); err != nil {
				t.Fatalf("clear: %v", err)
			}

			if _, err := s.Get(ctx, "uploads", "x"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected uploads bucket cleared, got %v", err)
			}
			if v, err := s.Get(ctx, "jobs", "x"); err != nil || string(v) != "1" {
				t.Errorf("jobs bucket should be untouched, got %q %v", v, err)
			}
		})
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Put(ctx, "uploads", "a.pdf", []byte(`{"status":"uploaded"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := db.Get(ctx, "uploads", "a.pdf")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != `{"status":"uploaded"}` {
		t.Errorf("unexpected value after reopen: %s", got)
	}
}

// TestSingleWriterLock verifies a second run against the same directory is refused
func TestSingleWriterLock(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}

	if _, err := Open(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked for concurrent open, got %v", err)
	}

	first.Close()

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("open after release should succeed: %v", err)
	}
	second.Close()

	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on close")
	}
}

// TestStaleLockIsTakenOver covers a lock left by a run that was killed
func TestStaleLockIsTakenOver(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockFileName)
	if err := os.WriteFile(lockPath, []byte("99999999"), 0600); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("open with stale lock: %v", err)
	}
	defer db.Close()

	holder, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if string(holder) != fmt.Sprint(os.Getpid()) {
		t.Errorf("lock holder = %q, want %d", holder, os.Getpid())
	}
}

func TestUnreadableLockIsRefused(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("not-a-pid"), 0600); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	if _, err := Open(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestCorruptDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("this is not a sqlite database at all, just text padding"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := OpenPath(path); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

// BenchmarkPut benchmarks upserts
func BenchmarkPut(b *testing.B) {
	db, err := Open(b.TempDir())
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.Put(ctx, "bench", fmt.Sprintf("k%d", i%100), []byte("v"))
	}
}

func TestOverlayLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := createTestDB(t)
	if err := base.Put(ctx, "claims", "a", []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}

	o := NewOverlay(base)
	if err := o.Put(ctx, "claims", "b", []byte("2")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := o.Put(ctx, "claims", "a", []byte("changed")); err != nil {
		t.Fatalf("overlay put: %v", err)
	}

	v, err := o.Get(ctx, "claims", "a")
	if err != nil || string(v) != "changed" {
		t.Errorf("overlay read = %q, %v", v, err)
	}
	entries, err := o.List(ctx, "claims")
	if err != nil {
		t.Fatalf("overlay list: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Key != "b" {
		t.Errorf("unexpected overlay list %+v", entries)
	}

	v, err = base.Get(ctx, "claims", "a")
	if err != nil || string(v) != "1" {
		t.Errorf("base changed: %q, %v", v, err)
	}
	if _, err := base.Get(ctx, "claims", "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("overlay write leaked into base: %v", err)
	}

	if err := o.Clear(ctx, "claims"); err != nil {
		t.Fatalf("overlay clear: %v", err)
	}
	if _, err := o.Get(ctx, "claims", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cleared overlay still reads base: %v", err)
	}
	if entries, _ := base.List(ctx, "claims"); len(entries) != 1 {
		t.Errorf("clear leaked into base: %+v", entries)
	}
}
