// Package jobstore is the local cache of previously seen job postings.
//
// Records live in a global identity space so a posting saved in two folders is
// fetched once; folder membership is tracked separately per (folder, board).
package jobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/pkg/models"
)

const (
	jobsBucket       = "jobs"
	membershipBucket = "job_folders"
)

// Identity derives the stable dedup key for a posting from its company, title
// and URL. Each part is trimmed, whitespace-collapsed and case-folded first.
func Identity(company, title, url string) string {
	basis := normalize(company) + "\x1f" + normalize(title) + "\x1f" + normalize(url)
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:16])
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Store is the JobStore
type Store struct {
	kv    database.Store
	clock clock.Clock
}

// New wraps a key/value store
func New(kv database.Store, c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{kv: kv, clock: c}
}

// Lookup returns the cached record, or found=false. It never touches the network.
func (s *Store) Lookup(ctx context.Context, identity string) (*models.JobRecord, bool, error) {
	raw, err := s.kv.Get(ctx, jobsBucket, identity)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup job %s: %w", identity, err)
	}

	var rec models.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("%w: job %s: %v", database.ErrCorrupt, identity, err)
	}
	return &rec, true, nil
}

// Upsert stores a record. An existing record keeps its FirstSeenAt; LastSeenAt
// is always set to now. Identity is recomputed if missing.
func (s *Store) Upsert(ctx context.Context, rec models.JobRecord) (*models.JobRecord, error) {
	if rec.Identity == "" {
		rec.Identity = Identity(rec.Company, rec.Title, rec.URL)
	}
	now := s.clock.Now().UTC()

	existing, found, err := s.Lookup(ctx, rec.Identity)
	if err != nil {
		return nil, err
	}
	if found {
		rec.FirstSeenAt = existing.FirstSeenAt
	} else {
		rec.FirstSeenAt = now
	}
	rec.LastSeenAt = now

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", rec.Identity, err)
	}
	if err := s.kv.Put(ctx, jobsBucket, rec.Identity, raw); err != nil {
		return nil, fmt.Errorf("store job %s: %w", rec.Identity, err)
	}

	if rec.FolderName != "" {
		if err := s.kv.Put(ctx, membershipBucket, membershipKey(rec.FolderName, rec.JobBoard, rec.Identity), []byte(rec.Identity)); err != nil {
			return nil, fmt.Errorf("store folder membership: %w", err)
		}
	}
	return &rec, nil
}

// Touch refreshes LastSeenAt of a cached record and records its membership in
// folder. The description and detail are left as cached.
func (s *Store) Touch(ctx context.Context, rec models.JobRecord, folder string, board models.JobBoard) (*models.JobRecord, error) {
	rec.FolderName = folder
	rec.JobBoard = board
	return s.Upsert(ctx, rec)
}

// ListInFolder returns the records seen in a folder on a board, in insertion order
func (s *Store) ListInFolder(ctx context.Context, folder string, board models.JobBoard) ([]models.JobRecord, error) {
	entries, err := s.kv.List(ctx, membershipBucket)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folder, err)
	}

	prefix := membershipKey(folder, board, "")
	records := []models.JobRecord{}
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, prefix) {
			continue
		}
		rec, found, err := s.Lookup(ctx, string(e.Value))
		if err != nil {
			return nil, err
		}
		if found {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// All returns every cached record
func (s *Store) All(ctx context.Context) ([]models.JobRecord, error) {
	entries, err := s.kv.List(ctx, jobsBucket)
	if err != nil {
		return nil, err
	}
	records := make([]models.JobRecord, 0, len(entries))
	for _, e := range entries {
		var rec models.JobRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("%w: job %s: %v", database.ErrCorrupt, e.Key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func membershipKey(folder string, board models.JobBoard, identity string) string {
	return normalize(folder) + "|" + string(board) + "|" + identity
}
