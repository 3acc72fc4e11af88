package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *clock.Manual) {
	c := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(database.NewMemory(), c), c
}

func TestIdentityNormalization(t *testing.T) {
	tests := []struct {
		name        string
		a, b        [3]string
		expectEqual bool
	}{
		{
			name:        "whitespace and case",
			a:           [3]string{"Acme Inc", "Software Developer", "https://x/jobs?id=1"},
			b:           [3]string{"  acme   INC ", "software  developer\n", "HTTPS://X/jobs?id=1 "},
			expectEqual: true,
		},
		{
			name:        "different url",
			a:           [3]string{"Acme", "Dev", "https://x/1"},
			b:           [3]string{"Acme", "Dev", "https://x/2"},
			expectEqual: false,
		},
		{
			name:        "field boundaries matter",
			a:           [3]string{"Acme Dev", "Ops", ""},
			b:           [3]string{"Acme", "Dev Ops", ""},
			expectEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ia := Identity(tt.a[0], tt.a[1], tt.a[2])
			ib := Identity(tt.b[0], tt.b[1], tt.b[2])
			assert.Equal(t, tt.expectEqual, ia == ib)
		})
	}
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	ctx := context.Background()
	s, c := newTestStore()

	rec := models.JobRecord{Company: "Acme", Title: "Dev", URL: "u1", RawDescription: "old", FolderName: "saved", JobBoard: models.BoardFull}
	first, err := s.Upsert(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, first.Identity)

	c.Advance(time.Hour)
	rec.RawDescription = "new"
	second, err := s.Upsert(ctx, rec)
	require.NoError(t, err)

	assert.Equal(t, first.Identity, second.Identity)
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.True(t, second.LastSeenAt.After(first.LastSeenAt))

	got, found, err := s.Lookup(ctx, first.Identity)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", got.RawDescription)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLookupAbsent(t *testing.T) {
	s, _ := newTestStore()
	rec, found, err := s.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
}

func TestListInFolderScopesByFolderAndBoard(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	_, err := s.Upsert(ctx, models.JobRecord{Company: "A", Title: "1", FolderName: "Saved", JobBoard: models.BoardFull})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, models.JobRecord{Company: "B", Title: "2", FolderName: "saved", JobBoard: models.BoardFull})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, models.JobRecord{Company: "C", Title: "3", FolderName: "saved", JobBoard: models.BoardDirect})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, models.JobRecord{Company: "D", Title: "4", FolderName: "other", JobBoard: models.BoardFull})
	require.NoError(t, err)

	full, err := s.ListInFolder(ctx, "saved", models.BoardFull)
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, "A", full[0].Company)
	assert.Equal(t, "B", full[1].Company)

	direct, err := s.ListInFolder(ctx, "saved", models.BoardDirect)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "C", direct[0].Company)
}

// TestCrossFolderReuse checks that one posting saved in two folders is one record
func TestCrossFolderReuse(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	rec := models.JobRecord{Company: "Acme", Title: "Dev", URL: "u"}
	stored, err := s.Touch(ctx, rec, "first", models.BoardFull)
	require.NoError(t, err)
	_, err = s.Touch(ctx, *stored, "second", models.BoardFull)
	require.NoError(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	for _, folder := range []string{"first", "second"} {
		recs, err := s.ListInFolder(ctx, folder, models.BoardFull)
		require.NoError(t, err)
		assert.Len(t, recs, 1, folder)
	}
}

func TestLookupCorruptRecord(t *testing.T) {
	ctx := context.Background()
	kv := database.NewMemory()
	require.NoError(t, kv.Put(ctx, jobsBucket, "bad", []byte("{not json")))

	_, _, err := New(kv, nil).Lookup(ctx, "bad")
	assert.ErrorIs(t, err, database.ErrCorrupt)
}
