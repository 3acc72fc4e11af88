package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/internal/jobstore"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/internal/portal/portaltest"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jobA = portaltest.Job("1", "Acme", "Backend Developer")
	jobB = portaltest.Job("2", "Globex", "Data Analyst")
	jobC = portaltest.Job("3", "Initech", "QA Engineer")
)

type fixture struct {
	fake  *portaltest.Fake
	store *jobstore.Store
	clock *clock.Manual
	disc  *Discovery
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c := clock.NewManual(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	store := jobstore.New(database.NewMemory(), c)
	return &fixture{
		fake:  portaltest.New(),
		store: store,
		clock: c,
		disc:  New(store, opts, logger),
	}
}

func identities(jobs []models.JobRecord) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.Identity)
	}
	sort.Strings(ids)
	return ids
}

func idsOf(summaries ...portal.JobSummary) []string {
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, jobstore.Identity(s.Company, s.Title, s.URL))
	}
	sort.Strings(ids)
	return ids
}

func TestDuplicateAcrossPages(t *testing.T) {
	f := newFixture(t, Options{})
	f.fake.Folders["test"] = [][]portal.JobSummary{{jobA, jobB}, {jobB, jobC}}

	res, err := f.disc.Run(context.Background(), f.fake, "test", models.BoardFull)
	require.NoError(t, err)

	assert.Equal(t, idsOf(jobA, jobB, jobC), identities(res.Jobs))
	assert.Len(t, res.Jobs, 3)
	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, 1, f.fake.DetailCalls["2"], "B fetched once")
	assert.Empty(t, res.Failures)
}

func TestPaginationStopsOnPageWithNoNewJobs(t *testing.T) {
	const n = 3
	f := newFixture(t, Options{MaxPages: 100})
	var pages [][]portal.JobSummary
	for i := 0; i < n; i++ {
		pages = append(pages, []portal.JobSummary{portaltest.Job(fmt.Sprint(i), "Co", fmt.Sprintf("Role %d", i))})
	}
	f.fake.Folders["loop"] = pages
	f.fake.InfiniteNext = true

	res, err := f.disc.Run(context.Background(), f.fake, "loop", models.BoardFull)
	require.NoError(t, err)

	assert.Equal(t, n+1, res.PagesVisited)
	assert.Equal(t, n+1, f.fake.PagesListed)
	assert.Len(t, res.Jobs, n)
}

func TestPaginationPageCeiling(t *testing.T) {
	f := newFixture(t, Options{MaxPages: 2})
	f.fake.Folders["big"] = [][]portal.JobSummary{{jobA}, {jobB}, {jobC}}

	var seenPages []int
	f.disc.opts.OnPage = func(page, _ int) { seenPages = append(seenPages, page) }

	res, err := f.disc.Run(context.Background(), f.fake, "big", models.BoardFull)
	require.NoError(t, err)

	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, []int{1, 2}, seenPages)
	assert.Equal(t, idsOf(jobA, jobB), identities(res.Jobs))
}

func TestDedupIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.fake.Folders["test"] = [][]portal.JobSummary{{jobA, jobB}, {jobC}}

	first, err := f.disc.Run(ctx, f.fake, "test", models.BoardFull)
	require.NoError(t, err)
	before, err := f.store.All(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.disc.Run(ctx, f.fake, "test", models.BoardFull)
	require.NoError(t, err)
	after, err := f.store.All(ctx)
	require.NoError(t, err)

	assert.Equal(t, identities(first.Jobs), identities(second.Jobs))
	assert.Equal(t, 3, second.CacheHits)
	assert.Zero(t, second.Fetched)
	for _, id := range []string{"1", "2", "3"} {
		assert.Equal(t, 1, f.fake.DetailCalls[id])
	}

	require.Len(t, after, len(before))
	byID := map[string]models.JobRecord{}
	for _, r := range before {
		byID[r.Identity] = r
	}
	for _, r := range after {
		prev, ok := byID[r.Identity]
		require.True(t, ok)
		assert.True(t, r.LastSeenAt.After(prev.LastSeenAt))
		prev.LastSeenAt = r.LastSeenAt
		assert.Equal(t, prev, r, "only last_seen_at changes")
	}
}

func TestEmptyFolderIsNotAnError(t *testing.T) {
	f := newFixture(t, Options{})
	f.fake.Folders["empty"] = nil

	res, err := f.disc.Run(context.Background(), f.fake, "empty", models.BoardDirect)
	require.NoError(t, err)
	assert.Empty(t, res.Jobs)
	assert.Equal(t, 1, res.PagesVisited)
}

func TestFolderNotFound(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.disc.Run(context.Background(), f.fake, "missing", models.BoardFull)
	require.ErrorIs(t, err, ErrFolderNotFound)
}

func TestDetailFailureIsRecordedAndSkipped(t *testing.T) {
	f := newFixture(t, Options{DetailAttempts: 2})
	f.fake.Folders["test"] = [][]portal.JobSummary{{jobA, jobB, jobC}}
	boom := errors.New("navigation timeout")
	f.fake.DetailErrs["2"] = []error{boom, boom}

	res, err := f.disc.Run(context.Background(), f.fake, "test", models.BoardFull)
	require.NoError(t, err)

	assert.Equal(t, idsOf(jobA, jobC), identities(res.Jobs))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "discovery", res.Failures[0].Stage)
	assert.Contains(t, res.Failures[0].Subject, "Globex")
	assert.Contains(t, res.Failures[0].Reason, "navigation timeout")
	assert.Equal(t, 2, f.fake.DetailCalls["2"])
}

func TestDetailRetrySucceeds(t *testing.T) {
	f := newFixture(t, Options{DetailAttempts: 2})
	f.fake.Folders["test"] = [][]portal.JobSummary{{jobA}}
	f.fake.DetailErrs["1"] = []error{errors.New("flaky")}
	f.fake.Details["1"] = models.JobDetail{Summary: "Write services", Skills: "Go"}

	res, err := f.disc.Run(context.Background(), f.fake, "test", models.BoardFull)
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "Write services", res.Jobs[0].Detail.Summary)
	assert.Equal(t, "Job Summary:\nWrite services\n\nRequired Skills:\nGo", res.Jobs[0].RawDescription)
	assert.Equal(t, "test", res.Jobs[0].FolderName)
}

func TestCorruptCacheIsFatal(t *testing.T) {
	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	kv := database.NewMemory()
	store := jobstore.New(kv, nil)
	fake := portaltest.New()
	fake.Folders["test"] = [][]portal.JobSummary{{jobA}}

	id := jobstore.Identity(jobA.Company, jobA.Title, jobA.URL)
	require.NoError(t, kv.Put(ctx, "jobs", id, []byte("{not json")))

	_, err := New(store, Options{}, logger).Run(ctx, fake, "test", models.BoardFull)
	require.ErrorIs(t, err, database.ErrCorrupt)
}
