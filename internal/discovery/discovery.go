// Package discovery walks a portal folder page by page and resolves every
// posting into a JobRecord, using the job store to avoid re-fetching detail.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/khrees2412/waterworks/internal/jobstore"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrListing        = errors.New("failed to read folder listing")
	ErrDetailFetch    = errors.New("failed to fetch job detail")
)

const stage = "discovery"

// Options bounds the traversal
type Options struct {
	// MaxPages is the absolute page ceiling
	MaxPages int
	// DetailAttempts is how many times a detail fetch is tried per job
	DetailAttempts int
	// OnPage is called after each page with its number and the count of new jobs
	OnPage func(page, newJobs int)
}

// Result is everything one traversal produced
type Result struct {
	Jobs     []models.JobRecord
	Failures []models.Failure
	// Discovered counts unique postings listed, including ones whose detail failed
	Discovered   int
	PagesVisited int
	CacheHits    int
	Fetched      int
}

// Discovery is FolderDiscovery
type Discovery struct {
	store *jobstore.Store
	opts  Options
	log   logrus.FieldLogger
}

func New(store *jobstore.Store, opts Options, log logrus.FieldLogger) *Discovery {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 50
	}
	if opts.DetailAttempts <= 0 {
		opts.DetailAttempts = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Discovery{store: store, opts: opts, log: log.WithField("component", "discovery")}
}

// Run discovers every job in folder on board. An empty folder yields an empty
// result; a missing folder is ErrFolderNotFound. Per-job detail failures are
// returned in Result.Failures and do not stop the traversal.
func (d *Discovery) Run(ctx context.Context, client portal.Client, folder string, board models.JobBoard) (*Result, error) {
	log := d.log.WithFields(logrus.Fields{"folder": folder, "board": board})

	if err := client.NavigateToFolder(ctx, folder, board); err != nil {
		if errors.Is(err, portal.ErrFolderNotFound) {
			return nil, fmt.Errorf("%w: %q on %s", ErrFolderNotFound, folder, board.DisplayName())
		}
		return nil, fmt.Errorf("open folder %q: %w", folder, err)
	}

	res := &Result{Jobs: []models.JobRecord{}}
	summaries, err := d.paginate(ctx, client, res, log)
	if err != nil {
		return nil, err
	}
	res.Discovered = len(summaries)
	log.WithFields(logrus.Fields{"pages": res.PagesVisited, "jobs": len(summaries)}).Info("listing complete")

	for _, s := range summaries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, hit, err := d.resolve(ctx, client, s, folder, board)
		if err != nil {
			if !errors.Is(err, ErrDetailFetch) {
				return nil, err
			}
			log.WithError(err).WithField("job", s.Title).Warn("skipping job")
			res.Failures = append(res.Failures, models.Failure{
				Stage:   stage,
				Subject: describe(s),
				Reason:  err.Error(),
			})
			continue
		}
		if hit {
			res.CacheHits++
		} else {
			res.Fetched++
		}
		res.Jobs = append(res.Jobs, *rec)
	}

	log.WithFields(logrus.Fields{
		"jobs":       len(res.Jobs),
		"cache_hits": res.CacheHits,
		"fetched":    res.Fetched,
		"failed":     len(res.Failures),
	}).Info("discovery complete")
	return res, nil
}

type pending struct {
	portal.JobSummary
	identity string
}

// paginate accumulates unique summaries across pages. It stops at the first
// page with no identities it has not already seen, at MaxPages, or when the
// portal shows no next page.
func (d *Discovery) paginate(ctx context.Context, client portal.Client, res *Result, log logrus.FieldLogger) ([]pending, error) {
	seen := map[string]bool{}
	var out []pending

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := client.ListPage(ctx)
		if err != nil {
			if res.PagesVisited == 0 {
				return nil, fmt.Errorf("%w: %w", ErrListing, err)
			}
			// Keep what the earlier pages produced.
			res.Failures = append(res.Failures, models.Failure{
				Stage:   stage,
				Subject: fmt.Sprintf("page %d", res.PagesVisited+1),
				Reason:  err.Error(),
			})
			log.WithError(err).Warn("listing page failed, stopping pagination")
			return out, nil
		}
		res.PagesVisited++

		fresh := 0
		for _, s := range page {
			id := jobstore.Identity(s.Company, s.Title, s.URL)
			if seen[id] {
				continue
			}
			seen[id] = true
			fresh++
			out = append(out, pending{JobSummary: s, identity: id})
		}
		log.WithFields(logrus.Fields{"page": res.PagesVisited, "rows": len(page), "new": fresh}).Debug("read page")
		if d.opts.OnPage != nil {
			d.opts.OnPage(res.PagesVisited, fresh)
		}

		if fresh == 0 {
			if res.PagesVisited > 1 {
				log.WithField("page", res.PagesVisited).Warn("page had no new jobs, stopping pagination")
			}
			return out, nil
		}
		if res.PagesVisited >= d.opts.MaxPages {
			log.WithField("max_pages", d.opts.MaxPages).Warn("page ceiling reached")
			return out, nil
		}

		hasNext, err := client.HasNextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrListing, err)
		}
		if !hasNext {
			return out, nil
		}
		if err := client.AdvancePage(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrListing, err)
		}
	}
}

// resolve returns the cached record for s, or fetches and stores it. hit
// reports whether the cache served it.
func (d *Discovery) resolve(ctx context.Context, client portal.Client, s pending, folder string, board models.JobBoard) (rec *models.JobRecord, hit bool, err error) {
	cached, found, err := d.store.Lookup(ctx, s.identity)
	if err != nil {
		return nil, false, err
	}
	if found {
		rec, err = d.store.Touch(ctx, *cached, folder, board)
		return rec, true, err
	}

	var detail models.JobDetail
	var lastErr error
	for attempt := 1; attempt <= d.opts.DetailAttempts; attempt++ {
		detail, lastErr = client.FetchDetail(ctx, s.JobSummary)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		d.log.WithError(lastErr).WithFields(logrus.Fields{"job": s.Title, "attempt": attempt}).Debug("detail fetch failed")
	}
	if lastErr != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDetailFetch, lastErr)
	}

	rec, err = d.store.Upsert(ctx, models.JobRecord{
		Identity:       s.identity,
		PortalID:       s.PortalID,
		Company:        s.Company,
		Title:          s.Title,
		URL:            s.URL,
		RawDescription: detail.Description(),
		Detail:         detail,
		FolderName:     folder,
		JobBoard:       board,
	})
	return rec, false, err
}

func describe(s pending) string {
	return fmt.Sprintf("%s - %s", s.Company, s.Title)
}
