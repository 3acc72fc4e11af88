// Package portaltest provides a scripted in-memory portal.Client for tests.
package portaltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/pkg/models"
)

// Fake replays a fixed folder layout. Pages beyond the last one repeat the last
// page when InfiniteNext is set, which mimics a broken "next" affordance.
type Fake struct {
	mu sync.Mutex

	Folders      map[string][][]portal.JobSummary
	Details      map[string]models.JobDetail
	DetailErrs   map[string][]error // consumed one per FetchDetail call
	InfiniteNext bool

	LoginErr   error
	Approvals  []portal.Approval // consumed one per probe; the last one repeats
	ProbeErr   error
	UploadErrs map[string]error // keyed by file path

	folder string
	page   int

	Logins      int
	Probes      int
	PagesListed int
	DetailCalls map[string]int
	Uploaded    []string
	UploadCalls int
	Closed      bool
}

var _ portal.Client = (*Fake)(nil)

// New returns a Fake that approves immediately
func New() *Fake {
	return &Fake{
		Folders:     map[string][][]portal.JobSummary{},
		Details:     map[string]models.JobDetail{},
		DetailErrs:  map[string][]error{},
		UploadErrs:  map[string]error{},
		DetailCalls: map[string]int{},
		Approvals:   []portal.Approval{portal.ApprovalApproved},
	}
}

// Job builds a summary whose URL is unique per id
func Job(id, company, title string) portal.JobSummary {
	return portal.JobSummary{
		PortalID: id,
		Company:  company,
		Title:    title,
		URL:      portal.CanonicalJobURL("https://portal.test", models.BoardFull, id),
	}
}

func (f *Fake) SubmitCredentials(ctx context.Context, cred models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Logins++
	return f.LoginErr
}

func (f *Fake) CheckApproval(ctx context.Context) (portal.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Probes++
	if f.ProbeErr != nil {
		return portal.ApprovalPending, f.ProbeErr
	}
	if len(f.Approvals) == 0 {
		return portal.ApprovalPending, nil
	}
	a := f.Approvals[0]
	if len(f.Approvals) > 1 {
		f.Approvals = f.Approvals[1:]
	}
	return a, nil
}

func (f *Fake) NavigateToFolder(ctx context.Context, name string, board models.JobBoard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Folders[name]; !ok {
		return fmt.Errorf("%w: %q", portal.ErrFolderNotFound, name)
	}
	f.folder = name
	f.page = 0
	return nil
}

func (f *Fake) ListPage(ctx context.Context) ([]portal.JobSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PagesListed++
	pages := f.Folders[f.folder]
	if len(pages) == 0 {
		return nil, nil
	}
	idx := f.page
	if idx >= len(pages) {
		idx = len(pages) - 1
	}
	return append([]portal.JobSummary(nil), pages[idx]...), nil
}

func (f *Fake) HasNextPage(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.InfiniteNext || f.page < len(f.Folders[f.folder])-1, nil
}

func (f *Fake) AdvancePage(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page++
	return nil
}

func (f *Fake) FetchDetail(ctx context.Context, job portal.JobSummary) (models.JobDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DetailCalls[job.PortalID]++
	if errs := f.DetailErrs[job.PortalID]; len(errs) > 0 {
		err := errs[0]
		f.DetailErrs[job.PortalID] = errs[1:]
		if err != nil {
			return models.JobDetail{}, err
		}
	}
	if d, ok := f.Details[job.PortalID]; ok {
		return d, nil
	}
	return models.JobDetail{Summary: "Work on " + job.Title + " at " + job.Company + " with a friendly team."}, nil
}

func (f *Fake) UploadDocument(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UploadCalls++
	if err := f.UploadErrs[path]; err != nil {
		return err
	}
	f.Uploaded = append(f.Uploaded, path)
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
