package portal

import (
	"context"
	"sync"

	"github.com/khrees2412/waterworks/pkg/models"
)

// Lazy defers opening a Client until its first call, so runs that end up
// with nothing to do never launch a browser. A failed open is remembered.
type Lazy struct {
	open func(ctx context.Context) (Client, error)

	mu     sync.Mutex
	client Client
	err    error
}

var _ Client = (*Lazy)(nil)

func NewLazy(open func(ctx context.Context) (Client, error)) *Lazy {
	return &Lazy{open: open}
}

func (l *Lazy) get(ctx context.Context) (Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil && l.err == nil {
		l.client, l.err = l.open(ctx)
	}
	return l.client, l.err
}

// Opened reports whether the underlying client was started
func (l *Lazy) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client != nil
}

func (l *Lazy) SubmitCredentials(ctx context.Context, cred models.Credential) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.SubmitCredentials(ctx, cred)
}

func (l *Lazy) CheckApproval(ctx context.Context) (Approval, error) {
	c, err := l.get(ctx)
	if err != nil {
		return ApprovalPending, err
	}
	return c.CheckApproval(ctx)
}

func (l *Lazy) NavigateToFolder(ctx context.Context, name string, board models.JobBoard) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.NavigateToFolder(ctx, name, board)
}

func (l *Lazy) ListPage(ctx context.Context) ([]JobSummary, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListPage(ctx)
}

func (l *Lazy) HasNextPage(ctx context.Context) (bool, error) {
	c, err := l.get(ctx)
	if err != nil {
		return false, err
	}
	return c.HasNextPage(ctx)
}

func (l *Lazy) AdvancePage(ctx context.Context) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.AdvancePage(ctx)
}

func (l *Lazy) FetchDetail(ctx context.Context, job JobSummary) (models.JobDetail, error) {
	c, err := l.get(ctx)
	if err != nil {
		return models.JobDetail{}, err
	}
	return c.FetchDetail(ctx, job)
}

func (l *Lazy) UploadDocument(ctx context.Context, path string) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.UploadDocument(ctx, path)
}

// Close closes the underlying client if it was ever opened
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}
