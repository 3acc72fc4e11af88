// Package portal defines the capability the pipeline uses to talk to the job
// portal, and a chromedp implementation of it.
package portal

import (
	"context"
	"errors"

	"github.com/khrees2412/waterworks/pkg/models"
)

// Sentinel errors reported by portal clients
var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrBadCredentials = errors.New("portal rejected the credentials")
	ErrUploadRejected = errors.New("portal rejected the upload")
)

// JobSummary is one row of a folder listing page
type JobSummary struct {
	PortalID string
	Company  string
	Title    string
	URL      string
}

// Approval is what a single second-factor probe observed
type Approval int

const (
	ApprovalPending Approval = iota
	ApprovalApproved
	ApprovalRejected
)

func (a Approval) String() string {
	switch a {
	case ApprovalApproved:
		return "approved"
	case ApprovalRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Client is the browsing capability. Implementations hold a single browsing
// context and are not safe for concurrent use.
type Client interface {
	// SubmitCredentials fills in and submits the login form
	SubmitCredentials(ctx context.Context, cred models.Credential) error
	// CheckApproval probes once for the out-of-band second factor outcome
	CheckApproval(ctx context.Context) (Approval, error)
	// NavigateToFolder opens a named folder; ErrFolderNotFound if it does not exist
	NavigateToFolder(ctx context.Context, name string, board models.JobBoard) error
	ListPage(ctx context.Context) ([]JobSummary, error)
	HasNextPage(ctx context.Context) (bool, error)
	AdvancePage(ctx context.Context) error
	FetchDetail(ctx context.Context, job JobSummary) (models.JobDetail, error)
	UploadDocument(ctx context.Context, path string) error
	Close() error
}
