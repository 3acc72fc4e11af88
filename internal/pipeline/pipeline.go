// Package pipeline sequences a run: authenticate, discover, generate or skip
// each job, and optionally upload, collecting a RunSummary along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/khrees2412/waterworks/internal/delivery"
	"github.com/khrees2412/waterworks/internal/discovery"
	"github.com/khrees2412/waterworks/internal/generation"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/internal/session"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus"
)

// ErrAborted wraps every error that ended a run early
var ErrAborted = errors.New("run aborted")

// Outcome is the terminal state of a run
type Outcome string

const (
	Completed Outcome = "completed"
	Aborted   Outcome = "aborted"
)

// Hooks lets the caller show progress. Any of them may be nil.
type Hooks struct {
	OnPhase  func(msg string)
	OnJob    func(n, total int, doc models.GeneratedDocument)
	OnUpload func(doc delivery.Document, err error)
}

// Report is what a run hands back. Err is set iff Outcome is Aborted.
type Report struct {
	Outcome    Outcome
	Summary    models.RunSummary
	Documents  []models.GeneratedDocument
	UploadPlan *delivery.Plan
	Err        error
}

// Orchestrator wires the components of one run. Session and Discovery are
// needed only by runs that browse; Ledger only by generate runs.
type Orchestrator struct {
	Session       *session.Session
	Discovery     *discovery.Discovery
	Ledger        *generation.Ledger
	Tracker       *delivery.Tracker
	LoginAttempts int
	Hooks         Hooks
	Log           logrus.FieldLogger
}

// GenerateRequest describes a generate run
type GenerateRequest struct {
	Credential models.Credential
	Folder     string
	Board      models.JobBoard
	DryRun     bool
	// Upload delivers the output directory after generating
	Upload      bool
	ForceUpload bool
	OutputDir   string
}

// UploadRequest describes an upload run
type UploadRequest struct {
	Credential models.Credential
	OutputDir  string
	Force      bool
}

func (o *Orchestrator) log() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

func (o *Orchestrator) phase(msg string) {
	o.log().Info(msg)
	if o.Hooks.OnPhase != nil {
		o.Hooks.OnPhase(msg)
	}
}

func abort(rep *Report, err error) *Report {
	rep.Outcome = Aborted
	rep.Err = fmt.Errorf("%w: %w", ErrAborted, err)
	return rep
}

// login authenticates, retrying from LoggedOut a bounded number of times.
// Rejected credentials are not retried since the same password would only
// count toward a lockout.
func (o *Orchestrator) login(ctx context.Context, cred models.Credential) error {
	attempts := o.LoginAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			o.Session.Reset()
			o.log().WithField("attempt", attempt).Warn("retrying login")
		}
		if _, err = o.Session.Authenticate(ctx, cred); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, portal.ErrBadCredentials) || errors.Is(err, session.ErrSecondFactorRejected) {
			return err
		}
	}
	return err
}

// Generate runs authenticate, discover and generate-or-skip for every job.
// Per-job failures are summarized; only session, folder and provider-key
// failures (and cancellation) abort.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) *Report {
	rep := &Report{Outcome: Completed, Documents: []models.GeneratedDocument{}}
	log := o.log().WithFields(logrus.Fields{"folder": req.Folder, "board": req.Board, "dry_run": req.DryRun})

	o.phase("Logging in to the portal")
	if err := o.login(ctx, req.Credential); err != nil {
		return abort(rep, err)
	}

	o.phase(fmt.Sprintf("Discovering jobs in %q (%s)", req.Folder, req.Board.DisplayName()))
	var found *discovery.Result
	err := o.Session.WithSession(ctx, func(ctx context.Context, client portal.Client) error {
		var err error
		found, err = o.Discovery.Run(ctx, client, req.Folder, req.Board)
		return err
	})
	if err != nil {
		return abort(rep, err)
	}

	rep.Summary.PagesVisited = found.PagesVisited
	rep.Summary.JobsDiscovered = found.Discovered
	for _, f := range found.Failures {
		rep.Summary.FailedCount++
		rep.Summary.Failures = append(rep.Summary.Failures, f)
	}

	o.phase(fmt.Sprintf("Processing %d jobs", len(found.Jobs)))
	for i, job := range found.Jobs {
		if err := ctx.Err(); err != nil {
			log.WithField("remaining", len(found.Jobs)-i).Warn("cancelled between jobs")
			return abort(rep, err)
		}

		doc, err := o.Ledger.Process(ctx, job)
		rep.Documents = append(rep.Documents, doc)
		switch doc.Status {
		case models.DocGenerated:
			rep.Summary.GeneratedCount++
		case models.DocSkippedExists:
			rep.Summary.SkippedCount++
		case models.DocPlanned:
			rep.Summary.PlannedCount++
		case models.DocFailed:
			rep.Summary.AddFailure("generation", subject(job), doc.Err)
		}
		if o.Hooks.OnJob != nil {
			o.Hooks.OnJob(i+1, len(found.Jobs), doc)
		}
		if err != nil {
			return abort(rep, err)
		}
	}

	if req.Upload {
		if err := o.deliver(ctx, rep, req.OutputDir, req.ForceUpload, req.DryRun, nil); err != nil {
			return abort(rep, err)
		}
	}

	log.WithFields(logrus.Fields{
		"generated": rep.Summary.GeneratedCount,
		"skipped":   rep.Summary.SkippedCount,
		"failed":    rep.Summary.FailedCount,
	}).Info("generate run complete")
	return rep
}

// Upload delivers the output directory. It logs in only when something needs
// uploading.
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) *Report {
	rep := &Report{Outcome: Completed}
	if err := o.deliver(ctx, rep, req.OutputDir, req.Force, false, &req.Credential); err != nil {
		return abort(rep, err)
	}
	return rep
}

// deliver plans and uploads dir. cred is nil when the session is already
// authenticated.
func (o *Orchestrator) deliver(ctx context.Context, rep *Report, dir string, force, dryRun bool, cred *models.Credential) error {
	paths, err := delivery.PDFs(dir)
	if err != nil {
		return err
	}
	plan, err := o.Tracker.Plan(ctx, paths, force)
	if err != nil {
		return err
	}
	rep.UploadPlan = plan
	rep.Summary.AlreadyUploaded = len(plan.AlreadyUploaded)
	for _, f := range plan.Unreadable {
		rep.Summary.FailedCount++
		rep.Summary.Failures = append(rep.Summary.Failures, f)
	}

	if dryRun || len(plan.ToUpload) == 0 {
		o.log().WithFields(logrus.Fields{"to_upload": len(plan.ToUpload), "already_uploaded": len(plan.AlreadyUploaded)}).Info("nothing uploaded")
		return nil
	}

	if cred != nil {
		o.phase("Logging in to the portal")
		if err := o.login(ctx, *cred); err != nil {
			return err
		}
	}

	o.phase(fmt.Sprintf("Uploading %d documents", len(plan.ToUpload)))
	return o.Session.WithSession(ctx, func(ctx context.Context, client portal.Client) error {
		res, err := o.Tracker.Deliver(ctx, client, plan.ToUpload, o.Hooks.OnUpload)
		if res != nil {
			rep.Summary.UploadedCount += res.Uploaded
			for _, f := range res.Failures {
				rep.Summary.FailedCount++
				rep.Summary.Failures = append(rep.Summary.Failures, f)
			}
		}
		return err
	})
}

func subject(job models.JobRecord) string {
	return fmt.Sprintf("%s - %s", job.Company, job.Title)
}
