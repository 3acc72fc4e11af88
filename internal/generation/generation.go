// Package generation decides, per job, whether a cover letter must be written
// and produces it through the completion and rendering capabilities.
package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/khrees2412/waterworks/internal/ai"
	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/jobstore"
	"github.com/khrees2412/waterworks/internal/render"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrDescriptionTooShort = errors.New("job description too short")
	ErrAttemptsExhausted   = errors.New("generation attempts exhausted")
)

// Decision is the generate-or-skip outcome for one job
type Decision int

const (
	Generate Decision = iota
	Skip
)

func (d Decision) String() string {
	if d == Skip {
		return "skip"
	}
	return "generate"
}

// Options configures a Ledger
type Options struct {
	Force  bool
	DryRun bool

	MaxAttempts          int
	RetryDelay           time.Duration
	MinDescriptionLength int
	// CallSpacing is the least time between provider calls of consecutive jobs
	CallSpacing time.Duration

	Signature string
	Contact   render.Contact
}

// Ledger is the GenerationLedger
type Ledger struct {
	namer     *Namer
	completer ai.Completer
	prompts   *ai.PromptBuilder
	renderer  render.Renderer
	clock     clock.Clock
	opts      Options
	log       logrus.FieldLogger

	lastCall time.Time
}

func New(namer *Namer, completer ai.Completer, prompts *ai.PromptBuilder, renderer render.Renderer, c clock.Clock, opts Options, log logrus.FieldLogger) *Ledger {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.MinDescriptionLength < 0 {
		opts.MinDescriptionLength = 0
	}
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{
		namer:     namer,
		completer: completer,
		prompts:   prompts,
		renderer:  renderer,
		clock:     c,
		opts:      opts,
		log:       log.WithField("component", "generation"),
	}
}

// Decide resolves the job's deterministic path and whether to generate it.
// It skips iff a non-empty file is already at the path and Force is off.
func (l *Ledger) Decide(ctx context.Context, job models.JobRecord) (string, Decision, error) {
	path, err := l.namer.Resolve(ctx, identityOf(job), job.Company, job.Title)
	if err != nil {
		return "", Generate, err
	}
	if exists(path) && !l.opts.Force {
		return path, Skip, nil
	}
	return path, Generate, nil
}

// Process runs one job through decide, complete and render. The returned
// document always describes the outcome; a non-nil error means the run cannot
// continue (invalid provider key, store failure or cancellation).
func (l *Ledger) Process(ctx context.Context, job models.JobRecord) (models.GeneratedDocument, error) {
	doc := models.GeneratedDocument{
		JobIdentity: identityOf(job),
		Company:     job.Company,
		Title:       job.Title,
	}
	log := l.log.WithFields(logrus.Fields{"company": job.Company, "title": job.Title})

	path, decision, err := l.Decide(ctx, job)
	if err != nil {
		return l.failed(doc, err), err
	}
	doc.OutputPath = path

	if decision == Skip {
		doc.Status = models.DocSkippedExists
		log.WithField("path", path).Debug("cover letter exists, skipping")
		return doc, nil
	}
	if l.opts.DryRun {
		doc.Status = models.DocPlanned
		return doc, nil
	}

	description := strings.TrimSpace(job.RawDescription)
	if description == "" {
		description = job.Detail.Description()
	}
	if len(description) < l.opts.MinDescriptionLength {
		return l.failed(doc, fmt.Errorf("%w: %d characters", ErrDescriptionTooShort, len(description))), nil
	}

	prompt, err := l.prompts.Build(job.Company, job.Title, description)
	if err != nil {
		return l.failed(doc, err), nil
	}

	if err := l.space(ctx); err != nil {
		return l.failed(doc, err), err
	}
	text, attempts, err := l.complete(ctx, prompt, log)
	l.lastCall = l.clock.Now()
	doc.Attempts = attempts
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return l.failed(doc, ctxErr), ctxErr
		}
		if errors.Is(err, ai.ErrInvalidKey) {
			return l.failed(doc, err), err
		}
		return l.failed(doc, err), nil
	}

	_, err = l.renderer.Render(ctx, render.Letter{
		Company:   job.Company,
		Title:     job.Title,
		Body:      text,
		Signature: l.opts.Signature,
		Date:      l.clock.Now(),
		Contact:   l.opts.Contact,
	}, path)
	if err != nil {
		return l.failed(doc, err), nil
	}

	doc.Status = models.DocGenerated
	doc.GeneratedAt = l.clock.Now().UTC()
	doc.WordCount = len(strings.Fields(text))
	log.WithFields(logrus.Fields{"path": path, "words": doc.WordCount, "attempts": attempts}).Info("cover letter generated")
	return doc, nil
}

// complete calls the provider up to MaxAttempts times, backing off
// exponentially between transient failures. Other failures stop at once.
func (l *Ledger) complete(ctx context.Context, prompt string, log logrus.FieldLogger) (string, int, error) {
	delay := l.opts.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= l.opts.MaxAttempts; attempt++ {
		text, err := l.completer.Complete(ctx, prompt)
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err
		if !ai.Retryable(err) || ctx.Err() != nil {
			return "", attempt, err
		}
		if attempt == l.opts.MaxAttempts {
			break
		}

		log.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "retry_in": delay}).Warn("completion failed, retrying")
		if err := l.clock.Sleep(ctx, delay); err != nil {
			return "", attempt, err
		}
		delay *= 2
	}
	return "", l.opts.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, l.opts.MaxAttempts, lastErr)
}

// space waits out what is left of CallSpacing since the previous job's call
func (l *Ledger) space(ctx context.Context) error {
	if l.opts.CallSpacing <= 0 || l.lastCall.IsZero() {
		return nil
	}
	wait := l.opts.CallSpacing - l.clock.Now().Sub(l.lastCall)
	if wait <= 0 {
		return nil
	}
	return l.clock.Sleep(ctx, wait)
}

func (l *Ledger) failed(doc models.GeneratedDocument, err error) models.GeneratedDocument {
	doc.Status = models.DocFailed
	doc.Err = err
	l.log.WithError(err).WithFields(logrus.Fields{"company": doc.Company, "title": doc.Title}).Warn("cover letter failed")
	return doc
}

// exists treats a zero-length file as absent; an interrupted write can leave one
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func identityOf(job models.JobRecord) string {
	if job.Identity != "" {
		return job.Identity
	}
	return jobstore.Identity(job.Company, job.Title, job.URL)
}
