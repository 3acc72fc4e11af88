package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khrees2412/waterworks/internal/ai"
	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/internal/delivery"
	"github.com/khrees2412/waterworks/internal/discovery"
	"github.com/khrees2412/waterworks/internal/generation"
	"github.com/khrees2412/waterworks/internal/jobstore"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/internal/portal/portaltest"
	"github.com/khrees2412/waterworks/internal/render"
	"github.com/khrees2412/waterworks/internal/session"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cred = models.Credential{Username: "student", Password: "secret"}

// completer fails every call whose prompt names a company in failFor
type completer struct {
	mu      sync.Mutex
	failFor map[string]error
	calls   int
}

func (c *completer) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	for company, err := range c.failFor {
		if strings.Contains(prompt, "- Company: "+company+"\n") {
			return "", err
		}
	}
	return "Dear Hiring Manager,\n\nHello there.", nil
}

func (c *completer) Close() error { return nil }

type fileRenderer struct{}

func (fileRenderer) Render(ctx context.Context, letter render.Letter, outPath string) (string, error) {
	return outPath, os.WriteFile(outPath, []byte(letter.Company+"|"+letter.Body), 0o644)
}

type fixture struct {
	fake      *portaltest.Fake
	kv        *database.Memory
	clock     *clock.Manual
	completer *completer
	outDir    string
}

func newFixture(t *testing.T, companies ...string) *fixture {
	t.Helper()
	fake := portaltest.New()
	var page []portal.JobSummary
	for i, c := range companies {
		page = append(page, portaltest.Job(fmt.Sprint(i+1), c, "Developer"))
	}
	fake.Folders["saved"] = [][]portal.JobSummary{page}

	return &fixture{
		fake:      fake,
		kv:        database.NewMemory(),
		clock:     clock.NewManual(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)),
		completer: &completer{failFor: map[string]error{}},
		outDir:    t.TempDir(),
	}
}

func (f *fixture) orchestrator(t *testing.T, opts generation.Options) *Orchestrator {
	t.Helper()
	logger, _ := test.NewNullLogger()
	prompts, err := ai.NewPromptBuilder("", "resume", "")
	require.NoError(t, err)

	var claims database.Store = f.kv
	if opts.DryRun {
		claims = database.NewOverlay(f.kv)
	}
	if opts.MinDescriptionLength == 0 {
		opts.MinDescriptionLength = 20
	}

	return &Orchestrator{
		Session:       session.New(f.fake, f.clock, session.Options{ApprovalTimeout: 5 * time.Second}, logger),
		Discovery:     discovery.New(jobstore.New(f.kv, f.clock), discovery.Options{DetailAttempts: 1}, logger),
		Ledger:        generation.New(generation.NewNamer(f.outDir, 0, claims), f.completer, prompts, fileRenderer{}, f.clock, opts, logger),
		Tracker:       delivery.New(f.kv, f.clock, logger),
		LoginAttempts: 2,
		Log:           logger,
	}
}

func (f *fixture) generate(t *testing.T, o *Orchestrator, upload bool) *Report {
	t.Helper()
	return o.Generate(context.Background(), GenerateRequest{
		Credential: cred,
		Folder:     "saved",
		Board:      models.BoardFull,
		Upload:     upload,
		OutputDir:  f.outDir,
	})
}

func TestPartialFailureContinues(t *testing.T) {
	f := newFixture(t, "Acme", "FailCo", "Globex", "Initech", "Umbrella")
	f.completer.failFor["FailCo"] = fmt.Errorf("%w: 429", ai.ErrRateLimited)

	rep := f.generate(t, f.orchestrator(t, generation.Options{}), false)

	require.NoError(t, rep.Err)
	assert.Equal(t, Completed, rep.Outcome)
	assert.Equal(t, 4, rep.Summary.GeneratedCount)
	assert.Equal(t, 1, rep.Summary.FailedCount)
	assert.Equal(t, 5, rep.Summary.JobsDiscovered)
	assert.Equal(t, 1, rep.Summary.PagesVisited)
	require.Len(t, rep.Summary.Failures, 1)
	assert.Equal(t, "generation", rep.Summary.Failures[0].Stage)
	assert.Equal(t, "FailCo - Developer", rep.Summary.Failures[0].Subject)
	assert.Equal(t, models.DocFailed, rep.Documents[1].Status)
	assert.Equal(t, 4+3, f.completer.calls, "the failing job used all three attempts")
}

func TestSecondRunSkipsExistingDocuments(t *testing.T) {
	f := newFixture(t, "Acme", "Globex")
	first := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	require.NoError(t, first.Err)

	second := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	require.NoError(t, second.Err)
	assert.Equal(t, 0, second.Summary.GeneratedCount)
	assert.Equal(t, 2, second.Summary.SkippedCount)
	assert.Equal(t, 2, f.completer.calls)
	assert.Equal(t, 2, f.fake.DetailCalls["1"]+f.fake.DetailCalls["2"], "detail is cached across runs")
}

func TestDryRunWritesNothing(t *testing.T) {
	f := newFixture(t, "Acme", "Globex")
	o := f.orchestrator(t, generation.Options{DryRun: true})

	rep := o.Generate(context.Background(), GenerateRequest{
		Credential: cred, Folder: "saved", Board: models.BoardFull, DryRun: true, Upload: true, OutputDir: f.outDir,
	})
	require.NoError(t, rep.Err)
	assert.Equal(t, 2, rep.Summary.PlannedCount)
	assert.Zero(t, f.completer.calls)
	assert.Zero(t, f.fake.UploadCalls)

	entries, err := os.ReadDir(f.outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	claims, err := f.kv.List(context.Background(), "document_names")
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestBadCredentialsAbortWithoutRetry(t *testing.T) {
	f := newFixture(t, "Acme")
	f.fake.LoginErr = portal.ErrBadCredentials

	rep := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	assert.Equal(t, Aborted, rep.Outcome)
	assert.ErrorIs(t, rep.Err, ErrAborted)
	assert.ErrorIs(t, rep.Err, session.ErrLoginFailed)
	assert.Equal(t, 1, f.fake.Logins)
	assert.Zero(t, f.fake.PagesListed)
}

func TestSecondFactorTimeoutRetriesBoundedTimes(t *testing.T) {
	f := newFixture(t, "Acme")
	f.fake.Approvals = []portal.Approval{portal.ApprovalPending}

	rep := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	assert.Equal(t, Aborted, rep.Outcome)
	assert.ErrorIs(t, rep.Err, session.ErrSecondFactorTimeout)
	assert.Equal(t, 2, f.fake.Logins)
}

func TestLoginSucceedsOnRetry(t *testing.T) {
	f := newFixture(t, "Acme")
	// 6 pending probes exhaust the 5s window of the first attempt
	f.fake.Approvals = []portal.Approval{
		portal.ApprovalPending, portal.ApprovalPending, portal.ApprovalPending,
		portal.ApprovalPending, portal.ApprovalPending, portal.ApprovalPending,
		portal.ApprovalApproved,
	}

	rep := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	require.NoError(t, rep.Err)
	assert.Equal(t, 2, f.fake.Logins)
	assert.Equal(t, 1, rep.Summary.GeneratedCount)
}

func TestFolderNotFoundAborts(t *testing.T) {
	f := newFixture(t, "Acme")
	o := f.orchestrator(t, generation.Options{})

	rep := o.Generate(context.Background(), GenerateRequest{Credential: cred, Folder: "nope", Board: models.BoardFull, OutputDir: f.outDir})
	assert.Equal(t, Aborted, rep.Outcome)
	assert.ErrorIs(t, rep.Err, discovery.ErrFolderNotFound)
}

func TestEmptyFolderCompletes(t *testing.T) {
	f := newFixture(t)
	rep := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	require.NoError(t, rep.Err)
	assert.Equal(t, Completed, rep.Outcome)
	assert.Zero(t, rep.Summary.JobsDiscovered)
}

func TestInvalidKeyAborts(t *testing.T) {
	f := newFixture(t, "Acme", "Globex", "Initech")
	f.completer.failFor["Acme"] = fmt.Errorf("%w: 401", ai.ErrInvalidKey)

	rep := f.generate(t, f.orchestrator(t, generation.Options{}), false)
	assert.Equal(t, Aborted, rep.Outcome)
	assert.ErrorIs(t, rep.Err, ai.ErrInvalidKey)
	assert.Len(t, rep.Documents, 1)
	assert.Equal(t, 1, rep.Summary.FailedCount)
}

func TestCancellationBetweenJobs(t *testing.T) {
	f := newFixture(t, "Acme", "Globex", "Initech")
	o := f.orchestrator(t, generation.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Hooks.OnJob = func(n, total int, doc models.GeneratedDocument) {
		if n == 1 {
			cancel()
		}
	}

	rep := o.Generate(ctx, GenerateRequest{Credential: cred, Folder: "saved", Board: models.BoardFull, OutputDir: f.outDir})
	assert.Equal(t, Aborted, rep.Outcome)
	assert.ErrorIs(t, rep.Err, context.Canceled)
	assert.Len(t, rep.Documents, 1)
	assert.Equal(t, 1, rep.Summary.GeneratedCount)
}

func TestGenerateThenUpload(t *testing.T) {
	f := newFixture(t, "Acme", "Globex")
	var uploaded []string
	o := f.orchestrator(t, generation.Options{})
	o.Hooks.OnUpload = func(doc delivery.Document, err error) {
		uploaded = append(uploaded, doc.Name())
	}

	rep := f.generate(t, o, true)
	require.NoError(t, rep.Err)
	assert.Equal(t, 2, rep.Summary.UploadedCount)
	assert.ElementsMatch(t, []string{"Acme_Developer.pdf", "Globex_Developer.pdf"}, uploaded)
	assert.Equal(t, 1, f.fake.Logins, "upload reuses the generate session")

	again := f.orchestrator(t, generation.Options{}).Upload(context.Background(), UploadRequest{Credential: cred, OutputDir: f.outDir})
	require.NoError(t, again.Err)
	assert.Zero(t, again.Summary.UploadedCount)
	assert.Equal(t, 2, again.Summary.AlreadyUploaded)
	assert.Equal(t, 1, f.fake.Logins, "nothing to upload means no login")
}

func TestGenerateForceUploadResendsUnchanged(t *testing.T) {
	f := newFixture(t, "Acme", "Globex")
	first := f.generate(t, f.orchestrator(t, generation.Options{}), true)
	require.NoError(t, first.Err)
	require.Equal(t, 2, f.fake.UploadCalls)

	rep := f.orchestrator(t, generation.Options{}).Generate(context.Background(), GenerateRequest{
		Credential: cred, Folder: "saved", Board: models.BoardFull, Upload: true, ForceUpload: true, OutputDir: f.outDir,
	})
	require.NoError(t, rep.Err)
	assert.Equal(t, 2, rep.Summary.SkippedCount)
	assert.Equal(t, 2, rep.Summary.UploadedCount)
	assert.Zero(t, rep.Summary.AlreadyUploaded)
	assert.Equal(t, 4, f.fake.UploadCalls)
}

func TestUploadFailureIsReportedNotFatal(t *testing.T) {
	f := newFixture(t)
	bad := f.outDir + "/Bad.pdf"
	require.NoError(t, os.WriteFile(f.outDir+"/Good.pdf", []byte("g"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("b"), 0o644))
	f.fake.UploadErrs[bad] = fmt.Errorf("500")

	rep := f.orchestrator(t, generation.Options{}).Upload(context.Background(), UploadRequest{Credential: cred, OutputDir: f.outDir})
	require.NoError(t, rep.Err)
	assert.Equal(t, Completed, rep.Outcome)
	assert.Equal(t, 1, rep.Summary.UploadedCount)
	assert.Equal(t, 1, rep.Summary.FailedCount)
	assert.Equal(t, "upload", rep.Summary.Failures[0].Stage)
}

func TestUploadAbortsWhenLoginFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.outDir+"/A.pdf", []byte("a"), 0o644))
	f.fake.Approvals = []portal.Approval{portal.ApprovalRejected}

	rep := f.orchestrator(t, generation.Options{}).Upload(context.Background(), UploadRequest{Credential: cred, OutputDir: f.outDir})
	assert.Equal(t, Aborted, rep.Outcome)
	assert.ErrorIs(t, rep.Err, session.ErrSecondFactorRejected)
	assert.Equal(t, 1, f.fake.Logins)
	assert.Zero(t, f.fake.UploadCalls)
}
