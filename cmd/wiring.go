package cmd

import (
	"context"
	"fmt"

	"github.com/khrees2412/waterworks/internal/ai"
	"github.com/khrees2412/waterworks/internal/app"
	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/internal/delivery"
	"github.com/khrees2412/waterworks/internal/discovery"
	"github.com/khrees2412/waterworks/internal/generation"
	"github.com/khrees2412/waterworks/internal/jobstore"
	"github.com/khrees2412/waterworks/internal/pipeline"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/internal/render"
	"github.com/khrees2412/waterworks/internal/session"
)

// run holds what one command built and must release
type run struct {
	orch    *pipeline.Orchestrator
	closers []func() error
}

func (r *run) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// newBrowserSession builds a session over a browser that launches on first
// use. The browser's lifetime is detached from ctx so an interrupt stops the
// run at a job boundary instead of killing the page under an in-flight call.
func newBrowserSession(ctx context.Context, a *app.App, r *run) *session.Session {
	cfg := a.Config
	browser := portal.NewLazy(func(context.Context) (portal.Client, error) {
		b, err := portal.NewBrowser(context.WithoutCancel(ctx), portal.BrowserOptions{
			BaseURL:     cfg.Portal.BaseURL,
			Headless:    cfg.Browser.Headless,
			CallTimeout: cfg.Session.CallTimeout,
			Logger:      a.Logger(),
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	})
	r.closers = append(r.closers, browser.Close)

	return session.New(browser, clock.Real{}, session.Options{
		ApprovalTimeout: cfg.Session.ApprovalTimeout,
		PollInterval:    cfg.Session.PollInterval,
		OnWait:          countdown,
	}, a.Logger())
}

// buildGenerateRun wires every component a generate run touches. In dry-run
// mode name claims go to an in-memory overlay so nothing is persisted.
func buildGenerateRun(ctx context.Context, a *app.App, dryRun, force bool) (*run, error) {
	cfg := a.Config
	log := a.Logger()

	db, err := a.DB()
	if err != nil {
		return nil, err
	}

	r := &run{}
	completer, err := ai.New(ctx, ai.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.ResolveAPIKey(),
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, completer.Close)

	prompts, err := ai.NewPromptBuilder(cfg.CoverLetter.Prompt, cfg.Profile.ResumeText, cfg.Profile.AdditionalInfo)
	if err != nil {
		r.Close()
		return nil, err
	}
	tmpl, err := render.ParseTemplate(cfg.Profile.CoverLetterTemplate)
	if err != nil {
		r.Close()
		return nil, err
	}
	renderer := render.NewPDF(tmpl, cfg.Session.CallTimeout, log)
	r.closers = append(r.closers, renderer.Close)

	var claims database.Store = db
	if dryRun {
		claims = database.NewOverlay(db)
	}
	ledger := generation.New(
		generation.NewNamer(cfg.Paths.CoverLettersDir, generation.DefaultMaxNameLength, claims),
		completer, prompts, renderer, clock.Real{},
		generation.Options{
			Force:                force,
			DryRun:               dryRun,
			MaxAttempts:          cfg.Generation.MaxAttempts,
			RetryDelay:           cfg.Generation.RetryDelay,
			MinDescriptionLength: cfg.Generation.MinDescriptionLength,
			CallSpacing:          cfg.Generation.CallSpacing,
			Signature:            cfg.Profile.Signature,
			Contact: render.Contact{
				Name:     cfg.Profile.Name,
				Email:    cfg.Profile.Email,
				Phone:    cfg.Profile.Phone,
				LinkedIn: cfg.Profile.LinkedIn,
				GitHub:   cfg.Profile.GitHub,
				Website:  cfg.Profile.Website,
			},
		}, log)

	disc := discovery.New(jobstore.New(db, clock.Real{}), discovery.Options{
		MaxPages:       cfg.Discovery.MaxPages,
		DetailAttempts: cfg.Discovery.DetailAttempts,
		OnPage: func(page, newJobs int) {
			fmt.Printf("%s page %d: %d new jobs\n", mutedStyle.Render("Discovery"), page, newJobs)
		},
	}, log)

	r.orch = &pipeline.Orchestrator{
		Session:       newBrowserSession(ctx, a, r),
		Discovery:     disc,
		Ledger:        ledger,
		Tracker:       delivery.New(db, clock.Real{}, log),
		LoginAttempts: cfg.Session.EffectiveLoginAttempts(),
		Hooks:         progressHooks(),
		Log:           log,
	}
	return r, nil
}

// buildUploadRun wires an upload run. The browser starts only if something
// needs uploading.
func buildUploadRun(ctx context.Context, a *app.App) (*run, error) {
	db, err := a.DB()
	if err != nil {
		return nil, err
	}
	r := &run{}
	r.orch = &pipeline.Orchestrator{
		Session:       newBrowserSession(ctx, a, r),
		Tracker:       delivery.New(db, clock.Real{}, a.Logger()),
		LoginAttempts: a.Config.Session.EffectiveLoginAttempts(),
		Hooks:         progressHooks(),
		Log:           a.Logger(),
	}
	return r, nil
}
