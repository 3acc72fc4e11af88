package portal

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL  = "https://waterlooworks.uwaterloo.ca"
	pageSettleDelay = 500 * time.Millisecond
	uploadSettle    = 1500 * time.Millisecond
	coverLetterType = "66"
)

var selectors = map[string]string{
	"username":    "#userNameInput",
	"next":        "#nextButton",
	"password":    "#passwordInput",
	"submit":      "#submitButton",
	"login_error": "#errorText",
	"stat_card":   ".simple--stat-card",
	"job_rows":    "table.table tbody tr",
	"job_panel":   ".is--long-form-reading",
	"question":    ".js--question--container",
	"home_tab":    "#outerTemplateTabs_overview",
	"upload_menu": "[data-pt-classes='tip--default']",
	"upload_open": "[class='btn__default--text btn--info  display--flex align--middle']",
	"doc_name":    "#docName",
	"doc_type":    "#docType",
	"doc_file":    "#fileUpload_docUpload",
	"doc_submit":  "#submitFileUploadFormBtn",
	"error_alert": ".alert-danger, .alert--danger",
}

// BrowserOptions configures the chromedp client
type BrowserOptions struct {
	BaseURL     string
	Headless    bool
	CallTimeout time.Duration
	Logger      logrus.FieldLogger
}

// Browser is the chromedp-backed Client. It owns one browser process and tab.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   BrowserOptions
	log    logrus.FieldLogger
	board  models.JobBoard
}

var _ Client = (*Browser)(nil)

// NewBrowser launches Chrome and returns a client bound to it
func NewBrowser(parent context.Context, opts BrowserOptions) (*Browser, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1400, 1000),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	log := opts.Logger.WithField("component", "portal")
	ctx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, v ...interface{}) {
		msg := fmt.Sprintf(format, v...)
		// chromedp is noisy about CDP events it does not model
		if strings.Contains(msg, "could not unmarshal event") {
			return
		}
		log.Debug(msg)
	}))

	cancel := func() {
		cancelCtx()
		cancelAlloc()
	}

	// The first Run starts the browser; it must not carry a timeout or the
	// browser would die with it.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info("browser started")

	return &Browser{ctx: ctx, cancel: cancel, opts: opts, log: log}, nil
}

// Close shuts the browser down
func (b *Browser) Close() error {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
		b.log.Info("browser closed")
	}
	return nil
}

// run executes actions on the tab under a per-call timeout. The caller's ctx
// is honored as well so cancellation reaches in-flight calls.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	callCtx, cancel := context.WithTimeout(b.ctx, b.opts.CallTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(callCtx, actions...)
}

func (b *Browser) SubmitCredentials(ctx context.Context, cred models.Credential) error {
	loginURL := b.opts.BaseURL + "/waterloo.htm?action=login"
	b.log.WithField("username", cred.Username).Info("submitting credentials")

	err := b.run(ctx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(selectors["username"], chromedp.ByQuery),
		chromedp.SendKeys(selectors["username"], cred.Username, chromedp.ByQuery),
		chromedp.Click(selectors["next"], chromedp.ByQuery),
		chromedp.WaitVisible(selectors["password"], chromedp.ByQuery),
		chromedp.SendKeys(selectors["password"], cred.Password, chromedp.ByQuery),
		chromedp.Click(selectors["submit"], chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}

	var loginError string
	if err := b.run(ctx, chromedp.Evaluate(textOf(selectors["login_error"]), &loginError)); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if strings.TrimSpace(loginError) != "" {
		return fmt.Errorf("%w: %s", ErrBadCredentials, strings.TrimSpace(loginError))
	}
	return nil
}

func (b *Browser) CheckApproval(ctx context.Context) (Approval, error) {
	var state string
	err := b.run(ctx, chromedp.Evaluate(`
		(() => {
			const headings = Array.from(document.querySelectorAll('h1'));
			if (headings.some(h => h.textContent.trim() === 'WaterlooWorks')) return 'approved';
			const trust = document.getElementById('trust-browser-button');
			if (trust) { trust.click(); return 'pending'; }
			const body = document.body ? document.body.innerText : '';
			if (/request (was )?denied|login request denied|access denied/i.test(body)) return 'rejected';
			return 'pending';
		})()
	`, &state))
	if err != nil {
		return ApprovalPending, fmt.Errorf("approval probe: %w", err)
	}
	return parseApproval(state), nil
}

func parseApproval(s string) Approval {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved":
		return ApprovalApproved
	case "rejected":
		return ApprovalRejected
	default:
		return ApprovalPending
	}
}

func (b *Browser) NavigateToFolder(ctx context.Context, name string, board models.JobBoard) error {
	b.board = board
	boardURL := fmt.Sprintf("%s/myAccount/co-op/%s/jobs.htm", b.opts.BaseURL, board)
	b.log.WithFields(logrus.Fields{"folder": name, "board": board}).Info("navigating to folder")

	var found bool
	err := b.run(ctx,
		chromedp.Navigate(boardURL),
		chromedp.WaitVisible(selectors["stat_card"], chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(`
			(() => {
				const want = %q.toLowerCase();
				const cards = Array.from(document.querySelectorAll(%q));
				const card = cards.find(c => c.innerText.toLowerCase().includes(want));
				if (!card) return false;
				const link = card.querySelector('a');
				if (!link) return false;
				link.click();
				return true;
			})()
		`, name, selectors["stat_card"]), &found),
		chromedp.Sleep(pageSettleDelay),
	)
	if err != nil {
		return fmt.Errorf("open folder %q: %w", name, err)
	}
	if !found {
		return fmt.Errorf("%w: %q on %s", ErrFolderNotFound, name, board.DisplayName())
	}
	return nil
}

func (b *Browser) ListPage(ctx context.Context) ([]JobSummary, error) {
	var rows []map[string]string
	err := b.run(ctx,
		chromedp.Sleep(pageSettleDelay),
		chromedp.Evaluate(listPageScript(b.board), &rows),
	)
	if err != nil {
		return nil, fmt.Errorf("read listing page: %w", err)
	}

	jobs := make([]JobSummary, 0, len(rows))
	for _, row := range rows {
		id := jobIDFromHref(row["href"])
		if row["title"] == "" {
			continue
		}
		jobs = append(jobs, JobSummary{
			PortalID: id,
			Company:  row["company"],
			Title:    row["title"],
			URL:      CanonicalJobURL(b.opts.BaseURL, b.board, id),
		})
	}
	return jobs, nil
}

// listPageScript extracts title, href and company cells. The direct board puts
// the title link in a <th> with the organization in the third <td>; the full
// board uses the first and second <td>.
func listPageScript(board models.JobBoard) string {
	titleCell, companyCell := "row.querySelectorAll('td')[0]", "row.querySelectorAll('td')[1]"
	if board == models.BoardDirect {
		titleCell, companyCell = "row.querySelector('th')", "row.querySelectorAll('td')[2]"
	}
	return fmt.Sprintf(`
		(() => {
			const out = [];
			document.querySelectorAll(%q).forEach(row => {
				const titleCell = %s;
				const companyCell = %s;
				if (!titleCell || !companyCell) return;
				const link = titleCell.querySelector('a');
				if (!link) return;
				const ell = companyCell.querySelector('.overflow--ellipsis') || companyCell;
				out.push({
					title: link.innerText.trim(),
					href: link.getAttribute('href') || '',
					company: (ell.innerText || '').trim(),
				});
			});
			return out;
		})()
	`, selectors["job_rows"], titleCell, companyCell)
}

func (b *Browser) HasNextPage(ctx context.Context) (bool, error) {
	var hasNext bool
	err := b.run(ctx, chromedp.Evaluate(`
		(() => {
			const items = document.querySelectorAll('.pagination li');
			if (items.length < 2) return false;
			const next = items[items.length - 2];
			if (next.classList.contains('disabled')) return false;
			const link = next.querySelector('a');
			return !!link && link.getAttribute('aria-disabled') !== 'true';
		})()
	`, &hasNext))
	if err != nil {
		return false, fmt.Errorf("read pagination: %w", err)
	}
	return hasNext, nil
}

func (b *Browser) AdvancePage(ctx context.Context) error {
	var clicked bool
	err := b.run(ctx,
		chromedp.Evaluate(`
			(() => {
				const items = document.querySelectorAll('.pagination li');
				if (items.length < 2) return false;
				const link = items[items.length - 2].querySelector('a');
				if (!link) return false;
				link.click();
				return true;
			})()
		`, &clicked),
		chromedp.Sleep(pageSettleDelay),
		chromedp.WaitReady(selectors["job_rows"], chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("advance page: %w", err)
	}
	if !clicked {
		return fmt.Errorf("advance page: next link not found")
	}
	return nil
}

func (b *Browser) FetchDetail(ctx context.Context, job JobSummary) (models.JobDetail, error) {
	var sections []string
	err := b.run(ctx,
		chromedp.Navigate(job.URL),
		chromedp.WaitVisible(selectors["job_panel"], chromedp.ByQuery),
		chromedp.Sleep(pageSettleDelay),
		chromedp.Evaluate(fmt.Sprintf(
			`Array.from(document.querySelectorAll(%q)).map(d => d.innerText.trim())`,
			selectors["question"]), &sections),
	)
	if err != nil {
		return models.JobDetail{}, fmt.Errorf("fetch detail for %s: %w", job.PortalID, err)
	}
	return ParseSections(sections), nil
}

func (b *Browser) UploadDocument(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	docName := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	err = b.run(ctx,
		chromedp.Navigate(b.opts.BaseURL+"/myAccount/dashboard.htm"),
		chromedp.Click(selectors["home_tab"], chromedp.ByQuery),
		chromedp.Sleep(pageSettleDelay),
		chromedp.Click(selectors["upload_menu"], chromedp.ByQuery),
		chromedp.Sleep(pageSettleDelay),
		chromedp.Click(selectors["upload_open"], chromedp.ByQuery),
		chromedp.WaitVisible(selectors["doc_name"], chromedp.ByQuery),
		chromedp.SetValue(selectors["doc_name"], docName, chromedp.ByQuery),
		chromedp.SetValue(selectors["doc_type"], coverLetterType, chromedp.ByQuery),
		chromedp.SetUploadFiles(selectors["doc_file"], []string{abs}, chromedp.ByQuery),
		chromedp.Sleep(uploadSettle),
		chromedp.Click(selectors["doc_submit"], chromedp.ByQuery),
		chromedp.Sleep(uploadSettle),
	)
	if err != nil {
		return fmt.Errorf("upload %s: %w", docName, err)
	}

	var alert string
	if err := b.run(ctx, chromedp.Evaluate(textOf(selectors["error_alert"]), &alert)); err != nil {
		return fmt.Errorf("upload %s: %w", docName, err)
	}
	if strings.TrimSpace(alert) != "" {
		return fmt.Errorf("%w: %s", ErrUploadRejected, strings.TrimSpace(alert))
	}
	b.log.WithField("document", docName).Info("uploaded")
	return nil
}

// textOf returns a script yielding the trimmed text of the first match, or ""
func textOf(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%q); return el ? el.innerText.trim() : ''; })()`, selector)
}

// jobIDFromHref takes the value after the last '=' as the original links do
func jobIDFromHref(href string) string {
	if i := strings.LastIndex(href, "="); i >= 0 {
		return strings.TrimSpace(href[i+1:])
	}
	return ""
}

// CanonicalJobURL is a session-independent posting URL, used both to fetch
// detail and as part of the job identity.
func CanonicalJobURL(base string, board models.JobBoard, portalID string) string {
	if portalID == "" {
		return ""
	}
	q := url.Values{"ck_jobid": {portalID}}
	return fmt.Sprintf("%s/myAccount/co-op/%s/jobs.htm?%s", strings.TrimRight(base, "/"), board, q.Encode())
}

var sectionPrefixes = []struct {
	prefix string
	set    func(d *models.JobDetail, v string)
}{
	{"Job Summary:", func(d *models.JobDetail, v string) { d.Summary = v }},
	{"Job Responsibilities:", func(d *models.JobDetail, v string) { d.Responsibilities = v }},
	{"Required Skills:", func(d *models.JobDetail, v string) { d.Skills = v }},
	{"Additional Application Information:", func(d *models.JobDetail, v string) { d.AdditionalInfo = v }},
	{"Employment Location Arrangement:", func(d *models.JobDetail, v string) { d.LocationArrangement = v }},
	{"Work Term Duration:", func(d *models.JobDetail, v string) { d.WorkTermDuration = v }},
	{"Compensation and Benefits:", func(d *models.JobDetail, v string) { d.Compensation = v }},
}

// ParseSections maps the detail panel's question blocks onto JobDetail fields
func ParseSections(blocks []string) models.JobDetail {
	var d models.JobDetail
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		for _, s := range sectionPrefixes {
			if strings.HasPrefix(block, s.prefix) {
				s.set(&d, strings.TrimSpace(strings.TrimPrefix(block, s.prefix)))
				break
			}
		}
	}
	return d
}
