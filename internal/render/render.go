// Package render turns a letter body into a PDF through headless Chrome.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

var ErrConversionFailed = errors.New("pdf conversion failed")

// Contact is the sender block printed above the letter
type Contact struct {
	Name     string
	Email    string
	Phone    string
	LinkedIn string
	GitHub   string
	Website  string
}

// Letter is everything a template can reference
type Letter struct {
	Company   string
	Title     string
	Body      string
	Signature string
	Date      time.Time
	Contact   Contact
}

// Paragraphs splits the body on blank lines
func (l Letter) Paragraphs() []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(l.Body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SignatureLines splits the signature so each line prints on its own
func (l Letter) SignatureLines() []string {
	if strings.TrimSpace(l.Signature) == "" {
		return nil
	}
	return strings.Split(strings.TrimSpace(l.Signature), "\n")
}

// Renderer materializes a letter at outPath and returns the written path
type Renderer interface {
	Render(ctx context.Context, letter Letter, outPath string) (string, error)
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Garamond, "EB Garamond", Georgia, serif; font-size: 11pt; line-height: 1.45; color: #111; }
  .contact { margin-bottom: 18pt; }
  .contact .name { font-size: 15pt; font-weight: bold; }
  .contact .line { font-size: 9.5pt; color: #444; }
  p { margin: 0 0 10pt 0; text-align: justify; }
  .signature { margin-top: 16pt; }
</style>
</head>
<body>
{{- with .Contact}}{{if .Name}}
<div class="contact">
  <div class="name">{{.Name}}</div>
  <div class="line">{{joinNonEmpty " | " .Email .Phone .LinkedIn .GitHub .Website}}</div>
</div>
{{- end}}{{end}}
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
{{- with .SignatureLines}}
<div class="signature">{{range $i, $l := .}}{{if $i}}<br>{{end}}{{$l}}{{end}}</div>
{{- end}}
</body>
</html>
`

var funcs = template.FuncMap{
	"joinNonEmpty": func(sep string, parts ...string) string {
		var keep []string
		for _, p := range parts {
			if strings.TrimSpace(p) != "" {
				keep = append(keep, p)
			}
		}
		return strings.Join(keep, sep)
	},
}

// ParseTemplate loads an HTML letter template, or the built-in one if path is empty
func ParseTemplate(path string) (*template.Template, error) {
	text := defaultTemplate
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read letter template: %w", err)
		}
		text = string(raw)
	}
	t, err := template.New("letter").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse letter template: %w", err)
	}
	return t, nil
}

// BuildHTML renders letter through tmpl
func BuildHTML(tmpl *template.Template, letter Letter) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, letter); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	return buf.Bytes(), nil
}

// PDF prints letters with headless Chrome. The browser is started on the
// first Render and reused until Close.
type PDF struct {
	tmpl    *template.Template
	timeout time.Duration
	log     logrus.FieldLogger

	mu      sync.Mutex
	browser context.Context
	cancel  context.CancelFunc
}

var _ Renderer = (*PDF)(nil)

func NewPDF(tmpl *template.Template, timeout time.Duration, log logrus.FieldLogger) *PDF {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PDF{tmpl: tmpl, timeout: timeout, log: log.WithField("component", "render")}
}

func (r *PDF) start() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("%w: start browser: %v", ErrConversionFailed, err)
	}

	r.browser = browserCtx
	r.cancel = func() {
		cancelBrowser()
		cancelAlloc()
	}
	return r.browser, nil
}

// Render writes the PDF to a temporary file beside outPath and renames it
// into place, so a failed conversion never leaves a file at outPath.
func (r *PDF) Render(ctx context.Context, letter Letter, outPath string) (string, error) {
	html, err := BuildHTML(r.tmpl, letter)
	if err != nil {
		return "", err
	}

	browser, err := r.start()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11).
				WithMarginTop(0.9).
				WithMarginBottom(0.9).
				WithMarginLeft(1).
				WithMarginRight(1).
				Do(ctx)
			pdf = buf
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if len(pdf) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrConversionFailed)
	}

	if err := writeAtomic(outPath, pdf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	r.log.WithFields(logrus.Fields{"path": outPath, "bytes": len(pdf)}).Debug("rendered pdf")
	return outPath, nil
}

// Close stops the browser if one was started
func (r *PDF) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
		r.browser = nil
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
