package generation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/khrees2412/waterworks/internal/database"
)

const (
	claimsBucket = "document_names"
	// DefaultMaxNameLength bounds the file stem, leaving room for a suffix and ".pdf"
	DefaultMaxNameLength = 120
	pdfExt               = ".pdf"
)

var (
	separatorChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "|", "_")
	nonWord        = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	spaces         = regexp.MustCompile(`\s+`)
	underscores    = regexp.MustCompile(`_+`)
)

// SanitizeFilename keeps letters, digits, '-' and '_', turning path separators
// and whitespace into single underscores.
func SanitizeFilename(s string) string {
	s = separatorChars.Replace(s)
	s = nonWord.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(strings.TrimSpace(s), "_")
	s = underscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// DocumentName is the deterministic stem for a job: {company}_{title},
// sanitized and bounded to maxLen bytes.
func DocumentName(company, title string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxNameLength
	}
	name := strings.Trim(SanitizeFilename(company)+"_"+SanitizeFilename(title), "_")
	if name == "" {
		name = "untitled"
	}
	if len(name) > maxLen {
		name = name[:maxLen]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
		name = strings.TrimRight(name, "_-")
	}
	return name
}

// Namer hands out output paths. Each stem is claimed by the first job identity
// that resolves to it; a different job that sanitizes to the same stem gets
// "_2", "_3" and so on. Claims persist so a job keeps its path across runs.
type Namer struct {
	dir    string
	maxLen int
	claims database.Store
}

func NewNamer(dir string, maxLen int, claims database.Store) *Namer {
	return &Namer{dir: dir, maxLen: maxLen, claims: claims}
}

// Resolve returns identity's output path, claiming a stem if it has none yet
func (n *Namer) Resolve(ctx context.Context, identity, company, title string) (string, error) {
	base := DocumentName(company, title, n.maxLen)
	for i := 1; ; i++ {
		stem := base
		if i > 1 {
			stem = fmt.Sprintf("%s_%d", base, i)
		}

		owner, err := n.claims.Get(ctx, claimsBucket, stem)
		switch {
		case errors.Is(err, database.ErrNotFound):
			if err := n.claims.Put(ctx, claimsBucket, stem, []byte(identity)); err != nil {
				return "", fmt.Errorf("claim %s: %w", stem, err)
			}
			return n.path(stem), nil
		case err != nil:
			return "", fmt.Errorf("read name claim %s: %w", stem, err)
		case string(owner) == identity:
			return n.path(stem), nil
		}
	}
}

func (n *Namer) path(stem string) string {
	return filepath.Join(n.dir, stem+pdfExt)
}
