package delivery

import (
	"context"
	"path/filepath"

	"github.com/khrees2412/waterworks/pkg/models"
)

// FileState is how a document on disk relates to the ledger
type FileState string

const (
	StateUploaded FileState = "uploaded"
	StateOutdated FileState = "outdated"
	StatePending  FileState = "pending"
	StateFailed   FileState = "failed"
)

// FileStatus is one line of List
type FileStatus struct {
	Name   string
	Path   string
	State  FileState
	Record *models.UploadRecord
}

// Stats summarizes the output directory against the ledger
type Stats struct {
	Total    int
	Uploaded int
	Outdated int
	Pending  int
	Failed   int
	// Tracked counts ledger entries, including ones whose file is gone
	Tracked int
}

// List reports every PDF in dir and its state. It only reads.
func (t *Tracker) List(ctx context.Context, dir string) ([]FileStatus, error) {
	paths, err := PDFs(dir)
	if err != nil {
		return nil, err
	}

	out := make([]FileStatus, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		rec, _, err := t.Record(ctx, name)
		if err != nil {
			return nil, err
		}
		st := FileStatus{Name: name, Path: path, Record: rec, State: StatePending}

		switch {
		case rec == nil:
		case rec.Status == models.UploadFailed:
			st.State = StateFailed
		case rec.Status == models.UploadUploaded:
			hash, err := HashFile(path)
			if err != nil {
				return nil, err
			}
			if upToDate(rec, hash) {
				st.State = StateUploaded
			} else {
				st.State = StateOutdated
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Stats counts List by state. It only reads.
func (t *Tracker) Stats(ctx context.Context, dir string) (*Stats, error) {
	files, err := t.List(ctx, dir)
	if err != nil {
		return nil, err
	}
	records, err := t.Records(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{Total: len(files), Tracked: len(records)}
	for _, f := range files {
		switch f.State {
		case StateUploaded:
			s.Uploaded++
		case StateOutdated:
			s.Outdated++
		case StateFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s, nil
}

// Reset empties the ledger. Callers confirm with the user first.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.kv.Clear(ctx, uploadsBucket); err != nil {
		return err
	}
	t.log.Warn("upload ledger reset")
	return nil
}
