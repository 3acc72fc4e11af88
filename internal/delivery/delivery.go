// Package delivery keeps the upload ledger: which generated documents have
// been uploaded, and with what content.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/khrees2412/waterworks/internal/clock"
	"github.com/khrees2412/waterworks/internal/database"
	"github.com/khrees2412/waterworks/internal/portal"
	"github.com/khrees2412/waterworks/pkg/models"
	"github.com/sirupsen/logrus"
)

var ErrUploadFailed = errors.New("upload failed")

const (
	uploadsBucket = "uploads"
	stage         = "upload"
)

// Document is a file on disk with its current content hash
type Document struct {
	Path string
	Hash string
}

// Name is the ledger key
func (d Document) Name() string { return filepath.Base(d.Path) }

// Plan partitions documents by whether the ledger already has their content
type Plan struct {
	ToUpload        []Document
	AlreadyUploaded []Document
	// Unreadable documents could not be hashed and are reported, not uploaded
	Unreadable []models.Failure
}

// Result is the outcome of Deliver
type Result struct {
	Uploaded int
	Failures []models.Failure
}

// Tracker is the DeliveryTracker
type Tracker struct {
	kv    database.Store
	clock clock.Clock
	log   logrus.FieldLogger
}

func New(kv database.Store, c clock.Clock, log logrus.FieldLogger) *Tracker {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{kv: kv, clock: c, log: log.WithField("component", "delivery")}
}

// HashFile returns the hex sha256 of a file's content
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PDFs lists the non-empty .pdf files directly under dir, sorted by name. A
// missing dir has no documents.
func PDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Record returns the ledger entry for a document name
func (t *Tracker) Record(ctx context.Context, name string) (*models.UploadRecord, bool, error) {
	raw, err := t.kv.Get(ctx, uploadsBucket, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read upload record %s: %w", name, err)
	}
	var rec models.UploadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("%w: upload record %s: %v", database.ErrCorrupt, name, err)
	}
	return &rec, true, nil
}

// Records returns every ledger entry in insertion order
func (t *Tracker) Records(ctx context.Context) ([]models.UploadRecord, error) {
	entries, err := t.kv.List(ctx, uploadsBucket)
	if err != nil {
		return nil, fmt.Errorf("list upload records: %w", err)
	}
	out := make([]models.UploadRecord, 0, len(entries))
	for _, e := range entries {
		var rec models.UploadRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("%w: upload record %s: %v", database.ErrCorrupt, e.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// upToDate reports whether the last successful upload in rec carried exactly
// this content. A later failed attempt does not change that.
func upToDate(rec *models.UploadRecord, hash string) bool {
	return rec != nil && !rec.UploadedAt.IsZero() && rec.ContentHash == hash
}

// Plan hashes each path and compares it with the ledger. With force every
// readable document is planned for upload.
func (t *Tracker) Plan(ctx context.Context, paths []string, force bool) (*Plan, error) {
	plan := &Plan{}
	for _, path := range paths {
		hash, err := HashFile(path)
		if err != nil {
			plan.Unreadable = append(plan.Unreadable, models.Failure{Stage: stage, Subject: filepath.Base(path), Reason: err.Error()})
			continue
		}
		doc := Document{Path: path, Hash: hash}

		rec, _, err := t.Record(ctx, doc.Name())
		if err != nil {
			return nil, err
		}
		if !force && upToDate(rec, hash) {
			plan.AlreadyUploaded = append(plan.AlreadyUploaded, doc)
			continue
		}
		plan.ToUpload = append(plan.ToUpload, doc)
	}
	return plan, nil
}

// Commit records a confirmed upload of doc
func (t *Tracker) Commit(ctx context.Context, doc Document) error {
	now := t.clock.Now().UTC()
	return t.put(ctx, models.UploadRecord{
		DocumentPath:  doc.Path,
		ContentHash:   doc.Hash,
		UploadedAt:    now,
		Status:        models.UploadUploaded,
		AttemptedHash: doc.Hash,
		AttemptedAt:   now,
	})
}

// MarkFailed notes a failed attempt. The hash and time of the last successful
// upload are kept, so the entry never claims content the portal does not have.
func (t *Tracker) MarkFailed(ctx context.Context, doc Document, cause error) error {
	rec, found, err := t.Record(ctx, doc.Name())
	if err != nil {
		return err
	}
	if !found {
		rec = &models.UploadRecord{}
	}
	rec.DocumentPath = doc.Path
	rec.Status = models.UploadFailed
	rec.AttemptedHash = doc.Hash
	rec.AttemptedAt = t.clock.Now().UTC()
	rec.LastError = cause.Error()
	return t.put(ctx, *rec)
}

func (t *Tracker) put(ctx context.Context, rec models.UploadRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	name := filepath.Base(rec.DocumentPath)
	if err := t.kv.Put(ctx, uploadsBucket, name, raw); err != nil {
		return fmt.Errorf("write upload record %s: %w", name, err)
	}
	return nil
}

// Deliver uploads every planned document in order. A failed upload is
// recorded and the next document is tried; cancellation is honored between
// documents. The error is non-nil only for ledger failures or cancellation.
func (t *Tracker) Deliver(ctx context.Context, client portal.Client, docs []Document, onDone func(doc Document, err error)) (*Result, error) {
	res := &Result{}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := t.log.WithFields(logrus.Fields{"document": doc.Name(), "n": i + 1, "of": len(docs)})

		if err := client.UploadDocument(ctx, doc.Path); err != nil {
			cause := fmt.Errorf("%w: %w", ErrUploadFailed, err)
			log.WithError(err).Warn("upload failed")
			res.Failures = append(res.Failures, models.Failure{Stage: stage, Subject: doc.Name(), Reason: cause.Error()})
			if err := t.MarkFailed(ctx, doc, cause); err != nil {
				return res, err
			}
			if onDone != nil {
				onDone(doc, cause)
			}
			continue
		}

		if err := t.Commit(ctx, doc); err != nil {
			return res, err
		}
		res.Uploaded++
		log.Info("uploaded")
		if onDone != nil {
			onDone(doc, nil)
		}
	}
	return res, nil
}
