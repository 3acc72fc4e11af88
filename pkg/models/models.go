package models

import (
	"fmt"
	"strings"
	"time"
)

// Credential is the portal login supplied once per run. Password is never logged.
type Credential struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

// String keeps the secret out of any formatted output
func (c Credential) String() string {
	return fmt.Sprintf("Credential{%s, ****}", c.Username)
}

// JobBoard selects which portal listing a folder lives on
type JobBoard string

const (
	BoardFull   JobBoard = "full"   // Full-Cycle Service
	BoardDirect JobBoard = "direct" // Employer-Student Direct
)

// ParseJobBoard accepts "full" or "direct" in any case
func ParseJobBoard(s string) (JobBoard, error) {
	switch JobBoard(strings.ToLower(strings.TrimSpace(s))) {
	case BoardFull:
		return BoardFull, nil
	case BoardDirect:
		return BoardDirect, nil
	default:
		return "", fmt.Errorf("invalid job board %q: must be full or direct", s)
	}
}

// DisplayName is the label the portal uses for the board
func (b JobBoard) DisplayName() string {
	if b == BoardDirect {
		return "Employer-Student Direct"
	}
	return "Full-Cycle Service"
}

// JobDetail holds the structured sections of a posting
type JobDetail struct {
	Summary             string `json:"summary,omitempty"`
	Responsibilities    string `json:"responsibilities,omitempty"`
	Skills              string `json:"skills,omitempty"`
	AdditionalInfo      string `json:"additional_info,omitempty"`
	LocationArrangement string `json:"employment_location_arrangement,omitempty"`
	WorkTermDuration    string `json:"work_term_duration,omitempty"`
	Compensation        string `json:"compensation_info,omitempty"`
}

// Description assembles the prompt-facing description from the key sections
func (d JobDetail) Description() string {
	var parts []string
	add := func(label, body string) {
		body = strings.TrimSpace(body)
		if body == "" || body == "N/A" {
			return
		}
		parts = append(parts, label+":\n"+body)
	}
	add("Job Summary", d.Summary)
	add("Responsibilities", d.Responsibilities)
	add("Required Skills", d.Skills)
	add("Additional Info", d.AdditionalInfo)
	return strings.Join(parts, "\n\n")
}

// JobRecord is a cached job posting keyed by Identity
type JobRecord struct {
	Identity       string    `json:"identity"`
	PortalID       string    `json:"portal_id,omitempty"`
	Company        string    `json:"company"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	RawDescription string    `json:"raw_description"`
	Detail         JobDetail `json:"detail"`
	FolderName     string    `json:"folder_name"`
	JobBoard       JobBoard  `json:"job_board"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// DocumentStatus is the outcome of a generation decision
type DocumentStatus string

const (
	DocGenerated     DocumentStatus = "generated"
	DocSkippedExists DocumentStatus = "skipped_exists"
	DocFailed        DocumentStatus = "failed"
	DocPlanned       DocumentStatus = "planned" // dry-run: would generate
)

// GeneratedDocument is the per-job result of the generation ledger
type GeneratedDocument struct {
	JobIdentity string         `json:"job_identity"`
	Company     string         `json:"company"`
	Title       string         `json:"title"`
	OutputPath  string         `json:"output_path"`
	GeneratedAt time.Time      `json:"generated_at"`
	WordCount   int            `json:"word_count"`
	Attempts    int            `json:"attempts"`
	Status      DocumentStatus `json:"status"`
	Err         error          `json:"-"`
}

// UploadStatus is the ledger state for a document
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadUploaded UploadStatus = "uploaded"
	UploadFailed   UploadStatus = "failed"
)

// UploadRecord is one DeliveryTracker ledger entry. ContentHash is the hash of
// the last successful upload and is left untouched by failed attempts.
type UploadRecord struct {
	DocumentPath  string       `json:"document_path"`
	ContentHash   string       `json:"content_hash,omitempty"`
	UploadedAt    time.Time    `json:"uploaded_at,omitempty"`
	Status        UploadStatus `json:"status"`
	AttemptedHash string       `json:"attempted_hash,omitempty"`
	AttemptedAt   time.Time    `json:"attempted_at,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
}

// Failure is one per-job or per-document problem reported in a RunSummary
type Failure struct {
	Stage   string `json:"stage"` // discovery, generation, upload
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

// RunSummary is produced once per invocation and never persisted
type RunSummary struct {
	PagesVisited    int       `json:"pages_visited"`
	JobsDiscovered  int       `json:"jobs_discovered"`
	GeneratedCount  int       `json:"generated_count"`
	SkippedCount    int       `json:"skipped_count"`
	FailedCount     int       `json:"failed_count"`
	UploadedCount   int       `json:"uploaded_count"`
	AlreadyUploaded int       `json:"already_uploaded"`
	PlannedCount    int       `json:"planned_count"`
	Failures        []Failure `json:"failures,omitempty"`
}

// AddFailure records a failure and bumps FailedCount
func (s *RunSummary) AddFailure(stage, subject string, err error) {
	s.FailedCount++
	s.Failures = append(s.Failures, Failure{Stage: stage, Subject: subject, Reason: err.Error()})
}
