package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrJobNotProcessing is returned when finishing a job that already reached
// a terminal status.
var ErrJobNotProcessing = errors.New("job is not processing")

// Job statuses.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Upload is one submitted file or pasted text blob.
type Upload struct {
	ID          string
	CaseID      string // empty when not tied to a case
	FileName    string
	StoragePath string
	MimeClass   string
	SizeBytes   int64
	PageCount   int
	CreatedAt   time.Time
}

// JobCounts holds the per-category item counts recorded on a job.
type JobCounts struct {
	Events               int `json:"eventsExtracted"`
	Entities             int `json:"entitiesExtracted"`
	Discrepancies        int `json:"discrepanciesExtracted"`
	Claims               int `json:"claimsExtracted"`
	ComplianceViolations int `json:"complianceViolationsExtracted"`
	FinancialHarm        int `json:"financialHarmExtracted"`
}

// Job is one extraction attempt in the ledger.
type Job struct {
	ID           string
	UploadID     string // empty for pasted text
	CaseID       string
	Status       string
	Counts       JobCounts
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	UploadID string
	CaseID   string
	Status   string
	Limit    int
	Offset   int
}

// Scope is the shared optional context every result row carries.
type Scope struct {
	CaseID   string
	UploadID string
}

type EventRow struct {
	ID               string
	Scope            Scope
	Date             string
	Category         string
	Description      string
	Individuals      []string
	LegalAction      string
	Outcome          string
	DiscrepancyNote  string
	SourceReference  string
	Confidence       float64
	Approved         bool
	ExtractionMethod string
	CreatedAt        time.Time
}

type EntityRow struct {
	ID          string
	Scope       Scope
	Name        string
	Type        string
	Role        string
	Description string
	CreatedAt   time.Time
}

type DiscrepancyRow struct {
	ID             string
	Scope          Scope
	Type           string
	Title          string
	Description    string
	Severity       string
	LegalReference string
	RelatedDates   []string
}

type ClaimRow struct {
	ID             string
	Scope          Scope
	AllegationText string
	ClaimType      string
	LegalFramework string
	LegalSection   string
	Accuser        string
	Accused        string
	DateAlleged    string // empty stores NULL
	SourceDocument string
	Status         string
}

type ViolationRow struct {
	ID                  string
	Scope               Scope
	ViolationType       string
	Title               string
	Description         string
	Severity            string
	LegalConsequence    string
	RemediationPossible bool
	Resolved            bool
}

// HarmIncidentRow is a financial or regulatory harm event. CorrelationID is
// assigned before insertion and links the incident to its loss.
type HarmIncidentRow struct {
	ID              string
	Scope           Scope
	CorrelationID   string
	IncidentType    string
	Title           string
	Description     string
	Date            string
	InstitutionName string
	Status          string
}

type FinancialLossRow struct {
	ID           string
	IncidentID   string
	CaseID       string
	Amount       float64
	Currency     string
	LossCategory string
	Documented   bool
}
