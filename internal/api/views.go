package api

import (
	"time"

	"github.com/kalambet/casetrail/internal/storage"
)

type uploadView struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId,omitempty"`
	FileName    string    `json:"fileName"`
	StoragePath string    `json:"storagePath"`
	MimeClass   string    `json:"mimeClass"`
	SizeBytes   int64     `json:"sizeBytes"`
	PageCount   int       `json:"pageCount,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newUploadView(u storage.Upload) uploadView {
	return uploadView{
		ID:          u.ID,
		CaseID:      u.CaseID,
		FileName:    u.FileName,
		StoragePath: u.StoragePath,
		MimeClass:   u.MimeClass,
		SizeBytes:   u.SizeBytes,
		PageCount:   u.PageCount,
		CreatedAt:   u.CreatedAt,
	}
}

type jobView struct {
	ID       string `json:"id"`
	UploadID string `json:"uploadId,omitempty"`
	CaseID   string `json:"caseId,omitempty"`
	Status   string `json:"status"`
	storage.JobCounts
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

func newJobView(j storage.Job) jobView {
	return jobView{
		ID:           j.ID,
		UploadID:     j.UploadID,
		CaseID:       j.CaseID,
		Status:       j.Status,
		JobCounts:    j.Counts,
		ErrorMessage: j.ErrorMessage,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

type eventView struct {
	ID               string   `json:"id"`
	UploadID         string   `json:"uploadId,omitempty"`
	Date             string   `json:"date"`
	Category         string   `json:"category"`
	Description      string   `json:"description"`
	Individuals      []string `json:"individuals"`
	LegalAction      string   `json:"legalAction,omitempty"`
	Outcome          string   `json:"outcome,omitempty"`
	DiscrepancyNote  string   `json:"discrepancyNote,omitempty"`
	SourceReference  string   `json:"sourceReference,omitempty"`
	Confidence       float64  `json:"confidence"`
	Approved         bool     `json:"approved"`
	ExtractionMethod string   `json:"extractionMethod"`
}

func newEventView(e storage.EventRow) eventView {
	individuals := e.Individuals
	if individuals == nil {
		individuals = []string{}
	}
	return eventView{
		ID:               e.ID,
		UploadID:         e.Scope.UploadID,
		Date:             e.Date,
		Category:         e.Category,
		Description:      e.Description,
		Individuals:      individuals,
		LegalAction:      e.LegalAction,
		Outcome:          e.Outcome,
		DiscrepancyNote:  e.DiscrepancyNote,
		SourceReference:  e.SourceReference,
		Confidence:       e.Confidence,
		Approved:         e.Approved,
		ExtractionMethod: e.ExtractionMethod,
	}
}

type entityView struct {
	ID          string `json:"id"`
	UploadID    string `json:"uploadId,omitempty"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

func newEntityView(e storage.EntityRow) entityView {
	return entityView{
		ID:          e.ID,
		UploadID:    e.Scope.UploadID,
		Name:        e.Name,
		Type:        e.Type,
		Role:        e.Role,
		Description: e.Description,
	}
}
