// Package pipeline runs one extraction synchronously: resolve the content,
// invoke the AI gateway, fan the result out, and record the attempt in the
// job ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/casetrail/internal/extraction"
	"github.com/kalambet/casetrail/internal/fanout"
	"github.com/kalambet/casetrail/internal/gateway"
	"github.com/kalambet/casetrail/internal/resolve"
	"github.com/kalambet/casetrail/internal/storage"
)

// PastedUploadID marks ad-hoc text with no backing upload row.
const PastedUploadID = "pasted"

// ErrUploadIDRequired is returned before any work when the request has no upload id.
var ErrUploadIDRequired = errors.New("uploadId is required")

const (
	msgRateLimited      = "Rate limit exceeded. Please try again later."
	msgCreditsExhausted = "AI credits exhausted. Please add credits to continue."
)

// Request is the inbound extraction request.
type Request struct {
	UploadID        string `json:"uploadId"`
	DocumentContent string `json:"documentContent,omitempty"`
	FileName        string `json:"fileName,omitempty"`
	DocumentType    string `json:"documentType,omitempty"`
	CaseID          string `json:"caseId,omitempty"`
	StoragePath     string `json:"storagePath,omitempty"`
}

// Response carries the per-category counts and the extracted items.
type Response struct {
	Success bool
	JobID   string
	Counts  storage.JobCounts
	Result  extraction.Result
	Note    string
}

// MarshalJSON flattens counts and items into one object.
func (r Response) MarshalJSON() ([]byte, error) {
	type flat struct {
		Success bool   `json:"success"`
		JobID   string `json:"jobId,omitempty"`
		storage.JobCounts
		extraction.Result
		Note string `json:"note,omitempty"`
	}
	return json.Marshal(flat{
		Success:   r.Success,
		JobID:     r.JobID,
		JobCounts: r.Counts,
		Result:    r.Result,
		Note:      r.Note,
	})
}

type UploadLookup interface {
	GetUpload(ctx context.Context, id string) (storage.Upload, error)
}

type ContentResolver interface {
	Resolve(ctx context.Context, in resolve.Input) resolve.Content
}

type Extractor interface {
	Extract(ctx context.Context, content resolve.Content, documentType string) (extraction.Result, error)
}

type ResultWriter interface {
	Write(ctx context.Context, res extraction.Result, scope storage.Scope) fanout.Outcome
}

type JobLedger interface {
	Open(ctx context.Context, uploadID, caseID string) (string, error)
	Complete(ctx context.Context, id string, counts storage.JobCounts, note string) error
	Fail(ctx context.Context, id, msg string) error
}

// Deps wires the pipeline. Uploads may be nil.
type Deps struct {
	Uploads   UploadLookup
	Resolver  ContentResolver
	Extractor Extractor
	Writer    ResultWriter
	Ledger    JobLedger
	Logger    *slog.Logger
}

type Pipeline struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, logger: logger}
}

// Run executes the pipeline. Only validation, ledger and gateway level
// errors are returned; per-item problems surface as reduced counts.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.UploadID) == "" {
		return Response{}, ErrUploadIDRequired
	}
	start := time.Now()

	uploadID := req.UploadID
	if uploadID == PastedUploadID {
		uploadID = ""
	} else {
		req = p.fillFromUpload(ctx, req)
	}

	jobID, err := p.deps.Ledger.Open(ctx, uploadID, req.CaseID)
	if err != nil {
		return Response{}, err
	}
	log := p.logger.With("job_id", jobID, "upload_id", req.UploadID)
	// the job must reach a final state even if the caller goes away
	finalCtx := context.WithoutCancel(ctx)

	content := p.deps.Resolver.Resolve(ctx, resolve.Input{
		FileName:    req.FileName,
		InlineText:  req.DocumentContent,
		StoragePath: req.StoragePath,
	})

	if nc, ok := content.(resolve.NoContent); ok {
		if err := p.deps.Ledger.Complete(finalCtx, jobID, storage.JobCounts{}, ""); err != nil {
			log.Error("job ledger update failed", "error", err)
		}
		log.Info("extraction skipped: no content", "reason", nc.Reason)
		return Response{
			Success: true,
			JobID:   jobID,
			Result:  extraction.Empty(),
			Note:    "No extractable content was available for this document (" + nc.Reason + ").",
		}, nil
	}

	result, err := p.deps.Extractor.Extract(ctx, content, req.DocumentType)
	if err != nil {
		if lerr := p.deps.Ledger.Fail(finalCtx, jobID, UserMessage(err)); lerr != nil {
			log.Error("job ledger update failed", "error", lerr)
		}
		log.Error("extraction failed", "error", err)
		return Response{}, err
	}

	outcome := p.deps.Writer.Write(ctx, result, storage.Scope{CaseID: req.CaseID, UploadID: uploadID})
	counts := outcome.Counts()

	var note string
	if ferr := outcome.Err(); ferr != nil {
		note = ferr.Error()
	}
	if err := p.deps.Ledger.Complete(finalCtx, jobID, counts, note); err != nil {
		log.Error("job ledger update failed", "error", err)
	}

	log.Info("extraction complete",
		"events", counts.Events,
		"entities", counts.Entities,
		"discrepancies", counts.Discrepancies,
		"claims", counts.Claims,
		"violations", counts.ComplianceViolations,
		"financial_harm", counts.FinancialHarm,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return Response{
		Success: true,
		JobID:   jobID,
		Counts:  counts,
		Result:  result,
	}, nil
}

// fillFromUpload copies file name, storage path and case id from the upload
// row when the request leaves them empty. A lookup miss is not an error.
func (p *Pipeline) fillFromUpload(ctx context.Context, req Request) Request {
	if p.deps.Uploads == nil {
		return req
	}
	if req.FileName != "" && req.StoragePath != "" && req.CaseID != "" {
		return req
	}
	u, err := p.deps.Uploads.GetUpload(ctx, req.UploadID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("upload lookup failed", "upload_id", req.UploadID, "error", err)
		}
		return req
	}
	if req.FileName == "" {
		req.FileName = u.FileName
	}
	if req.StoragePath == "" {
		req.StoragePath = u.StoragePath
	}
	if req.CaseID == "" {
		req.CaseID = u.CaseID
	}
	return req
}

// UserMessage maps a pipeline error to the message shown to callers and
// stored on failed jobs.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, gateway.ErrCreditsExhausted):
		return msgCreditsExhausted
	case errors.Is(err, ErrUploadIDRequired):
		return ErrUploadIDRequired.Error()
	}
	return err.Error()
}
