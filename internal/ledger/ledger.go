// Package ledger records one row per extraction attempt. A job is opened in
// the processing state and finalized exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/casetrail/internal/storage"
)

// ErrAlreadyFinal is returned when finalizing a job that is no longer processing.
var ErrAlreadyFinal = errors.New("job already finalized")

// Store is the job persistence the ledger needs.
type Store interface {
	CreateJob(ctx context.Context, j storage.Job) error
	FinishJob(ctx context.Context, id, status string, counts storage.JobCounts, errMsg string, at time.Time) error
}

type Ledger struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Open creates a processing job and returns its id.
func (l *Ledger) Open(ctx context.Context, uploadID, caseID string) (string, error) {
	id := uuid.NewString()
	err := l.store.CreateJob(ctx, storage.Job{
		ID:        id,
		UploadID:  uploadID,
		CaseID:    caseID,
		Status:    storage.JobProcessing,
		StartedAt: l.now(),
	})
	if err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}
	return id, nil
}

// Complete marks the job completed. A non-empty note is kept as the job's
// error message; it is used when some fan-out categories failed.
func (l *Ledger) Complete(ctx context.Context, id string, counts storage.JobCounts, note string) error {
	return l.finish(ctx, id, storage.JobCompleted, counts, note)
}

// Fail marks the job failed with msg.
func (l *Ledger) Fail(ctx context.Context, id, msg string) error {
	if msg == "" {
		msg = "extraction failed"
	}
	return l.finish(ctx, id, storage.JobFailed, storage.JobCounts{}, msg)
}

func (l *Ledger) finish(ctx context.Context, id, status string, counts storage.JobCounts, msg string) error {
	err := l.store.FinishJob(ctx, id, status, counts, msg, l.now())
	if errors.Is(err, storage.ErrJobNotProcessing) {
		return ErrAlreadyFinal
	}
	if err != nil {
		return fmt.Errorf("finishing job %s: %w", id, err)
	}
	return nil
}
