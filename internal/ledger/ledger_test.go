package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/casetrail/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLedgerLifecycle(t *testing.T) {
	s := openStore(t)
	l := New(s)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	id, err := l.Open(ctx, "up-1", "case-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	j, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != storage.JobProcessing || !j.StartedAt.Equal(fixed) {
		t.Errorf("opened job = %+v", j)
	}

	counts := storage.JobCounts{Events: 3, Claims: 1}
	if err := l.Complete(ctx, id, counts, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := l.Fail(ctx, id, "too late"); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("Fail after Complete err = %v, want ErrAlreadyFinal", err)
	}

	j, _ = s.GetJob(ctx, id)
	if j.Status != storage.JobCompleted || j.Counts != counts || j.ErrorMessage != "" {
		t.Errorf("completed job = %+v", j)
	}
}

func TestLedgerFailKeepsMessage(t *testing.T) {
	s := openStore(t)
	l := New(s)
	ctx := context.Background()

	id, err := l.Open(ctx, "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Fail(ctx, id, "Rate limit exceeded. Please try again later."); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	j, _ := s.GetJob(ctx, id)
	if j.Status != storage.JobFailed || j.ErrorMessage != "Rate limit exceeded. Please try again later." {
		t.Errorf("failed job = %+v", j)
	}
	if j.UploadID != "" {
		t.Errorf("pasted job UploadID = %q, want empty", j.UploadID)
	}
}

func TestLedgerCompleteWithNote(t *testing.T) {
	s := openStore(t)
	l := New(s)
	ctx := context.Background()

	id, _ := l.Open(ctx, "up-1", "")
	if err := l.Complete(ctx, id, storage.JobCounts{Events: 1}, "entities: disk full"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	j, _ := s.GetJob(ctx, id)
	if j.Status != storage.JobCompleted || j.ErrorMessage != "entities: disk full" {
		t.Errorf("job = %+v", j)
	}
}

func TestLedgerUnknownJob(t *testing.T) {
	l := New(openStore(t))
	err := l.Complete(context.Background(), "missing", storage.JobCounts{}, "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want wrapped ErrNotFound", err)
	}
}
