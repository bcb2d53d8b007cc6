package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the migration is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) || len(v1) == 0 {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	tables := []string{"evidence_uploads", "analysis_jobs", "timeline_events", "entities", "discrepancies",
		"legal_claims", "compliance_violations", "harm_incidents", "financial_losses"}
	for _, name := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
		if err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s missing", name)
		}
	}
}

func TestUploadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	u := Upload{
		ID: "up-1", CaseID: "case-1", FileName: "report.pdf", StoragePath: "case-1/up-1/report.pdf",
		MimeClass: "pdf", SizeBytes: 2048, PageCount: 3, CreatedAt: created,
	}
	if err := s.SaveUpload(ctx, u); err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if err := s.SaveUpload(ctx, Upload{ID: "up-2", FileName: "notes.txt", StoragePath: "unassigned/up-2/notes.txt",
		MimeClass: "text", CreatedAt: created.Add(time.Minute)}); err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}

	got, err := s.GetUpload(ctx, "up-1")
	if err != nil {
		t.Fatalf("GetUpload: %v", err)
	}
	if got.CaseID != "case-1" || got.PageCount != 3 || !got.CreatedAt.Equal(created) {
		t.Errorf("GetUpload = %+v", got)
	}

	if _, err := s.GetUpload(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUpload(missing) err = %v, want ErrNotFound", err)
	}

	byCase, err := s.ListUploads(ctx, "case-1", 10)
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(byCase) != 1 {
		t.Errorf("ListUploads(case-1) = %d rows, want 1", len(byCase))
	}
	all, err := s.ListUploads(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(all) != 2 || all[0].ID != "up-2" {
		t.Errorf("ListUploads(all) = %+v, want up-2 first", all)
	}
	if all[0].CaseID != "" {
		t.Errorf("unassigned upload CaseID = %q, want empty", all[0].CaseID)
	}
}

func TestJobFinishesOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now()

	if err := s.CreateJob(ctx, Job{ID: "job-1", UploadID: "up-1", CaseID: "case-1", StartedAt: start}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	j, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobProcessing || j.CompletedAt != nil {
		t.Errorf("new job = %+v, want processing with no completed_at", j)
	}

	counts := JobCounts{Events: 4, Entities: 2}
	if err := s.FinishJob(ctx, "job-1", JobCompleted, counts, "", start.Add(time.Second)); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}

	err = s.FinishJob(ctx, "job-1", JobFailed, JobCounts{}, "late failure", start.Add(2*time.Second))
	if !errors.Is(err, ErrJobNotProcessing) {
		t.Errorf("second FinishJob err = %v, want ErrJobNotProcessing", err)
	}

	j, err = s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != JobCompleted || j.Counts != counts || j.ErrorMessage != "" || j.CompletedAt == nil {
		t.Errorf("finished job = %+v", j)
	}

	if err := s.FinishJob(ctx, "nope", JobFailed, JobCounts{}, "x", start); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishJob(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.FinishJob(ctx, "job-1", JobProcessing, JobCounts{}, "", start); err == nil {
		t.Error("FinishJob with non-terminal status should fail")
	}
}

func TestListJobsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, up := range []string{"up-1", "up-1", "up-2", ""} {
		id := []string{"a", "b", "c", "d"}[i]
		if err := s.CreateJob(ctx, Job{ID: id, UploadID: up, StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	if err := s.FinishJob(ctx, "b", JobFailed, JobCounts{}, "boom", base.Add(time.Hour)); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}

	jobs, err := s.ListJobs(ctx, JobFilter{UploadID: "up-1"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "b" {
		t.Errorf("ListJobs(up-1) = %+v, want [b a]", jobs)
	}

	failed, err := s.ListJobs(ctx, JobFilter{Status: JobFailed})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(failed) != 1 || failed[0].ErrorMessage != "boom" {
		t.Errorf("ListJobs(failed) = %+v", failed)
	}

	page, err := s.ListJobs(ctx, JobFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(page) != 2 || page[0].ID != "c" {
		t.Errorf("ListJobs page = %+v, want [c b]", page)
	}
}

func TestInsertBatchesAndCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	scope := Scope{CaseID: "case-1", UploadID: "up-1"}

	n, err := s.InsertEvents(ctx, []EventRow{
		{Scope: scope, Date: "2024-05-02", Category: "arrest", Description: "second", Approved: true, ExtractionMethod: "ai_extraction"},
		{Scope: scope, Date: "2024-01-10", Category: "hearing", Description: "first", Individuals: []string{"A. Judge"},
			Confidence: 0.9, Approved: true, ExtractionMethod: "ai_extraction"},
	})
	if err != nil || n != 2 {
		t.Fatalf("InsertEvents = %d, %v", n, err)
	}

	events, err := s.ListEvents(ctx, "case-1", 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].Description != "first" {
		t.Fatalf("ListEvents = %+v, want date order", events)
	}
	if len(events[0].Individuals) != 1 || !events[0].Approved || events[0].Confidence != 0.9 {
		t.Errorf("event round trip = %+v", events[0])
	}

	if _, err := s.InsertEntities(ctx, []EntityRow{{Scope: scope, Name: "City Court", Type: "court"}}); err != nil {
		t.Fatalf("InsertEntities: %v", err)
	}
	if _, err := s.InsertClaims(ctx, []ClaimRow{{Scope: scope, AllegationText: "fraud"}}); err != nil {
		t.Fatalf("InsertClaims: %v", err)
	}
	var status string
	var dateAlleged *string
	if err := s.db.QueryRow("SELECT status, date_alleged FROM legal_claims").Scan(&status, &dateAlleged); err != nil {
		t.Fatalf("select claim: %v", err)
	}
	if status != "unverified" || dateAlleged != nil {
		t.Errorf("claim status=%q date_alleged=%v, want unverified and NULL", status, dateAlleged)
	}

	if _, err := s.InsertViolations(ctx, []ViolationRow{
		{Scope: scope, ViolationType: "due_process", Title: "t", Description: "d", Severity: "high"},
		{Scope: scope, ViolationType: "due_process", Title: "t2", Description: "d", Severity: "low", Resolved: true},
	}); err != nil {
		t.Fatalf("InsertViolations: %v", err)
	}
	unresolved, err := s.CountUnresolvedViolations(ctx, "case-1")
	if err != nil || unresolved != 1 {
		t.Errorf("CountUnresolvedViolations = %d, %v; want 1", unresolved, err)
	}

	count, err := s.CountByCase(ctx, TableEvents, "case-1")
	if err != nil || count != 2 {
		t.Errorf("CountByCase(events) = %d, %v", count, err)
	}
	if _, err := s.CountByCase(ctx, Table("sqlite_master"), "case-1"); err == nil {
		t.Error("CountByCase should reject unknown tables")
	}
}

func TestInsertEventsIsAllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEvents(ctx, []EventRow{
		{ID: "dup", Date: "2024-01-01", Category: "other", Description: "a", ExtractionMethod: "ai_extraction"},
		{ID: "dup", Date: "2024-01-02", Category: "other", Description: "b", ExtractionMethod: "ai_extraction"},
	})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM timeline_events").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rows after failed batch = %d, want 0", n)
	}
}

func TestHarmIncidentsAndLosses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	scope := Scope{CaseID: "case-1"}

	ids, err := s.InsertHarmIncidents(ctx, []HarmIncidentRow{
		{Scope: scope, CorrelationID: "c1", IncidentType: "account_freeze", Title: "Frozen"},
		{Scope: scope, CorrelationID: "c2", IncidentType: "fine", Title: "Fine", Date: "2024-02-01"},
	})
	if err != nil {
		t.Fatalf("InsertHarmIncidents: %v", err)
	}
	if len(ids) != 2 || ids["c1"] == "" || ids["c2"] == "" {
		t.Fatalf("ids = %v", ids)
	}

	n, err := s.InsertFinancialLosses(ctx, []FinancialLossRow{
		{IncidentID: ids["c1"], CaseID: "case-1", Amount: 100, Currency: "USD", Documented: true},
		{IncidentID: ids["c2"], CaseID: "case-1", Amount: 50, Currency: "USD", Documented: true},
		{IncidentID: ids["c2"], CaseID: "case-1", Amount: 999, Currency: "USD"},
	})
	if err != nil || n != 3 {
		t.Fatalf("InsertFinancialLosses = %d, %v", n, err)
	}

	totals, err := s.DocumentedLossTotal(ctx, "case-1")
	if err != nil {
		t.Fatalf("DocumentedLossTotal: %v", err)
	}
	if totals["USD"] != 150 {
		t.Errorf("documented USD total = %v, want 150", totals["USD"])
	}

	if _, err := s.InsertFinancialLosses(ctx, []FinancialLossRow{{IncidentID: "no-such-incident", Amount: 1}}); err == nil {
		t.Error("loss referencing a missing incident should be rejected")
	}

	if _, err := s.InsertHarmIncidents(ctx, []HarmIncidentRow{{IncidentType: "x", Title: "y"}}); err == nil {
		t.Error("incident without correlation id should be rejected")
	}
}
