package fanout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kalambet/casetrail/internal/extraction"
	"github.com/kalambet/casetrail/internal/storage"
)

type mockStore struct {
	events     []storage.EventRow
	entities   []storage.EntityRow
	claims     []storage.ClaimRow
	violations []storage.ViolationRow
	incidents  []storage.HarmIncidentRow
	losses     []storage.FinancialLossRow
	lossCalls  int

	entitiesErr  error
	incidentsErr error
	// omitIncident drops the returned id of the incident at this index.
	omitIncident int
}

func newMockStore() *mockStore { return &mockStore{omitIncident: -1} }

func (m *mockStore) InsertEvents(ctx context.Context, rows []storage.EventRow) (int, error) {
	m.events = append(m.events, rows...)
	return len(rows), nil
}

func (m *mockStore) InsertEntities(ctx context.Context, rows []storage.EntityRow) (int, error) {
	if m.entitiesErr != nil {
		return 0, m.entitiesErr
	}
	m.entities = append(m.entities, rows...)
	return len(rows), nil
}

func (m *mockStore) InsertDiscrepancies(ctx context.Context, rows []storage.DiscrepancyRow) (int, error) {
	return len(rows), nil
}

func (m *mockStore) InsertClaims(ctx context.Context, rows []storage.ClaimRow) (int, error) {
	m.claims = append(m.claims, rows...)
	return len(rows), nil
}

func (m *mockStore) InsertViolations(ctx context.Context, rows []storage.ViolationRow) (int, error) {
	m.violations = append(m.violations, rows...)
	return len(rows), nil
}

func (m *mockStore) InsertHarmIncidents(ctx context.Context, rows []storage.HarmIncidentRow) (map[string]string, error) {
	if m.incidentsErr != nil {
		return nil, m.incidentsErr
	}
	m.incidents = append(m.incidents, rows...)
	ids := make(map[string]string)
	for i, r := range rows {
		if i == m.omitIncident {
			continue
		}
		ids[r.CorrelationID] = r.ID
	}
	return ids, nil
}

func (m *mockStore) InsertFinancialLosses(ctx context.Context, rows []storage.FinancialLossRow) (int, error) {
	m.lossCalls++
	m.losses = append(m.losses, rows...)
	return len(rows), nil
}

func quietWriter(s Store) *Writer {
	return NewWriter(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var scope = storage.Scope{CaseID: "case-1", UploadID: "up-1"}

func TestWrite_InvalidEventDatesExcluded(t *testing.T) {
	ms := newMockStore()
	res := extraction.Empty()
	res.Events = []extraction.Event{
		{Date: "2024-03-15", Category: "court_hearing", Description: "a"},
		{Date: "2024-03-16 UTC", Category: "court_hearing", Description: "b"},
		{Date: "unknown", Category: "court_hearing", Description: "c"},
		{Date: "2024-03-18-2024-03-20", Category: "court_hearing", Description: "d"},
		{Date: "Filed on 2024-03-19.", Category: "court_hearing", Description: "e"},
	}

	out := quietWriter(ms).Write(context.Background(), res, scope)

	if len(ms.events) != 4 {
		t.Fatalf("inserted events = %d, want 4", len(ms.events))
	}
	if out.Events.Count != 4 || out.Events.Dropped != 1 || out.Events.Err != nil {
		t.Errorf("Events outcome = %+v", out.Events)
	}
	wantDates := []string{"2024-03-15", "2024-03-16", "2024-03-18", "2024-03-19"}
	for i, e := range ms.events {
		if e.Date != wantDates[i] {
			t.Errorf("event[%d].Date = %q, want %q", i, e.Date, wantDates[i])
		}
		if !e.Approved || e.ExtractionMethod != ExtractionMethod {
			t.Errorf("event[%d] approved=%v method=%q", i, e.Approved, e.ExtractionMethod)
		}
		if e.Scope != scope {
			t.Errorf("event[%d] scope = %+v", i, e.Scope)
		}
	}
}

func TestWrite_EventConfidenceClamped(t *testing.T) {
	ms := newMockStore()
	res := extraction.Empty()
	res.Events = []extraction.Event{
		{Date: "2024-03-15", Category: "other", Description: "a", Confidence: 1.2},
		{Date: "2024-03-16", Category: "other", Description: "b", Confidence: -0.5},
		{Date: "2024-03-17", Category: "other", Description: "c", Confidence: 0.4},
	}

	quietWriter(ms).Write(context.Background(), res, scope)

	want := []float64{1, 0, 0.4}
	if len(ms.events) != len(want) {
		t.Fatalf("inserted events = %d, want %d", len(ms.events), len(want))
	}
	for i, e := range ms.events {
		if e.Confidence != want[i] {
			t.Errorf("event[%d].Confidence = %v, want %v", i, e.Confidence, want[i])
		}
	}
}

func TestWrite_HarmLossesJoinedByReturnedIDs(t *testing.T) {
	ms := newMockStore()
	ms.omitIncident = 1
	res := extraction.Empty()
	res.FinancialHarm = []extraction.FinancialHarm{
		{IncidentType: "fine", Title: "first", Amount: 100, Currency: "USD"},
		{IncidentType: "fine", Title: "second", Amount: 200, Currency: "USD"},
		{IncidentType: "fine", Title: "third", Amount: 300, Currency: "USD"},
	}

	out := quietWriter(ms).Write(context.Background(), res, scope)

	if len(ms.losses) != 2 {
		t.Fatalf("loss rows = %d, want 2", len(ms.losses))
	}
	if ms.losses[0].IncidentID != ms.incidents[0].ID || ms.losses[1].IncidentID != ms.incidents[2].ID {
		t.Errorf("losses reference %q, %q; want first and third incidents", ms.losses[0].IncidentID, ms.losses[1].IncidentID)
	}
	if ms.losses[0].Amount != 100 || ms.losses[1].Amount != 300 {
		t.Errorf("loss amounts = %v, %v", ms.losses[0].Amount, ms.losses[1].Amount)
	}
	if out.FinancialHarm.Count != 2 || out.FinancialLosses.Count != 2 || out.FinancialLosses.Dropped != 1 {
		t.Errorf("harm outcome = %+v, losses outcome = %+v", out.FinancialHarm, out.FinancialLosses)
	}

	seen := map[string]bool{}
	for _, inc := range ms.incidents {
		if inc.CorrelationID == "" || seen[inc.CorrelationID] {
			t.Errorf("correlation id %q missing or reused", inc.CorrelationID)
		}
		seen[inc.CorrelationID] = true
	}
}

func TestWrite_IncidentFailureSkipsLosses(t *testing.T) {
	ms := newMockStore()
	ms.incidentsErr = errors.New("insert failed")
	res := extraction.Empty()
	res.FinancialHarm = []extraction.FinancialHarm{{IncidentType: "fine", Title: "x", Amount: 1}}

	out := quietWriter(ms).Write(context.Background(), res, scope)

	if ms.lossCalls != 0 {
		t.Errorf("InsertFinancialLosses called %d times, want 0", ms.lossCalls)
	}
	if out.FinancialHarm.Err == nil {
		t.Error("FinancialHarm.Err should be set")
	}
	if out.FinancialLosses.Count != 0 {
		t.Errorf("losses count = %d, want 0", out.FinancialLosses.Count)
	}
}

func TestWrite_CategoryFailureIsIsolated(t *testing.T) {
	ms := newMockStore()
	ms.entitiesErr = errors.New("entities table locked")
	res := extraction.Empty()
	res.Events = []extraction.Event{{Date: "2024-01-01", Category: "other", Description: "e"}}
	res.Entities = []extraction.Entity{{Name: "A", Type: "person"}}
	res.Claims = []extraction.Claim{{AllegationText: "c", DateAlleged: "around March"}}
	res.ComplianceViolations = []extraction.Violation{{ViolationType: "v", Title: "t", Description: "d", Severity: "low"}}

	out := quietWriter(ms).Write(context.Background(), res, scope)

	if out.Entities.Err == nil || out.Entities.Count != 0 {
		t.Errorf("Entities outcome = %+v, want error", out.Entities)
	}
	if out.Events.Count != 1 || out.Claims.Count != 1 || out.ComplianceViolations.Count != 1 {
		t.Errorf("other categories not written: %+v", out)
	}

	err := out.Err()
	if err == nil || !strings.Contains(err.Error(), "entities: entities table locked") {
		t.Errorf("Outcome.Err() = %v", err)
	}

	counts := out.Counts()
	if counts.Events != 1 || counts.Entities != 0 || counts.Claims != 1 || counts.ComplianceViolations != 1 {
		t.Errorf("Counts() = %+v", counts)
	}

	if ms.claims[0].DateAlleged != "" || ms.claims[0].Status != "unverified" {
		t.Errorf("claim = %+v, want NULL date and unverified", ms.claims[0])
	}
	if ms.violations[0].Resolved {
		t.Error("violation should default to unresolved")
	}
}

func TestWrite_EmptyResult(t *testing.T) {
	ms := newMockStore()
	out := quietWriter(ms).Write(context.Background(), extraction.Empty(), scope)
	if out.Err() != nil {
		t.Errorf("Err() = %v, want nil", out.Err())
	}
	if out.Counts() != (storage.JobCounts{}) {
		t.Errorf("Counts() = %+v, want zero", out.Counts())
	}
	if ms.lossCalls != 0 {
		t.Error("no losses should be attempted without incidents")
	}
}

// TestWrite_SQLiteStore runs the writer against the real store.
func TestWrite_SQLiteStore(t *testing.T) {
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	res := extraction.Empty()
	res.Events = []extraction.Event{
		{Date: "2024-01-01", Category: "other", Description: "1"},
		{Date: "2024-01-02", Category: "other", Description: "2"},
		{Date: "bad", Category: "other", Description: "3"},
		{Date: "2024-01-04", Category: "other", Description: "4"},
		{Date: "2024-01-05", Category: "other", Description: "5"},
	}
	res.FinancialHarm = []extraction.FinancialHarm{
		{IncidentType: "fine", Title: "a", Amount: 10, Currency: "USD", Documented: true},
		{IncidentType: "seizure", Title: "b", Amount: 5, Currency: "USD", Documented: true},
	}

	out := NewWriter(s, slog.New(slog.NewTextHandler(io.Discard, nil))).Write(ctx, res, scope)
	if err := out.Err(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	n, err := s.CountByCase(ctx, storage.TableEvents, "case-1")
	if err != nil || n != 4 {
		t.Errorf("event rows = %d, %v; want 4", n, err)
	}
	losses, err := s.CountByCase(ctx, storage.TableLosses, "case-1")
	if err != nil || losses != 2 {
		t.Errorf("loss rows = %d, %v; want 2", losses, err)
	}
	totals, err := s.DocumentedLossTotal(ctx, "case-1")
	if err != nil || totals["USD"] != 15 {
		t.Errorf("documented total = %v, %v; want 15", totals, err)
	}
}
