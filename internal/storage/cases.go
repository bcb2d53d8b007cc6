package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Table names a case-scoped table that can be counted.
type Table string

const (
	TableUploads       Table = "evidence_uploads"
	TableJobs          Table = "analysis_jobs"
	TableEvents        Table = "timeline_events"
	TableEntities      Table = "entities"
	TableDiscrepancies Table = "discrepancies"
	TableClaims        Table = "legal_claims"
	TableViolations    Table = "compliance_violations"
	TableHarmIncidents Table = "harm_incidents"
	TableLosses        Table = "financial_losses"
)

var countableTables = map[Table]bool{
	TableUploads: true, TableJobs: true, TableEvents: true, TableEntities: true,
	TableDiscrepancies: true, TableClaims: true, TableViolations: true,
	TableHarmIncidents: true, TableLosses: true,
}

// CountByCase counts rows of t belonging to caseID.
func (s *Store) CountByCase(ctx context.Context, t Table, caseID string) (int, error) {
	if !countableTables[t] {
		return 0, fmt.Errorf("unknown table %q", t)
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(t)+` WHERE case_id = ?`, caseID).Scan(&n)
	return n, err
}

func (s *Store) CountUnresolvedViolations(ctx context.Context, caseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM compliance_violations WHERE case_id = ? AND resolved = 0`, caseID).Scan(&n)
	return n, err
}

// DocumentedLossTotal sums documented loss amounts for a case, per currency.
func (s *Store) DocumentedLossTotal(ctx context.Context, caseID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(currency, ''), COALESCE(SUM(amount), 0)
		FROM financial_losses WHERE case_id = ? AND documented = 1
		GROUP BY currency`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var cur string
		var sum float64
		if err := rows.Scan(&cur, &sum); err != nil {
			return nil, err
		}
		totals[cur] = sum
	}
	return totals, rows.Err()
}

// ListEvents returns a case's timeline ordered by date.
func (s *Store) ListEvents(ctx context.Context, caseID string, limit int) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, upload_id, event_date, category, description, individuals,
			legal_action, outcome, discrepancy_note, source_reference, confidence, approved, extraction_method, created_at
		FROM timeline_events WHERE case_id = ?
		ORDER BY event_date ASC, created_at ASC LIMIT ?`, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EventRow
	for rows.Next() {
		var e EventRow
		var caseCol, uploadCol, individuals, legalAction, outcome, note, source sql.NullString
		var confidence sql.NullFloat64
		var approved int
		var createdAt string
		if err := rows.Scan(&e.ID, &caseCol, &uploadCol, &e.Date, &e.Category, &e.Description, &individuals,
			&legalAction, &outcome, &note, &source, &confidence, &approved, &e.ExtractionMethod, &createdAt); err != nil {
			return nil, err
		}
		e.Scope = Scope{CaseID: caseCol.String, UploadID: uploadCol.String}
		e.Individuals = parseJSONList(individuals)
		e.LegalAction = legalAction.String
		e.Outcome = outcome.String
		e.DiscrepancyNote = note.String
		e.SourceReference = source.String
		e.Confidence = confidence.Float64
		e.Approved = approved == 1
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *Store) ListEntities(ctx context.Context, caseID string, limit int) ([]EntityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, upload_id, name, entity_type, role, description, created_at
		FROM entities WHERE case_id = ?
		ORDER BY name ASC LIMIT ?`, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EntityRow
	for rows.Next() {
		var e EntityRow
		var caseCol, uploadCol, role, desc sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &caseCol, &uploadCol, &e.Name, &e.Type, &role, &desc, &createdAt); err != nil {
			return nil, err
		}
		e.Scope = Scope{CaseID: caseCol.String, UploadID: uploadCol.String}
		e.Role = role.String
		e.Description = desc.String
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}
