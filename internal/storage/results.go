package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Each Insert* method writes one category as a single batch: either every
// row lands or none do. Categories are independent of each other.

func (s *Store) InsertEvents(ctx context.Context, rows []EventRow) (int, error) {
	now := formatTime(time.Now())
	return s.insertBatch(ctx, `
		INSERT INTO timeline_events (id, case_id, upload_id, event_date, category, description, individuals,
			legal_action, outcome, discrepancy_note, source_reference, confidence, approved, extraction_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) ([]any, error) {
			r := rows[i]
			individuals, err := jsonList(r.Individuals)
			if err != nil {
				return nil, err
			}
			return []any{
				rowID(r.ID), nullable(r.Scope.CaseID), nullable(r.Scope.UploadID), r.Date, r.Category, r.Description, individuals,
				nullable(r.LegalAction), nullable(r.Outcome), nullable(r.DiscrepancyNote), nullable(r.SourceReference),
				r.Confidence, boolInt(r.Approved), r.ExtractionMethod, now,
			}, nil
		})
}

func (s *Store) InsertEntities(ctx context.Context, rows []EntityRow) (int, error) {
	now := formatTime(time.Now())
	return s.insertBatch(ctx, `
		INSERT INTO entities (id, case_id, upload_id, name, entity_type, role, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				rowID(r.ID), nullable(r.Scope.CaseID), nullable(r.Scope.UploadID), r.Name, r.Type,
				nullable(r.Role), nullable(r.Description), now,
			}, nil
		})
}

func (s *Store) InsertDiscrepancies(ctx context.Context, rows []DiscrepancyRow) (int, error) {
	now := formatTime(time.Now())
	return s.insertBatch(ctx, `
		INSERT INTO discrepancies (id, case_id, upload_id, discrepancy_type, title, description, severity,
			legal_reference, related_dates, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) ([]any, error) {
			r := rows[i]
			dates, err := jsonList(r.RelatedDates)
			if err != nil {
				return nil, err
			}
			return []any{
				rowID(r.ID), nullable(r.Scope.CaseID), nullable(r.Scope.UploadID), r.Type, r.Title, r.Description,
				r.Severity, nullable(r.LegalReference), dates, now,
			}, nil
		})
}

func (s *Store) InsertClaims(ctx context.Context, rows []ClaimRow) (int, error) {
	now := formatTime(time.Now())
	return s.insertBatch(ctx, `
		INSERT INTO legal_claims (id, case_id, upload_id, allegation_text, claim_type, legal_framework, legal_section,
			accuser, accused, date_alleged, source_document, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) ([]any, error) {
			r := rows[i]
			status := r.Status
			if status == "" {
				status = "unverified"
			}
			return []any{
				rowID(r.ID), nullable(r.Scope.CaseID), nullable(r.Scope.UploadID), r.AllegationText,
				nullable(r.ClaimType), nullable(r.LegalFramework), nullable(r.LegalSection),
				nullable(r.Accuser), nullable(r.Accused), nullable(r.DateAlleged), nullable(r.SourceDocument),
				status, now,
			}, nil
		})
}

func (s *Store) InsertViolations(ctx context.Context, rows []ViolationRow) (int, error) {
	now := formatTime(time.Now())
	return s.insertBatch(ctx, `
		INSERT INTO compliance_violations (id, case_id, upload_id, violation_type, title, description, severity,
			legal_consequence, remediation_possible, resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				rowID(r.ID), nullable(r.Scope.CaseID), nullable(r.Scope.UploadID), r.ViolationType, r.Title,
				r.Description, r.Severity, nullable(r.LegalConsequence),
				boolInt(r.RemediationPossible), boolInt(r.Resolved), now,
			}, nil
		})
}

// InsertHarmIncidents writes the incidents as one batch and returns the
// generated incident id keyed by correlation id.
func (s *Store) InsertHarmIncidents(ctx context.Context, rows []HarmIncidentRow) (map[string]string, error) {
	ids := make(map[string]string, len(rows))
	if len(rows) == 0 {
		return ids, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO harm_incidents (id, case_id, upload_id, correlation_id, incident_type, title, description,
			incident_date, institution_name, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, correlation_id`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for i, r := range rows {
		if r.CorrelationID == "" {
			return nil, fmt.Errorf("harm incident %d: missing correlation id", i)
		}
		var id, corr string
		err := stmt.QueryRowContext(ctx,
			rowID(r.ID), nullable(r.Scope.CaseID), nullable(r.Scope.UploadID), r.CorrelationID,
			r.IncidentType, r.Title, nullable(r.Description), nullable(r.Date),
			nullable(r.InstitutionName), nullable(r.Status), now,
		).Scan(&id, &corr)
		if err != nil {
			return nil, fmt.Errorf("harm incident %d: %w", i, err)
		}
		ids[corr] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) InsertFinancialLosses(ctx context.Context, rows []FinancialLossRow) (int, error) {
	now := formatTime(time.Now())
	return s.insertBatch(ctx, `
		INSERT INTO financial_losses (id, incident_id, case_id, amount, currency, loss_category, documented, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				rowID(r.ID), r.IncidentID, nullable(r.CaseID), r.Amount, nullable(r.Currency),
				nullable(r.LossCategory), boolInt(r.Documented), now,
			}, nil
		})
}

func (s *Store) insertBatch(ctx context.Context, query string, n int, args func(i int) ([]any, error)) (int, error) {
	if n == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		a, err := args(i)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func rowID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func jsonList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseJSONList(s sql.NullString) []string {
	var out []string
	if s.Valid && s.String != "" {
		_ = json.Unmarshal([]byte(s.String), &out)
	}
	return out
}
