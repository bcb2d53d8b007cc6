// Package fanout writes one extraction result into the six result tables.
// Categories are written independently: a failure in one is recorded in the
// Outcome and does not stop the others.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kalambet/casetrail/internal/datenorm"
	"github.com/kalambet/casetrail/internal/extraction"
	"github.com/kalambet/casetrail/internal/storage"
)

// ExtractionMethod tags events written by this package.
const ExtractionMethod = "ai_extraction"

// Store is the subset of the relational store the writer needs.
type Store interface {
	InsertEvents(ctx context.Context, rows []storage.EventRow) (int, error)
	InsertEntities(ctx context.Context, rows []storage.EntityRow) (int, error)
	InsertDiscrepancies(ctx context.Context, rows []storage.DiscrepancyRow) (int, error)
	InsertClaims(ctx context.Context, rows []storage.ClaimRow) (int, error)
	InsertViolations(ctx context.Context, rows []storage.ViolationRow) (int, error)
	InsertHarmIncidents(ctx context.Context, rows []storage.HarmIncidentRow) (map[string]string, error)
	InsertFinancialLosses(ctx context.Context, rows []storage.FinancialLossRow) (int, error)
}

// CategoryOutcome is the result of writing one category.
type CategoryOutcome struct {
	Count   int   // rows written
	Dropped int   // items filtered out before or after insertion
	Err     error // batch failure, nil on success
}

// Outcome aggregates every category of one fan-out.
type Outcome struct {
	Events               CategoryOutcome
	Entities             CategoryOutcome
	Discrepancies        CategoryOutcome
	Claims               CategoryOutcome
	ComplianceViolations CategoryOutcome
	FinancialHarm        CategoryOutcome
	FinancialLosses      CategoryOutcome
}

// Counts returns the rows written per category for the job ledger.
func (o Outcome) Counts() storage.JobCounts {
	return storage.JobCounts{
		Events:               o.Events.Count,
		Entities:             o.Entities.Count,
		Discrepancies:        o.Discrepancies.Count,
		Claims:               o.Claims.Count,
		ComplianceViolations: o.ComplianceViolations.Count,
		FinancialHarm:        o.FinancialHarm.Count,
	}
}

// Err joins every category failure, or returns nil when all succeeded.
func (o Outcome) Err() error {
	var errs []error
	for _, c := range o.categories() {
		if c.outcome.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, c.outcome.Err))
		}
	}
	return errors.Join(errs...)
}

type namedOutcome struct {
	name    string
	outcome CategoryOutcome
}

func (o Outcome) categories() []namedOutcome {
	return []namedOutcome{
		{"events", o.Events},
		{"entities", o.Entities},
		{"discrepancies", o.Discrepancies},
		{"claims", o.Claims},
		{"compliance violations", o.ComplianceViolations},
		{"financial harm", o.FinancialHarm},
		{"financial losses", o.FinancialLosses},
	}
}

type Writer struct {
	store  Store
	logger *slog.Logger
	newID  func() string
}

func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger, newID: uuid.NewString}
}

// Write performs the category inserts in a fixed order. No transaction
// spans them.
func (w *Writer) Write(ctx context.Context, res extraction.Result, scope storage.Scope) Outcome {
	var out Outcome
	out.Events = w.writeEvents(ctx, res.Events, scope)
	out.Entities = w.writeEntities(ctx, res.Entities, scope)
	out.Discrepancies = w.writeDiscrepancies(ctx, res.Discrepancies, scope)
	out.Claims = w.writeClaims(ctx, res.Claims, scope)
	out.ComplianceViolations = w.writeViolations(ctx, res.ComplianceViolations, scope)
	out.FinancialHarm, out.FinancialLosses = w.writeHarm(ctx, res.FinancialHarm, scope)

	for _, c := range out.categories() {
		if c.outcome.Err != nil {
			w.logger.Error("fan-out category failed", "category", c.name, "upload_id", scope.UploadID, "error", c.outcome.Err)
		}
	}
	return out
}

func (w *Writer) writeEvents(ctx context.Context, events []extraction.Event, scope storage.Scope) CategoryOutcome {
	rows := make([]storage.EventRow, 0, len(events))
	dropped := 0
	for i, e := range events {
		date, ok := datenorm.Normalize(e.Date)
		if !ok {
			w.logger.Warn("event dropped: invalid date", "index", i, "date", e.Date, "upload_id", scope.UploadID)
			dropped++
			continue
		}
		rows = append(rows, storage.EventRow{
			ID:               w.newID(),
			Scope:            scope,
			Date:             date,
			Category:         e.Category,
			Description:      e.Description,
			Individuals:      e.Individuals,
			LegalAction:      e.LegalAction,
			Outcome:          e.Outcome,
			DiscrepancyNote:  e.Discrepancies,
			SourceReference:  e.SourceReference,
			Confidence:       clamp01(e.Confidence),
			Approved:         true,
			ExtractionMethod: ExtractionMethod,
		})
	}
	n, err := w.store.InsertEvents(ctx, rows)
	return CategoryOutcome{Count: n, Dropped: dropped, Err: err}
}

func (w *Writer) writeEntities(ctx context.Context, entities []extraction.Entity, scope storage.Scope) CategoryOutcome {
	rows := make([]storage.EntityRow, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, storage.EntityRow{
			ID:          w.newID(),
			Scope:       scope,
			Name:        e.Name,
			Type:        e.Type,
			Role:        e.Role,
			Description: e.Description,
		})
	}
	n, err := w.store.InsertEntities(ctx, rows)
	return CategoryOutcome{Count: n, Err: err}
}

func (w *Writer) writeDiscrepancies(ctx context.Context, items []extraction.Discrepancy, scope storage.Scope) CategoryOutcome {
	rows := make([]storage.DiscrepancyRow, 0, len(items))
	for _, d := range items {
		rows = append(rows, storage.DiscrepancyRow{
			ID:             w.newID(),
			Scope:          scope,
			Type:           d.Type,
			Title:          d.Title,
			Description:    d.Description,
			Severity:       d.Severity,
			LegalReference: d.LegalReference,
			RelatedDates:   d.RelatedDates,
		})
	}
	n, err := w.store.InsertDiscrepancies(ctx, rows)
	return CategoryOutcome{Count: n, Err: err}
}

// writeClaims keeps a claim whose dateAlleged cannot be normalized and stores
// the date as NULL.
func (w *Writer) writeClaims(ctx context.Context, claims []extraction.Claim, scope storage.Scope) CategoryOutcome {
	rows := make([]storage.ClaimRow, 0, len(claims))
	for _, c := range claims {
		rows = append(rows, storage.ClaimRow{
			ID:             w.newID(),
			Scope:          scope,
			AllegationText: c.AllegationText,
			ClaimType:      c.ClaimType,
			LegalFramework: c.LegalFramework,
			LegalSection:   c.LegalSection,
			Accuser:        c.Accuser,
			Accused:        c.Accused,
			DateAlleged:    optionalDate(c.DateAlleged),
			SourceDocument: c.SourceDocument,
			Status:         "unverified",
		})
	}
	n, err := w.store.InsertClaims(ctx, rows)
	return CategoryOutcome{Count: n, Err: err}
}

func (w *Writer) writeViolations(ctx context.Context, items []extraction.Violation, scope storage.Scope) CategoryOutcome {
	rows := make([]storage.ViolationRow, 0, len(items))
	for _, v := range items {
		rows = append(rows, storage.ViolationRow{
			ID:                  w.newID(),
			Scope:               scope,
			ViolationType:       v.ViolationType,
			Title:               v.Title,
			Description:         v.Description,
			Severity:            v.Severity,
			LegalConsequence:    v.LegalConsequence,
			RemediationPossible: v.RemediationPossible,
			Resolved:            false,
		})
	}
	n, err := w.store.InsertViolations(ctx, rows)
	return CategoryOutcome{Count: n, Err: err}
}

// writeHarm inserts incidents first, then one loss per incident whose id came
// back from the store. Losses join incidents by correlation id, never by
// position.
func (w *Writer) writeHarm(ctx context.Context, items []extraction.FinancialHarm, scope storage.Scope) (CategoryOutcome, CategoryOutcome) {
	if len(items) == 0 {
		return CategoryOutcome{}, CategoryOutcome{}
	}

	correlations := make([]string, len(items))
	incidents := make([]storage.HarmIncidentRow, 0, len(items))
	for i, h := range items {
		correlations[i] = w.newID()
		incidents = append(incidents, storage.HarmIncidentRow{
			ID:              w.newID(),
			Scope:           scope,
			CorrelationID:   correlations[i],
			IncidentType:    h.IncidentType,
			Title:           h.Title,
			Description:     h.Description,
			Date:            optionalDate(h.Date),
			InstitutionName: h.InstitutionName,
			Status:          h.Status,
		})
	}

	ids, err := w.store.InsertHarmIncidents(ctx, incidents)
	if err != nil {
		return CategoryOutcome{Err: err}, CategoryOutcome{}
	}
	harm := CategoryOutcome{Count: len(ids)}

	losses := make([]storage.FinancialLossRow, 0, len(items))
	skipped := 0
	for i, h := range items {
		incidentID, ok := ids[correlations[i]]
		if !ok || incidentID == "" {
			w.logger.Warn("financial loss skipped: incident id missing", "index", i, "title", h.Title, "upload_id", scope.UploadID)
			skipped++
			continue
		}
		losses = append(losses, storage.FinancialLossRow{
			ID:           w.newID(),
			IncidentID:   incidentID,
			CaseID:       scope.CaseID,
			Amount:       h.Amount,
			Currency:     h.Currency,
			LossCategory: h.LossCategory,
			Documented:   h.Documented,
		})
	}
	harm.Dropped = skipped

	n, err := w.store.InsertFinancialLosses(ctx, losses)
	return harm, CategoryOutcome{Count: n, Dropped: skipped, Err: err}
}

// optionalDate normalizes an optional date; unusable values become "".
func optionalDate(raw string) string {
	if raw == "" {
		return ""
	}
	d, ok := datenorm.Normalize(raw)
	if !ok {
		return ""
	}
	return d
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
