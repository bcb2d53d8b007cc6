package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/casetrail/internal/storage"
)

// CaseSummary is the per-case count overview.
type CaseSummary struct {
	CaseID               string             `json:"caseId"`
	Uploads              int                `json:"uploads"`
	Jobs                 int                `json:"jobs"`
	Events               int                `json:"events"`
	Entities             int                `json:"entities"`
	Discrepancies        int                `json:"discrepancies"`
	Claims               int                `json:"claims"`
	Violations           int                `json:"complianceViolations"`
	UnresolvedViolations int                `json:"unresolvedViolations"`
	HarmIncidents        int                `json:"harmIncidents"`
	FinancialLosses      int                `json:"financialLosses"`
	DocumentedLoss       map[string]float64 `json:"documentedLoss"`
}

func buildCaseSummary(ctx context.Context, store *storage.Store, caseID string) (CaseSummary, error) {
	sum := CaseSummary{CaseID: caseID}
	g, ctx := errgroup.WithContext(ctx)

	counts := []struct {
		table storage.Table
		dst   *int
	}{
		{storage.TableUploads, &sum.Uploads},
		{storage.TableJobs, &sum.Jobs},
		{storage.TableEvents, &sum.Events},
		{storage.TableEntities, &sum.Entities},
		{storage.TableDiscrepancies, &sum.Discrepancies},
		{storage.TableClaims, &sum.Claims},
		{storage.TableViolations, &sum.Violations},
		{storage.TableHarmIncidents, &sum.HarmIncidents},
		{storage.TableLosses, &sum.FinancialLosses},
	}
	for _, c := range counts {
		g.Go(func() error {
			n, err := store.CountByCase(ctx, c.table, caseID)
			if err != nil {
				return err
			}
			*c.dst = n
			return nil
		})
	}
	g.Go(func() error {
		n, err := store.CountUnresolvedViolations(ctx, caseID)
		if err != nil {
			return err
		}
		sum.UnresolvedViolations = n
		return nil
	})
	g.Go(func() error {
		totals, err := store.DocumentedLossTotal(ctx, caseID)
		if err != nil {
			return err
		}
		sum.DocumentedLoss = totals
		return nil
	})

	if err := g.Wait(); err != nil {
		return CaseSummary{}, err
	}
	if sum.DocumentedLoss == nil {
		sum.DocumentedLoss = map[string]float64{}
	}
	return sum, nil
}
