package extraction

import (
	"math"
	"slices"
	"strings"
)

// defaultSeverity replaces a severity outside the known scale.
const defaultSeverity = "medium"

// vocab maps a free-form label onto values, so "Court Hearing" matches
// court_hearing. Anything else becomes fallback.
func vocab(raw string, values []string, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.NewReplacer(" ", "_", "-", "_").Replace(v)
	if slices.Contains(values, v) {
		return v
	}
	return fallback
}

func (e *Event) normalize() {
	e.Category = vocab(e.Category, eventCategories, "other")
}

func (e *Entity) normalize() {
	e.Type = vocab(e.Type, entityTypes, "other")
}

func (d *Discrepancy) normalize() {
	d.Type = vocab(d.Type, discrepancyTypes, "other")
	d.Severity = vocab(d.Severity, severities, defaultSeverity)
}

func (v *Violation) normalize() {
	v.Severity = vocab(v.Severity, severities, defaultSeverity)
}

// A loss reported as a negative number is still a loss.
func (h *FinancialHarm) normalize() {
	h.Amount = math.Abs(h.Amount)
}
