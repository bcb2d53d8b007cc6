package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolName is the function the model is forced to call.
const ToolName = "extract_intelligence"

const (
	keyEvents        = "events"
	keyEntities      = "entities"
	keyDiscrepancies = "discrepancies"
	keyClaims        = "claims"
	keyViolations    = "complianceViolations"
	keyFinancialHarm = "financialHarm"
)

var categoryKeys = []string{keyEvents, keyEntities, keyDiscrepancies, keyClaims, keyViolations, keyFinancialHarm}

var (
	eventCategories = []string{
		"arrest_detention", "court_hearing", "legal_filing", "judgment", "appeal",
		"investigation", "communication", "financial", "regulatory", "media", "testimony", "other",
	}
	entityTypes = []string{
		"person", "organization", "government_body", "court", "law_enforcement", "legal_counsel", "media", "other",
	}
	discrepancyTypes = []string{
		"procedural", "evidentiary", "testimonial", "temporal", "documentary", "jurisdictional", "other",
	}
	severities = []string{"critical", "high", "medium", "low"}
)

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enum(desc string, values []string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func strList(desc string) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": map[string]any{"type": "string"}}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// itemSchemas holds the JSON schema of one item in each category.
var itemSchemas = map[string]map[string]any{
	keyEvents: object(map[string]any{
		"date":            str("Date of the event as YYYY-MM-DD"),
		"category":        enum("Kind of event", eventCategories),
		"description":     str("What happened"),
		"individuals":     strList("People involved"),
		"legalAction":     str("Legal action taken, if any"),
		"outcome":         str("Outcome of the event"),
		"discrepancies":   str("Inconsistencies noted about this event"),
		"sourceReference": str("Page, paragraph or section the event comes from"),
		"confidence":      map[string]any{"type": "number", "minimum": 0, "maximum": 1, "description": "Confidence between 0 and 1"},
	}, "date", "category", "description"),

	keyEntities: object(map[string]any{
		"name":        str("Full name"),
		"type":        enum("Kind of entity", entityTypes),
		"role":        str("Role in the case"),
		"description": str("Short description"),
	}, "name", "type"),

	keyDiscrepancies: object(map[string]any{
		"type":           enum("Kind of inconsistency", discrepancyTypes),
		"title":          str("Short title"),
		"description":    str("What is inconsistent and why it matters"),
		"severity":       enum("Severity", severities),
		"legalReference": str("Statute, rule or precedent involved"),
		"relatedDates":   strList("Dates involved, YYYY-MM-DD"),
	}, "type", "title", "description", "severity"),

	keyClaims: object(map[string]any{
		"allegationText": str("The allegation as stated"),
		"claimType":      str("Kind of claim, e.g. fraud, defamation, assault"),
		"legalFramework": str("Body of law the claim relies on"),
		"legalSection":   str("Specific section or article"),
		"accuser":        str("Who makes the allegation"),
		"accused":        str("Who the allegation is against"),
		"dateAlleged":    str("When the allegation was made, YYYY-MM-DD"),
		"sourceDocument": str("Document the allegation appears in"),
	}, "allegationText"),

	keyViolations: object(map[string]any{
		"violationType":       str("Kind of breach, e.g. due_process, right_to_counsel"),
		"title":               str("Short title"),
		"description":         str("What rule was breached and how"),
		"severity":            enum("Severity", severities),
		"legalConsequence":    str("Likely legal consequence of the breach"),
		"remediationPossible": map[string]any{"type": "boolean", "description": "Whether the breach can still be remedied"},
	}, "violationType", "title", "description", "severity"),

	keyFinancialHarm: object(map[string]any{
		"incidentType":    str("Kind of harm, e.g. account_freeze, asset_seizure, fine, lost_income"),
		"title":           str("Short title"),
		"description":     str("What happened"),
		"date":            str("Date of the incident, YYYY-MM-DD"),
		"institutionName": str("Bank, agency or company involved"),
		"status":          str("Current status, e.g. ongoing, resolved, disputed"),
		"amount":          map[string]any{"type": "number", "minimum": 0, "description": "Quantified loss"},
		"currency":        str("ISO 4217 currency code"),
		"lossCategory":    str("Kind of loss, e.g. direct, legal_fees, lost_income"),
		"documented":      map[string]any{"type": "boolean", "description": "Whether the loss is backed by documents"},
	}, "incidentType", "title"),
}

// toolParameters is the full parameters schema of the extraction tool.
func toolParameters() map[string]any {
	props := make(map[string]any, len(categoryKeys))
	for _, k := range categoryKeys {
		props[k] = map[string]any{"type": "array", "items": itemSchemas[k]}
	}
	return object(props, categoryKeys...)
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

// valueKeywords guide the model but are not enforced on its output;
// out-of-range values are normalized after decoding instead.
var valueKeywords = []string{"enum", "minimum", "maximum"}

// structural returns a copy of schema without value constraints, leaving
// required keys and JSON types.
func structural(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if slices.Contains(valueKeywords, k) {
			continue
		}
		switch v := v.(type) {
		case map[string]any:
			out[k] = structural(v)
		default:
			out[k] = v
		}
	}
	return out
}

// validators compiles the structural item schemas once.
func validators() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*jsonschema.Schema, len(itemSchemas))
		for key, s := range itemSchemas {
			b, err := json.Marshal(structural(s))
			if err != nil {
				compileErr = fmt.Errorf("marshal %s schema: %w", key, err)
				return
			}
			name := key + ".json"
			compiler := jsonschema.NewCompiler()
			if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
				compileErr = fmt.Errorf("add %s schema: %w", key, err)
				return
			}
			schema, err := compiler.Compile(name)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", key, err)
				return
			}
			compiled[key] = schema
		}
	})
	return compiled, compileErr
}
