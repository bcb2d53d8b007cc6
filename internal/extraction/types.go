package extraction

// Result is the typed payload of the forced extract_intelligence call.
// Every slice is non-nil after parsing.
type Result struct {
	Events               []Event         `json:"events"`
	Entities             []Entity        `json:"entities"`
	Discrepancies        []Discrepancy   `json:"discrepancies"`
	Claims               []Claim         `json:"claims"`
	ComplianceViolations []Violation     `json:"complianceViolations"`
	FinancialHarm        []FinancialHarm `json:"financialHarm"`
}

// Empty returns a Result with all six categories present and empty.
func Empty() Result {
	return Result{
		Events:               []Event{},
		Entities:             []Entity{},
		Discrepancies:        []Discrepancy{},
		Claims:               []Claim{},
		ComplianceViolations: []Violation{},
		FinancialHarm:        []FinancialHarm{},
	}
}

type Event struct {
	Date            string   `json:"date"`
	Category        string   `json:"category"`
	Description     string   `json:"description"`
	Individuals     []string `json:"individuals,omitempty"`
	LegalAction     string   `json:"legalAction,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`
	Discrepancies   string   `json:"discrepancies,omitempty"`
	SourceReference string   `json:"sourceReference,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
}

type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
}

type Discrepancy struct {
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       string   `json:"severity"`
	LegalReference string   `json:"legalReference,omitempty"`
	RelatedDates   []string `json:"relatedDates,omitempty"`
}

type Claim struct {
	AllegationText string `json:"allegationText"`
	ClaimType      string `json:"claimType,omitempty"`
	LegalFramework string `json:"legalFramework,omitempty"`
	LegalSection   string `json:"legalSection,omitempty"`
	Accuser        string `json:"accuser,omitempty"`
	Accused        string `json:"accused,omitempty"`
	DateAlleged    string `json:"dateAlleged,omitempty"`
	SourceDocument string `json:"sourceDocument,omitempty"`
}

type Violation struct {
	ViolationType       string `json:"violationType"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Severity            string `json:"severity"`
	LegalConsequence    string `json:"legalConsequence,omitempty"`
	RemediationPossible bool   `json:"remediationPossible"`
}

type FinancialHarm struct {
	IncidentType    string  `json:"incidentType"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Date            string  `json:"date,omitempty"`
	InstitutionName string  `json:"institutionName,omitempty"`
	Status          string  `json:"status,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	LossCategory    string  `json:"lossCategory,omitempty"`
	Documented      bool    `json:"documented"`
}
