package extraction

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/casetrail/internal/gateway"
	"github.com/kalambet/casetrail/internal/resolve"
)

const systemPrompt = `You are a legal and investigative analyst supporting human-rights case documentation. You read case documents (court records, police reports, correspondence, financial statements, witness statements, transcripts) and extract structured intelligence for investigators.

Extract six categories and report them by calling the extract_intelligence function:
- events: dated occurrences for the case timeline. Dates must be YYYY-MM-DD. Skip events you cannot date.
- entities: people, organizations, government bodies, courts, police units, lawyers and media outlets named in the document.
- discrepancies: procedural, evidentiary or testimonial inconsistencies, such as conflicting dates, missing signatures or contradicting statements.
- claims: allegations made by or against someone, with the legal framework they rely on.
- complianceViolations: breaches of procedural or constitutional guarantees, such as detention without a warrant or denial of counsel.
- financialHarm: financial or regulatory harm such as frozen accounts, seizures, fines or lost income, with the quantified loss when stated.

Rules:
- Only report what the document supports. Do not invent names, dates or amounts.
- Use an empty array for a category with nothing to report.
- Give each event a confidence between 0 and 1.`

const defaultDocumentType = "case document"

// buildMessages shapes the system and user messages for either content kind.
func buildMessages(content resolve.Content, documentType string, maxChars int) ([]gateway.Message, error) {
	if strings.TrimSpace(documentType) == "" {
		documentType = defaultDocumentType
	}

	system := gateway.Message{Role: "system", Content: []gateway.ContentPart{gateway.TextPart(systemPrompt)}}

	switch c := content.(type) {
	case resolve.Text:
		body, truncated, total := truncate(c.Text, maxChars)
		var sb strings.Builder
		fmt.Fprintf(&sb, "Analyze the following %s and extract all intelligence.\n\n--- DOCUMENT START ---\n", documentType)
		sb.WriteString(body)
		sb.WriteString("\n--- DOCUMENT END ---")
		if truncated {
			fmt.Fprintf(&sb, "\n\n[Note: this document was truncated. Only the first %d of %d characters are shown; later content is missing.]", maxChars, total)
		}
		return []gateway.Message{
			system,
			{Role: "user", Content: []gateway.ContentPart{gateway.TextPart(sb.String())}},
		}, nil

	case resolve.Binary:
		text := fmt.Sprintf("Analyze the attached %s (%s) and extract all intelligence.", documentType, c.MIME)
		return []gateway.Message{
			system,
			{Role: "user", Content: []gateway.ContentPart{
				gateway.TextPart(text),
				gateway.DataPart(c.DataURL()),
			}},
		}, nil
	}

	return nil, ErrNoContent
}

// truncate cuts s to at most max characters. It reports whether it cut and
// the original character count.
func truncate(s string, max int) (string, bool, int) {
	total := utf8.RuneCountInString(s)
	if max <= 0 || total <= max {
		return s, false, total
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true, total
		}
		n++
	}
	return s, false, total
}
