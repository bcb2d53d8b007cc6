// Package extraction asks the AI gateway for a structured extraction of a
// resolved document and parses the forced tool call into typed results.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/casetrail/internal/gateway"
	"github.com/kalambet/casetrail/internal/resolve"
)

var (
	// ErrNoToolCall is returned when a successful response has no
	// extract_intelligence call.
	ErrNoToolCall = errors.New("ai response did not include an extract_intelligence call")
	// ErrNoContent is returned when asked to extract from resolve.NoContent.
	ErrNoContent = errors.New("no content to extract")
)

// Completer sends one chat completion to the gateway.
type Completer interface {
	ChatCompletion(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error)
}

type Invoker struct {
	client       Completer
	model        string
	maxTextChars int
	logger       *slog.Logger
}

func NewInvoker(client Completer, model string, maxTextChars int, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{client: client, model: model, maxTextChars: maxTextChars, logger: logger}
}

// Extract sends one request with the extraction tool pinned and returns the
// parsed result. Gateway errors are returned unchanged so callers can match
// gateway.ErrRateLimited and gateway.ErrCreditsExhausted.
func (inv *Invoker) Extract(ctx context.Context, content resolve.Content, documentType string) (Result, error) {
	messages, err := buildMessages(content, documentType, inv.maxTextChars)
	if err != nil {
		return Result{}, err
	}

	params, err := json.Marshal(toolParameters())
	if err != nil {
		return Result{}, fmt.Errorf("marshaling tool schema: %w", err)
	}

	req := gateway.ChatRequest{
		Model:    inv.model,
		Messages: messages,
		Tools: []gateway.Tool{{
			Type: "function",
			Function: gateway.FunctionDef{
				Name:        ToolName,
				Description: "Report the events, entities, discrepancies, claims, compliance violations and financial harm found in the document.",
				Parameters:  params,
			},
		}},
		ToolChoice: gateway.ForceFunction(ToolName),
	}

	resp, err := inv.client.ChatCompletion(ctx, req)
	if err != nil {
		return Result{}, err
	}

	call, ok := resp.FirstToolCall(ToolName)
	if !ok {
		return Result{}, ErrNoToolCall
	}

	return inv.parse(call.Function.Arguments)
}

// parse decodes the tool arguments. Items missing required keys or carrying
// wrong JSON types are dropped with a warning; labels outside the known
// vocabularies are normalized rather than rejected.
func (inv *Invoker) parse(arguments string) (Result, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arguments), &raw); err != nil {
		return Result{}, fmt.Errorf("parsing tool arguments: %w", err)
	}

	schemas, err := validators()
	if err != nil {
		return Result{}, err
	}

	res := Empty()
	for _, key := range categoryKeys {
		items, ok := raw[key]
		if !ok || string(items) == "null" {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(items, &list); err != nil {
			inv.logger.Warn("extraction category dropped: not an array", "category", key, "error", err)
			continue
		}
		for i, item := range list {
			var v any
			if err := json.Unmarshal(item, &v); err != nil {
				inv.logger.Warn("extraction item dropped: invalid json", "category", key, "index", i, "error", err)
				continue
			}
			if err := schemas[key].Validate(v); err != nil {
				inv.logger.Warn("extraction item dropped: schema mismatch", "category", key, "index", i, "error", err)
				continue
			}
			if err := res.appendItem(key, item); err != nil {
				inv.logger.Warn("extraction item dropped: decode failed", "category", key, "index", i, "error", err)
			}
		}
	}
	return res, nil
}

func (r *Result) appendItem(key string, item json.RawMessage) error {
	switch key {
	case keyEvents:
		var e Event
		if err := json.Unmarshal(item, &e); err != nil {
			return err
		}
		e.normalize()
		r.Events = append(r.Events, e)
	case keyEntities:
		var e Entity
		if err := json.Unmarshal(item, &e); err != nil {
			return err
		}
		e.normalize()
		r.Entities = append(r.Entities, e)
	case keyDiscrepancies:
		var d Discrepancy
		if err := json.Unmarshal(item, &d); err != nil {
			return err
		}
		d.normalize()
		r.Discrepancies = append(r.Discrepancies, d)
	case keyClaims:
		var c Claim
		if err := json.Unmarshal(item, &c); err != nil {
			return err
		}
		r.Claims = append(r.Claims, c)
	case keyViolations:
		var v Violation
		if err := json.Unmarshal(item, &v); err != nil {
			return err
		}
		v.normalize()
		r.ComplianceViolations = append(r.ComplianceViolations, v)
	case keyFinancialHarm:
		var h FinancialHarm
		if err := json.Unmarshal(item, &h); err != nil {
			return err
		}
		h.normalize()
		r.FinancialHarm = append(r.FinancialHarm, h)
	default:
		return fmt.Errorf("unknown category %q", key)
	}
	return nil
}
