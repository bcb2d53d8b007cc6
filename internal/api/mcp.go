package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/casetrail/internal/pipeline"
	"github.com/kalambet/casetrail/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Pipeline Runner
}

// NewMCPServer creates an MCP server with the casetrail tools and resources registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"casetrail",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("casetrail extracts timelines, entities, claims and harm records from case evidence."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("extract_upload",
			mcp.WithDescription("Run structured extraction on a stored evidence upload, or on pasted text with uploadId \"pasted\"."),
			mcp.WithString("uploadId", mcp.Description("Upload id, or \"pasted\" for ad-hoc text"), mcp.Required()),
			mcp.WithString("documentType", mcp.Description("Optional document type hint")),
			mcp.WithString("documentContent", mcp.Description("Inline text to analyze")),
			mcp.WithString("caseId", mcp.Description("Case the results belong to")),
		),
		mcpExtractUpload(deps),
	)

	s.AddTool(
		mcp.NewTool("case_summary",
			mcp.WithDescription("Count the evidence and extracted records stored for a case."),
			mcp.WithString("caseId", mcp.Description("Case id"), mcp.Required()),
		),
		mcpCaseSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"casetrail://jobs/recent",
			"Recent Analysis Jobs",
			mcp.WithResourceDescription("Last 10 extraction jobs with their status and counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentJobs(deps),
	)

	return s
}

func mcpExtractUpload(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		uploadID, err := req.RequireString("uploadId")
		if err != nil || uploadID == "" {
			return mcpError("uploadId is required"), nil
		}

		resp, err := deps.Pipeline.Run(ctx, pipeline.Request{
			UploadID:        uploadID,
			DocumentType:    req.GetString("documentType", ""),
			DocumentContent: req.GetString("documentContent", ""),
			CaseID:          req.GetString("caseId", ""),
		})
		if err != nil {
			return mcpError(pipeline.UserMessage(err)), nil
		}

		type extractResult struct {
			JobID string `json:"jobId"`
			storage.JobCounts
			Note string `json:"note,omitempty"`
		}
		b, err := json.Marshal(extractResult{JobID: resp.JobID, JobCounts: resp.Counts, Note: resp.Note})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCaseSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		caseID, err := req.RequireString("caseId")
		if err != nil || caseID == "" {
			return mcpError("caseId is required"), nil
		}

		sum, err := buildCaseSummary(ctx, deps.Store, caseID)
		if err != nil {
			return mcpError(fmt.Sprintf("summary failed: %v", err)), nil
		}
		b, err := json.Marshal(sum)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentJobs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jobs, err := deps.Store.ListJobs(ctx, storage.JobFilter{Limit: 10})
		if err != nil {
			return nil, fmt.Errorf("failed to list recent jobs: %w", err)
		}

		views := make([]jobView, len(jobs))
		for i, j := range jobs {
			views[i] = newJobView(j)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jobs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
