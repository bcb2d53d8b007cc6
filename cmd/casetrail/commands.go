package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kalambet/casetrail/internal/config"
	"github.com/kalambet/casetrail/internal/pipeline"
)

type uploadResult struct {
	ID          string `json:"id"`
	CaseID      string `json:"caseId"`
	FileName    string `json:"fileName"`
	StoragePath string `json:"storagePath"`
	MimeClass   string `json:"mimeClass"`
	SizeBytes   int64  `json:"sizeBytes"`
	PageCount   int    `json:"pageCount"`
}

type extractResult struct {
	Success       bool   `json:"success"`
	JobID         string `json:"jobId"`
	Events        int    `json:"eventsExtracted"`
	Entities      int    `json:"entitiesExtracted"`
	Discrepancies int    `json:"discrepanciesExtracted"`
	Claims        int    `json:"claimsExtracted"`
	Violations    int    `json:"complianceViolationsExtracted"`
	FinancialHarm int    `json:"financialHarmExtracted"`
	Note          string `json:"note"`
}

type jobRow struct {
	ID           string `json:"id"`
	UploadID     string `json:"uploadId"`
	CaseID       string `json:"caseId"`
	Status       string `json:"status"`
	Events       int    `json:"eventsExtracted"`
	ErrorMessage string `json:"errorMessage"`
	StartedAt    string `json:"startedAt"`
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Store an evidence file or pasted text",
	Long: `Store an evidence file or pasted text for later extraction.

Examples:
  casetrail upload --file ./police-report.pdf --case case-42
  casetrail upload --text "Statement taken on 2024-03-15..." --case case-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		text, _ := cmd.Flags().GetString("text")
		caseID, _ := cmd.Flags().GetString("case")

		if (file == "") == (text == "") {
			return fmt.Errorf("exactly one of --file or --text is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var u uploadResult
		if file != "" {
			u, err = uploadFile(cmd.Context(), client, file, caseID)
		} else {
			u, err = uploadText(cmd.Context(), client, text, caseID)
		}
		if err != nil {
			return err
		}

		printSuccess("Stored upload %s (%s, %d bytes)", u.ID, u.MimeClass, u.SizeBytes)
		if u.PageCount > 0 {
			printStatus("Pages", "%d", u.PageCount)
		}
		return nil
	},
}

func uploadFile(ctx context.Context, c *apiClient, path, caseID string) (uploadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uploadResult{}, fmt.Errorf("reading file: %w", err)
	}
	fields := map[string]string{}
	if caseID != "" {
		fields["case_id"] = caseID
	}
	resp, err := c.postFile(ctx, "/uploads", filepath.Base(path), data, fields)
	if err != nil {
		return uploadResult{}, err
	}
	var u uploadResult
	return u, decodeJSON(resp, &u)
}

func uploadText(ctx context.Context, c *apiClient, text, caseID string) (uploadResult, error) {
	resp, err := c.post(ctx, "/uploads", map[string]string{"text": text, "caseId": caseID})
	if err != nil {
		return uploadResult{}, err
	}
	var u uploadResult
	return u, decodeJSON(resp, &u)
}

func init() {
	uploadCmd.Flags().String("file", "", "path of the evidence file")
	uploadCmd.Flags().String("text", "", "pasted text to store")
	uploadCmd.Flags().String("case", "", "case id the upload belongs to")
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract [upload-id]",
	Short: "Run structured extraction on an upload or on text",
	Long: `Run structured extraction on a stored upload, or on ad-hoc text.

Examples:
  casetrail extract 5f1c2a9e-...
  casetrail extract --text "On 2024-03-15 the applicant was detained..." --case case-42`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		caseID, _ := cmd.Flags().GetString("case")
		docType, _ := cmd.Flags().GetString("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		req := pipeline.Request{CaseID: caseID, DocumentType: docType, DocumentContent: text}
		switch {
		case len(args) == 1:
			req.UploadID = args[0]
		case text != "":
			req.UploadID = pipeline.PastedUploadID
		default:
			return fmt.Errorf("an upload id or --text is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		res, err := runExtract(cmd.Context(), client, req)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, res)
		}
		printExtractResult(os.Stdout, res)
		return nil
	},
}

func runExtract(ctx context.Context, c *apiClient, req pipeline.Request) (extractResult, error) {
	resp, err := c.post(ctx, "/extract", req)
	if err != nil {
		return extractResult{}, err
	}
	var res extractResult
	return res, decodeJSON(resp, &res)
}

func printExtractResult(w io.Writer, r extractResult) {
	fmt.Fprintf(w, "Job %s\n", colorize(colorCyan, r.JobID))
	fmt.Fprintf(w, "  events:                %d\n", r.Events)
	fmt.Fprintf(w, "  entities:              %d\n", r.Entities)
	fmt.Fprintf(w, "  discrepancies:         %d\n", r.Discrepancies)
	fmt.Fprintf(w, "  claims:                %d\n", r.Claims)
	fmt.Fprintf(w, "  compliance violations: %d\n", r.Violations)
	fmt.Fprintf(w, "  financial harm:        %d\n", r.FinancialHarm)
	if r.Note != "" {
		fmt.Fprintf(w, "  note: %s\n", r.Note)
	}
}

func init() {
	extractCmd.Flags().String("text", "", "text to analyze without an upload")
	extractCmd.Flags().String("case", "", "case id for the extracted records")
	extractCmd.Flags().String("type", "", "document type hint, e.g. police_report")
	extractCmd.Flags().Bool("json", false, "print the full response as JSON")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analysis jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		uploadID, _ := cmd.Flags().GetString("upload")
		caseID, _ := cmd.Flags().GetString("case")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		jobs, err := listJobs(cmd.Context(), client, jobsQuery(limit, uploadID, caseID, status))
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		for _, j := range jobs {
			line := fmt.Sprintf("%s  %-10s  %s  events=%d", colorize(colorCyan, shortID(j.ID)), j.Status, j.StartedAt, j.Events)
			if j.ErrorMessage != "" {
				line += "  " + colorize(colorYellow, j.ErrorMessage)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func jobsQuery(limit int, uploadID, caseID, status string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if uploadID != "" {
		q.Set("upload_id", uploadID)
	}
	if caseID != "" {
		q.Set("case_id", caseID)
	}
	if status != "" {
		q.Set("status", status)
	}
	return "/jobs?" + q.Encode()
}

func listJobs(ctx context.Context, c *apiClient, path string) ([]jobRow, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var jobs []jobRow
	return jobs, decodeJSON(resp, &jobs)
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/jobs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var job any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		return printJSON(os.Stdout, job)
	},
}

func init() {
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs to list")
	jobsListCmd.Flags().String("upload", "", "only jobs for this upload id")
	jobsListCmd.Flags().String("case", "", "only jobs for this case id")
	jobsListCmd.Flags().String("status", "", "only jobs with this status")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
}

// --- case ---

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Read case-level results",
}

var caseSummaryCmd = &cobra.Command{
	Use:   "summary <case-id>",
	Short: "Show record counts for a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCaseResource(cmd.Context(), "/cases/"+url.PathEscape(args[0])+"/summary")
	},
}

var caseEventsCmd = &cobra.Command{
	Use:   "events <case-id>",
	Short: "List a case timeline ordered by date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCaseResource(cmd.Context(), "/cases/"+url.PathEscape(args[0])+"/events")
	},
}

var caseEntitiesCmd = &cobra.Command{
	Use:   "entities <case-id>",
	Short: "List entities extracted for a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCaseResource(cmd.Context(), "/cases/"+url.PathEscape(args[0])+"/entities")
	},
}

func printCaseResource(ctx context.Context, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var v any
	if err := decodeJSON(resp, &v); err != nil {
		return err
	}
	return printJSON(os.Stdout, v)
}

func init() {
	caseCmd.AddCommand(caseSummaryCmd)
	caseCmd.AddCommand(caseEventsCmd)
	caseCmd.AddCommand(caseEntitiesCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
