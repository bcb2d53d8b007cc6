package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/casetrail/internal/gateway"
	"github.com/kalambet/casetrail/internal/intake"
	"github.com/kalambet/casetrail/internal/pipeline"
	"github.com/kalambet/casetrail/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxUploadSize      = 50 << 20
)

// Runner executes one extraction.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Submitter stores a new evidence upload.
type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (storage.Upload, error)
}

type AppDeps struct {
	Store    *storage.Store
	Pipeline Runner
	Intake   Submitter
	Token    string
	Logger   *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Options("/extract", handlePreflight)
	r.With(CORS, BearerAuth(deps.Token)).Post("/extract", handleExtract(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/uploads", handleCreateUpload(deps))
		r.Get("/uploads", handleListUploads(deps))
		r.Get("/uploads/{id}", handleGetUpload(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/cases/{caseID}/summary", handleCaseSummary(deps))
		r.Get("/cases/{caseID}/events", handleCaseEvents(deps))
		r.Get("/cases/{caseID}/entities", handleCaseEntities(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleExtract(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			flatError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := deps.Pipeline.Run(r.Context(), req)
		if err != nil {
			flatError(w, extractStatus(err), pipeline.UserMessage(err))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// extractStatus maps a pipeline error to the HTTP status returned to callers.
func extractStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUploadIDRequired):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, gateway.ErrCreditsExhausted):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

type textUploadRequest struct {
	Text     string `json:"text"`
	CaseID   string `json:"caseId"`
	FileName string `json:"fileName"`
}

func handleCreateUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		var sub intake.Submission
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxUploadSize); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
				return
			}
			sub.CaseID = r.FormValue("case_id")
			sub.Text = r.FormValue("text")
			file, header, err := r.FormFile("file")
			switch {
			case err == nil:
				defer file.Close()
				data, err := io.ReadAll(file)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
					return
				}
				sub.Data = data
				sub.FileName = header.Filename
				sub.ContentType = header.Header.Get("Content-Type")
			case errors.Is(err, http.ErrMissingFile):
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "reading file: %v", err)
				return
			}
		} else {
			var req textUploadRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
			sub = intake.Submission{CaseID: req.CaseID, FileName: req.FileName, Text: req.Text}
		}

		u, err := deps.Intake.Submit(r.Context(), sub)
		if errors.Is(err, intake.ErrEmptySubmission) || errors.Is(err, intake.ErrAmbiguousSubmission) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			deps.Logger.Error("upload failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, newUploadView(u))
	}
}

func handleListUploads(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		uploads, err := deps.Store.ListUploads(r.Context(), r.URL.Query().Get("case_id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list uploads: %v", err)
			return
		}
		views := make([]uploadView, len(uploads))
		for i, u := range uploads {
			views[i] = newUploadView(u)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Store.GetUpload(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "upload not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get upload: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, newUploadView(u))
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		jobs, err := deps.Store.ListJobs(r.Context(), storage.JobFilter{
			UploadID: q.Get("upload_id"),
			CaseID:   q.Get("case_id"),
			Status:   q.Get("status"),
			Limit:    parseIntParam(r, "limit", 20, 100),
			Offset:   parseIntParam(r, "offset", 0, 0),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		views := make([]jobView, len(jobs))
		for i, j := range jobs {
			views[i] = newJobView(j)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, newJobView(j))
	}
}

func handleCaseSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := buildCaseSummary(r.Context(), deps.Store, chi.URLParam(r, "caseID"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to summarize case: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func handleCaseEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Store.ListEvents(r.Context(), chi.URLParam(r, "caseID"), parseIntParam(r, "limit", 500, 5000))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list events: %v", err)
			return
		}
		views := make([]eventView, len(events))
		for i, e := range events {
			views[i] = newEventView(e)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleCaseEntities(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entities, err := deps.Store.ListEntities(r.Context(), chi.URLParam(r, "caseID"), parseIntParam(r, "limit", 500, 5000))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list entities: %v", err)
			return
		}
		views := make([]entityView, len(entities))
		for i, e := range entities {
			views[i] = newEntityView(e)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
