package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kalambet/casetrail/internal/blob"
	"github.com/kalambet/casetrail/internal/extraction"
	"github.com/kalambet/casetrail/internal/fanout"
	"github.com/kalambet/casetrail/internal/gateway"
	"github.com/kalambet/casetrail/internal/intake"
	"github.com/kalambet/casetrail/internal/ledger"
	"github.com/kalambet/casetrail/internal/pipeline"
	"github.com/kalambet/casetrail/internal/resolve"
	"github.com/kalambet/casetrail/internal/storage"
)

const testToken = "test-token-12345"

const toolArgs = `{
	"events": [
		{"date": "2024-03-15", "category": "arrest_detention", "description": "Detained at border"},
		{"date": "2024-13-40", "category": "court_hearing", "description": "Hearing with a bad date"}
	],
	"entities": [{"name": "Border Police", "type": "law_enforcement"}],
	"discrepancies": [],
	"claims": [],
	"complianceViolations": [{"violationType": "procedural", "title": "No interpreter", "description": "Interview without interpreter", "severity": "high"}],
	"financialHarm": [{"incidentType": "asset_seizure", "title": "Laptop seized", "amount": 1200, "currency": "EUR", "documented": true}]
}`

func toolBody(args string) string {
	encoded, _ := json.Marshal(args)
	return `{"id":"gen-1","choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"extract_intelligence","arguments":` + string(encoded) + `}}]}}]}`
}

type testEnv struct {
	handler http.Handler
	store   *storage.Store
	runner  *pipeline.Pipeline
	calls   *atomic.Int32
}

func setupAppHandler(t *testing.T, gatewayStatus int, gatewayBody string) *testEnv {
	t.Helper()

	var calls atomic.Int32
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(gatewayStatus)
		fmt.Fprint(w, gatewayBody)
	}))
	t.Cleanup(gw.Close)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	objects, err := blob.NewFSStore(t.TempDir(), "evidence")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := pipeline.New(pipeline.Deps{
		Uploads:   store,
		Resolver:  resolve.NewResolver(objects, logger),
		Extractor: extraction.NewInvoker(gateway.NewClientWithBaseURL("key", gw.URL), "test/model", 500000, logger),
		Writer:    fanout.NewWriter(store, logger),
		Ledger:    ledger.New(store),
		Logger:    logger,
	})

	handler := NewAppHandler(AppDeps{
		Store:    store,
		Pipeline: runner,
		Intake:   intake.NewService(store, objects, logger),
		Token:    testToken,
		Logger:   logger,
	})
	return &testEnv{handler: handler, store: store, runner: runner, calls: &calls}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["error"]
}

func TestHealth_NoAuth(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))
	rr := serve(e.handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))

	for _, req := range []*http.Request{
		authReq(http.MethodGet, "/jobs", "", ""),
		authReq(http.MethodGet, "/jobs", "", "wrong"),
		authReq(http.MethodPost, "/extract", `{"uploadId":"pasted","documentContent":"x"}`, ""),
	} {
		rr := serve(e.handler, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", req.Method, req.URL.Path, rr.Code)
		}
	}
	if e.calls.Load() != 0 {
		t.Error("gateway called without auth")
	}
}

func TestExtract_Preflight(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))
	rr := serve(e.handler, httptest.NewRequest(http.MethodOptions, "/extract", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "authorization") {
		t.Errorf("allow headers = %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestExtract_MissingUploadID(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))

	for _, body := range []string{
		`{"documentContent":"Some text","caseId":"case-1","fileName":"a.txt"}`,
		`{"uploadId":"  "}`,
		``,
	} {
		rr := serve(e.handler, authReq(http.MethodPost, "/extract", body, testToken))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rr.Code)
		}
		if msg := decodeError(t, rr); msg != "uploadId is required" {
			t.Errorf("error = %q", msg)
		}
	}

	jobs, _ := e.store.ListJobs(t.Context(), storage.JobFilter{})
	if len(jobs) != 0 {
		t.Errorf("jobs = %d, want 0", len(jobs))
	}
	if e.calls.Load() != 0 {
		t.Error("gateway called for invalid request")
	}
}

func TestExtract_PastedSuccess(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))

	body := `{"uploadId":"pasted","documentContent":"Statement of events","caseId":"case-9"}`
	rr := serve(e.handler, authReq(http.MethodPost, "/extract", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header on response")
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != true {
		t.Errorf("success = %v", resp["success"])
	}
	want := map[string]float64{
		"eventsExtracted":               1,
		"entitiesExtracted":             1,
		"discrepanciesExtracted":        0,
		"claimsExtracted":               0,
		"complianceViolationsExtracted": 1,
		"financialHarmExtracted":        1,
	}
	for k, v := range want {
		if resp[k] != v {
			t.Errorf("%s = %v, want %v", k, resp[k], v)
		}
	}
}

func TestExtract_GatewayErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode int
		wantMsg  string
	}{
		{"rate limited", http.StatusTooManyRequests, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later."},
		{"credits exhausted", http.StatusPaymentRequired, http.StatusPaymentRequired, "AI credits exhausted. Please add credits to continue."},
		{"upstream failure", http.StatusInternalServerError, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupAppHandler(t, tt.status, `{"error":"upstream"}`)
			rr := serve(e.handler, authReq(http.MethodPost, "/extract", `{"uploadId":"pasted","documentContent":"x"}`, testToken))
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			msg := decodeError(t, rr)
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
			if msg == "" {
				t.Error("empty error message")
			}

			jobs, _ := e.store.ListJobs(t.Context(), storage.JobFilter{})
			if len(jobs) != 1 || jobs[0].Status != storage.JobFailed {
				t.Errorf("jobs = %+v", jobs)
			}
		})
	}
}

func TestUploadThenExtract(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))

	rr := serve(e.handler, authReq(http.MethodPost, "/uploads", `{"text":"Interview transcript","caseId":"case-1"}`, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var up uploadView
	if err := json.NewDecoder(rr.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	if up.FileName != "pasted-text.txt" || up.CaseID != "case-1" || up.MimeClass != "text" {
		t.Errorf("upload = %+v", up)
	}

	rr = serve(e.handler, authReq(http.MethodPost, "/extract", `{"uploadId":"`+up.ID+`"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("extract status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if e.calls.Load() != 1 {
		t.Errorf("gateway calls = %d, want 1", e.calls.Load())
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/jobs?upload_id="+up.ID, "", testToken))
	var jobs []jobView
	if err := json.NewDecoder(rr.Body).Decode(&jobs); err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Status != storage.JobCompleted || jobs[0].CaseID != "case-1" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].JobCounts.Events != 1 {
		t.Errorf("job events = %d, want 1", jobs[0].JobCounts.Events)
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/jobs/"+jobs[0].ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("get job status = %d", rr.Code)
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/uploads/"+up.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("get upload status = %d", rr.Code)
	}
}

func TestUpload_Multipart(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("case_id", "case-2")
	fw, err := mw.CreateFormFile("file", "scan.jpg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := serve(e.handler, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var up uploadView
	json.NewDecoder(rr.Body).Decode(&up)
	if up.MimeClass != "image" || up.SizeBytes != 4 || up.StoragePath != "case-2/"+up.ID+"/scan.jpg" {
		t.Errorf("upload = %+v", up)
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/uploads?case_id=case-2", "", testToken))
	var list []uploadView
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 {
		t.Errorf("uploads = %d, want 1", len(list))
	}
}

func TestUpload_EmptyIsBadRequest(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))
	rr := serve(e.handler, authReq(http.MethodPost, "/uploads", `{"caseId":"case-1"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestNotFound(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))
	for _, path := range []string{"/jobs/missing", "/uploads/missing"} {
		rr := serve(e.handler, authReq(http.MethodGet, path, "", testToken))
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rr.Code)
		}
	}
}

func TestCaseReads(t *testing.T) {
	e := setupAppHandler(t, http.StatusOK, toolBody(toolArgs))
	rr := serve(e.handler, authReq(http.MethodPost, "/extract", `{"uploadId":"pasted","documentContent":"text","caseId":"case-3"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("extract status = %d", rr.Code)
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/cases/case-3/summary", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rr.Code)
	}
	var sum CaseSummary
	if err := json.NewDecoder(rr.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.Jobs != 1 || sum.Events != 1 || sum.Entities != 1 || sum.Violations != 1 || sum.UnresolvedViolations != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.HarmIncidents != 1 || sum.FinancialLosses != 1 || sum.DocumentedLoss["EUR"] != 1200 {
		t.Errorf("harm summary = %+v", sum)
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/cases/case-3/events", "", testToken))
	var events []eventView
	json.NewDecoder(rr.Body).Decode(&events)
	if len(events) != 1 || events[0].Date != "2024-03-15" || events[0].ExtractionMethod != "ai_extraction" {
		t.Errorf("events = %+v", events)
	}

	rr = serve(e.handler, authReq(http.MethodGet, "/cases/case-3/entities", "", testToken))
	var entities []entityView
	json.NewDecoder(rr.Body).Decode(&entities)
	if len(entities) != 1 || entities[0].Name != "Border Police" {
		t.Errorf("entities = %+v", entities)
	}
}
