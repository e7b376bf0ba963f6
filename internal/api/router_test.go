package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avelik/docqa/internal/llm"
	"github.com/avelik/docqa/internal/rag"
	"github.com/avelik/docqa/internal/retrieval"
)

// --- mocks ---

type mockRAG struct {
	uploadResult rag.UploadResult
	uploadErr    error
	gotFilename  string
	gotContent   []byte

	queryResult rag.QueryResult
	queryErr    error
	gotQuery    rag.QueryRequest

	searchResult []retrieval.Candidate

	deleteRemoved int
	deleteErr     error
	gotDeleteID   string

	docs    []rag.DocumentInfo
	listErr error

	statusInfo rag.DocumentInfo
	statusErr  error

	chunkCount int
}

func (m *mockRAG) IngestDocument(_ context.Context, content []byte, filename string) (rag.UploadResult, error) {
	m.gotContent = content
	m.gotFilename = filename
	return m.uploadResult, m.uploadErr
}

func (m *mockRAG) Query(_ context.Context, req rag.QueryRequest) (rag.QueryResult, error) {
	m.gotQuery = req
	return m.queryResult, m.queryErr
}

func (m *mockRAG) Search(_ context.Context, _ string, _ int) ([]retrieval.Candidate, error) {
	return m.searchResult, nil
}

func (m *mockRAG) DeleteDocument(_ context.Context, id string) (int, error) {
	m.gotDeleteID = id
	return m.deleteRemoved, m.deleteErr
}

func (m *mockRAG) ListDocuments(context.Context) ([]rag.DocumentInfo, error) {
	return m.docs, m.listErr
}

func (m *mockRAG) DocumentStatus(_ context.Context, _ string) (rag.DocumentInfo, error) {
	return m.statusInfo, m.statusErr
}

func (m *mockRAG) ChunkCount() int { return m.chunkCount }

type mockLLM struct {
	configured   bool
	provider     llm.ProviderID
	model        string
	configureErr error
	gotConfig    llm.Config
	testResult   llm.TestResult
}

func (m *mockLLM) Configure(cfg llm.Config) error {
	if m.configureErr != nil {
		return m.configureErr
	}
	m.gotConfig = cfg
	m.configured = true
	m.provider = cfg.Provider
	return nil
}

func (m *mockLLM) TestConnection(context.Context) (llm.TestResult, error) {
	if !m.configured {
		return llm.TestResult{}, llm.ErrNotConfigured
	}
	return m.testResult, nil
}

func (m *mockLLM) IsConfigured() bool { return m.configured }

func (m *mockLLM) ActiveProvider() (llm.ProviderID, bool) {
	return m.provider, m.configured
}

func (m *mockLLM) ActiveModel() string { return m.model }

// --- helpers ---

func newTestHandler(t *testing.T) (http.Handler, *mockRAG, *mockLLM) {
	t.Helper()
	mr := &mockRAG{}
	ml := &mockLLM{}
	return NewHandler(Deps{RAG: mr, LLM: ml, MaxFileSize: 1 << 20}), mr, ml
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return m
}

func multipartUpload(t *testing.T, h http.Handler, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealth(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.chunkCount = 7

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["chunks_indexed"] != float64(7) {
		t.Errorf("chunks_indexed = %v", body["chunks_indexed"])
	}
	if body["llm_configured"] != false {
		t.Errorf("llm_configured = %v", body["llm_configured"])
	}
}

func TestUpload(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.uploadResult = rag.UploadResult{
		DocumentID: "d1", Filename: "a.pdf", Status: "completed",
		Message: "Document processed successfully", PageCount: 2, ChunkCount: 5,
	}

	rec := multipartUpload(t, h, "file", "a.pdf", []byte("%PDF-1.4 content"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["document_id"] != "d1" || body["chunk_count"] != float64(5) {
		t.Errorf("body = %v", body)
	}
	if body["message"] != "Document processed successfully" {
		t.Errorf("message = %v", body["message"])
	}
	if mr.gotFilename != "a.pdf" {
		t.Errorf("service got filename %q", mr.gotFilename)
	}
	if string(mr.gotContent) != "%PDF-1.4 content" {
		t.Errorf("service got content %q", mr.gotContent)
	}
}

func TestUpload_Rejections(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
	}{
		{"wrong field name", "document", "a.pdf", []byte("x")},
		{"not a pdf", "file", "notes.txt", []byte("x")},
		{"empty file", "file", "a.pdf", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := multipartUpload(t, h, tt.field, tt.filename, tt.content)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["error"] == nil {
				t.Error("missing error envelope")
			}
		})
	}
}

func TestUpload_ProcessingError(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.uploadErr = errors.New("corrupt pdf")

	rec := multipartUpload(t, h, "file", "bad.pdf", []byte("junk"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListDocuments_Empty(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/documents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"documents":[]`) {
		t.Errorf("empty list must encode as [], got %s", rec.Body.String())
	}
}

func TestDocumentStatus_NotFound(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.statusErr = rag.ErrDocumentNotFound

	rec := doJSON(t, h, http.MethodGet, "/documents/nope/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.deleteRemoved = 4

	rec := doJSON(t, h, http.MethodDelete, "/documents/d1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["chunks_deleted"] != float64(4) || body["document_id"] != "d1" {
		t.Errorf("body = %v", body)
	}
	if mr.gotDeleteID != "d1" {
		t.Errorf("service got id %q", mr.gotDeleteID)
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.deleteErr = rag.ErrDocumentNotFound

	rec := doJSON(t, h, http.MethodDelete, "/documents/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.queryResult = rag.QueryResult{Query: "is it so?", Answer: "yes", Sources: []rag.Source{{DocumentID: "d1"}}}

	rec := doJSON(t, h, http.MethodPost, "/query", QueryRequest{Query: "is it so?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["response"] != "yes" {
		t.Errorf("response = %v", body["response"])
	}
	if body["query"] != "is it so?" {
		t.Errorf("query = %v", body["query"])
	}

	// Defaults applied before reaching the service.
	if mr.gotQuery.MaxResults != rag.DefaultMaxResults {
		t.Errorf("MaxResults = %d, want default %d", mr.gotQuery.MaxResults, rag.DefaultMaxResults)
	}
	if !mr.gotQuery.UseReranking {
		t.Error("UseReranking must default to true")
	}
}

func TestQuery_RerankingOptOut(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	off := false

	rec := doJSON(t, h, http.MethodPost, "/query", QueryRequest{Query: "q", UseReranking: &off})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if mr.gotQuery.UseReranking {
		t.Error("UseReranking not propagated as false")
	}
}

func TestQuery_Validation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	tests := []struct {
		name string
		req  QueryRequest
	}{
		{"empty query", QueryRequest{Query: ""}},
		{"whitespace query", QueryRequest{Query: "   "}},
		{"query too long", QueryRequest{Query: strings.Repeat("q", 1001)}},
		{"max_results too small", QueryRequest{Query: "q", MaxResults: -1}},
		{"max_results too large", QueryRequest{Query: "q", MaxResults: 21}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/query", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestQuery_LLMNotConfigured(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.queryErr = rag.ErrLLMNotConfigured

	rec := doJSON(t, h, http.MethodPost, "/query", QueryRequest{Query: "q"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "LLM service not configured") {
		t.Errorf("body = %s, want the configuration message", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "llm_not_configured") {
		t.Errorf("body = %s, want error type llm_not_configured", rec.Body.String())
	}
}

func TestQuery_EmptySourcesEncodesAsArray(t *testing.T) {
	h, mr, _ := newTestHandler(t)
	mr.queryResult = rag.QueryResult{Answer: "nothing found"}

	rec := doJSON(t, h, http.MethodPost, "/query", QueryRequest{Query: "q"})
	if !strings.Contains(rec.Body.String(), `"sources":[]`) {
		t.Errorf("sources must encode as [], got %s", rec.Body.String())
	}
}

func TestProviders(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/llm/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Providers []llm.CatalogEntry `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Providers) != 2 {
		t.Errorf("got %d providers, want 2", len(body.Providers))
	}
}

func TestConfigure(t *testing.T) {
	h, _, ml := newTestHandler(t)
	ml.model = "openai/gpt-3.5-turbo"

	rec := doJSON(t, h, http.MethodPost, "/llm/configure", ConfigureRequest{
		Provider: "openrouter",
		APIKey:   "k",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ml.gotConfig.Provider != llm.ProviderOpenRouter || ml.gotConfig.APIKey != "k" {
		t.Errorf("config = %+v", ml.gotConfig)
	}
	body := decodeBody(t, rec)
	if body["status"] != "configured" {
		t.Errorf("body = %v", body)
	}
}

func TestConfigure_Validation(t *testing.T) {
	h, _, ml := newTestHandler(t)
	ml.configureErr = nil

	tests := []struct {
		name string
		req  ConfigureRequest
	}{
		{"missing provider", ConfigureRequest{APIKey: "k"}},
		{"missing api key", ConfigureRequest{Provider: "openrouter"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/llm/configure", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestConfigure_UnsupportedProvider(t *testing.T) {
	h, _, ml := newTestHandler(t)
	ml.configureErr = llm.ErrUnsupportedProvider

	rec := doJSON(t, h, http.MethodPost, "/llm/configure", ConfigureRequest{Provider: "mystery", APIKey: "k"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTestConnection_Unconfigured(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/llm/test", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTestConnection(t *testing.T) {
	h, _, ml := newTestHandler(t)
	ml.configured = true
	ml.provider = llm.ProviderOpenRouter
	ml.testResult = llm.TestResult{Success: true, Model: "gpt-4o", Message: "Connection successful"}

	rec := doJSON(t, h, http.MethodPost, "/llm/test", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["model"] != "gpt-4o" {
		t.Errorf("body = %v", body)
	}
	if body["provider"] != string(llm.ProviderOpenRouter) {
		t.Errorf("provider = %v, want %q", body["provider"], llm.ProviderOpenRouter)
	}
}

func TestLLMStatus(t *testing.T) {
	h, _, ml := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/llm/status", nil)
	body := decodeBody(t, rec)
	if body["configured"] != false {
		t.Errorf("configured = %v, want false", body["configured"])
	}
	if _, ok := body["provider"]; ok {
		t.Error("provider must be omitted while unconfigured")
	}

	ml.configured = true
	ml.provider = llm.ProviderAzureOpenAI
	ml.model = "prod-gpt4"

	rec = doJSON(t, h, http.MethodGet, "/llm/status", nil)
	body = decodeBody(t, rec)
	if body["configured"] != true || body["provider"] != "azure_openai" || body["model"] != "prod-gpt4" {
		t.Errorf("body = %v", body)
	}
}
