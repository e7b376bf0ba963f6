// Package api exposes the document question-answering service over HTTP and
// MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/avelik/docqa/internal/llm"
	"github.com/avelik/docqa/internal/rag"
	"github.com/avelik/docqa/internal/retrieval"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB, JSON endpoints

	maxQueryLength    = 1000
	maxResultsCeiling = 20
)

// RAGService is the document pipeline as the HTTP layer consumes it.
type RAGService interface {
	IngestDocument(ctx context.Context, content []byte, filename string) (rag.UploadResult, error)
	Query(ctx context.Context, req rag.QueryRequest) (rag.QueryResult, error)
	Search(ctx context.Context, query string, topK int) ([]retrieval.Candidate, error)
	DeleteDocument(ctx context.Context, id string) (int, error)
	ListDocuments(ctx context.Context) ([]rag.DocumentInfo, error)
	DocumentStatus(ctx context.Context, id string) (rag.DocumentInfo, error)
	ChunkCount() int
}

// LLMManager is the provider registry as the HTTP layer consumes it.
type LLMManager interface {
	Configure(cfg llm.Config) error
	TestConnection(ctx context.Context) (llm.TestResult, error)
	IsConfigured() bool
	ActiveProvider() (llm.ProviderID, bool)
	ActiveModel() string
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	RAG         RAGService
	LLM         LLMManager
	MaxFileSize int64 // upload body limit in bytes
}

// NewHandler builds the HTTP API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Post("/documents/upload", handleUpload(deps))
	r.Get("/documents", handleListDocuments(deps))
	r.Get("/documents/{id}/status", handleDocumentStatus(deps))
	r.Delete("/documents/{id}", handleDeleteDocument(deps))

	r.Post("/query", handleQuery(deps))

	r.Get("/llm/providers", handleProviders())
	r.Post("/llm/configure", handleConfigure(deps))
	r.Post("/llm/test", handleTestConnection(deps))
	r.Get("/llm/status", handleLLMStatus(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"chunks_indexed": deps.RAG.ChunkCount(),
			"llm_configured": deps.LLM.IsConfigured(),
		})
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxFileSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "only PDF files are supported, got %q", header.Filename)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}
		if len(content) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "uploaded file is empty")
			return
		}

		res, err := deps.RAG.IngestDocument(r.Context(), content, header.Filename)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "processing_error", "processing document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.RAG.ListDocuments(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}
		if docs == nil {
			docs = []rag.DocumentInfo{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	}
}

func handleDocumentStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		info, err := deps.RAG.DocumentStatus(r.Context(), id)
		if errors.Is(err, rag.ErrDocumentNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		removed, err := deps.RAG.DeleteDocument(r.Context(), id)
		if errors.Is(err, rag.ErrDocumentNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "deleted",
			"document_id":    id,
			"chunks_deleted": removed,
		})
	}
}

// QueryRequest is the /query body. UseReranking defaults to true when
// omitted.
type QueryRequest struct {
	Query        string   `json:"query"`
	MaxResults   int      `json:"max_results"`
	UseReranking *bool    `json:"use_reranking"`
	DocumentIDs  []string `json:"document_ids"`
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		query := strings.TrimSpace(req.Query)
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if utf8.RuneCountInString(query) > maxQueryLength {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query exceeds %d characters", maxQueryLength)
			return
		}

		maxResults := req.MaxResults
		if maxResults == 0 {
			maxResults = rag.DefaultMaxResults
		}
		if maxResults < 1 || maxResults > maxResultsCeiling {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "max_results must be between 1 and %d", maxResultsCeiling)
			return
		}

		useReranking := true
		if req.UseReranking != nil {
			useReranking = *req.UseReranking
		}

		res, err := deps.RAG.Query(r.Context(), rag.QueryRequest{
			Query:        query,
			MaxResults:   maxResults,
			UseReranking: useReranking,
			DocumentIDs:  req.DocumentIDs,
		})
		if errors.Is(err, rag.ErrLLMNotConfigured) {
			httpError(w, http.StatusInternalServerError, "llm_not_configured", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "answering query: %v", err)
			return
		}
		if res.Sources == nil {
			res.Sources = []rag.Source{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleProviders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"providers": llm.Catalog()})
	}
}

// ConfigureRequest is the /llm/configure body.
type ConfigureRequest struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	Endpoint       string `json:"endpoint"`
	ModelName      string `json:"model_name"`
	APIVersion     string `json:"api_version"`
	DeploymentName string `json:"deployment_name"`
}

func handleConfigure(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ConfigureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Provider == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "provider is required")
			return
		}
		if req.APIKey == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "api_key is required")
			return
		}

		err := deps.LLM.Configure(llm.Config{
			Provider:       llm.ProviderID(req.Provider),
			APIKey:         req.APIKey,
			Endpoint:       req.Endpoint,
			ModelName:      req.ModelName,
			APIVersion:     req.APIVersion,
			DeploymentName: req.DeploymentName,
		})
		if errors.Is(err, llm.ErrUnsupportedProvider) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "configuring provider: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "configured",
			"provider": req.Provider,
			"model":    deps.LLM.ActiveModel(),
		})
	}
}

func handleTestConnection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.LLM.TestConnection(r.Context())
		if errors.Is(err, llm.ErrNotConfigured) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no LLM provider configured")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "testing connection: %v", err)
			return
		}
		provider, _ := deps.LLM.ActiveProvider()
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  res.Success,
			"provider": string(provider),
			"model":    res.Model,
			"message":  res.Message,
		})
	}
}

func handleLLMStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := deps.LLM.ActiveProvider()
		status := map[string]any{"configured": ok}
		if ok {
			status["provider"] = string(provider)
			status["model"] = deps.LLM.ActiveModel()
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
