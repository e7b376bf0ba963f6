// Package rag orchestrates the document pipeline: ingest PDFs into chunks
// and vectors, answer queries over them, and keep the vector index, metadata
// store, and files on disk consistent.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelik/docqa/internal/chunker"
	"github.com/avelik/docqa/internal/index"
	"github.com/avelik/docqa/internal/reranking"
	"github.com/avelik/docqa/internal/retrieval"
	"github.com/avelik/docqa/internal/storage"
)

// ErrDocumentNotFound is returned for operations on an unknown document ID.
var ErrDocumentNotFound = errors.New("document not found")

// ErrLLMNotConfigured is returned by Query when no LLM provider has been
// configured yet.
var ErrLLMNotConfigured = errors.New("LLM service not configured. Please configure an LLM provider first.")

const (
	// DefaultMaxResults is the number of sources returned when the caller
	// does not ask for a specific count.
	DefaultMaxResults = 5

	// retrievalMultiplier widens the first-stage retrieval so the reranker
	// has more candidates to choose from than the caller asked for.
	retrievalMultiplier = 2

	// previewLength bounds the source text preview in query responses.
	previewLength = 200

	msgNoResults = "I couldn't find any relevant information in the uploaded documents to answer your question."
)

// Extractor pulls per-page plain text out of a stored file.
type Extractor interface {
	Pages(path string) ([]string, error)
}

// DocumentStore persists document metadata across restarts.
type DocumentStore interface {
	InsertDocument(d storage.Document) error
	CompleteDocument(id string, pageCount, chunkCount int) error
	GetDocument(id string) (storage.Document, error)
	ListDocuments() ([]storage.Document, error)
	DeleteDocument(id string) error
}

// Generator produces grounded answers from retrieved context.
type Generator interface {
	IsConfigured() bool
	GenerateGroundedAnswer(ctx context.Context, query string, chunks []retrieval.Candidate) (string, error)
}

// Service ties the pipeline together. Operations on the same document ID are
// serialized by a per-document lock so a delete never races an ingest.
type Service struct {
	chunker   *chunker.Chunker
	embedder  *retrieval.Embedder
	retriever *retrieval.Retriever
	index     index.Index
	extractor Extractor
	store     DocumentStore
	generator Generator
	reranker  reranking.Reranker
	uploadDir string
	logger    *slog.Logger

	locksMu  sync.Mutex
	docLocks map[string]*sync.Mutex
}

// New assembles a Service from its collaborators.
func New(ch *chunker.Chunker, embedder *retrieval.Embedder, idx index.Index, extractor Extractor, store DocumentStore, generator Generator, reranker reranking.Reranker, uploadDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chunker:   ch,
		embedder:  embedder,
		retriever: retrieval.NewRetriever(embedder, idx),
		index:     idx,
		extractor: extractor,
		store:     store,
		generator: generator,
		reranker:  reranker,
		uploadDir: uploadDir,
		logger:    logger,
		docLocks:  make(map[string]*sync.Mutex),
	}
}

// lockDocument returns the mutex serializing operations on one document ID,
// creating it on first use. Locks are never removed; the map is bounded by
// the number of documents ever seen in this process.
func (s *Service) lockDocument(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.docLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.docLocks[id] = mu
	}
	return mu
}

// UploadResult reports a completed ingestion.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
}

// IngestDocument stores the uploaded file, extracts its text page by page,
// chunks and embeds it, and indexes the vectors. The document is visible in
// listings as processing while this runs and completed afterwards. On any
// failure the partial state (file, metadata row, indexed vectors) is rolled
// back and the error returned.
func (s *Service) IngestDocument(ctx context.Context, content []byte, originalFilename string) (UploadResult, error) {
	docID := uuid.New().String()
	storedName := docID + ".pdf"
	path := filepath.Join(s.uploadDir, storedName)

	mu := s.lockDocument(docID)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return UploadResult{}, fmt.Errorf("creating upload directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return UploadResult{}, fmt.Errorf("saving upload: %w", err)
	}

	doc := storage.Document{
		ID:               docID,
		Filename:         storedName,
		OriginalFilename: originalFilename,
		FilePath:         path,
		Status:           storage.StatusProcessing,
		UploadTime:       time.Now().UTC(),
	}
	if err := s.store.InsertDocument(doc); err != nil {
		os.Remove(path)
		return UploadResult{}, fmt.Errorf("recording document: %w", err)
	}

	pageCount, chunkCount, err := s.process(ctx, docID, originalFilename, path)
	if err != nil {
		s.rollback(docID, path)
		s.logger.Error("document ingestion failed", "document_id", docID, "filename", originalFilename, "error", err)
		return UploadResult{}, fmt.Errorf("processing document %s: %w", originalFilename, err)
	}

	if err := s.store.CompleteDocument(docID, pageCount, chunkCount); err != nil {
		s.rollback(docID, path)
		return UploadResult{}, fmt.Errorf("completing document: %w", err)
	}

	s.logger.Info("document ingested", "document_id", docID, "filename", originalFilename,
		"pages", pageCount, "chunks", chunkCount)

	return UploadResult{
		DocumentID: docID,
		Filename:   originalFilename,
		Status:     storage.StatusCompleted,
		Message:    "Document processed successfully",
		PageCount:  pageCount,
		ChunkCount: chunkCount,
	}, nil
}

// process extracts, chunks, embeds, and indexes one document. Returns the
// number of pages that produced chunks and the total chunk count.
func (s *Service) process(ctx context.Context, docID, originalFilename, path string) (pageCount, chunkCount int, err error) {
	pages, err := s.extractor.Pages(path)
	if err != nil {
		return 0, 0, fmt.Errorf("extracting text: %w", err)
	}

	// Pages are 1-based; chunk indexes are renumbered document-wide.
	var chunks []chunker.Chunk
	for i, pageText := range pages {
		pageChunks := s.chunker.Chunk(pageText, i+1, docID)
		if len(pageChunks) == 0 {
			continue
		}
		pageCount++
		for _, ch := range pageChunks {
			ch.Index = len(chunks)
			chunks = append(chunks, ch)
		}
	}
	if len(chunks) == 0 {
		return 0, 0, fmt.Errorf("no extractable text")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("embedding chunks: %w", err)
	}

	for i, ch := range chunks {
		payload := index.Payload{
			DocumentID:   docID,
			DocumentName: originalFilename,
			ChunkIndex:   ch.Index,
			Text:         ch.Text,
			PageNumber:   ch.PageNumber,
			Metadata:     ch.Metadata,
		}
		if err := s.index.Upsert(ch.ID, vectors[i], payload); err != nil {
			s.index.DeleteByDocument(docID)
			return 0, 0, fmt.Errorf("indexing chunk %d: %w", ch.Index, err)
		}
	}

	return pageCount, len(chunks), nil
}

// rollback removes every trace of a failed ingestion.
func (s *Service) rollback(docID, path string) {
	s.index.DeleteByDocument(docID)
	if err := s.store.DeleteDocument(docID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("rollback: deleting document row", "document_id", docID, "error", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("rollback: removing file", "path", path, "error", err)
	}
}

// QueryRequest carries one question over the ingested documents.
type QueryRequest struct {
	Query        string
	MaxResults   int
	UseReranking bool
	DocumentIDs  []string // empty means all documents
}

// Source is a citation backing an answer.
type Source struct {
	DocumentID      string   `json:"document_id"`
	DocumentName    string   `json:"document_name"`
	PageNumber      int      `json:"page_number"`
	ChunkIndex      int      `json:"chunk_index"`
	TextPreview     string   `json:"text_preview"`
	SimilarityScore float32  `json:"similarity_score"`
	RerankScore     *float32 `json:"rerank_score,omitempty"`
}

// QueryResult is the answer with its citations. The query is echoed back so
// responses are self-describing.
type QueryResult struct {
	Query          string   `json:"query"`
	Answer         string   `json:"response"`
	Sources        []Source `json:"sources"`
	ProcessingTime float64  `json:"processing_time"`
}

// Query answers a question over the ingested documents. An unconfigured LLM
// is ErrLLMNotConfigured; an empty retrieval produces a canned answer rather
// than an error.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	start := time.Now()

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if !s.generator.IsConfigured() {
		return QueryResult{}, ErrLLMNotConfigured
	}

	candidates, err := s.retriever.Retrieve(ctx, req.Query, maxResults*retrievalMultiplier, req.DocumentIDs)
	if err != nil {
		return QueryResult{}, fmt.Errorf("retrieving context: %w", err)
	}
	if len(candidates) == 0 {
		return QueryResult{
			Query:          req.Query,
			Answer:         msgNoResults,
			ProcessingTime: time.Since(start).Seconds(),
		}, nil
	}

	if req.UseReranking {
		candidates = s.reranker.Rerank(ctx, req.Query, candidates, maxResults)
	} else if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	answer, err := s.generator.GenerateGroundedAnswer(ctx, req.Query, candidates)
	if err != nil {
		return QueryResult{}, fmt.Errorf("generating answer: %w", err)
	}

	sources := make([]Source, len(candidates))
	for i, c := range candidates {
		sources[i] = Source{
			DocumentID:      c.DocumentID,
			DocumentName:    c.DocumentName,
			PageNumber:      c.PageNumber,
			ChunkIndex:      c.ChunkIndex,
			TextPreview:     preview(c.Text),
			SimilarityScore: c.Score,
			RerankScore:     c.RerankScore,
		}
	}

	return QueryResult{
		Query:          req.Query,
		Answer:         answer,
		Sources:        sources,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// Search retrieves ranked chunks for a query without invoking the LLM. Used
// by callers that want raw context rather than a generated answer.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]retrieval.Candidate, error) {
	if topK <= 0 {
		topK = DefaultMaxResults
	}
	return s.retriever.Retrieve(ctx, query, topK, nil)
}

// DeleteDocument removes a document and everything derived from it: indexed
// vectors, the metadata row, and the stored file. Returns the number of
// chunks removed from the index, or ErrDocumentNotFound.
func (s *Service) DeleteDocument(ctx context.Context, id string) (int, error) {
	mu := s.lockDocument(id)
	mu.Lock()
	defer mu.Unlock()

	doc, err := s.store.GetDocument(id)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrDocumentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("loading document: %w", err)
	}

	removed := s.index.DeleteByDocument(id)
	if err := s.store.DeleteDocument(id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return removed, fmt.Errorf("deleting document row: %w", err)
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing document file", "path", doc.FilePath, "error", err)
	}

	s.logger.Info("document deleted", "document_id", id, "chunks_removed", removed)
	return removed, nil
}

// DocumentInfo is the listing view of one document.
type DocumentInfo struct {
	DocumentID  string     `json:"document_id"`
	Filename    string     `json:"filename"`
	Status      string     `json:"status"`
	UploadTime  time.Time  `json:"upload_time"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	PageCount   int        `json:"page_count"`
	ChunkCount  int        `json:"chunk_count"`
}

// ListDocuments returns all known documents, newest first.
func (s *Service) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	docs, err := s.store.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	infos := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		infos[i] = documentInfo(d)
	}
	return infos, nil
}

// DocumentStatus returns the current state of one document.
func (s *Service) DocumentStatus(ctx context.Context, id string) (DocumentInfo, error) {
	doc, err := s.store.GetDocument(id)
	if errors.Is(err, storage.ErrNotFound) {
		return DocumentInfo{}, ErrDocumentNotFound
	}
	if err != nil {
		return DocumentInfo{}, fmt.Errorf("loading document: %w", err)
	}
	return documentInfo(doc), nil
}

// ChunkCount reports the number of vectors currently indexed.
func (s *Service) ChunkCount() int {
	return s.index.Count()
}

func documentInfo(d storage.Document) DocumentInfo {
	return DocumentInfo{
		DocumentID:  d.ID,
		Filename:    d.OriginalFilename,
		Status:      d.Status,
		UploadTime:  d.UploadTime,
		CompletedAt: d.CompletedAt,
		PageCount:   d.PageCount,
		ChunkCount:  d.ChunkCount,
	}
}

// preview truncates text for citation display. Truncation is marked so the
// client can tell a short chunk from a cut one.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
