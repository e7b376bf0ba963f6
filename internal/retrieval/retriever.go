package retrieval

import (
	"context"

	"github.com/avelik/docqa/internal/index"
)

// Candidate is a retrieved context chunk with its similarity score. It is
// produced per query and never persisted. RerankScore is attached by the
// reranking stage; ordering after reranking follows it, while Score keeps the
// original retrieval similarity.
type Candidate struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Text         string
	PageNumber   int
	Metadata     map[string]any
	Score        float32
	RerankScore  *float32
}

// Retriever combines the embedder and the vector index to find relevant
// chunks for a query.
type Retriever struct {
	embedder *Embedder
	index    index.Index
}

// NewRetriever creates a Retriever over the given Embedder and Index.
func NewRetriever(embedder *Embedder, idx index.Index) *Retriever {
	return &Retriever{embedder: embedder, index: idx}
}

// Retrieve embeds the query and returns up to limit candidates ranked by
// cosine similarity. An empty documentIDs slice means all documents.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int, documentIDs []string) ([]Candidate, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits := r.index.Search(vec, limit, documentIDs)
	return hitsToCandidates(hits), nil
}

func hitsToCandidates(hits []index.Hit) []Candidate {
	cands := make([]Candidate, len(hits))
	for i, h := range hits {
		cands[i] = Candidate{
			ChunkID:      h.ChunkID,
			DocumentID:   h.Payload.DocumentID,
			DocumentName: h.Payload.DocumentName,
			ChunkIndex:   h.Payload.ChunkIndex,
			Text:         h.Payload.Text,
			PageNumber:   h.Payload.PageNumber,
			Metadata:     h.Payload.Metadata,
			Score:        h.Score,
		}
	}
	return cands
}
