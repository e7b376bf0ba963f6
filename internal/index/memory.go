// Package index holds chunk vectors in memory and serves cosine-similarity
// search with document-scoped filtering and cascading delete.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Payload is the metadata stored alongside a chunk vector.
type Payload struct {
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Text         string
	PageNumber   int
	Metadata     map[string]any
}

// Hit is one search result: a chunk reference with its similarity score.
type Hit struct {
	ChunkID string
	Score   float32
	Payload Payload
}

// Index is the vector store contract. Memory is the in-process default; the
// interface leaves room for an external vector database later.
type Index interface {
	// Upsert stores or replaces the vector and payload for a chunk.
	Upsert(chunkID string, vector []float32, payload Payload) error

	// Search returns up to limit hits ranked by cosine similarity,
	// descending. When documentIDs is non-empty, candidates are restricted
	// to those documents before ranking. Ties keep insertion order.
	Search(vector []float32, limit int, documentIDs []string) []Hit

	// DeleteByDocument removes every chunk owned by the document and
	// returns how many were removed.
	DeleteByDocument(documentID string) int

	// Count returns the number of stored chunks.
	Count() int
}

var _ Index = (*Memory)(nil)

type entry struct {
	id      string
	vector  []float32
	norm    float64
	payload Payload
}

// Memory is an in-memory Index guarded by a RWMutex. Entries keep their
// insertion order, which is the tie-break order for equal scores. Vectors are
// not persisted; they live for the process lifetime.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []*entry
	byID    map[string]*entry
}

// NewMemory creates a Memory index expecting vectors of the given dimension.
// A dimension of 0 locks in the dimension of the first upserted vector.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dim:  dimension,
		byID: make(map[string]*entry),
	}
}

// Upsert stores or replaces a chunk vector. Replacing keeps the chunk's
// original insertion position.
func (m *Memory) Upsert(chunkID string, vector []float32, payload Payload) error {
	if len(vector) == 0 {
		return fmt.Errorf("upsert %s: empty vector", chunkID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(vector)
	}
	if len(vector) != m.dim {
		return fmt.Errorf("upsert %s: vector dimension %d, index expects %d", chunkID, len(vector), m.dim)
	}

	if e, ok := m.byID[chunkID]; ok {
		e.vector = vector
		e.norm = norm(vector)
		e.payload = payload
		return nil
	}

	e := &entry{id: chunkID, vector: vector, norm: norm(vector), payload: payload}
	m.entries = append(m.entries, e)
	m.byID[chunkID] = e
	return nil
}

// Search ranks stored chunks against the query vector by cosine similarity.
func (m *Memory) Search(vector []float32, limit int, documentIDs []string) []Hit {
	if limit <= 0 {
		return nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil
	}

	var filter map[string]struct{}
	if len(documentIDs) > 0 {
		filter = make(map[string]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			filter[id] = struct{}{}
		}
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if filter != nil {
			if _, ok := filter[e.payload.DocumentID]; !ok {
				continue
			}
		}
		hits = append(hits, Hit{
			ChunkID: e.id,
			Score:   cosine(vector, queryNorm, e.vector, e.norm),
			Payload: e.payload,
		})
	}
	m.mu.RUnlock()

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// DeleteByDocument removes all chunks owned by documentID. A search that
// starts after this returns can never observe the removed chunks.
func (m *Memory) DeleteByDocument(documentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if e.payload.DocumentID == documentID {
			delete(m.byID, e.id)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// Release references past the new length.
	for i := len(kept); i < len(m.entries); i++ {
		m.entries[i] = nil
	}
	m.entries = kept
	return removed
}

// Count returns the number of stored chunks.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * bNorm) with float64 accumulation.
func cosine(a []float32, aNorm float64, b []float32, bNorm float64) float32 {
	if len(a) != len(b) || aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (aNorm * bNorm))
}
