// Package reranking re-scores retrieved candidates against the query with a
// cross-encoder-style model.
package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avelik/docqa/internal/ollama"
	"github.com/avelik/docqa/internal/retrieval"
)

const scoreConcurrency = 3

// ScoreClient produces a structured chat completion used for relevance
// scoring.
type ScoreClient interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Reranker reorders candidates by query relevance. Implementations must not
// fail a query: on any model error the original retrieval order is returned,
// truncated to topK when topK > 0.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) []retrieval.Candidate
}

// CrossEncoder scores each (query, candidate) pair with a scoring model and
// resorts candidates by the resulting relevance score, descending. Scoring
// runs concurrently, bounded to scoreConcurrency calls in flight.
type CrossEncoder struct {
	client  ScoreClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCrossEncoder creates a CrossEncoder using the given scoring model.
// timeout bounds the whole rerank pass; zero or negative means 10s.
func NewCrossEncoder(client ScoreClient, model string, timeout time.Duration) *CrossEncoder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CrossEncoder{client: client, model: model, timeout: timeout, logger: slog.Default()}
}

// Rerank attaches a rerank score to every candidate and sorts by it,
// descending. The original retrieval score is retained but no longer orders
// the result. Failure degrades to the original order, truncated to topK.
func (r *CrossEncoder) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) []retrieval.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scored := make([]retrieval.Candidate, len(candidates))
	copy(scored, candidates)

	g, gCtx := errgroup.WithContext(scoreCtx)
	g.SetLimit(scoreConcurrency)
	for i := range scored {
		g.Go(func() error {
			score, err := r.score(gCtx, query, scored[i].Text)
			if err != nil {
				return fmt.Errorf("scoring candidate %s: %w", scored[i].ChunkID, err)
			}
			s := float32(score)
			scored[i].RerankScore = &s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn("reranking failed, keeping retrieval order", "error", err)
		return truncate(candidates, topK)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].RerankScore > *scored[j].RerankScore
	})
	return truncate(scored, topK)
}

func (r *CrossEncoder) score(ctx context.Context, query, text string) (float64, error) {
	prompt := "Rate the relevance of the following text to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Text: " + text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
		},
		Required: []string{"score"},
	}

	resp, err := r.client.Chat(ctx, r.model, []ollama.Message{
		{Role: "user", Content: prompt},
	}, schema)
	if err != nil {
		return 0, err
	}
	return parseScore(resp)
}

// parseScore extracts the relevance score from a model response. Small local
// models frequently wrap JSON in markdown code fences or prepend
// conversational filler, so the parser strips fences and locates the JSON
// object by brace position before unmarshalling.
func parseScore(resp string) (float64, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, fmt.Errorf("no JSON object in response %q", resp)
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

func truncate(cands []retrieval.Candidate, topK int) []retrieval.Candidate {
	if topK > 0 && len(cands) > topK {
		return cands[:topK]
	}
	return cands
}

// NoOp keeps candidates in retrieval order, truncated to topK. Used when the
// scoring model is unavailable.
type NoOp struct{}

func (NoOp) Rerank(_ context.Context, _ string, candidates []retrieval.Candidate, topK int) []retrieval.Candidate {
	return truncate(candidates, topK)
}
