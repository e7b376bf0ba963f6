package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/avelik/docqa/internal/retrieval"
)

// DefaultMaxAnswerTokens is the token budget for grounded answers.
const DefaultMaxAnswerTokens = 1000

// groundedTemperature is deliberately low: grounded answers favour factual
// consistency over creativity.
const groundedTemperature = 0.3

const groundedSystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
	"Use only the information from the context to answer questions. If the context doesn't contain " +
	"enough information to answer the question, say so clearly. Always cite the sources when possible."

// GenerateGroundedAnswer builds a two-message RAG prompt from the retrieved
// chunks and sends it to the active provider: a fixed system instruction
// restricting the model to the supplied context, and a user message of
// labeled source blocks followed by the question.
func (r *Registry) GenerateGroundedAnswer(ctx context.Context, query string, chunks []retrieval.Candidate) (string, error) {
	a := r.current.Load()
	if a == nil {
		return "", ErrNotConfigured
	}

	messages := []Message{
		{Role: "system", Content: groundedSystemPrompt},
		{Role: "user", Content: buildGroundedUserMessage(query, chunks)},
	}
	return a.provider.Generate(ctx, messages, DefaultMaxAnswerTokens, groundedTemperature)
}

func buildGroundedUserMessage(query string, chunks []retrieval.Candidate) string {
	blocks := make([]string, len(chunks))
	for i, ch := range chunks {
		name := ch.DocumentName
		if name == "" {
			name = "Unknown"
		}
		blocks[i] = fmt.Sprintf("Source: %s (Page %d)\n%s", name, ch.PageNumber, ch.Text)
	}

	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nPlease provide a comprehensive answer based on the context above.",
		strings.Join(blocks, "\n\n"), query)
}
