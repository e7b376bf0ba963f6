package llm

import (
	"context"
	"net/http"
	"strings"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// openRouterClient talks to the OpenRouter API, an OpenAI-compatible
// aggregator. Rate-limited requests are retried with backoff.
type openRouterClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func newOpenRouterClient(cfg Config) *openRouterClient {
	model := cfg.ModelName
	if model == "" {
		model = "openai/gpt-3.5-turbo"
	}
	baseURL := openRouterBaseURL
	if cfg.Endpoint != "" {
		baseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	return &openRouterClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

func (c *openRouterClient) Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	return postCompletionWithRetry(ctx, c.httpClient, c.baseURL+"/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
		"HTTP-Referer":  "https://github.com/avelik/docqa",
		"X-Title":       "docqa",
	}, completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

func (c *openRouterClient) TestConnection(ctx context.Context) TestResult {
	return testConnection(ctx, c)
}

func (c *openRouterClient) Model() string { return c.model }
