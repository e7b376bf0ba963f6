package llm

import (
	"context"
	"net/http"
	"strings"
)

const defaultAzureAPIVersion = "2024-10-01-preview"

// azureClient talks to an Azure OpenAI deployment. Authentication uses the
// api-key header; the deployment name selects the model.
type azureClient struct {
	endpoint   string
	apiKey     string
	apiVersion string
	model      string
	httpClient *http.Client
}

func newAzureClient(cfg Config) *azureClient {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAzureAPIVersion
	}
	model := cfg.DeploymentName
	if model == "" {
		model = cfg.ModelName
	}
	if model == "" {
		model = "gpt-35-turbo"
	}
	return &azureClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: apiVersion,
		model:      model,
		httpClient: &http.Client{},
	}
}

func (c *azureClient) url() string {
	return c.endpoint + "/openai/deployments/" + c.model + "/chat/completions?api-version=" + c.apiVersion
}

func (c *azureClient) Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	return postCompletion(ctx, c.httpClient, c.url(), map[string]string{
		"api-key": c.apiKey,
	}, completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

func (c *azureClient) TestConnection(ctx context.Context) TestResult {
	return testConnection(ctx, c)
}

func (c *azureClient) Model() string { return c.model }
