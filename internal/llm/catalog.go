package llm

// CatalogEntry describes one supported provider for the discovery endpoint.
type CatalogEntry struct {
	ID               ProviderID `json:"id"`
	Name             string     `json:"name"`
	RequiresEndpoint bool       `json:"requires_endpoint"`
	DefaultModels    []string   `json:"default_models"`
}

// Catalog returns the static list of supported providers.
func Catalog() []CatalogEntry {
	return []CatalogEntry{
		{
			ID:               ProviderAzureOpenAI,
			Name:             "Azure OpenAI",
			RequiresEndpoint: true,
			DefaultModels:    []string{"gpt-4o", "gpt-4", "gpt-35-turbo", "gpt-4-turbo"},
		},
		{
			ID:               ProviderOpenRouter,
			Name:             "OpenRouter",
			RequiresEndpoint: false,
			DefaultModels: []string{
				"anthropic/claude-sonnet-4",
				"openai/gpt-5",
				"x-ai/grok-4",
				"deepseek/deepseek-chat-v3.1",
				"google/gemini-2.5-flash",
			},
		},
	}
}
