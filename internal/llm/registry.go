// Package llm holds the pluggable generation backends and the process-wide
// registry that selects the active one.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var (
	// ErrNotConfigured is returned by generation calls before any provider
	// has been configured.
	ErrNotConfigured = errors.New("no LLM provider configured")

	// ErrUnsupportedProvider is returned by Configure for a provider tag
	// outside the closed set.
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
)

// ProviderID tags a supported generation backend. The set is closed; adding
// a provider means a new constant, a client, and a catalog entry.
type ProviderID string

const (
	ProviderAzureOpenAI ProviderID = "azure_openai"
	ProviderOpenRouter  ProviderID = "openrouter"
)

// Config selects and authenticates a provider. Endpoint, APIVersion and
// DeploymentName only apply to Azure OpenAI.
type Config struct {
	Provider       ProviderID
	APIKey         string
	Endpoint       string
	ModelName      string
	APIVersion     string
	DeploymentName string
}

// Message is a chat message sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TestResult is the outcome of a connectivity probe. A failed probe is a
// result, not an error.
type TestResult struct {
	Success bool
	Model   string
	Message string
}

// Provider is the capability every generation backend implements. Variants
// differ only in endpoint and authentication shape.
type Provider interface {
	// Generate sends the messages and returns the assistant's text.
	Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error)

	// TestConnection sends a minimal probe request.
	TestConnection(ctx context.Context) TestResult

	// Model returns the effective model identifier.
	Model() string
}

type active struct {
	provider Provider
	config   Config
}

// Registry holds the single active provider. Configure swaps it atomically;
// a generation call in flight keeps the snapshot it started with.
type Registry struct {
	current atomic.Pointer[active]
	logger  *slog.Logger
}

// NewRegistry creates an unconfigured Registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// Configure validates the provider tag, builds the concrete client, and
// atomically replaces the active provider. Field-level validation beyond the
// tag (endpoints, keys) is the transport layer's concern; a misconfigured
// provider surfaces through TestConnection or Generate.
func (r *Registry) Configure(cfg Config) error {
	var p Provider
	switch cfg.Provider {
	case ProviderAzureOpenAI:
		p = newAzureClient(cfg)
	case ProviderOpenRouter:
		p = newOpenRouterClient(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}

	r.current.Store(&active{provider: p, config: cfg})
	r.logger.Info("configured LLM provider", "provider", cfg.Provider, "model", p.Model())
	return nil
}

// IsConfigured reports whether a provider is active.
func (r *Registry) IsConfigured() bool {
	return r.current.Load() != nil
}

// ActiveProvider returns the tag of the active provider, if any.
func (r *Registry) ActiveProvider() (ProviderID, bool) {
	a := r.current.Load()
	if a == nil {
		return "", false
	}
	return a.config.Provider, true
}

// ActiveModel returns the active provider's effective model identifier, or
// "" when nothing is configured.
func (r *Registry) ActiveModel() string {
	a := r.current.Load()
	if a == nil {
		return ""
	}
	return a.provider.Model()
}

// Generate sends messages to the active provider.
func (r *Registry) Generate(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	a := r.current.Load()
	if a == nil {
		return "", ErrNotConfigured
	}
	return a.provider.Generate(ctx, messages, maxTokens, temperature)
}

// TestConnection probes the active provider. ErrNotConfigured is returned
// when nothing is configured; probe failures come back inside the result.
func (r *Registry) TestConnection(ctx context.Context) (TestResult, error) {
	a := r.current.Load()
	if a == nil {
		return TestResult{}, ErrNotConfigured
	}
	return a.provider.TestConnection(ctx), nil
}
