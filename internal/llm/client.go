package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxRetries            = 3
	initialBackoff        = 500 * time.Millisecond
)

// completionRequest is the OpenAI-compatible chat completion body both
// providers accept.
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// rateLimitError is returned on HTTP 429 so callers can back off and retry.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

// postCompletion sends a chat completion request and returns the first
// choice's content. Every call carries its own request-level deadline.
func postCompletion(ctx context.Context, client *http.Client, url string, headers map[string]string, body completionRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// postCompletionWithRetry retries rate-limited requests with exponential
// backoff. Other failures return immediately.
func postCompletionWithRetry(ctx context.Context, client *http.Client, url string, headers map[string]string, body completionRequest) (string, error) {
	var lastErr error
	for attempt := range maxRetries {
		text, err := postCompletion(ctx, client, url, headers, body)
		if err == nil {
			return text, nil
		}
		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// testConnection runs the shared connectivity probe: a one-word prompt with a
// tiny token budget.
func testConnection(ctx context.Context, p Provider) TestResult {
	_, err := p.Generate(ctx, []Message{{Role: "user", Content: "Hello"}}, 10, 0.0)
	if err != nil {
		return TestResult{
			Success: false,
			Model:   p.Model(),
			Message: fmt.Sprintf("Connection failed: %v", err),
		}
	}
	return TestResult{
		Success: true,
		Model:   p.Model(),
		Message: "Connection successful",
	}
}
