// Package llm provides embedding and text generation clients for Ollama and
// OpenAI-compatible HTTP APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/forumrag/internal/forum"
)

const maxErrorBody = 2048

// Config selects a provider and its models.
type Config struct {
	Provider   string
	BaseURL    string
	EmbedModel string
	ChatModel  string
	APIKey     string
	Timeout    time.Duration
}

// Client implements both forum.Embedder and forum.Generator.
type Client interface {
	forum.Embedder
	forum.Generator
}

// New builds the client for cfg.Provider.
func New(cfg Config) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.EmbedModel, cfg.ChatModel, httpClient), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key is required for openai")
		}
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.EmbedModel, cfg.ChatModel, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// StatusError is a non-200 response from a model API.
type StatusError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Provider, e.Endpoint, e.StatusCode, e.Body)
}

// checkStatus turns a non-200 response into a StatusError. Throttling and
// overload responses are wrapped in forum.RateLimitError.
func checkStatus(provider, endpoint string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := &StatusError{
		Provider:   provider,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return &forum.RateLimitError{Err: err}
	default:
		return err
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in any) (*http.Response, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close() //nolint:errcheck // body fully consumed or abandoned
}
