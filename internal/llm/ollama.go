package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Ollama talks to a local Ollama server.
type Ollama struct {
	baseURL    string
	embedModel string
	chatModel  string
	client     *http.Client
}

// NewOllama creates an Ollama client.
func NewOllama(baseURL, embedModel, chatModel string, client *http.Client) *Ollama {
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		chatModel:  chatModel,
		client:     client,
	}
}

// Embed calls /api/embed with all texts in one request.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := postJSON(ctx, o.client, o.baseURL+"/api/embed", nil, map[string]any{
		"model": o.embedModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer closeBody(resp)
	if err := checkStatus("ollama", "embed", resp); err != nil {
		return nil, err
	}

	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// Generate sends prompt as a single user message to /api/chat.
func (o *Ollama) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := postJSON(ctx, o.client, o.baseURL+"/api/chat", nil, map[string]any{
		"model": o.chatModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer closeBody(resp)
	if err := checkStatus("ollama", "chat", resp); err != nil {
		return "", err
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return result.Message.Content, nil
}
