package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const defaultOpenAIURL = "https://api.openai.com"

// OpenAI talks to the OpenAI API or any server exposing the same endpoints.
type OpenAI struct {
	baseURL    string
	apiKey     string
	embedModel string
	chatModel  string
	client     *http.Client
}

// NewOpenAI creates an OpenAI client. An empty baseURL means api.openai.com.
func NewOpenAI(baseURL, apiKey, embedModel, chatModel string, client *http.Client) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		embedModel: embedModel,
		chatModel:  chatModel,
		client:     client,
	}
}

func (o *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

// Embed calls /v1/embeddings and returns vectors in input order.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := postJSON(ctx, o.client, o.baseURL+"/v1/embeddings", o.headers(), map[string]any{
		"model": o.embedModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	defer closeBody(resp)
	if err := checkStatus("openai", "embeddings", resp); err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(result.Data), len(texts))
	}
	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	out := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Generate calls /v1/chat/completions with prompt as the only user message.
func (o *OpenAI) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := postJSON(ctx, o.client, o.baseURL+"/v1/chat/completions", o.headers(), map[string]any{
		"model": o.chatModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	defer closeBody(resp)
	if err := checkStatus("openai", "chat", resp); err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}
	return result.Choices[0].Message.Content, nil
}
