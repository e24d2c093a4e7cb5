// Package openai implements the model provider for the OpenAI chat API and
// endpoints that mirror it, including structured JSON output.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/llm"
)

const (
	defaultBaseURL       = "https://api.openai.com"
	defaultModel         = "gpt-4o-mini"
	defaultContextLength = 128000
	providerName         = "openai"
)

// contextLengths maps model id prefixes to context windows, most specific
// first. An explicitly configured length always wins.
var contextLengths = []struct {
	prefix string
	tokens int
}{
	{"gpt-5", 400000},
	{"gpt-4.1", 1047576},
	{"gpt-4o-mini", 128000},
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"o3", 200000},
	{"o1", 200000},
}

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	ContextLength int
	Timeout       time.Duration
}

type Provider struct {
	baseURL       string
	apiKey        string
	model         string
	contextLength int
	client        *http.Client
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Provider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		model:         model,
		contextLength: cfg.ContextLength,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

func (p *Provider) ModelID() string { return p.model }

func (p *Provider) ContextLength(ctx context.Context) (int, error) {
	if p.contextLength > 0 {
		return p.contextLength, nil
	}
	for _, entry := range contextLengths {
		if strings.HasPrefix(p.model, entry.prefix) {
			return entry.tokens, nil
		}
	}
	return defaultContextLength, nil
}

func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	payload := map[string]any{
		"model":       p.model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "query_response",
				"strict": true,
				"schema": llm.ResponseSchema,
			},
		},
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		if resp.StatusCode < 500 && strings.Contains(strings.ToLower(string(rawBody)), "context") {
			return llm.GenerateResponse{}, &llm.ContextOverflowError{Provider: providerName, Message: llm.CompactBody(rawBody)}
		}
		return llm.GenerateResponse{}, &llm.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: llm.CompactBody(rawBody)}
	}

	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return llm.GenerateResponse{}, llm.EmptyResponse(providerName)
	}

	model := parsed.Model
	if model == "" {
		model = p.model
	}
	return llm.GenerateResponse{Content: parsed.Choices[0].Message.Content, Model: model}, nil
}
