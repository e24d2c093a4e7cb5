// Package compat implements the model provider for OpenAI-compatible
// servers such as Ollama and LM Studio. No credential is required; model
// metadata is discovered from the listing endpoint and degrades silently
// when the server does not expose it.
package compat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/llm"
)

const (
	defaultContextLength = 4096
	providerName         = "openai-compatible"
)

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

	// metadata discovery runs once; concurrent first callers share the
	// in-flight fetch.
	metaOnce    sync.Once
	metaModel   string
	metaContext int
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required for an OpenAI-compatible endpoint")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:        strings.TrimSpace(cfg.APIKey),
		model:         strings.TrimSpace(cfg.Model),
		contextLength: cfg.ContextLength,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

func (p *Provider) ModelID() string {
	if p.model != "" {
		return p.model
	}
	p.discover(context.Background())
	if p.metaModel != "" {
		return p.metaModel
	}
	return "default"
}

func (p *Provider) ContextLength(ctx context.Context) (int, error) {
	if p.contextLength > 0 {
		return p.contextLength, nil
	}
	p.discover(ctx)
	if p.metaContext > 0 {
		return p.metaContext, nil
	}
	return defaultContextLength, nil
}

// discover reads the model listing once. Local servers differ in which
// field carries the context window, so three names are tried; any failure
// leaves the defaults in place.
func (p *Provider) discover(ctx context.Context) {
	p.metaOnce.Do(func() {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
		if err != nil {
			return
		}
		p.authorize(httpReq)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 {
			return
		}
		rawBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return
		}

		var parsed struct {
			Data []struct {
				ID               string `json:"id"`
				ContextLength    int    `json:"context_length"`
				MaxContextLength int    `json:"max_context_length"`
				ContextWindow    int    `json:"context_window"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rawBody, &parsed); err != nil || len(parsed.Data) == 0 {
			return
		}

		entry := parsed.Data[0]
		if p.model != "" {
			for _, candidate := range parsed.Data {
				if candidate.ID == p.model {
					entry = candidate
					break
				}
			}
		}
		p.metaModel = entry.ID
		switch {
		case entry.ContextLength > 0:
			p.metaContext = entry.ContextLength
		case entry.MaxContextLength > 0:
			p.metaContext = entry.MaxContextLength
		case entry.ContextWindow > 0:
			p.metaContext = entry.ContextWindow
		}
	})
}

func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	model := p.model
	if model == "" {
		p.discover(ctx)
		model = p.metaModel
	}
	if model == "" {
		model = "default"
	}

	payload := map[string]any{
		"model":           model,
		"messages":        req.Messages,
		"temperature":     req.Temperature,
		"response_format": map[string]string{"type": "json_object"},
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
	p.authorize(httpReq)

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
		lower := strings.ToLower(string(rawBody))
		if resp.StatusCode < 500 && (strings.Contains(lower, "context") || strings.Contains(lower, "too long")) {
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

	respModel := parsed.Model
	if respModel == "" {
		respModel = model
	}
	return llm.GenerateResponse{Content: parsed.Choices[0].Message.Content, Model: respModel}, nil
}

func (p *Provider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
