// Package anthropic implements the model provider for the Anthropic
// messages API. Structured output is forced through a single tool call whose
// input is echoed back as the JSON answer.
package anthropic

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
	defaultBaseURL       = "https://api.anthropic.com"
	defaultModel         = "claude-sonnet-4-5"
	defaultContextLength = 200000
	defaultMaxTokens     = 1024
	apiVersion           = "2023-06-01"
	toolName             = "record_query"
	providerName         = "anthropic"
)

var contextLengths = []struct {
	prefix string
	tokens int
}{
	{"claude-opus-4", 200000},
	{"claude-sonnet-4", 200000},
	{"claude-3-7-sonnet", 200000},
	{"claude-3-5-sonnet", 200000},
	{"claude-3-5-haiku", 200000},
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
		return nil, fmt.Errorf("anthropic api key is required")
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
	system, messages := splitSystem(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := map[string]any{
		"model":      p.model,
		"max_tokens": maxTokens,
		"messages":   messages,
		"tools": []map[string]any{{
			"name":         toolName,
			"description":  "Record the SQL query that answers the user's question.",
			"input_schema": llm.ResponseSchema,
		}},
		"tool_choice": map[string]string{"type": "tool", "name": toolName},
	}
	if system != "" {
		payload["system"] = system
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("marshal messages payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("build messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("request messages completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("read messages response body: %w", err)
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
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return llm.GenerateResponse{}, fmt.Errorf("decode messages response: %w", err)
	}

	content := ""
	for _, block := range parsed.Content {
		if block.Type == "tool_use" && len(block.Input) > 0 {
			content = string(block.Input)
			break
		}
		if block.Type == "text" && content == "" {
			content = block.Text
		}
	}
	if strings.TrimSpace(content) == "" {
		return llm.GenerateResponse{}, llm.EmptyResponse(providerName)
	}

	model := parsed.Model
	if model == "" {
		model = p.model
	}
	return llm.GenerateResponse{Content: content, Model: model}, nil
}

// splitSystem lifts system messages into the top-level system string the
// messages API expects and keeps the rest in order.
func splitSystem(messages []llm.Message) (string, []llm.Message) {
	var system []string
	rest := make([]llm.Message, 0, len(messages))
	for _, message := range messages {
		if message.Role == llm.RoleSystem {
			system = append(system, message.Content)
			continue
		}
		rest = append(rest, message)
	}
	return strings.Join(system, "\n\n"), rest
}
