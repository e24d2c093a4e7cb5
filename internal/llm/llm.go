// Package llm defines the model provider contract shared by the backend
// clients under llm/openai, llm/anthropic, and llm/compat.
package llm

import (
	"context"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type GenerateResponse struct {
	// Content is the raw model output, expected to be the JSON answer
	// contract but not guaranteed to be.
	Content string
	// Model is the id the backend reports, falling back to the configured
	// one.
	Model string
}

// Provider is one LLM backend. Implementations are safe for concurrent use
// and fetch remote metadata lazily.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	ContextLength(ctx context.Context) (int, error)
	ModelID() string
}

// ProviderError is a failed backend call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ContextOverflowError marks a request the backend rejected for exceeding
// its context window. Callers treat it as recoverable: trim or clear the
// conversation and retry.
type ContextOverflowError struct {
	Provider string
	Message  string
}

func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("%s: context window exceeded: %s", e.Provider, e.Message)
}

// EmptyResponse is the uniform error for backends that answer without
// usable content.
func EmptyResponse(provider string) error {
	return &ProviderError{Provider: provider, Message: "model returned empty content"}
}

// CompactBody collapses an error response body onto one line and caps its
// length so it can travel inside an error message.
func CompactBody(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}

// ResponseSchema is the JSON schema of the answer contract, shared by
// providers that support structured output.
var ResponseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sql":         map[string]any{"type": "string"},
		"explanation": map[string]any{"type": "string"},
		"chartType": map[string]any{
			"type": "string",
			"enum": []string{"bar", "line", "pie", "table", "number"},
		},
	},
	"required":             []string{"sql", "explanation", "chartType"},
	"additionalProperties": false,
}
