package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/ask"
	"github.com/askdb/askdb/internal/db"
	"github.com/askdb/askdb/internal/guard"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/resolve"
)

type queryRequest struct {
	Question string           `json:"question"`
	History  []historyMessage `json:"history"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	request, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	history, err := historyFromRequest(request.History)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_HISTORY", err.Error(), false, nil)
		return
	}

	result, err := deps.Engine.Query(r.Context(), request.Question, history)
	if err != nil {
		writeQueryError(r, w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return queryRequest{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return queryRequest{}, false
	}
	return request, true
}

// historyFromRequest maps inline conversation turns onto engine messages.
// Only user and assistant turns are accepted; the system prompt is built
// server-side.
func historyFromRequest(turns []historyMessage) ([]ask.Message, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	history := make([]ask.Message, 0, len(turns))
	for i, turn := range turns {
		role := llm.Role(strings.ToLower(strings.TrimSpace(turn.Role)))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			return nil, fmt.Errorf("history[%d]: role must be user or assistant", i)
		}
		history = append(history, ask.Message{Role: role, Content: turn.Content})
	}
	return history, nil
}

// writeQueryError maps engine failures onto the error envelope. The order
// matters: guard rejections and context overflows are client-correctable and
// must not surface as provider failures.
func writeQueryError(r *http.Request, w http.ResponseWriter, err error) {
	ctx := r.Context()

	var validationErr *guard.ValidationError
	if errors.As(err, &validationErr) {
		writeError(ctx, w, http.StatusBadRequest, "SQL_BLOCKED", validationErr.Reason, false, map[string]any{
			"sql": validationErr.SQL,
		})
		return
	}

	var overflowErr *llm.ContextOverflowError
	if errors.As(err, &overflowErr) {
		writeError(ctx, w, http.StatusBadRequest, "CONTEXT_OVERFLOW", overflowErr.Error(), true, map[string]any{
			"hint": "clear or shorten the conversation history and retry",
		})
		return
	}

	var providerErr *llm.ProviderError
	if errors.As(err, &providerErr) {
		writeError(ctx, w, http.StatusBadGateway, "MODEL_PROVIDER_ERROR", providerErr.Error(), true, map[string]any{
			"provider": providerErr.Provider,
			"status":   providerErr.StatusCode,
		})
		return
	}

	if errors.Is(err, ask.ErrInvalidResponse) {
		writeError(ctx, w, http.StatusBadGateway, "MODEL_RESPONSE_INVALID", err.Error(), true, nil)
		return
	}

	var dbErr *db.DatabaseError
	if errors.As(err, &dbErr) {
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{
			"details": dbErr.Error(),
		})
		return
	}

	var configErr *resolve.ConfigurationError
	if errors.As(err, &configErr) {
		writeError(ctx, w, http.StatusInternalServerError, "CONFIGURATION_ERROR", configErr.Reason, false, nil)
		return
	}

	writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "query failed", true, map[string]any{
		"details": err.Error(),
	})
}
