package ask

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/askdb/askdb/internal/llm"
)

func TestMemoryHistoryRoundTrip(t *testing.T) {
	history := NewMemoryHistory()
	ctx := context.Background()

	err := history.Append(ctx,
		Message{Role: llm.RoleUser, Content: "how many users?"},
		Message{Role: llm.RoleAssistant, Content: `{"sql":"SELECT 1"}`},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	messages, err := history.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if messages[0].Role != llm.RoleUser || messages[1].Role != llm.RoleAssistant {
		t.Fatalf("messages = %+v", messages)
	}

	if err := history.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	messages, err = history.Messages(ctx)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("len(messages) after Clear = %d", len(messages))
	}
}

func TestMemoryHistoryReturnsCopy(t *testing.T) {
	history := NewMemoryHistory()
	ctx := context.Background()
	if err := history.Append(ctx, Message{Role: llm.RoleUser, Content: "original"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	first, _ := history.Messages(ctx)
	first[0].Content = "mutated"

	second, _ := history.Messages(ctx)
	if second[0].Content != "original" {
		t.Fatalf("stored message mutated: %q", second[0].Content)
	}
}

func TestMessageJSONCarriesResult(t *testing.T) {
	message := Message{
		Role:    llm.RoleAssistant,
		Content: `{"sql":"SELECT count(*) FROM users","explanation":"Counts users.","chartType":"number"}`,
		Result: &Result{
			SQL:         "SELECT count(*) FROM users",
			Explanation: "Counts users.",
			ChartType:   "number",
			Columns:     []string{"count"},
			Rows:        [][]any{{float64(3)}},
			RowCount:    1,
		},
	}

	encoded, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Role != llm.RoleAssistant {
		t.Fatalf("Role = %q", decoded.Role)
	}
	if decoded.Result == nil || decoded.Result.SQL != "SELECT count(*) FROM users" {
		t.Fatalf("Result = %+v", decoded.Result)
	}
	if decoded.Result.RowCount != 1 {
		t.Fatalf("RowCount = %d", decoded.Result.RowCount)
	}
}

func TestMessageJSONOmitsEmptyResult(t *testing.T) {
	encoded, err := json.Marshal(Message{Role: llm.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(encoded) != `{"role":"user","content":"hi"}` {
		t.Fatalf("encoded = %s", encoded)
	}
}

func TestNewRedisHistoryDefaultKey(t *testing.T) {
	history := NewRedisHistory(nil, "", 0)
	if history.key != "askdb:history" {
		t.Fatalf("key = %q", history.key)
	}
}
