package ask

import (
	"encoding/json"
	"time"

	"github.com/askdb/askdb/internal/llm"
)

// Result is one answered question: the generated SQL, its explanation, a
// chart-type hint and the executed rows.
type Result struct {
	SQL         string     `json:"sql"`
	Explanation string     `json:"explanation"`
	ChartType   string     `json:"chart_type"`
	Columns     []string   `json:"columns"`
	Rows        [][]any    `json:"rows"`
	RowCount    int        `json:"row_count"`
	Debug       *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo reports how the context budget was spent on one query.
type DebugInfo struct {
	Model           string        `json:"model"`
	ContextLength   int           `json:"context_length"`
	SystemTokens    int           `json:"system_tokens"`
	QuestionTokens  int           `json:"question_tokens"`
	HistoryTokens   int           `json:"history_tokens"`
	HistoryMessages int           `json:"history_messages"`
	SchemaTruncated bool          `json:"schema_truncated"`
	Dialect         string        `json:"dialect"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Message is one conversation turn. Assistant turns produced by Ask carry
// the full Result; when re-sent to the model they collapse back to the
// compact JSON the model originally produced.
type Message struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
	Result  *Result  `json:"result,omitempty"`
}

func (m Message) promptContent() string {
	if m.Role == llm.RoleAssistant && m.Result != nil {
		encoded, err := json.Marshal(queryResponse{
			SQL:         m.Result.SQL,
			Explanation: m.Result.Explanation,
			ChartType:   m.Result.ChartType,
		})
		if err == nil {
			return string(encoded)
		}
	}
	return m.Content
}
