package ask

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidResponse marks a model reply that does not follow the
	// answer contract, either unparsable or incomplete.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrMissingField marks a reply that parsed as JSON but lacks the sql
	// or explanation field.
	ErrMissingField = fmt.Errorf("%w: missing required field", ErrInvalidResponse)
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

type queryResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
	ChartType   string `json:"chartType"`
}

var chartTypes = map[string]bool{
	"bar":    true,
	"line":   true,
	"pie":    true,
	"table":  true,
	"number": true,
}

// parseResponse decodes the model reply into a queryResponse. Markdown
// fences around the JSON are tolerated, an unknown or absent chartType
// normalizes to "table".
func parseResponse(content string) (queryResponse, error) {
	text := strings.TrimSpace(content)
	if match := fencePattern.FindStringSubmatch(text); match != nil {
		text = strings.TrimSpace(match[1])
	}

	var parsed queryResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return queryResponse{}, fmt.Errorf("failed to parse model response: %w: %v", ErrInvalidResponse, err)
	}
	parsed.SQL = strings.TrimSpace(parsed.SQL)
	parsed.Explanation = strings.TrimSpace(parsed.Explanation)
	if parsed.SQL == "" {
		return queryResponse{}, fmt.Errorf("%w: sql", ErrMissingField)
	}
	if parsed.Explanation == "" {
		return queryResponse{}, fmt.Errorf("%w: explanation", ErrMissingField)
	}
	parsed.ChartType = strings.ToLower(strings.TrimSpace(parsed.ChartType))
	if !chartTypes[parsed.ChartType] {
		parsed.ChartType = "table"
	}
	return parsed, nil
}

var sqlUnescaper = strings.NewReplacer(
	`\"`, `"`,
	`\'`, `'`,
	`\\`, `\`,
	`\n`, "\n",
)

// normalizeSQL undoes the escaping layers models sometimes leave in the sql
// field and drops schema qualifiers the session switch already covers.
func normalizeSQL(sql, schema string) string {
	sql = strings.TrimSpace(sqlUnescaper.Replace(sql))
	return stripSchemaPrefix(sql, schema)
}

func stripSchemaPrefix(sql, schema string) string {
	if schema == "" {
		return sql
	}
	quoted := regexp.QuoteMeta(schema)
	sql = regexp.MustCompile(`(?i)"`+quoted+`"\.`).ReplaceAllString(sql, "")
	sql = regexp.MustCompile(`(?i)\b`+quoted+`\.`).ReplaceAllString(sql, "")
	return sql
}
