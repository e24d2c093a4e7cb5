// Package export encodes query results to csv, json, or parquet and writes
// them through an object store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/ask"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown export format %q", value)
	}
}

func (f Format) contentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Export describes one written object.
type Export struct {
	Location string `json:"location"`
	Format   Format `json:"format"`
	RowCount int    `json:"row_count"`
	Size     int64  `json:"size"`
}

// Exporter writes encoded results through an object store under a key
// prefix.
type Exporter struct {
	store  storage.ObjectStore
	prefix string
}

func New(store storage.ObjectStore, prefix string) *Exporter {
	return &Exporter{store: store, prefix: prefix}
}

// Export encodes result and writes it under a key derived from the
// question text and the current time.
func (e *Exporter) Export(ctx context.Context, question string, result *ask.Result, format Format) (Export, error) {
	out, err := e.export(ctx, question, result, format)
	if err != nil {
		observability.ObserveExport(string(format), "error")
		return Export{}, err
	}
	observability.ObserveExport(string(format), "ok")
	return out, nil
}

func (e *Exporter) export(ctx context.Context, question string, result *ask.Result, format Format) (Export, error) {
	if result == nil {
		return Export{}, fmt.Errorf("result is required")
	}

	data, err := Encode(result, format)
	if err != nil {
		return Export{}, err
	}

	key, err := storage.ExportObjectKey(e.prefix, question, string(format), time.Now())
	if err != nil {
		return Export{}, err
	}

	info, err := e.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: format.contentType(),
	})
	if err != nil {
		return Export{}, err
	}

	return Export{
		Location: info.Key,
		Format:   format,
		RowCount: result.RowCount,
		Size:     info.Size,
	}, nil
}

// Encode renders a result in the given format without writing it anywhere.
func Encode(result *ask.Result, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return encodeCSV(result)
	case FormatJSON:
		return encodeJSON(result)
	case FormatParquet:
		return encodeParquet(result)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func encodeCSV(result *ask.Result) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buf)

	if err := writer.Write(result.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeJSON(result *ask.Result) ([]byte, error) {
	columns := uniqueColumns(result.Columns)
	records := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if i < len(row) {
				record[column] = row[i]
			} else {
				record[column] = nil
			}
		}
		records = append(records, record)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode json records: %w", err)
	}
	return data, nil
}

// encodeParquet writes string-typed optional columns built from the result
// header. Values are stringified; NULLs stay null.
func encodeParquet(result *ask.Result) ([]byte, error) {
	columns := uniqueColumns(result.Columns)
	if len(columns) == 0 {
		return nil, fmt.Errorf("result has no columns")
	}

	group := parquet.Group{}
	for _, column := range columns {
		group[column] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("query_result", group)

	rows := make([]map[string]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]string, len(columns))
		for i, column := range columns {
			if i >= len(row) || row[i] == nil {
				continue
			}
			record[column] = FormatValue(row[i])
		}
		rows = append(rows, record)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[map[string]string](buf, schema)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// uniqueColumns disambiguates duplicate column names so map-shaped formats
// do not silently drop values.
func uniqueColumns(columns []string) []string {
	used := make(map[string]bool, len(columns))
	out := make([]string, len(columns))
	for i, column := range columns {
		if column == "" {
			column = fmt.Sprintf("column_%d", i+1)
		}
		name := column
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", column, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// FormatValue renders one result cell as text, the same way for csv
// exports and terminal tables.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
