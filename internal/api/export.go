package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/export"
)

type exportRequest struct {
	Question string           `json:"question"`
	Format   string           `json:"format"`
	History  []historyMessage `json:"history"`
}

type exportResponse struct {
	Location string `json:"location"`
	Format   string `json:"format"`
	RowCount int    `json:"row_count"`
	Size     int64  `json:"size"`
	SQL      string `json:"sql"`
}

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil || deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}

	var request exportRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	format := deps.DefaultFormat
	if format == "" {
		format = export.FormatCSV
	}
	if strings.TrimSpace(request.Format) != "" {
		parsed, err := export.ParseFormat(request.Format)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), false, nil)
			return
		}
		format = parsed
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

	out, err := deps.Exporter.Export(r.Context(), request.Question, result, format)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "export failed", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{
		Location: out.Location,
		Format:   string(out.Format),
		RowCount: out.RowCount,
		Size:     out.Size,
		SQL:      result.SQL,
	})
}
