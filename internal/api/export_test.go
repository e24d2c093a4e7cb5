package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/guard"
)

func TestExportEndpoint(t *testing.T) {
	exporter := &fakeExporter{out: export.Export{
		Location: "exports/2025/03/09/how-many-users-1741539845.csv",
		Format:   export.FormatCSV,
		RowCount: 1,
		Size:     18,
	}}
	h := NewHandler(testConfig(t, nil), Dependencies{Engine: &fakeEngine{}, Exporter: exporter})

	rr := postJSON(t, h, "/v1/export", `{"question":"how many users?","format":"csv"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["location"] != "exports/2025/03/09/how-many-users-1741539845.csv" {
		t.Fatalf("location = %v", body["location"])
	}
	if body["format"] != "csv" {
		t.Fatalf("format = %v", body["format"])
	}
	if body["sql"] != "SELECT count(*) FROM users LIMIT 100" {
		t.Fatalf("sql = %v", body["sql"])
	}
}

func TestExportEndpointDefaultsFormat(t *testing.T) {
	exporter := &fakeExporter{out: export.Export{Format: export.FormatJSON}}
	h := NewHandler(testConfig(t, nil), Dependencies{
		Engine:        &fakeEngine{},
		Exporter:      exporter,
		DefaultFormat: export.FormatJSON,
	})

	rr := postJSON(t, h, "/v1/export", `{"question":"how many users?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if exporter.lastFormat != export.FormatJSON {
		t.Fatalf("format = %q, want json", exporter.lastFormat)
	}
}

func TestExportEndpointRejectsUnknownFormat(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Engine: &fakeEngine{}, Exporter: &fakeExporter{}})

	rr := postJSON(t, h, "/v1/export", `{"question":"q","format":"xlsx"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "INVALID_FORMAT" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestExportEndpointMapsQueryError(t *testing.T) {
	engine := &fakeEngine{queryErr: &guard.ValidationError{Reason: "blocked", SQL: "DELETE FROM users"}}
	h := NewHandler(testConfig(t, nil), Dependencies{Engine: engine, Exporter: &fakeExporter{}})

	rr := postJSON(t, h, "/v1/export", `{"question":"q","format":"csv"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "SQL_BLOCKED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestExportEndpointStoreFailure(t *testing.T) {
	exporter := &fakeExporter{err: errors.New("bucket unavailable")}
	h := NewHandler(testConfig(t, nil), Dependencies{Engine: &fakeEngine{}, Exporter: exporter})

	rr := postJSON(t, h, "/v1/export", `{"question":"q","format":"csv"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "EXPORT_FAILED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestExportEndpointNotConfigured(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Engine: &fakeEngine{}})

	rr := postJSON(t, h, "/v1/export", `{"question":"q"}`)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
