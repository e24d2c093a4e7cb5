package api

import (
	"net/http"
	"strings"
)

func handleListSchemas(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	schemas, err := deps.Engine.ListSchemas(r.Context())
	if err != nil {
		writeIntrospectionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dialect": deps.Engine.Dialect(),
		"schemas": schemas,
	})
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	schema := schemaParam(deps, r)
	tables, err := deps.Engine.ListTables(r.Context(), schema)
	if err != nil {
		writeIntrospectionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema": schema,
		"tables": tables,
	})
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	schema := schemaParam(deps, r)
	text, err := deps.Engine.SchemaText(r.Context(), schema)
	if err != nil {
		writeIntrospectionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema":  schema,
		"dialect": deps.Engine.Dialect(),
		"text":    text,
	})
}

func handleSchemaRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	deps.Engine.RefreshSchema()
	writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed"})
}

func schemaParam(deps Dependencies, r *http.Request) string {
	if schema := strings.TrimSpace(r.URL.Query().Get("schema")); schema != "" {
		return schema
	}
	return deps.Engine.TargetSchema()
}

func writeIntrospectionError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_INTROSPECTION_FAILED", "schema introspection failed", true, map[string]any{
		"details": err.Error(),
	})
}
