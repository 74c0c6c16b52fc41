package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/querydesk/querydesk/internal/classify"
	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/result"
)

type queryRequest struct {
	SQL          string `json:"sql"`
	DisplayLimit int    `json:"display_limit"`
}

type queryResponse struct {
	Columns           []string        `json:"columns"`
	TypeNames         []string        `json:"type_names"`
	Rows              [][]any         `json:"rows"`
	TotalRowCount     int64           `json:"total_row_count"`
	DisplayedRowCount int             `json:"displayed_row_count"`
	Truncated         bool            `json:"truncated"`
	ExecutionTimeMs   float64         `json:"execution_time_ms"`
	Advisory          result.Advisory `json:"advisory,omitempty"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	materialized, err := deps.Session.ExecuteQuery(r.Context(), request.SQL, request.DisplayLimit)
	if err != nil {
		if errors.Is(err, engine.ErrUnavailable) {
			writeDomainError(r.Context(), w, err, "QUERY_FAILED")
			return
		}
		// The engine's message is the only diagnostic the user gets, so it
		// passes through untouched.
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_FAILED", err.Error(), false, nil)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:           materialized.Columns,
		TypeNames:         materialized.TypeNames,
		Rows:              materialized.Rows,
		TotalRowCount:     materialized.TotalRowCount,
		DisplayedRowCount: materialized.DisplayedRowCount,
		Truncated:         materialized.Truncated,
		ExecutionTimeMs:   materialized.ExecutionTimeMs,
		Advisory:          materialized.Advisory,
	})
}

func handleResultExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var buf bytes.Buffer
	if err := deps.Session.ExportCurrentCSV(&buf); err != nil {
		writeDomainError(r.Context(), w, err, "EXPORT_FAILED")
		return
	}

	filename := export.Filename("query_result", depClock(deps)())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type classificationResponse struct {
	Classifications []classify.ColumnClassification `json:"classifications"`
}

func handleClassify(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	classifications, err := deps.Session.Classify(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err, "CLASSIFICATION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, classificationResponse{Classifications: classifications})
}

func handleGetClassification(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	classifications, ok := deps.Session.Classifications()
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_CLASSIFICATION", "no classification has been committed for the current result", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, classificationResponse{Classifications: classifications})
}
