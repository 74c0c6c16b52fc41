package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/auth"
	"github.com/querydesk/querydesk/internal/observability"
)

type ingestResponse struct {
	Status    string `json:"status"`
	TableName string `json:"table_name"`
	RowCount  int64  `json:"row_count"`
	Replaced  bool   `json:"replaced"`
}

func handleIngest(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INGEST_NOT_CONFIGURED", "ingest dependencies are not configured", false, nil)
		return
	}

	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}

	if err := requireRole(r, "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	format := ingestFormat(r)
	if format != "csv" && format != "parquet" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", "format must be csv or parquet", false, map[string]any{"format": format})
		return
	}

	replace := false
	if raw := strings.TrimSpace(r.URL.Query().Get("replace")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REPLACE", "replace must be a boolean", false, nil)
			return
		}
		replace = parsed
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "BODY_READ_FAILED", "failed to read request body", false, map[string]any{"details": err.Error()})
		return
	}
	if len(body) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "BODY_REQUIRED", "request body with table data is required", false, nil)
		return
	}

	existing, err := deps.Engine.TableNames(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err, "CATALOG_ERROR")
		return
	}
	existedBefore := false
	for _, name := range existing {
		if name == tableName {
			existedBefore = true
			break
		}
	}
	if existedBefore && !replace {
		writeError(r.Context(), w, http.StatusConflict, "TABLE_EXISTS", "table already exists, pass replace=true to overwrite", false, map[string]any{"table": tableName})
		return
	}

	loadStart := time.Now()
	switch format {
	case "csv":
		err = deps.Engine.CreateTableFromCSV(r.Context(), tableName, body, replace)
	case "parquet":
		err = deps.Engine.ImportTableParquet(r.Context(), tableName, body, replace)
	}
	if err != nil {
		// Load failures carry the engine's own diagnostic, typically a parse
		// error with a line number.
		writeError(r.Context(), w, http.StatusBadRequest, "INGEST_FAILED", err.Error(), false, map[string]any{"table": tableName, "format": format})
		return
	}

	rowCount, err := deps.Engine.TableRowCount(r.Context(), tableName)
	if err != nil {
		writeDomainError(r.Context(), w, err, "CATALOG_ERROR")
		return
	}
	observability.ObserveTableIngest(rowCount, time.Since(loadStart))

	writeJSON(w, http.StatusOK, ingestResponse{
		Status:    "loaded",
		TableName: tableName,
		RowCount:  rowCount,
		Replaced:  existedBefore,
	})
}

func ingestFormat(r *http.Request) string {
	if format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format != "" {
		return format
	}
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(contentType, "parquet") {
		return "parquet"
	}
	return "csv"
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
