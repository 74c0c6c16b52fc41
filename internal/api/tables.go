package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/querydesk/querydesk/internal/auth"
	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/observability"
)

type tableColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type tableSummary struct {
	TableName string        `json:"table_name"`
	Columns   []tableColumn `json:"columns"`
	RowCount  int64         `json:"row_count"`
	Saved     bool          `json:"saved"`
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "engine dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	names, err := deps.Engine.TableNames(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err, "CATALOG_ERROR")
		return
	}

	savedNames := map[string]bool{}
	if deps.Persistence != nil {
		manifest, ok, err := deps.Persistence.SavedTables(r.Context())
		if err != nil {
			writeDomainError(r.Context(), w, err, "PERSISTENCE_ERROR")
			return
		}
		if ok {
			for _, name := range manifest.TableNames {
				savedNames[name] = true
			}
		}
	}

	items := make([]tableSummary, 0, len(names))
	for _, name := range names {
		columns, err := deps.Engine.DescribeTable(r.Context(), name)
		if err != nil {
			writeDomainError(r.Context(), w, err, "CATALOG_ERROR")
			return
		}
		rowCount, err := deps.Engine.TableRowCount(r.Context(), name)
		if err != nil {
			writeDomainError(r.Context(), w, err, "CATALOG_ERROR")
			return
		}
		summary := tableSummary{
			TableName: name,
			Columns:   make([]tableColumn, 0, len(columns)),
			RowCount:  rowCount,
			Saved:     savedNames[name],
		}
		for _, column := range columns {
			summary.Columns = append(summary.Columns, tableColumn{Name: column.Name, Type: column.Type})
		}
		items = append(items, summary)
	}
	observability.SetTableCounts(len(names), len(savedNames))

	writeJSON(w, http.StatusOK, map[string]any{
		"tables":            items,
		"saved_table_names": sortedNames(savedNames),
	})
}

func handleTableExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "engine dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}

	if _, err := deps.Engine.DescribeTable(r.Context(), tableName); err != nil {
		if errors.Is(err, engine.ErrUnavailable) {
			writeDomainError(r.Context(), w, err, "CATALOG_ERROR")
			return
		}
		writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, nil)
		return
	}

	handle, err := deps.Engine.Query(r.Context(), fmt.Sprintf("SELECT * FROM %s", quoteIdent(tableName)))
	if err != nil {
		writeDomainError(r.Context(), w, err, "EXPORT_FAILED")
		return
	}
	defer handle.Close()

	var buf bytes.Buffer
	if err := export.EncodeHandleCSV(&buf, handle); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to encode table as csv", true, map[string]any{"details": err.Error()})
		return
	}

	filename := export.Filename(tableName, depClock(deps)())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func handleDropTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "engine dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}

	if err := deps.Engine.DropTable(r.Context(), tableName); err != nil {
		writeDomainError(r.Context(), w, err, "DROP_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "dropped", "table_name": tableName})
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func requireAnyRole(r *http.Request, roles ...string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	for _, role := range roles {
		if identity.HasRole(role) {
			return nil
		}
	}
	return fmt.Errorf("missing required role, expected one of %q", strings.Join(roles, ","))
}
