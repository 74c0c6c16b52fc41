package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/querydesk/querydesk/internal/nl2sql"
)

// translationSampleRows bounds how many rows per table are sent to the
// translation provider as schema context.
const translationSampleRows = 5

type translateRequest struct {
	Prompt string `json:"prompt"`
}

func handleTranslateQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "engine dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var req translateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	tableContexts, err := buildTableContexts(r.Context(), deps, translationSampleRows)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		NaturalLanguage: req.Prompt,
		Tables:          tableContexts,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate query", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
	})
}

// buildTableContexts assembles the live schema plus a few sample rows per
// table. Row counts and sampling are best effort, a table that fails to
// read still appears with its column list.
func buildTableContexts(ctx context.Context, deps Dependencies, sampleRows int) ([]nl2sql.TableContext, error) {
	names, err := deps.Engine.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	contexts := make([]nl2sql.TableContext, 0, len(names))
	for _, name := range names {
		tableContext := nl2sql.TableContext{TableName: name}
		columns, err := deps.Engine.DescribeTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("describe table %q: %w", name, err)
		}
		for _, column := range columns {
			tableContext.Columns = append(tableContext.Columns, fmt.Sprintf("%s (%s)", column.Name, column.Type))
		}
		if rowCount, err := deps.Engine.TableRowCount(ctx, name); err == nil {
			tableContext.RowCount = rowCount
		}

		handle, err := deps.Engine.Query(ctx, "SELECT * FROM "+quoteIdent(name)+" LIMIT "+strconv.Itoa(sampleRows))
		if err == nil {
			for i := 0; i < int(handle.RowCount()); i++ {
				row, err := handle.Row(i)
				if err != nil {
					break
				}
				tableContext.SampleRows = append(tableContext.SampleRows, row)
			}
			_ = handle.Close()
		}
		contexts = append(contexts, tableContext)
	}
	return contexts, nil
}
