package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/querydesk/querydesk/internal/archive"
)

type archiveImportResponse struct {
	Status string `json:"status"`
	archive.ImportSummary
}

func handleArchiveExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Bundler == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "archive dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, "workbench_reader", "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var names []string
	if raw := strings.TrimSpace(r.URL.Query().Get("tables")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if name := strings.TrimSpace(part); name != "" {
				names = append(names, name)
			}
		}
	}

	var buf bytes.Buffer
	summary, err := deps.Bundler.Export(r.Context(), &buf, names)
	if err != nil {
		writeDomainError(r.Context(), w, err, "ARCHIVE_EXPORT_FAILED")
		return
	}

	filename := fmt.Sprintf("querydesk_archive_%s.zip", depClock(deps)().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Archive-Exported", strconv.Itoa(len(summary.Exported)))
	if len(summary.Failed) > 0 {
		w.Header().Set("X-Archive-Failed", strconv.Itoa(len(summary.Failed)))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func handleArchiveImport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Bundler == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "archive dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	replaceExisting := false
	if raw := strings.TrimSpace(r.URL.Query().Get("replace_existing")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REPLACE", "replace_existing must be a boolean", false, nil)
			return
		}
		replaceExisting = parsed
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "BODY_READ_FAILED", "failed to read request body", false, map[string]any{"details": err.Error()})
		return
	}
	if len(body) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "BODY_REQUIRED", "request body with archive data is required", false, nil)
		return
	}

	summary, err := deps.Bundler.Import(r.Context(), bytes.NewReader(body), int64(len(body)), archive.ImportOptions{ReplaceExisting: replaceExisting})
	if err != nil {
		writeDomainError(r.Context(), w, err, "ARCHIVE_IMPORT_FAILED")
		return
	}

	status := "imported"
	if len(summary.Failed) > 0 {
		status = "partial"
	}
	writeJSON(w, http.StatusOK, archiveImportResponse{Status: status, ImportSummary: summary})
}
