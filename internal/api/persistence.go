package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/persist"
)

type saveTableResponse struct {
	Status string `json:"status"`
	persist.SaveOutcome
}

type saveAllRequest struct {
	Tables []string `json:"tables"`
}

type saveAllResponse struct {
	Status string `json:"status"`
	persist.SaveAllSummary
}

type restoreResponse struct {
	Status string `json:"status"`
	persist.RestoreSummary
}

func handleSaveTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Persistence == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PERSISTENCE_NOT_CONFIGURED", "persistence dependencies are not configured", false, nil)
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

	outcome, err := deps.Persistence.SaveTable(r.Context(), tableName)
	if err != nil {
		if errors.Is(err, engine.ErrUnavailable) || errors.Is(err, persist.ErrStorageUnavailable) || errors.Is(err, persist.ErrCorruptData) {
			writeDomainError(r.Context(), w, err, "SAVE_FAILED")
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "SAVE_FAILED", err.Error(), false, map[string]any{"table": tableName})
		return
	}
	writeJSON(w, http.StatusOK, saveTableResponse{Status: "saved", SaveOutcome: outcome})
}

func handleSaveAll(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Persistence == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PERSISTENCE_NOT_CONFIGURED", "persistence dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	// An empty or absent body saves every live table.
	var request saveAllRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid save request body", false, map[string]any{"details": err.Error()})
		return
	}

	summary, err := deps.Persistence.SaveAll(r.Context(), request.Tables)
	if err != nil && summary.Requested == 0 {
		writeDomainError(r.Context(), w, err, "SAVE_FAILED")
		return
	}

	status := "saved"
	if len(summary.Failed) > 0 {
		status = "partial"
	}
	writeJSON(w, http.StatusOK, saveAllResponse{Status: status, SaveAllSummary: summary})
}

func handleRestore(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Persistence == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PERSISTENCE_NOT_CONFIGURED", "persistence dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	summary, err := deps.Persistence.RestoreAll(r.Context())
	if err != nil && summary.Requested == 0 {
		writeDomainError(r.Context(), w, err, "RESTORE_FAILED")
		return
	}

	status := "restored"
	if len(summary.Failed) > 0 {
		status = "partial"
	}
	writeJSON(w, http.StatusOK, restoreResponse{Status: status, RestoreSummary: summary})
}

func handleRemoveSaved(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Persistence == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PERSISTENCE_NOT_CONFIGURED", "persistence dependencies are not configured", false, nil)
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

	if err := deps.Persistence.RemoveTable(r.Context(), tableName); err != nil {
		writeDomainError(r.Context(), w, err, "REMOVE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed", "table_name": tableName})
}

func handleClearSaved(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Persistence == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PERSISTENCE_NOT_CONFIGURED", "persistence dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "workbench_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	if err := deps.Persistence.ClearAll(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err, "CLEAR_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}
