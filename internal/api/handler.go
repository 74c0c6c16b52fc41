package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querydesk/querydesk/internal/archive"
	"github.com/querydesk/querydesk/internal/classify"
	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/kv"
	"github.com/querydesk/querydesk/internal/nl2sql"
	"github.com/querydesk/querydesk/internal/observability"
	"github.com/querydesk/querydesk/internal/persist"
	"github.com/querydesk/querydesk/internal/session"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	AuthMiddleware   func(http.Handler) http.Handler
	DependencyTimout time.Duration
	Session          *session.Session
	Engine           engine.Engine
	Persistence      *persist.Store
	Bundler          *archive.Bundler
	Translator       nl2sql.Translator
	Clock            func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("GET /v1/result/export", func(w http.ResponseWriter, r *http.Request) {
		handleResultExport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/result/classify", func(w http.ResponseWriter, r *http.Request) {
		handleClassify(deps, w, r)
	})
	protected.HandleFunc("GET /v1/result/classification", func(w http.ResponseWriter, r *http.Request) {
		handleGetClassification(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables", func(w http.ResponseWriter, r *http.Request) {
		handleListTables(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/{table}/ingest", func(w http.ResponseWriter, r *http.Request) {
		handleIngest(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/{table}/export", func(w http.ResponseWriter, r *http.Request) {
		handleTableExport(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/tables/{table}", func(w http.ResponseWriter, r *http.Request) {
		handleDropTable(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/{table}/save", func(w http.ResponseWriter, r *http.Request) {
		handleSaveTable(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/save", func(w http.ResponseWriter, r *http.Request) {
		handleSaveAll(deps, w, r)
	})
	protected.HandleFunc("POST /v1/tables/restore", func(w http.ResponseWriter, r *http.Request) {
		handleRestore(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/tables/{table}/save", func(w http.ResponseWriter, r *http.Request) {
		handleRemoveSaved(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/tables/save", func(w http.ResponseWriter, r *http.Request) {
		handleClearSaved(deps, w, r)
	})
	protected.HandleFunc("GET /v1/archive/export", func(w http.ResponseWriter, r *http.Request) {
		handleArchiveExport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/archive/import", func(w http.ResponseWriter, r *http.Request) {
		handleArchiveImport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslateQuery(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("GET /v1/result/export", protectedHandler)
	mux.Handle("POST /v1/result/classify", protectedHandler)
	mux.Handle("GET /v1/result/classification", protectedHandler)
	mux.Handle("GET /v1/tables", protectedHandler)
	mux.Handle("POST /v1/tables/{table}/ingest", protectedHandler)
	mux.Handle("GET /v1/tables/{table}/export", protectedHandler)
	mux.Handle("DELETE /v1/tables/{table}", protectedHandler)
	mux.Handle("POST /v1/tables/{table}/save", protectedHandler)
	mux.Handle("POST /v1/tables/save", protectedHandler)
	mux.Handle("POST /v1/tables/restore", protectedHandler)
	mux.Handle("DELETE /v1/tables/{table}/save", protectedHandler)
	mux.Handle("DELETE /v1/tables/save", protectedHandler)
	mux.Handle("GET /v1/archive/export", protectedHandler)
	mux.Handle("POST /v1/archive/import", protectedHandler)
	mux.Handle("POST /v1/query/translate", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckEngine(eng engine.Engine) ReadinessCheck {
	return func(ctx context.Context) error {
		if eng == nil {
			return errors.New("query engine is not configured")
		}
		err := eng.Ping(ctx)
		observability.SetEngineUp(err == nil)
		return err
	}
}

func CheckKV(store kv.Store) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("kv store is not configured")
		}
		_, err := store.ListKeys(ctx)
		return err
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writeDomainError maps the package sentinels onto stable error codes so
// clients can dispatch without parsing messages. Anything unmapped falls
// back to the caller's code.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error, fallbackCode string) {
	switch {
	case errors.Is(err, engine.ErrUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error(), true, nil)
	case errors.Is(err, persist.ErrCorruptData):
		writeError(ctx, w, http.StatusInternalServerError, "CORRUPT_PERSISTED_DATA", err.Error(), false, nil)
	case errors.Is(err, persist.ErrStorageUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", err.Error(), true, nil)
	case errors.Is(err, classify.ErrSuperseded):
		writeError(ctx, w, http.StatusConflict, "RESULT_SUPERSEDED", "a newer result replaced the one being classified", true, nil)
	case errors.Is(err, classify.ErrClassificationFailed):
		writeError(ctx, w, http.StatusInternalServerError, "CLASSIFICATION_FAILED", err.Error(), false, nil)
	case errors.Is(err, archive.ErrFormatInvalid):
		writeError(ctx, w, http.StatusBadRequest, "ARCHIVE_FORMAT_INVALID", err.Error(), false, nil)
	case errors.Is(err, session.ErrNoResult):
		writeError(ctx, w, http.StatusNotFound, "NO_RESULT", "no query result is available", false, nil)
	case errors.Is(err, kv.ErrKeyNotFound):
		writeError(ctx, w, http.StatusNotFound, "NOT_FOUND", err.Error(), false, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, fallbackCode, err.Error(), true, nil)
	}
}

func depClock(deps Dependencies) func() time.Time {
	if deps.Clock != nil {
		return deps.Clock
	}
	return time.Now
}
