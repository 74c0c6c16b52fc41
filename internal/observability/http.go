package observability

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseMeter records what the wrapped handler wrote so the logging and
// metrics middlewares can report on it.
type responseMeter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (m *responseMeter) WriteHeader(status int) {
	if m.status == 0 {
		m.status = status
	}
	m.ResponseWriter.WriteHeader(status)
}

func (m *responseMeter) Write(body []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(body)
	m.written += int64(n)
	return n, err
}

func (m *responseMeter) statusCode() int {
	if m.status == 0 {
		return http.StatusOK
	}
	return m.status
}

// LoggingMiddleware emits one line per request. Server errors log at error
// level and client errors at warn, so failures surface at the default level.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			meter := &responseMeter{ResponseWriter: w}
			next.ServeHTTP(meter, r)

			status := meter.statusCode()
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http_request",
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("bytes", meter.written),
			)
		})
	}
}

// MetricsMiddleware counts requests and observes latency per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meter := &responseMeter{ResponseWriter: w}
		next.ServeHTTP(meter, r)

		status := strconv.Itoa(meter.statusCode())
		route := routeLabel(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel folds the table name out of per-table paths. Table names are
// user chosen, keeping them in the label would grow it without bound.
func routeLabel(path string) string {
	const prefix = "/v1/tables/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || rest == "" {
		return path
	}
	head, tail, nested := strings.Cut(rest, "/")
	if !nested {
		// save and restore here are whole-workspace routes, not table names.
		if head == "save" || head == "restore" {
			return path
		}
		return prefix + ":table"
	}
	return prefix + ":table/" + tail
}
