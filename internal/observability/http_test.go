package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTraceMiddlewareReusesInboundID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "3f2a" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "3f2a")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "3f2a" {
		t.Fatalf("response trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if len(seen) != 32 {
		t.Fatalf("generated trace id = %q, want 32 hex chars", seen)
	}
	if rr.Header().Get(traceHeader) != seen {
		t.Fatalf("response header %q does not match context id %q", rr.Header().Get(traceHeader), seen)
	}
}

func TestTraceMiddlewareReplacesOversizedID(t *testing.T) {
	oversized := strings.Repeat("a", maxInboundTraceID+1)
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got == oversized {
			t.Fatal("oversized inbound trace id was accepted")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, oversized)
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestTraceIDContextRoundTrip(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("TraceIDFromContext(empty) = %q", got)
	}
}

func TestRouteLabelFoldsTableNames(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/v1/health", "/v1/health"},
		{"/v1/tables", "/v1/tables"},
		{"/v1/tables/orders", "/v1/tables/:table"},
		{"/v1/tables/orders/ingest", "/v1/tables/:table/ingest"},
		{"/v1/tables/orders/save", "/v1/tables/:table/save"},
		{"/v1/tables/save", "/v1/tables/save"},
		{"/v1/tables/restore", "/v1/tables/restore"},
	}
	for _, tc := range cases {
		if got := routeLabel(tc.path); got != tc.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestLoggingMiddlewareLevelsByStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/query", nil))

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("log line not JSON: %v", err)
		}
		if line["level"] != tc.wantLevel {
			t.Errorf("status %d logged at %v, want %s", tc.status, line["level"], tc.wantLevel)
		}
		if line["status"] != float64(tc.status) {
			t.Errorf("status attr = %v, want %d", line["status"], tc.status)
		}
	}
}

func TestLoggingMiddlewareCountsBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line not JSON: %v", err)
	}
	if line["bytes"] != float64(len(`{"ok":true}`)) {
		t.Fatalf("bytes attr = %v", line["bytes"])
	}
	if line["status"] != float64(http.StatusOK) {
		t.Fatalf("implicit status attr = %v, want 200", line["status"])
	}
}
