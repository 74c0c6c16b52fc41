package seeder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestRunLoadsCSVDataset(t *testing.T) {
	var gotPath, gotQuery, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = raw
		_, _ = w.Write([]byte(`{"status":"loaded","table_name":"demo_orders","row_count":3,"replaced":true}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.Format = FormatCSV
	cfg.Rows = 3
	cfg.Seed = 99

	svc, err := NewService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), server.Client())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if gotPath != "/v1/tables/demo_orders/ingest" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "format=csv&replace=true" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotContentType != "text/csv" {
		t.Fatalf("content type = %q", gotContentType)
	}

	// Same seed, same bytes.
	wantOrders := make([]Order, 0, 3)
	gen := NewGenerator(99, cfg.CustomerCardinality)
	for i := 0; i < 3; i++ {
		wantOrders = append(wantOrders, gen.NextOrder())
	}
	if !bytes.Equal(gotBody, EncodeCSV(wantOrders)) {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestRunLoadsParquetDataset(t *testing.T) {
	var gotQuery, gotContentType string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = raw
		_, _ = w.Write([]byte(`{"status":"loaded","table_name":"demo_orders","row_count":5,"replaced":false}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.Format = FormatParquet
	cfg.Rows = 5
	cfg.Replace = false

	svc, err := NewService(cfg, nil, server.Client())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if gotQuery != "format=parquet" {
		t.Fatalf("query = %q", gotQuery)
	}
	if gotContentType != "application/vnd.apache.parquet" {
		t.Fatalf("content type = %q", gotContentType)
	}

	reader := parquet.NewGenericReader[parquetOrder](bytes.NewReader(gotBody))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetOrder, 5)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 5 {
		t.Fatalf("read rows = %d", count)
	}
}

func TestRunSavesAfterLoadWhenConfigured(t *testing.T) {
	var savePosted bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/tables/demo_orders/ingest":
			_, _ = w.Write([]byte(`{"status":"loaded","table_name":"demo_orders","row_count":2,"replaced":true}`))
		case "/v1/tables/demo_orders/save":
			savePosted = true
			if key := r.Header.Get("X-API-Key"); key != "wkey" {
				t.Fatalf("X-API-Key = %q", key)
			}
			_, _ = w.Write([]byte(`{"status":"saved","table_name":"demo_orders","row_count":2}`))
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.APIKey = "wkey"
	cfg.Rows = 2
	cfg.Format = FormatCSV
	cfg.SaveAfterLoad = true

	svc, err := NewService(cfg, nil, server.Client())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !savePosted {
		t.Fatal("save endpoint not called")
	}
}

func TestRunReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error_code":"TABLE_EXISTS"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIBaseURL = server.URL
	cfg.Rows = 1

	svc, err := NewService(cfg, nil, server.Client())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	err = svc.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !bytes.Contains([]byte(got), []byte("TABLE_EXISTS")) {
		t.Fatalf("error = %q", got)
	}
}
