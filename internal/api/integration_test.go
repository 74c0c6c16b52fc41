package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/querydesk/querydesk/internal/archive"
	"github.com/querydesk/querydesk/internal/classify"
	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/engine/duckdb"
	"github.com/querydesk/querydesk/internal/kv/sqlitekv"
	"github.com/querydesk/querydesk/internal/persist"
	"github.com/querydesk/querydesk/internal/result"
	"github.com/querydesk/querydesk/internal/session"
)

const workbenchCSV = "id,customer,amount,paid\n" +
	"1,alice,19.99,true\n" +
	"2,bob,5.00,false\n" +
	"3,carol,5.00,true\n" +
	"4,,,\n"

// TestWorkbenchLifecycle drives the full stack over HTTP: an embedded
// DuckDB engine, a SQLite key value store, and the real session,
// persistence, classification, and archive wiring behind the handler.
func TestWorkbenchLifecycle(t *testing.T) {
	ctx := context.Background()

	eng, err := duckdb.Open(ctx, duckdb.Config{})
	if err != nil {
		t.Fatalf("duckdb open failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	kvStore, err := sqlitekv.Open(ctx, filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("sqlitekv open failed: %v", err)
	}
	t.Cleanup(func() { _ = kvStore.Close() })

	store := &persist.Store{Engine: eng, KV: kvStore}
	sess := &session.Session{
		Engine:       eng,
		Materializer: &result.Materializer{DisplayLimit: 2},
	}
	t.Cleanup(sess.Close)
	sess.Classifier = &classify.Classifier{
		Engine:      eng,
		Sequence:    &classify.Sequence{},
		Generations: session.GenerationSource{Session: sess},
	}

	cfg, err := config.Load("querydesk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	handler := NewHandler(cfg, Dependencies{
		Readiness:   CombineReadinessChecks(CheckEngine(eng), CheckKV(kvStore)),
		Session:     sess,
		Engine:      eng,
		Persistence: store,
		Bundler:     &archive.Bundler{Engine: eng},
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := server.Client()

	status, _ := doRequest(t, client, http.MethodGet, server.URL+"/v1/ready", "", nil)
	if status != http.StatusOK {
		t.Fatalf("ready status = %d", status)
	}

	status, body := doRequest(t, client, http.MethodPost, server.URL+"/v1/tables/orders/ingest", "text/csv", strings.NewReader(workbenchCSV))
	if status != http.StatusOK {
		t.Fatalf("ingest status = %d, body = %s", status, body)
	}
	var ingested struct {
		RowCount int64 `json:"row_count"`
	}
	if err := json.Unmarshal(body, &ingested); err != nil {
		t.Fatalf("ingest decode failed: %v", err)
	}
	if ingested.RowCount != 4 {
		t.Fatalf("ingested row_count = %d", ingested.RowCount)
	}

	queryBody := `{"sql":"SELECT id, customer, amount, paid FROM orders ORDER BY id"}`
	status, body = doRequest(t, client, http.MethodPost, server.URL+"/v1/query", "application/json", strings.NewReader(queryBody))
	if status != http.StatusOK {
		t.Fatalf("query status = %d, body = %s", status, body)
	}
	var queried struct {
		Columns           []string `json:"columns"`
		TotalRowCount     int64    `json:"total_row_count"`
		DisplayedRowCount int      `json:"displayed_row_count"`
		Truncated         bool     `json:"truncated"`
	}
	if err := json.Unmarshal(body, &queried); err != nil {
		t.Fatalf("query decode failed: %v", err)
	}
	if len(queried.Columns) != 4 || queried.Columns[1] != "customer" {
		t.Fatalf("columns = %v", queried.Columns)
	}
	if queried.TotalRowCount != 4 || queried.DisplayedRowCount != 2 || !queried.Truncated {
		t.Fatalf("materialized counts = %+v", queried)
	}

	status, body = doRequest(t, client, http.MethodPost, server.URL+"/v1/result/classify", "", nil)
	if status != http.StatusOK {
		t.Fatalf("classify status = %d, body = %s", status, body)
	}
	var classified struct {
		Classifications []classify.ColumnClassification `json:"classifications"`
	}
	if err := json.Unmarshal(body, &classified); err != nil {
		t.Fatalf("classify decode failed: %v", err)
	}
	byColumn := map[string]classify.ColumnClassification{}
	for _, entry := range classified.Classifications {
		byColumn[entry.ColumnName] = entry
	}

	id := byColumn["id"]
	if id.Category != classify.CategoryNumeric || id.Numeric == nil {
		t.Fatalf("id classification = %+v", id)
	}
	if *id.Numeric.Min != 1 || *id.Numeric.Max != 4 || id.Numeric.NullCount != 0 {
		t.Fatalf("id numeric stats = %+v", id.Numeric)
	}

	customer := byColumn["customer"]
	if customer.Category != classify.CategoryString || customer.String == nil {
		t.Fatalf("customer classification = %+v", customer)
	}
	if *customer.String.MinLength != 3 || *customer.String.MaxLength != 5 || customer.String.NullCount != 1 {
		t.Fatalf("customer string stats = %+v", customer.String)
	}

	amount := byColumn["amount"]
	if amount.Category != classify.CategoryNumeric || amount.Numeric == nil {
		t.Fatalf("amount classification = %+v", amount)
	}
	if *amount.Numeric.Min != 5 || *amount.Numeric.Max != 19.99 || amount.Numeric.NullCount != 1 {
		t.Fatalf("amount numeric stats = %+v", amount.Numeric)
	}

	paid := byColumn["paid"]
	if paid.Category != classify.CategoryBoolean || paid.Boolean == nil {
		t.Fatalf("paid classification = %+v", paid)
	}
	if paid.Boolean.TrueCount != 2 || paid.Boolean.FalseCount != 1 || paid.Boolean.NullCount != 1 {
		t.Fatalf("paid boolean stats = %+v", paid.Boolean)
	}

	status, body = doRequest(t, client, http.MethodGet, server.URL+"/v1/result/classification", "", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"paid"`)) {
		t.Fatalf("classification status = %d, body = %s", status, body)
	}

	status, body = doRequest(t, client, http.MethodGet, server.URL+"/v1/result/export", "", nil)
	if status != http.StatusOK {
		t.Fatalf("result export status = %d, body = %s", status, body)
	}
	exportText := string(body)
	if !strings.HasPrefix(exportText, "id,customer,amount,paid\n") {
		t.Fatalf("export header = %q", exportText)
	}
	// Display kept two rows, the export carries all four.
	if strings.Count(exportText, "\n") != 5 {
		t.Fatalf("export line count wrong: %q", exportText)
	}
	if !strings.Contains(exportText, "1,alice,19.99,true\n") || !strings.Contains(exportText, "4,,,\n") {
		t.Fatalf("export body = %q", exportText)
	}

	status, body = doRequest(t, client, http.MethodPost, server.URL+"/v1/tables/orders/save", "", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"saved"`)) {
		t.Fatalf("save status = %d, body = %s", status, body)
	}

	status, body = doRequest(t, client, http.MethodGet, server.URL+"/v1/tables", "", nil)
	if status != http.StatusOK {
		t.Fatalf("tables status = %d, body = %s", status, body)
	}
	var listed struct {
		Tables []struct {
			TableName string `json:"table_name"`
			RowCount  int64  `json:"row_count"`
			Saved     bool   `json:"saved"`
		} `json:"tables"`
		SavedTableNames []string `json:"saved_table_names"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("tables decode failed: %v", err)
	}
	if len(listed.Tables) != 1 || listed.Tables[0].TableName != "orders" || !listed.Tables[0].Saved {
		t.Fatalf("tables = %+v", listed.Tables)
	}
	if listed.Tables[0].RowCount != 4 {
		t.Fatalf("row_count = %d", listed.Tables[0].RowCount)
	}
	if len(listed.SavedTableNames) != 1 || listed.SavedTableNames[0] != "orders" {
		t.Fatalf("saved_table_names = %v", listed.SavedTableNames)
	}

	status, body = doRequest(t, client, http.MethodDelete, server.URL+"/v1/tables/orders", "", nil)
	if status != http.StatusOK {
		t.Fatalf("drop status = %d, body = %s", status, body)
	}
	names, err := eng.TableNames(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("tables after drop = %v, %v", names, err)
	}

	status, body = doRequest(t, client, http.MethodPost, server.URL+"/v1/tables/restore", "", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"restored"`)) {
		t.Fatalf("restore status = %d, body = %s", status, body)
	}

	status, body = doRequest(t, client, http.MethodPost, server.URL+"/v1/query", "application/json", strings.NewReader(queryBody))
	if status != http.StatusOK {
		t.Fatalf("query after restore status = %d, body = %s", status, body)
	}
	if err := json.Unmarshal(body, &queried); err != nil {
		t.Fatalf("query decode failed: %v", err)
	}
	if queried.TotalRowCount != 4 {
		t.Fatalf("total_row_count after restore = %d", queried.TotalRowCount)
	}

	status, body = doRequest(t, client, http.MethodGet, server.URL+"/v1/archive/export", "", nil)
	if status != http.StatusOK {
		t.Fatalf("archive export status = %d", status)
	}
	zipReader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("archive unreadable: %v", err)
	}
	memberSet := map[string]bool{}
	for _, file := range zipReader.File {
		memberSet[file.Name] = true
	}
	if !memberSet["orders.csv"] || !memberSet["metadata.json"] {
		t.Fatalf("archive members = %v", memberSet)
	}

	status, body = doRequest(t, client, http.MethodDelete, server.URL+"/v1/tables/save", "", nil)
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"cleared"`)) {
		t.Fatalf("clear status = %d, body = %s", status, body)
	}
	keys, err := kvStore.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys() failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("keys after clear = %v", keys)
	}
}

func doRequest(t *testing.T, client *http.Client, method, url, contentType string, body io.Reader) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body failed: %v", err)
	}
	return resp.StatusCode, raw
}
