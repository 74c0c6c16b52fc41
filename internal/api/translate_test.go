package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querydesk/querydesk/internal/config"
	"github.com/querydesk/querydesk/internal/nl2sql"
)

type fakeTranslator struct {
	lastRequest nl2sql.Request
	result      nl2sql.Result
	err         error
	calls       int
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.calls++
	f.lastRequest = req
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return f.result, nil
}

func newTranslateHandler(t *testing.T, eng *fakeEngine, translator nl2sql.Translator) http.Handler {
	t.Helper()
	cfg, err := config.Load("querydesk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, Dependencies{Engine: eng, Translator: translator})
}

func TestTranslateEndpointSendsSchemaContext(t *testing.T) {
	eng := newFakeEngine()
	seedWorkbenchTables(eng)
	translator := &fakeTranslator{result: nl2sql.Result{
		SQL:      "SELECT customer, SUM(amount) FROM orders GROUP BY customer",
		Provider: "openai",
		Model:    "gpt-4o-mini",
	}}
	h := newTranslateHandler(t, eng, translator)

	req := httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(`{"prompt":"total revenue by customer"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["sql"] != translator.result.SQL {
		t.Fatalf("sql = %v", body["sql"])
	}
	if body["provider"] != "openai" || body["model"] != "gpt-4o-mini" {
		t.Fatalf("body = %v", body)
	}

	if translator.calls != 1 {
		t.Fatalf("translator calls = %d", translator.calls)
	}
	if translator.lastRequest.NaturalLanguage != "total revenue by customer" {
		t.Fatalf("natural language = %q", translator.lastRequest.NaturalLanguage)
	}

	var orders *nl2sql.TableContext
	for i := range translator.lastRequest.Tables {
		if translator.lastRequest.Tables[i].TableName == "orders" {
			orders = &translator.lastRequest.Tables[i]
		}
	}
	if orders == nil {
		t.Fatalf("orders missing from schema context: %v", translator.lastRequest.Tables)
	}
	wantColumns := []string{"id (BIGINT)", "customer (VARCHAR)", "amount (DOUBLE)"}
	if len(orders.Columns) != len(wantColumns) {
		t.Fatalf("columns = %v", orders.Columns)
	}
	for i, want := range wantColumns {
		if orders.Columns[i] != want {
			t.Fatalf("columns[%d] = %q, want %q", i, orders.Columns[i], want)
		}
	}
	if len(orders.SampleRows) != 3 {
		t.Fatalf("sample rows = %v", orders.SampleRows)
	}
}

func TestTranslateWithoutTranslatorIs501(t *testing.T) {
	cfg, err := config.Load("querydesk-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Engine: newFakeEngine()})

	req := httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(`{"prompt":"anything"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "TRANSLATE_NOT_CONFIGURED") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestTranslateRequiresPrompt(t *testing.T) {
	h := newTranslateHandler(t, newFakeEngine(), &fakeTranslator{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(`{"prompt":"   "}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "PROMPT_REQUIRED") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestTranslateProviderFailureIs502(t *testing.T) {
	translator := &fakeTranslator{err: errors.New("provider timeout")}
	h := newTranslateHandler(t, newFakeEngine(), translator)

	req := httptest.NewRequest(http.MethodPost, "/v1/query/translate", strings.NewReader(`{"prompt":"count the rows"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "TRANSLATE_FAILED") || !strings.Contains(rr.Body.String(), "provider timeout") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
