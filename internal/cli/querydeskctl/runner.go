package querydeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/querydesk/querydesk/internal/classify"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querydeskctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "QueryDesk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	output := fs.String("output", "table", "output for tabular commands: table, csv or json")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]

	method := ""
	path := ""
	contentType := ""
	var body io.Reader
	var render func(w io.Writer, raw []byte) error

	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "tables":
		method, path = http.MethodGet, "/v1/tables"
		render = renderTables(*output)
	case "query":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl query <sql>")
			return 2
		}
		payload, err := json.Marshal(map[string]string{"sql": rest[0]})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		method, path = http.MethodPost, "/v1/query"
		contentType = "application/json"
		body = bytes.NewReader(payload)
		render = renderQueryResult(*output)
	case "translate":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl translate <prompt>")
			return 2
		}
		payload, err := json.Marshal(map[string]string{"prompt": rest[0]})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		method, path = http.MethodPost, "/v1/query/translate"
		contentType = "application/json"
		body = bytes.NewReader(payload)
	case "classify":
		method, path = http.MethodPost, "/v1/result/classify"
		render = renderClassifications(*output)
	case "drop":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl drop <table>")
			return 2
		}
		method, path = http.MethodDelete, "/v1/tables/"+url.PathEscape(rest[0])
	case "save":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl save <table>")
			return 2
		}
		method, path = http.MethodPost, "/v1/tables/"+url.PathEscape(rest[0])+"/save"
	case "save-all":
		method, path = http.MethodPost, "/v1/tables/save"
		if len(rest) > 0 {
			payload, err := json.Marshal(map[string][]string{"tables": rest})
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
				return 1
			}
			contentType = "application/json"
			body = bytes.NewReader(payload)
		}
	case "restore":
		method, path = http.MethodPost, "/v1/tables/restore"
	case "remove-saved":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl remove-saved <table>")
			return 2
		}
		method, path = http.MethodDelete, "/v1/tables/"+url.PathEscape(rest[0])+"/save"
	case "clear-saved":
		method, path = http.MethodDelete, "/v1/tables/save"
	case "export-archive":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl export-archive <file>")
			return 2
		}
		method, path = http.MethodGet, "/v1/archive/export"
		outPath := rest[0]
		render = func(w io.Writer, raw []byte) error {
			if outPath == "-" {
				_, err := w.Write(raw)
				return err
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "wrote %d bytes to %s\n", len(raw), outPath)
			return nil
		}
	case "import-archive":
		if len(rest) != 1 {
			_, _ = fmt.Fprintln(stderr, "usage: querydeskctl import-archive <file>")
			return 2
		}
		raw, err := os.ReadFile(rest[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read archive: %v\n", err)
			return 1
		}
		method, path = http.MethodPost, "/v1/archive/import"
		contentType = "application/zip"
		body = bytes.NewReader(raw)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, contentType, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if render != nil {
		if err := render(stdout, responseBody); err != nil {
			_, _ = fmt.Fprintf(stderr, "render failed: %v\n", err)
			return 1
		}
		return 0
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func renderQueryResult(format string) func(io.Writer, []byte) error {
	return func(w io.Writer, raw []byte) error {
		var result struct {
			Columns           []string `json:"columns"`
			Rows              [][]any  `json:"rows"`
			TotalRowCount     int64    `json:"total_row_count"`
			DisplayedRowCount int      `json:"displayed_row_count"`
			Truncated         bool     `json:"truncated"`
			ExecutionTimeMs   float64  `json:"execution_time_ms"`
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return err
		}

		switch format {
		case "json":
			return writePrettyJSON(w, raw)
		case "csv":
			return writeCSVRows(w, result.Columns, result.Rows)
		default:
			writeTableRows(w, result.Columns, result.Rows)
			if result.Truncated {
				_, _ = fmt.Fprintf(w, "(%d of %d rows in %.1fms)\n", result.DisplayedRowCount, result.TotalRowCount, result.ExecutionTimeMs)
			} else {
				_, _ = fmt.Fprintf(w, "(%d rows in %.1fms)\n", result.DisplayedRowCount, result.ExecutionTimeMs)
			}
			return nil
		}
	}
}

func renderTables(format string) func(io.Writer, []byte) error {
	return func(w io.Writer, raw []byte) error {
		var listing struct {
			Tables []struct {
				TableName string `json:"table_name"`
				Columns   []struct {
					Name string `json:"name"`
					Type string `json:"type"`
				} `json:"columns"`
				RowCount int64 `json:"row_count"`
				Saved    bool  `json:"saved"`
			} `json:"tables"`
		}
		if err := json.Unmarshal(raw, &listing); err != nil {
			return err
		}

		columns := []string{"table", "rows", "columns", "saved"}
		rows := make([][]any, 0, len(listing.Tables))
		for _, entry := range listing.Tables {
			rows = append(rows, []any{entry.TableName, entry.RowCount, len(entry.Columns), entry.Saved})
		}

		switch format {
		case "json":
			return writePrettyJSON(w, raw)
		case "csv":
			return writeCSVRows(w, columns, rows)
		default:
			writeTableRows(w, columns, rows)
			_, _ = fmt.Fprintf(w, "(%d tables)\n", len(listing.Tables))
			return nil
		}
	}
}

func renderClassifications(format string) func(io.Writer, []byte) error {
	return func(w io.Writer, raw []byte) error {
		var response struct {
			Classifications []classify.ColumnClassification `json:"classifications"`
		}
		if err := json.Unmarshal(raw, &response); err != nil {
			return err
		}

		columns := []string{"column", "type", "category", "nulls", "details"}
		rows := make([][]any, 0, len(response.Classifications))
		for _, entry := range response.Classifications {
			nulls, details := classificationDetails(entry)
			rows = append(rows, []any{entry.ColumnName, entry.SourceTypeName, string(entry.Category), nulls, details})
		}

		switch format {
		case "json":
			return writePrettyJSON(w, raw)
		case "csv":
			return writeCSVRows(w, columns, rows)
		default:
			writeTableRows(w, columns, rows)
			_, _ = fmt.Fprintf(w, "(%d columns)\n", len(response.Classifications))
			return nil
		}
	}
}

func classificationDetails(entry classify.ColumnClassification) (int64, string) {
	switch {
	case entry.Numeric != nil:
		return entry.Numeric.NullCount, fmt.Sprintf("min=%s max=%s mean=%s",
			floatCell(entry.Numeric.Min), floatCell(entry.Numeric.Max), floatCell(entry.Numeric.Mean))
	case entry.Temporal != nil:
		return entry.Temporal.NullCount, fmt.Sprintf("min=%s max=%s",
			stringCell(entry.Temporal.Min), stringCell(entry.Temporal.Max))
	case entry.String != nil:
		return entry.String.NullCount, fmt.Sprintf("length %s..%s",
			intCell(entry.String.MinLength), intCell(entry.String.MaxLength))
	case entry.Boolean != nil:
		return entry.Boolean.NullCount, fmt.Sprintf("true=%d false=%d",
			entry.Boolean.TrueCount, entry.Boolean.FalseCount)
	}
	return 0, ""
}

func writeTableRows(w io.Writer, columns []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	for i, name := range columns {
		header[i] = name
	}
	t.AppendHeader(header)

	for _, values := range rows {
		row := make(table.Row, len(columns))
		for i := range columns {
			if i < len(values) {
				row[i] = formatCell(values[i])
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

func writeCSVRows(w io.Writer, columns []string, rows [][]any) error {
	if _, err := fmt.Fprintln(w, strings.Join(columns, ",")); err != nil {
		return err
	}
	for _, values := range rows {
		cells := make([]string, len(values))
		for i, value := range values {
			if value == nil {
				continue
			}
			cells[i] = escapeCSV(formatCell(value))
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return err
		}
	}
	return nil
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	}
	return fmt.Sprintf("%v", value)
}

func escapeCSV(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

func writePrettyJSON(w io.Writer, raw []byte) error {
	pretty, ok := prettyJSON(raw)
	if !ok {
		_, err := w.Write(raw)
		return err
	}
	_, err := fmt.Fprintln(w, pretty)
	return err
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querydeskctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                   GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                    GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  tables                   GET /v1/tables")
	_, _ = fmt.Fprintln(w, "  query <sql>              POST /v1/query")
	_, _ = fmt.Fprintln(w, "  translate <prompt>       POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  classify                 POST /v1/result/classify")
	_, _ = fmt.Fprintln(w, "  drop <table>             DELETE /v1/tables/{table}")
	_, _ = fmt.Fprintln(w, "  save <table>             POST /v1/tables/{table}/save")
	_, _ = fmt.Fprintln(w, "  save-all [tables...]     POST /v1/tables/save")
	_, _ = fmt.Fprintln(w, "  restore                  POST /v1/tables/restore")
	_, _ = fmt.Fprintln(w, "  remove-saved <table>     DELETE /v1/tables/{table}/save")
	_, _ = fmt.Fprintln(w, "  clear-saved              DELETE /v1/tables/save")
	_, _ = fmt.Fprintln(w, "  export-archive <file>    GET /v1/archive/export")
	_, _ = fmt.Fprintln(w, "  import-archive <file>    POST /v1/archive/import")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
