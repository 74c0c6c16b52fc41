package duckdb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/querydesk/querydesk/internal/engine"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func seedOrders(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := context.Background()
	statements := []string{
		`CREATE TABLE orders (id BIGINT, customer VARCHAR, amount DOUBLE, placed_at TIMESTAMP, paid BOOLEAN)`,
		`INSERT INTO orders VALUES
			(1, 'alice', 19.99, TIMESTAMP '2026-01-05 09:30:00', true),
			(2, 'bob', 5.00, TIMESTAMP '2026-01-06 10:00:00', false),
			(3, NULL, NULL, NULL, NULL)`,
	}
	for _, statement := range statements {
		if err := eng.Exec(ctx, statement); err != nil {
			t.Fatalf("Exec(%q) error = %v", statement, err)
		}
	}
}

func TestQueryMaterializesColumnarHandle(t *testing.T) {
	eng := openTestEngine(t)
	seedOrders(t, eng)

	handle, err := eng.Query(context.Background(), "SELECT id, customer FROM orders ORDER BY id;")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer func() { _ = handle.Close() }()

	names := handle.ColumnNames()
	if len(names) != 2 || names[0] != "id" || names[1] != "customer" {
		t.Fatalf("ColumnNames() = %v", names)
	}
	types := handle.TypeNames()
	if types[0] != "BIGINT" || types[1] != "VARCHAR" {
		t.Fatalf("TypeNames() = %v", types)
	}
	if got := handle.RowCount(); got != 3 {
		t.Fatalf("RowCount() = %d, want 3", got)
	}

	value, err := handle.Value(1, 0)
	if err != nil {
		t.Fatalf("Value(1, 0) error = %v", err)
	}
	if value != "alice" {
		t.Fatalf("Value(1, 0) = %#v, want alice", value)
	}
	nullValue, err := handle.Value(1, 2)
	if err != nil {
		t.Fatalf("Value(1, 2) error = %v", err)
	}
	if nullValue != nil {
		t.Fatalf("Value(1, 2) = %#v, want nil", nullValue)
	}
	if got := handle.SourceSQL(); got != "SELECT id, customer FROM orders ORDER BY id" {
		t.Fatalf("SourceSQL() = %q", got)
	}
}

func TestQueryPreservesEngineErrorMessage(t *testing.T) {
	eng := openTestEngine(t)

	_, err := eng.Query(context.Background(), "SELECT * FROM no_such_table")
	if err == nil {
		t.Fatal("Query() error = nil, want engine error")
	}
	if !strings.Contains(err.Error(), "no_such_table") {
		t.Fatalf("Query() error = %v, want message naming no_such_table", err)
	}
}

func TestParquetRoundTripPreservesSchema(t *testing.T) {
	eng := openTestEngine(t)
	seedOrders(t, eng)
	ctx := context.Background()

	before, err := eng.DescribeTable(ctx, "orders")
	if err != nil {
		t.Fatalf("DescribeTable() error = %v", err)
	}

	blob, err := eng.ExportTableParquet(ctx, "orders")
	if err != nil {
		t.Fatalf("ExportTableParquet() error = %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("ExportTableParquet() returned empty blob")
	}

	if err := eng.DropTable(ctx, "orders"); err != nil {
		t.Fatalf("DropTable() error = %v", err)
	}
	if err := eng.ImportTableParquet(ctx, "orders", blob, false); err != nil {
		t.Fatalf("ImportTableParquet() error = %v", err)
	}

	after, err := eng.DescribeTable(ctx, "orders")
	if err != nil {
		t.Fatalf("DescribeTable() after import error = %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("column count after import = %d, want %d", len(after), len(before))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("column %d after import = %+v, want %+v", i, after[i], before[i])
		}
	}

	count, err := eng.TableRowCount(ctx, "orders")
	if err != nil {
		t.Fatalf("TableRowCount() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("TableRowCount() = %d, want 3", count)
	}
}

func TestImportTableParquetHonorsReplaceFlag(t *testing.T) {
	eng := openTestEngine(t)
	seedOrders(t, eng)
	ctx := context.Background()

	blob, err := eng.ExportTableParquet(ctx, "orders")
	if err != nil {
		t.Fatalf("ExportTableParquet() error = %v", err)
	}

	if err := eng.ImportTableParquet(ctx, "orders", blob, false); err == nil {
		t.Fatal("ImportTableParquet() with replace=false over existing table: error = nil, want error")
	}
	if err := eng.ImportTableParquet(ctx, "orders", blob, true); err != nil {
		t.Fatalf("ImportTableParquet() with replace=true error = %v", err)
	}

	count, err := eng.TableRowCount(ctx, "orders")
	if err != nil {
		t.Fatalf("TableRowCount() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("TableRowCount() = %d, want 3", count)
	}
}

func TestCreateTableFromCSVInfersSchema(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	csvData := []byte("id,name\n1,alpha\n2,beta\n")
	if err := eng.CreateTableFromCSV(ctx, "people", csvData, false); err != nil {
		t.Fatalf("CreateTableFromCSV() error = %v", err)
	}

	count, err := eng.TableRowCount(ctx, "people")
	if err != nil {
		t.Fatalf("TableRowCount() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("TableRowCount() = %d, want 2", count)
	}

	columns, err := eng.DescribeTable(ctx, "people")
	if err != nil {
		t.Fatalf("DescribeTable() error = %v", err)
	}
	if len(columns) != 2 || columns[0].Name != "id" || columns[1].Name != "name" {
		t.Fatalf("DescribeTable() = %+v", columns)
	}
	if columns[0].Type != "BIGINT" || columns[1].Type != "VARCHAR" {
		t.Fatalf("inferred types = %+v", columns)
	}
}

func TestTableNamesListsBaseTablesOnly(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	if err := eng.Exec(ctx, `CREATE TABLE zebra (id BIGINT)`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := eng.Exec(ctx, `CREATE TABLE alpha (id BIGINT)`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := eng.Exec(ctx, `CREATE VIEW alpha_view AS SELECT * FROM alpha`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}

	names, err := eng.TableNames(ctx)
	if err != nil {
		t.Fatalf("TableNames() error = %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zebra" {
		t.Fatalf("TableNames() = %v, want [alpha zebra]", names)
	}
}

func TestDropTableIsIdempotent(t *testing.T) {
	eng := openTestEngine(t)
	ctx := context.Background()

	if err := eng.Exec(ctx, `CREATE TABLE short_lived (id BIGINT)`); err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if err := eng.DropTable(ctx, "short_lived"); err != nil {
		t.Fatalf("DropTable() error = %v", err)
	}
	if err := eng.DropTable(ctx, "short_lived"); err != nil {
		t.Fatalf("second DropTable() error = %v", err)
	}
}

func TestZeroValueEngineReportsUnavailable(t *testing.T) {
	var eng Engine

	if err := eng.Ping(context.Background()); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("Ping() error = %v, want engine.ErrUnavailable", err)
	}
	if _, err := eng.Query(context.Background(), "SELECT 1"); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("Query() error = %v, want engine.ErrUnavailable", err)
	}
}
