package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/result"
)

type Config struct {
	// Path of the database file. Empty runs fully in memory.
	Path        string
	MemoryLimit string
	Threads     int
}

// Engine runs SQL against an embedded DuckDB instance. A single pooled
// connection keeps session settings and staging tables visible across calls.
type Engine struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg Config) (*Engine, error) {
	db, err := sql.Open("duckdb", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

func dsn(cfg Config) string {
	params := make([]string, 0, 2)
	if cfg.MemoryLimit != "" {
		params = append(params, "memory_limit="+cfg.MemoryLimit)
	}
	if cfg.Threads > 0 {
		params = append(params, fmt.Sprintf("threads=%d", cfg.Threads))
	}
	if len(params) == 0 {
		return cfg.Path
	}
	return cfg.Path + "?" + strings.Join(params, "&")
}

func (e *Engine) ready() error {
	if e == nil || e.db == nil {
		return engine.ErrUnavailable
	}
	return nil
}

// Query runs sqlText and scans the full result into a columnar handle. The
// engine's error message passes through verbatim on failure.
func (e *Engine) Query(ctx context.Context, sqlText string) (*result.Handle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("query column types: %w", err)
	}
	typeNames := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		typeNames[i] = columnType.DatabaseTypeName()
	}

	data := make([][]any, len(columns))
	for i := range data {
		data[i] = make([]any, 0)
	}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range normalizeValues(values) {
			data[i] = append(data[i], value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result.NewHandle(columns, typeNames, data, sqlText)
}

func (e *Engine) Exec(ctx context.Context, sqlText string) error {
	if err := e.ready(); err != nil {
		return err
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return fmt.Errorf("sql is required")
	}
	if _, err := e.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}

func (e *Engine) TableNames(ctx context.Context) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' AND table_type = 'BASE TABLE' ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return names, nil
}

func (e *Engine) DescribeTable(ctx context.Context, name string) ([]engine.ColumnInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`DESCRIBE %s`, quoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	describeColumns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe columns for table %q: %w", name, err)
	}

	infos := make([]engine.ColumnInfo, 0)
	for rows.Next() {
		values := make([]any, len(describeColumns))
		scanTargets := make([]any, len(describeColumns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan describe row for table %q: %w", name, err)
		}
		normalized := normalizeValues(values)
		columnName, _ := normalized[0].(string)
		columnType, _ := normalized[1].(string)
		infos = append(infos, engine.ColumnInfo{Name: columnName, Type: columnType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate describe rows for table %q: %w", name, err)
	}
	return infos, nil
}

func (e *Engine) TableRowCount(ctx context.Context, name string) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	var count int64
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(name))
	if err := e.db.QueryRowContext(ctx, countSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows for table %q: %w", name, err)
	}
	return count, nil
}

// ExportTableParquet serializes a whole table through DuckDB's native
// parquet writer and returns the file contents.
func (e *Engine) ExportTableParquet(ctx context.Context, name string) ([]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp("", "querydesk-export-")
	if err != nil {
		return nil, fmt.Errorf("create export temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, sanitizeFileComponent(name)+".parquet")
	copySQL := fmt.Sprintf(
		`COPY (SELECT * FROM %s) TO %s (FORMAT PARQUET, COMPRESSION ZSTD)`,
		quoteIdent(name),
		quoteString(localPath),
	)
	if _, err := e.db.ExecContext(ctx, copySQL); err != nil {
		return nil, fmt.Errorf("write parquet for table %q: %w", name, err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read parquet for table %q: %w", name, err)
	}
	return data, nil
}

// ImportTableParquet recreates a table from parquet bytes through DuckDB's
// native reader. With replace unset, an existing table is an engine error.
func (e *Engine) ImportTableParquet(ctx context.Context, name string, data []byte, replace bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	workDir, err := os.MkdirTemp("", "querydesk-import-")
	if err != nil {
		return fmt.Errorf("create import temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, sanitizeFileComponent(name)+".parquet")
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}

	create := `CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`
	if replace {
		create = `CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet(%s)`
	}
	createSQL := fmt.Sprintf(create, quoteIdent(name), quoteString(localPath))
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q from parquet: %w", name, err)
	}
	return nil
}

func (e *Engine) CreateTableFromCSV(ctx context.Context, name string, data []byte, replace bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	workDir, err := os.MkdirTemp("", "querydesk-import-")
	if err != nil {
		return fmt.Errorf("create import temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, sanitizeFileComponent(name)+".csv")
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return fmt.Errorf("write local csv file %q: %w", localPath, err)
	}

	create := `CREATE TABLE %s AS SELECT * FROM read_csv_auto(%s)`
	if replace {
		create = `CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s)`
	}
	createSQL := fmt.Sprintf(create, quoteIdent(name), quoteString(localPath))
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q from csv: %w", name, err)
	}
	return nil
}

func (e *Engine) DropTable(ctx context.Context, name string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(name))); err != nil {
		return fmt.Errorf("drop table %q: %w", name, err)
	}
	return nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	return nil
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

var _ engine.Engine = (*Engine)(nil)
