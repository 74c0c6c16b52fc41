package engine

import (
	"context"
	"errors"

	"github.com/querydesk/querydesk/internal/result"
)

// ErrUnavailable reports that no live engine connection exists. Query errors
// for well-formed requests keep the engine's own message instead.
var ErrUnavailable = errors.New("engine: unavailable")

type ColumnInfo struct {
	Name string
	Type string
}

// Engine is the embedded analytical database boundary. Consumers should
// declare their own narrow subsets of it.
type Engine interface {
	Query(ctx context.Context, sqlText string) (*result.Handle, error)
	Exec(ctx context.Context, sqlText string) error
	TableNames(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) ([]ColumnInfo, error)
	TableRowCount(ctx context.Context, name string) (int64, error)
	ExportTableParquet(ctx context.Context, name string) ([]byte, error)
	ImportTableParquet(ctx context.Context, name string, data []byte, replace bool) error
	CreateTableFromCSV(ctx context.Context, name string, data []byte, replace bool) error
	DropTable(ctx context.Context, name string) error
	Ping(ctx context.Context) error
	Close() error
}
