package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/result"
)

// ErrFormatInvalid reports an import payload that is not a readable archive
// or carries no usable manifest.
var ErrFormatInvalid = errors.New("archive: invalid archive format")

const (
	metadataFileName = "metadata.json"
	metadataVersion  = "1.0"
)

// Metadata is the archive manifest. Field names are part of the archive
// format and stay camelCase for compatibility with existing archives.
type Metadata struct {
	Version    string          `json:"version"`
	ExportDate string          `json:"exportDate"`
	Tables     []TableMetadata `json:"tables"`
}

type TableMetadata struct {
	Name     string           `json:"name"`
	RowCount int64            `json:"rowCount"`
	Columns  []ColumnMetadata `json:"columns"`
}

type ColumnMetadata struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Engine is the slice of the analytical engine archive operations need.
type Engine interface {
	TableNames(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) ([]engine.ColumnInfo, error)
	TableRowCount(ctx context.Context, name string) (int64, error)
	Query(ctx context.Context, sqlText string) (*result.Handle, error)
	CreateTableFromCSV(ctx context.Context, name string, data []byte, replace bool) error
}

type TableError struct {
	TableName string `json:"table_name"`
	Message   string `json:"message"`
}

type SkipNotice struct {
	TableName string `json:"table_name"`
	Reason    string `json:"reason"`
}

type ExportSummary struct {
	Requested int          `json:"requested"`
	Exported  []string     `json:"exported"`
	Failed    []TableError `json:"failed,omitempty"`
}

type ImportOptions struct {
	ReplaceExisting bool
}

type ImportSummary struct {
	Requested int          `json:"requested"`
	Imported  []string     `json:"imported"`
	Skipped   []SkipNotice `json:"skipped,omitempty"`
	Failed    []TableError `json:"failed,omitempty"`
}

// Bundler packages tables as a portable archive of one CSV per table plus a
// manifest, and imports the same format back. It is independent of the fast
// parquet persistence path.
type Bundler struct {
	Engine Engine
	Logger *slog.Logger
	Clock  func() time.Time
}

func (b *Bundler) ensureDefaults() {
	if b.Clock == nil {
		b.Clock = time.Now
	}
}

// Export writes a zip archive to w. Each table is attempted independently;
// a failed table is recorded in the summary and the archive is still
// produced with whichever tables succeeded. The returned error is non-nil
// only when the archive itself could not be written. An empty names slice
// exports every live table.
func (b *Bundler) Export(ctx context.Context, w io.Writer, names []string) (ExportSummary, error) {
	b.ensureDefaults()
	if b.Engine == nil {
		return ExportSummary{}, fmt.Errorf("engine is required")
	}

	if len(names) == 0 {
		liveNames, err := b.Engine.TableNames(ctx)
		if err != nil {
			archiveExportsTotal.WithLabelValues("failed").Inc()
			return ExportSummary{}, fmt.Errorf("list tables: %w", err)
		}
		names = liveNames
	}

	summary := ExportSummary{Requested: len(names), Exported: make([]string, 0, len(names))}
	metadata := Metadata{
		Version:    metadataVersion,
		ExportDate: b.Clock().UTC().Format(time.RFC3339),
		Tables:     make([]TableMetadata, 0, len(names)),
	}

	zipWriter := zip.NewWriter(w)
	for _, name := range names {
		tableMeta, csvData, err := b.exportTable(ctx, name)
		if err != nil {
			archiveTableFailuresTotal.Inc()
			summary.Failed = append(summary.Failed, TableError{TableName: name, Message: err.Error()})
			if b.Logger != nil {
				b.Logger.WarnContext(ctx, "archive export failed for table", slog.String("table", name), slog.Any("error", err))
			}
			continue
		}

		member, err := zipWriter.Create(name + ".csv")
		if err != nil {
			archiveExportsTotal.WithLabelValues("failed").Inc()
			return summary, fmt.Errorf("create archive member for table %q: %w", name, err)
		}
		if _, err := member.Write(csvData); err != nil {
			archiveExportsTotal.WithLabelValues("failed").Inc()
			return summary, fmt.Errorf("write archive member for table %q: %w", name, err)
		}

		metadata.Tables = append(metadata.Tables, tableMeta)
		summary.Exported = append(summary.Exported, name)
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		archiveExportsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("marshal archive metadata: %w", err)
	}
	metadataMember, err := zipWriter.Create(metadataFileName)
	if err != nil {
		archiveExportsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("create archive metadata member: %w", err)
	}
	if _, err := metadataMember.Write(metadataJSON); err != nil {
		archiveExportsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("write archive metadata: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		archiveExportsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("finalize archive: %w", err)
	}

	archiveExportsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (b *Bundler) exportTable(ctx context.Context, name string) (TableMetadata, []byte, error) {
	columns, err := b.Engine.DescribeTable(ctx, name)
	if err != nil {
		return TableMetadata{}, nil, fmt.Errorf("read schema: %w", err)
	}
	rowCount, err := b.Engine.TableRowCount(ctx, name)
	if err != nil {
		return TableMetadata{}, nil, fmt.Errorf("read row count: %w", err)
	}

	handle, err := b.Engine.Query(ctx, fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(name)))
	if err != nil {
		return TableMetadata{}, nil, fmt.Errorf("read table data: %w", err)
	}
	defer func() { _ = handle.Close() }()

	var buf bytes.Buffer
	if err := export.EncodeHandleCSV(&buf, handle); err != nil {
		return TableMetadata{}, nil, fmt.Errorf("encode csv: %w", err)
	}

	tableMeta := TableMetadata{
		Name:     name,
		RowCount: rowCount,
		Columns:  make([]ColumnMetadata, 0, len(columns)),
	}
	for _, column := range columns {
		tableMeta.Columns = append(tableMeta.Columns, ColumnMetadata{Name: column.Name, Type: column.Type})
	}
	return tableMeta, buf.Bytes(), nil
}

// Import reads an archive and recreates the tables its manifest lists. A
// manifest table without a CSV member is skipped with a warning. Name
// collisions with live tables honor opts.ReplaceExisting: true overwrites,
// false skips with an informational notice. There is no merge behavior.
func (b *Bundler) Import(ctx context.Context, r io.ReaderAt, size int64, opts ImportOptions) (ImportSummary, error) {
	b.ensureDefaults()
	if b.Engine == nil {
		return ImportSummary{}, fmt.Errorf("engine is required")
	}

	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		archiveImportsTotal.WithLabelValues("failed").Inc()
		return ImportSummary{}, fmt.Errorf("%w: %v", ErrFormatInvalid, err)
	}

	members := make(map[string]*zip.File, len(zipReader.File))
	for _, file := range zipReader.File {
		members[file.Name] = file
	}

	metadataFile, ok := members[metadataFileName]
	if !ok {
		archiveImportsTotal.WithLabelValues("failed").Inc()
		return ImportSummary{}, fmt.Errorf("%w: missing %s", ErrFormatInvalid, metadataFileName)
	}
	metadataJSON, err := readMember(metadataFile)
	if err != nil {
		archiveImportsTotal.WithLabelValues("failed").Inc()
		return ImportSummary{}, fmt.Errorf("%w: read %s: %v", ErrFormatInvalid, metadataFileName, err)
	}
	var metadata Metadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		archiveImportsTotal.WithLabelValues("failed").Inc()
		return ImportSummary{}, fmt.Errorf("%w: parse %s: %v", ErrFormatInvalid, metadataFileName, err)
	}
	if metadata.Version == "" {
		archiveImportsTotal.WithLabelValues("failed").Inc()
		return ImportSummary{}, fmt.Errorf("%w: manifest has no version", ErrFormatInvalid)
	}

	liveNames, err := b.Engine.TableNames(ctx)
	if err != nil {
		archiveImportsTotal.WithLabelValues("failed").Inc()
		return ImportSummary{}, fmt.Errorf("list tables: %w", err)
	}
	live := make(map[string]bool, len(liveNames))
	for _, name := range liveNames {
		live[name] = true
	}

	summary := ImportSummary{Requested: len(metadata.Tables), Imported: make([]string, 0, len(metadata.Tables))}
	for _, table := range metadata.Tables {
		member, ok := members[table.Name+".csv"]
		if !ok {
			summary.Skipped = append(summary.Skipped, SkipNotice{
				TableName: table.Name,
				Reason:    fmt.Sprintf("csv member %q missing from archive", table.Name+".csv"),
			})
			if b.Logger != nil {
				b.Logger.WarnContext(ctx, "archive member missing, skipping table", slog.String("table", table.Name))
			}
			continue
		}

		if live[table.Name] && !opts.ReplaceExisting {
			summary.Skipped = append(summary.Skipped, SkipNotice{
				TableName: table.Name,
				Reason:    fmt.Sprintf("table %q already exists; import left it untouched", table.Name),
			})
			if b.Logger != nil {
				b.Logger.InfoContext(ctx, "table exists, skipping import", slog.String("table", table.Name))
			}
			continue
		}

		csvData, err := readMember(member)
		if err != nil {
			archiveTableFailuresTotal.Inc()
			summary.Failed = append(summary.Failed, TableError{TableName: table.Name, Message: fmt.Sprintf("read csv member: %v", err)})
			continue
		}
		if err := b.Engine.CreateTableFromCSV(ctx, table.Name, csvData, opts.ReplaceExisting); err != nil {
			archiveTableFailuresTotal.Inc()
			summary.Failed = append(summary.Failed, TableError{TableName: table.Name, Message: fmt.Sprintf("create table: %v", err)})
			if b.Logger != nil {
				b.Logger.WarnContext(ctx, "archive import failed for table", slog.String("table", table.Name), slog.Any("error", err))
			}
			continue
		}
		summary.Imported = append(summary.Imported, table.Name)
	}

	archiveImportsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func readMember(file *zip.File) ([]byte, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
