package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/result"
)

// EncodeCSV writes columns and rows as UTF-8 comma-delimited text. The
// header row is always present, even for zero rows or zero columns. Fields
// containing the separator, a quote, or a line break are wrapped in double
// quotes with internal quotes doubled.
func EncodeCSV(w io.Writer, columns []string, rows [][]any) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range rows {
		record := make([]string, len(row))
		for j, value := range row {
			record[j] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// EncodeHandleCSV writes the full result behind the handle, ignoring any
// display truncation applied elsewhere.
func EncodeHandleCSV(w io.Writer, handle *result.Handle) error {
	if handle == nil {
		return fmt.Errorf("handle is required")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(handle.ColumnNames()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	rowCount := handle.RowCount()
	for i := int64(0); i < rowCount; i++ {
		row, err := handle.Row(int(i))
		if err != nil {
			return fmt.Errorf("read result row %d: %w", i, err)
		}
		record := make([]string, len(row))
		for j, value := range row {
			record[j] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// DecodeCSV parses comma-delimited text back into a header plus rows. Empty
// fields decode to nil; everything else stays a string, typing is
// re-established by the engine on import.
func DecodeCSV(r io.Reader) ([]string, [][]any, error) {
	reader := csv.NewReader(r)

	columns, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	rows := make([][]any, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row %d: %w", len(rows), err)
		}
		row := make([]any, len(record))
		for i, field := range record {
			if field == "" {
				row[i] = nil
				continue
			}
			row[i] = field
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// Filename derives an export file name carrying the export timestamp.
func Filename(base string, at time.Time) string {
	base = strings.ReplaceAll(base, "/", "_")
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s_%s.csv", base, at.Format("20060102_150405"))
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return formatFloat(float64(typed))
	case int32:
		return formatFloat(float64(typed))
	case int64:
		// Wide integers pass through float64 so the text matches exports
		// from runtimes without native 64-bit integers. Values beyond 2^53
		// lose precision.
		return formatFloat(float64(typed))
	case uint64:
		return formatFloat(float64(typed))
	case float32:
		return strconv.FormatFloat(float64(typed), 'g', -1, 32)
	case float64:
		return formatFloat(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func formatFloat(value float64) string {
	if value == math.Trunc(value) && math.Abs(value) < 1e21 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	return strconv.FormatFloat(value, 'g', -1, 64)
}
