package result

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrHandleClosed = errors.New("result: handle closed")
	ErrColumnIndex  = errors.New("result: column index out of range")
	ErrRowIndex     = errors.New("result: row index out of range")
)

// Handle is a column-major view over a completed query result. It is
// immutable after creation and shared read-only by display materialization,
// export, and classification until the next query supersedes it.
type Handle struct {
	mu          sync.RWMutex
	closed      bool
	columnNames []string
	typeNames   []string
	data        [][]any
	rowCount    int64
	sourceSQL   string
}

// NewHandle wraps column-major result data. data[i] holds the values of
// column i; all columns must have the same length.
func NewHandle(columnNames []string, typeNames []string, data [][]any, sourceSQL string) (*Handle, error) {
	if len(columnNames) != len(typeNames) {
		return nil, fmt.Errorf("column name count %d does not match type count %d", len(columnNames), len(typeNames))
	}
	if len(data) != len(columnNames) {
		return nil, fmt.Errorf("column data count %d does not match name count %d", len(data), len(columnNames))
	}

	var rowCount int64
	if len(data) > 0 {
		rowCount = int64(len(data[0]))
		for i, column := range data {
			if int64(len(column)) != rowCount {
				return nil, fmt.Errorf("column %q has %d rows, expected %d", columnNames[i], len(column), rowCount)
			}
		}
	}

	return &Handle{
		columnNames: append([]string(nil), columnNames...),
		typeNames:   append([]string(nil), typeNames...),
		data:        data,
		rowCount:    rowCount,
		sourceSQL:   sourceSQL,
	}, nil
}

func (h *Handle) ColumnNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.columnNames...)
}

func (h *Handle) TypeNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.typeNames...)
}

func (h *Handle) RowCount() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rowCount
}

// SourceSQL returns the statement that produced this result. Classification
// uses it to rebuild the result inside the engine as a staging table.
func (h *Handle) SourceSQL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sourceSQL
}

func (h *Handle) Value(col, row int) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	if col < 0 || col >= len(h.data) {
		return nil, fmt.Errorf("%w: %d", ErrColumnIndex, col)
	}
	if row < 0 || int64(row) >= h.rowCount {
		return nil, fmt.Errorf("%w: %d", ErrRowIndex, row)
	}
	return h.data[col][row], nil
}

func (h *Handle) Row(row int) ([]any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	if row < 0 || int64(row) >= h.rowCount {
		return nil, fmt.Errorf("%w: %d", ErrRowIndex, row)
	}
	values := make([]any, len(h.data))
	for col := range h.data {
		values[col] = h.data[col][row]
	}
	return values, nil
}

func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// Close releases the column data. It is idempotent; metadata accessors keep
// working after close, value access does not.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.data = nil
	return nil
}
