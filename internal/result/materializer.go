package result

import (
	"fmt"
	"time"
)

const (
	DefaultDisplayLimit = 1000
	DefaultLargeRows    = 100_000
	DefaultDangerRows   = 1_000_000
)

// Advisory warns callers about result sizes that are safe to hold but risky
// to hand to a renderer wholesale. The materializer never refuses to operate.
type Advisory string

const (
	AdvisoryNone   Advisory = ""
	AdvisoryLarge  Advisory = "large"
	AdvisoryDanger Advisory = "danger"
)

// Materialized is the bounded row-oriented projection of a query result.
// Handle stays reachable so a full-fidelity export remains possible after
// display truncation.
type Materialized struct {
	Columns           []string
	TypeNames         []string
	Rows              [][]any
	TotalRowCount     int64
	DisplayedRowCount int
	ExecutionTimeMs   float64
	Truncated         bool
	Advisory          Advisory
	Handle            *Handle
}

// Materializer converts a Handle into a Materialized projection, doing at
// most DisplayLimit rows' worth of conversion work regardless of the total
// row count.
type Materializer struct {
	DisplayLimit int
	LargeRows    int64
	DangerRows   int64
}

func (m *Materializer) ensureDefaults() {
	if m.DisplayLimit <= 0 {
		m.DisplayLimit = DefaultDisplayLimit
	}
	if m.LargeRows <= 0 {
		m.LargeRows = DefaultLargeRows
	}
	if m.DangerRows <= 0 {
		m.DangerRows = DefaultDangerRows
	}
}

func (m *Materializer) Materialize(handle *Handle, executionTime time.Duration) (Materialized, error) {
	m.ensureDefaults()
	return m.MaterializeLimit(handle, m.DisplayLimit, executionTime)
}

// MaterializeLimit materializes with an explicit per-call display limit.
// A non-positive limit falls back to the configured one.
func (m *Materializer) MaterializeLimit(handle *Handle, displayLimit int, executionTime time.Duration) (Materialized, error) {
	m.ensureDefaults()
	if handle == nil {
		return Materialized{}, fmt.Errorf("handle is required")
	}
	if handle.Closed() {
		return Materialized{}, ErrHandleClosed
	}
	if displayLimit <= 0 {
		displayLimit = m.DisplayLimit
	}

	total := handle.RowCount()
	displayed := displayLimit
	if total < int64(displayed) {
		displayed = int(total)
	}

	rows := make([][]any, 0, displayed)
	for i := 0; i < displayed; i++ {
		row, err := handle.Row(i)
		if err != nil {
			return Materialized{}, fmt.Errorf("materialize row %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	return Materialized{
		Columns:           handle.ColumnNames(),
		TypeNames:         handle.TypeNames(),
		Rows:              rows,
		TotalRowCount:     total,
		DisplayedRowCount: displayed,
		ExecutionTimeMs:   float64(executionTime) / float64(time.Millisecond),
		Truncated:         total > int64(displayLimit),
		Advisory:          m.advisoryFor(total),
		Handle:            handle,
	}, nil
}

func (m *Materializer) advisoryFor(rowCount int64) Advisory {
	switch {
	case rowCount > m.DangerRows:
		return AdvisoryDanger
	case rowCount > m.LargeRows:
		return AdvisoryLarge
	default:
		return AdvisoryNone
	}
}
