package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/querydesk/querydesk/internal/result"
)

var (
	// ErrClassificationFailed wraps any engine failure during a run. The
	// source result stays valid and displayable when this is returned.
	ErrClassificationFailed = errors.New("classify: classification failed")
	// ErrSuperseded reports that a newer result replaced the one being
	// classified before the run finished. The partial stats are discarded.
	ErrSuperseded = errors.New("classify: superseded by a newer result")
)

// Sequence hands out staging table numbers. A single instance is shared by
// every classifier writing to the same engine so concurrent runs never
// collide on a table name.
type Sequence struct {
	counter atomic.Int64
}

func (s *Sequence) Next() int64 {
	return s.counter.Add(1)
}

func (s *Sequence) Reset() {
	s.counter.Store(0)
}

// Generations reports the generation of the currently published result.
// Reads go through the owner on every check rather than a snapshot, so a
// run observes supersession as soon as it happens.
type Generations interface {
	Current() int64
}

// Engine is the slice of query engine behavior classification needs.
type Engine interface {
	Query(ctx context.Context, sqlText string) (*result.Handle, error)
	Exec(ctx context.Context, sqlText string) error
}

// Classifier profiles the columns of a materialized result by re-running
// its source statement into a staging table and issuing one aggregate
// query per eligible column.
type Classifier struct {
	Engine      Engine
	Sequence    *Sequence
	Generations Generations
	Logger      *slog.Logger
}

func (c *Classifier) ensureDefaults() error {
	if c.Engine == nil {
		return errors.New("classify: engine is required")
	}
	if c.Sequence == nil {
		return errors.New("classify: sequence is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Run computes per-column statistics for the given handle. The generation
// identifies the result the caller observed; if a newer generation is
// published while the run is in flight, Run stops and reports
// ErrSuperseded without returning partial stats. The staging table is
// dropped on every exit path.
func (c *Classifier) Run(ctx context.Context, handle *result.Handle, generation int64) ([]ColumnClassification, error) {
	if err := c.ensureDefaults(); err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: no result to classify", ErrClassificationFailed)
	}
	sourceSQL := strings.TrimSpace(handle.SourceSQL())
	if sourceSQL == "" {
		return nil, fmt.Errorf("%w: result carries no source statement", ErrClassificationFailed)
	}
	if c.stale(generation) {
		classificationStaleDiscardsTotal.Inc()
		classificationRunsTotal.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}

	columns := handle.ColumnNames()
	typeNames := handle.TypeNames()

	staging := fmt.Sprintf("classification_staging_%d", c.Sequence.Next())
	createSQL := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM (%s) AS source", quoteIdent(staging), sourceSQL)
	if err := c.Engine.Exec(ctx, createSQL); err != nil {
		classificationRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: stage result: %v", ErrClassificationFailed, err)
	}
	defer func() {
		// The drop must survive caller cancellation or the staging table
		// leaks until the process exits.
		dropCtx := context.WithoutCancel(ctx)
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(staging))
		if err := c.Engine.Exec(dropCtx, dropSQL); err != nil {
			c.Logger.Warn("drop classification staging table", "table", staging, "error", err)
		}
	}()

	classifications := make([]ColumnClassification, 0, len(columns))
	for i, column := range columns {
		if c.stale(generation) {
			classificationStaleDiscardsTotal.Inc()
			classificationRunsTotal.WithLabelValues("superseded").Inc()
			return nil, ErrSuperseded
		}

		classification := ColumnClassification{
			ColumnName:     column,
			Category:       CategoryFor(typeNames[i]),
			SourceTypeName: typeNames[i],
		}
		plan, ok := planFor(classification.Category)
		if !ok {
			classifications = append(classifications, classification)
			continue
		}

		aggregateSQL := fmt.Sprintf("SELECT %s FROM %s",
			strings.Join(plan.expressions(quoteIdent(column)), ", "), quoteIdent(staging))
		row, err := c.queryRow(ctx, aggregateSQL)
		if err != nil {
			classificationRunsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("%w: aggregate column %q: %v", ErrClassificationFailed, column, err)
		}
		plan.apply(row, &classification)
		classifications = append(classifications, classification)
		classificationColumnsTotal.Inc()
	}

	if c.stale(generation) {
		classificationStaleDiscardsTotal.Inc()
		classificationRunsTotal.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}
	classificationRunsTotal.WithLabelValues("completed").Inc()
	return classifications, nil
}

func (c *Classifier) stale(generation int64) bool {
	return c.Generations != nil && c.Generations.Current() != generation
}

func (c *Classifier) queryRow(ctx context.Context, sqlText string) ([]any, error) {
	handle, err := c.Engine.Query(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	if handle.RowCount() == 0 {
		return nil, errors.New("aggregate query returned no rows")
	}
	return handle.Row(0)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
