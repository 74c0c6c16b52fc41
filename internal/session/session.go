package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/querydesk/querydesk/internal/classify"
	"github.com/querydesk/querydesk/internal/export"
	"github.com/querydesk/querydesk/internal/result"
)

// ErrNoResult is returned when an operation needs a current result and no
// query has produced one yet.
var ErrNoResult = errors.New("session: no current result")

// Engine is the slice of query engine behavior the session needs.
type Engine interface {
	Query(ctx context.Context, sqlText string) (*result.Handle, error)
}

// Classifier profiles the columns of a result at a given generation.
type Classifier interface {
	Run(ctx context.Context, handle *result.Handle, generation int64) ([]classify.ColumnClassification, error)
}

// Session owns the current query result: the full-fidelity handle, its
// bounded materialized projection, the generation counter that stamps each
// result, and the latest committed classifications. Every generation bump
// marks in-flight classification work for the prior result as stale.
type Session struct {
	Engine       Engine
	Materializer *result.Materializer
	Classifier   Classifier
	Logger       *slog.Logger
	Clock        func() time.Time

	mu            sync.Mutex
	generation    int64
	handle        *result.Handle
	current       *result.Materialized
	classified    []classify.ColumnClassification
	hasClassified bool
}

func (s *Session) ensureDefaults() error {
	if s.Engine == nil {
		return errors.New("session: engine is required")
	}
	if s.Materializer == nil {
		s.Materializer = &result.Materializer{}
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return nil
}

// ExecuteQuery runs the statement, replaces the current result with the new
// one, and returns its materialized projection. The previous handle is
// closed and the generation advances, so classification runs still working
// on the old result can no longer publish. A non-positive displayLimit uses
// the configured default.
func (s *Session) ExecuteQuery(ctx context.Context, sqlText string, displayLimit int) (result.Materialized, error) {
	if err := s.ensureDefaults(); err != nil {
		return result.Materialized{}, err
	}

	started := s.Clock()
	handle, err := s.Engine.Query(ctx, sqlText)
	elapsed := s.Clock().Sub(started)
	if err != nil {
		queriesTotal.WithLabelValues("failed").Inc()
		return result.Materialized{}, err
	}

	materialized, err := s.Materializer.MaterializeLimit(handle, displayLimit, elapsed)
	if err != nil {
		handle.Close()
		queriesTotal.WithLabelValues("failed").Inc()
		return result.Materialized{}, fmt.Errorf("materialize result: %w", err)
	}

	s.mu.Lock()
	previous := s.handle
	s.handle = handle
	s.current = &materialized
	s.generation++
	s.classified = nil
	s.hasClassified = false
	s.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	queriesTotal.WithLabelValues("completed").Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
	rowsMaterializedTotal.Add(float64(materialized.DisplayedRowCount))
	if materialized.Truncated {
		truncatedResultsTotal.Inc()
	}
	s.Logger.Info("query executed",
		"total_rows", materialized.TotalRowCount,
		"displayed_rows", materialized.DisplayedRowCount,
		"truncated", materialized.Truncated,
		"duration_ms", materialized.ExecutionTimeMs)
	return materialized, nil
}

// Current returns the materialized projection of the latest query, if any.
func (s *Session) Current() (result.Materialized, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return result.Materialized{}, false
	}
	return *s.current, true
}

// ExportCurrentCSV streams the full current result as CSV, ignoring the
// display truncation. The handle is read outside the session lock, so a
// concurrent query replacing it surfaces as a closed-handle error.
func (s *Session) ExportCurrentCSV(w io.Writer) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return ErrNoResult
	}
	return export.EncodeHandleCSV(w, handle)
}

// Classify profiles the columns of the current result. The run is tagged
// with the generation observed at the start; the outcome is published only
// if that generation is still current when the run finishes. A run that
// lost the race returns classify.ErrSuperseded and publishes nothing.
func (s *Session) Classify(ctx context.Context) ([]classify.ColumnClassification, error) {
	if s.Classifier == nil {
		return nil, errors.New("session: classifier is not configured")
	}

	s.mu.Lock()
	handle := s.handle
	generation := s.generation
	s.mu.Unlock()
	if handle == nil {
		return nil, ErrNoResult
	}

	classifications, err := s.Classifier.Run(ctx, handle, generation)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return nil, classify.ErrSuperseded
	}
	s.classified = classifications
	s.hasClassified = true
	return copyClassifications(classifications), nil
}

// Classifications returns the latest committed classifications for the
// current result. The second return is false until a run has committed.
func (s *Session) Classifications() ([]classify.ColumnClassification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyClassifications(s.classified), s.hasClassified
}

// Generation reports the generation of the currently published result.
func (s *Session) Generation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Close releases the current handle and clears published state. The
// generation still advances so an in-flight classification cannot commit
// against the released result.
func (s *Session) Close() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.current = nil
	s.classified = nil
	s.hasClassified = false
	s.generation++
	s.mu.Unlock()
	if handle != nil {
		handle.Close()
	}
}

// GenerationSource adapts the session's generation counter for the
// classifier's staleness checks.
type GenerationSource struct {
	Session *Session
}

func (g GenerationSource) Current() int64 {
	return g.Session.Generation()
}

func copyClassifications(classifications []classify.ColumnClassification) []classify.ColumnClassification {
	if classifications == nil {
		return nil
	}
	return append([]classify.ColumnClassification(nil), classifications...)
}
