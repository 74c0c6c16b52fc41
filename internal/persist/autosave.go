package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const DefaultAutoSaveInterval = 5 * time.Minute

// AutoSaver periodically snapshots every live table through SaveAll.
type AutoSaver struct {
	Store    *Store
	Interval time.Duration
	Logger   *slog.Logger
}

func (a *AutoSaver) ensureDefaults() {
	if a.Interval <= 0 {
		a.Interval = DefaultAutoSaveInterval
	}
}

func (a *AutoSaver) Run(ctx context.Context) error {
	a.ensureDefaults()
	if a.Store == nil {
		return fmt.Errorf("store is required")
	}

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := a.RunOnce(ctx)
			if err != nil {
				autosaveRunsTotal.WithLabelValues("failed").Inc()
				if a.Logger != nil {
					a.Logger.ErrorContext(ctx, "autosave cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			autosaveRunsTotal.WithLabelValues("completed").Inc()
			if a.Logger != nil {
				a.Logger.InfoContext(ctx, "autosave cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunOnce snapshots all live tables. An empty engine produces no snapshot
// rather than rewriting the previous manifest down to nothing.
func (a *AutoSaver) RunOnce(ctx context.Context) (SaveAllSummary, error) {
	if a.Store == nil {
		return SaveAllSummary{}, fmt.Errorf("store is required")
	}
	if err := a.Store.ready(); err != nil {
		return SaveAllSummary{}, err
	}

	names, err := a.Store.Engine.TableNames(ctx)
	if err != nil {
		return SaveAllSummary{}, fmt.Errorf("list tables: %w", err)
	}
	if len(names) == 0 {
		return SaveAllSummary{}, nil
	}
	return a.Store.SaveAll(ctx, names)
}
