package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querydesk/querydesk/internal/kv"
)

var (
	// ErrCorruptData reports a persisted blob or manifest that exists but
	// cannot be parsed.
	ErrCorruptData = errors.New("persist: corrupt persisted data")
	// ErrStorageUnavailable reports that the durable store rejected a read
	// or write for a reason other than a missing key.
	ErrStorageUnavailable = errors.New("persist: durable store unavailable")
)

const (
	manifestKey   = "tables/manifest"
	blobKeyPrefix = "tables/data/"
	// Key prefix of a prior storage scheme. Blobs under it have no manifest
	// entry and are only ever touched by ClearAll.
	legacyKeyPrefix = "saved-table:"

	DefaultWarnRows       = 1_000_000
	DefaultStrongWarnRows = 5_000_000
)

// TableEngine is the slice of the analytical engine persistence needs.
type TableEngine interface {
	TableNames(ctx context.Context) ([]string, error)
	TableRowCount(ctx context.Context, name string) (int64, error)
	ExportTableParquet(ctx context.Context, name string) ([]byte, error)
	ImportTableParquet(ctx context.Context, name string, data []byte, replace bool) error
}

type Config struct {
	WarnRows       int64
	StrongWarnRows int64
}

// Manifest is the sole source of truth for which tables exist durably. A
// blob without a manifest entry is orphaned and ignored on restore.
type Manifest struct {
	SavedAt    time.Time `json:"saved_at"`
	TableNames []string  `json:"table_names"`
}

// Store round-trips whole tables between the engine and a durable key-value
// store as parquet blobs, tracked by a manifest.
type Store struct {
	Engine TableEngine
	KV     kv.Store
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time
}

type SaveOutcome struct {
	TableName    string `json:"table_name"`
	RowCount     int64  `json:"row_count"`
	BytesWritten int64  `json:"bytes_written"`
	Warning      string `json:"warning,omitempty"`
}

type TableError struct {
	TableName string `json:"table_name"`
	Message   string `json:"message"`
}

type SaveAllSummary struct {
	Requested int          `json:"requested"`
	Saved     []string     `json:"saved"`
	Failed    []TableError `json:"failed,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

type RestoreSummary struct {
	Requested int          `json:"requested"`
	Restored  []string     `json:"restored"`
	Skipped   []string     `json:"skipped,omitempty"`
	Failed    []TableError `json:"failed,omitempty"`
}

func (s *Store) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.WarnRows <= 0 {
		s.Config.WarnRows = DefaultWarnRows
	}
	if s.Config.StrongWarnRows <= 0 {
		s.Config.StrongWarnRows = DefaultStrongWarnRows
	}
}

// SaveTable serializes one table in full and updates the manifest to include
// it. Row counts beyond the configured thresholds produce a non-fatal
// advisory warning; saving proceeds regardless.
func (s *Store) SaveTable(ctx context.Context, name string) (SaveOutcome, error) {
	s.ensureDefaults()
	if err := s.ready(); err != nil {
		return SaveOutcome{}, err
	}

	outcome, err := s.saveBlob(ctx, name)
	if err != nil {
		tableSavesTotal.WithLabelValues("failed").Inc()
		return SaveOutcome{}, err
	}

	manifest, _, err := s.loadManifest(ctx)
	if err != nil {
		tableSavesTotal.WithLabelValues("failed").Inc()
		return SaveOutcome{}, err
	}
	if !containsName(manifest.TableNames, name) {
		manifest.TableNames = append(manifest.TableNames, name)
	}
	manifest.SavedAt = s.Clock()
	if err := s.writeManifest(ctx, manifest); err != nil {
		tableSavesTotal.WithLabelValues("failed").Inc()
		return SaveOutcome{}, err
	}

	tableSavesTotal.WithLabelValues("completed").Inc()
	persistedBytesTotal.Add(float64(outcome.BytesWritten))
	return outcome, nil
}

// SaveAll saves each listed table independently, in order; one table's
// failure does not abort the rest. Afterwards the manifest is rewritten to
// exactly the set that succeeded, never merged with stale prior entries.
// An empty names slice saves every live table.
func (s *Store) SaveAll(ctx context.Context, names []string) (SaveAllSummary, error) {
	s.ensureDefaults()
	if err := s.ready(); err != nil {
		return SaveAllSummary{}, err
	}

	if len(names) == 0 {
		liveNames, err := s.Engine.TableNames(ctx)
		if err != nil {
			return SaveAllSummary{}, fmt.Errorf("list tables: %w", err)
		}
		names = liveNames
	}

	summary := SaveAllSummary{Requested: len(names), Saved: make([]string, 0, len(names))}
	var totalBytes int64

	for _, name := range names {
		outcome, err := s.saveBlob(ctx, name)
		if err != nil {
			tableSavesTotal.WithLabelValues("failed").Inc()
			summary.Failed = append(summary.Failed, TableError{TableName: name, Message: err.Error()})
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "table save failed", slog.String("table", name), slog.Any("error", err))
			}
			continue
		}
		tableSavesTotal.WithLabelValues("completed").Inc()
		summary.Saved = append(summary.Saved, name)
		totalBytes += outcome.BytesWritten
		if outcome.Warning != "" {
			summary.Warnings = append(summary.Warnings, outcome.Warning)
		}
	}

	manifest := Manifest{SavedAt: s.Clock(), TableNames: append([]string(nil), summary.Saved...)}
	if err := s.writeManifest(ctx, manifest); err != nil {
		summary.Failed = append(summary.Failed, TableError{TableName: manifestKey, Message: err.Error()})
	}

	if totalBytes > 0 {
		persistedBytesTotal.Add(float64(totalBytes))
	}
	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("saved %d of %d table(s): %s", len(summary.Saved), summary.Requested, joinTableErrors(summary.Failed))
	}
	return summary, nil
}

// RestoreAll recreates every table the manifest lists. A missing manifest
// means a first run and restores nothing. A listed table whose blob is gone
// is skipped with a logged warning; other per-table failures are recorded
// and the restore continues.
func (s *Store) RestoreAll(ctx context.Context) (RestoreSummary, error) {
	s.ensureDefaults()
	if err := s.ready(); err != nil {
		return RestoreSummary{}, err
	}

	manifest, found, err := s.loadManifest(ctx)
	if err != nil {
		return RestoreSummary{}, err
	}
	if !found {
		return RestoreSummary{Restored: []string{}}, nil
	}

	summary := RestoreSummary{Requested: len(manifest.TableNames), Restored: make([]string, 0, len(manifest.TableNames))}
	for _, name := range manifest.TableNames {
		blob, err := s.KV.Get(ctx, blobKey(name))
		if errors.Is(err, kv.ErrKeyNotFound) {
			summary.Skipped = append(summary.Skipped, name)
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "saved table blob missing, skipping", slog.String("table", name))
			}
			continue
		}
		if err != nil {
			tableRestoresTotal.WithLabelValues("failed").Inc()
			summary.Failed = append(summary.Failed, TableError{TableName: name, Message: fmt.Sprintf("read blob: %v", err)})
			continue
		}

		if err := s.Engine.ImportTableParquet(ctx, name, blob, true); err != nil {
			tableRestoresTotal.WithLabelValues("failed").Inc()
			summary.Failed = append(summary.Failed, TableError{TableName: name, Message: fmt.Sprintf("recreate table: %v", err)})
			if s.Logger != nil {
				s.Logger.WarnContext(ctx, "table restore failed", slog.String("table", name), slog.Any("error", err))
			}
			continue
		}
		tableRestoresTotal.WithLabelValues("completed").Inc()
		summary.Restored = append(summary.Restored, name)
	}

	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("restored %d of %d table(s): %s", len(summary.Restored), summary.Requested, joinTableErrors(summary.Failed))
	}
	return summary, nil
}

// RemoveTable deletes a table's blob and manifest entry. Removing an absent
// table is a no-op and leaves the manifest untouched.
func (s *Store) RemoveTable(ctx context.Context, name string) error {
	s.ensureDefaults()
	if err := s.ready(); err != nil {
		return err
	}

	if err := s.KV.Delete(ctx, blobKey(name)); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return fmt.Errorf("%w: delete blob for table %q: %v", ErrStorageUnavailable, name, err)
	}

	manifest, found, err := s.loadManifest(ctx)
	if err != nil {
		return err
	}
	if !found || !containsName(manifest.TableNames, name) {
		return nil
	}

	remaining := make([]string, 0, len(manifest.TableNames))
	for _, existing := range manifest.TableNames {
		if existing != name {
			remaining = append(remaining, existing)
		}
	}
	manifest.TableNames = remaining
	manifest.SavedAt = s.Clock()
	return s.writeManifest(ctx, manifest)
}

// ClearAll deletes the manifest and every blob under the store's namespace,
// including orphaned keys from the prior storage scheme. The key-value store
// has no prefix delete, so keys are listed and filtered here.
func (s *Store) ClearAll(ctx context.Context) error {
	s.ensureDefaults()
	if err := s.ready(); err != nil {
		return err
	}

	keys, err := s.KV.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("%w: list stored keys: %v", ErrStorageUnavailable, err)
	}

	failures := make([]string, 0)
	for _, key := range keys {
		if key != manifestKey && !strings.HasPrefix(key, blobKeyPrefix) && !strings.HasPrefix(key, legacyKeyPrefix) {
			continue
		}
		if err := s.KV.Delete(ctx, key); err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
			failures = append(failures, fmt.Sprintf("delete key %s: %v", key, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("clear encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// SavedTables returns the manifest contents. A missing manifest yields an
// empty manifest and found == false.
func (s *Store) SavedTables(ctx context.Context) (Manifest, bool, error) {
	s.ensureDefaults()
	if err := s.ready(); err != nil {
		return Manifest{}, false, err
	}
	return s.loadManifest(ctx)
}

func (s *Store) saveBlob(ctx context.Context, name string) (SaveOutcome, error) {
	if strings.TrimSpace(name) == "" {
		return SaveOutcome{}, fmt.Errorf("table name is required")
	}

	rowCount, err := s.Engine.TableRowCount(ctx, name)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("read row count for table %q: %w", name, err)
	}

	blob, err := s.Engine.ExportTableParquet(ctx, name)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("serialize table %q: %w", name, err)
	}
	if err := s.KV.Set(ctx, blobKey(name), blob); err != nil {
		return SaveOutcome{}, fmt.Errorf("%w: store blob for table %q: %v", ErrStorageUnavailable, name, err)
	}

	return SaveOutcome{
		TableName:    name,
		RowCount:     rowCount,
		BytesWritten: int64(len(blob)),
		Warning:      s.warningFor(name, rowCount),
	}, nil
}

func (s *Store) warningFor(name string, rowCount int64) string {
	switch {
	case rowCount > s.Config.StrongWarnRows:
		return fmt.Sprintf("table %q has %d rows, exceeding the %d row guideline; persisting it can exhaust local storage", name, rowCount, s.Config.StrongWarnRows)
	case rowCount > s.Config.WarnRows:
		return fmt.Sprintf("table %q has %d rows; saving and restoring tables this large may be slow", name, rowCount)
	default:
		return ""
	}
}

func (s *Store) loadManifest(ctx context.Context) (Manifest, bool, error) {
	raw, err := s.KV.Get(ctx, manifestKey)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return Manifest{}, false, nil
	}
	if err != nil {
		return Manifest{}, false, fmt.Errorf("%w: read manifest: %v", ErrStorageUnavailable, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Manifest{}, false, fmt.Errorf("%w: parse manifest: %v", ErrCorruptData, err)
	}
	return manifest, true, nil
}

func (s *Store) writeManifest(ctx context.Context, manifest Manifest) error {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := s.KV.Set(ctx, manifestKey, raw); err != nil {
		return fmt.Errorf("%w: write manifest: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) ready() error {
	if s.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if s.KV == nil {
		return fmt.Errorf("kv store is required")
	}
	return nil
}

func blobKey(name string) string {
	return blobKeyPrefix + name
}

func containsName(names []string, name string) bool {
	for _, existing := range names {
		if existing == name {
			return true
		}
	}
	return false
}

func joinTableErrors(failed []TableError) string {
	parts := make([]string, 0, len(failed))
	for _, failure := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", failure.TableName, failure.Message))
	}
	return strings.Join(parts, "; ")
}
