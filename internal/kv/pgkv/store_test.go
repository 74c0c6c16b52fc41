package pgkv

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/querydesk/querydesk/internal/kv"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMock(t)
	store, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("NewWithDB() error = %v", err)
	}
	return store, mock
}

func TestGetReturnsStoredValue(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM workbench_kv WHERE key = $1`)).
		WithArgs("tables/manifest").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`["orders"]`)))

	value, err := store.Get(context.Background(), "tables/manifest")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(value) != `["orders"]` {
		t.Fatalf("Get() value = %q, want %q", value, `["orders"]`)
	}
	assertSQLMock(t, mock)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM workbench_kv WHERE key = $1`)).
		WithArgs("tables/data/ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "tables/data/ghost")
	if !errors.Is(err, kv.ErrKeyNotFound) {
		t.Fatalf("Get() error = %v, want kv.ErrKeyNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestSetUpsertsValue(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO workbench_kv (key, value, updated_at)`)).
		WithArgs("tables/data/orders", []byte("payload")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Set(context.Background(), "tables/data/orders", []byte("payload")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestDeleteRemovesKey(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM workbench_kv WHERE key = $1`)).
		WithArgs("tables/data/orders").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Delete(context.Background(), "tables/data/orders"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestListKeysReturnsAllKeys(t *testing.T) {
	store, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"key"}).
		AddRow("saved-table:legacy_orders").
		AddRow("tables/data/orders").
		AddRow("tables/manifest")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key FROM workbench_kv ORDER BY key`)).
		WillReturnRows(rows)

	keys, err := store.ListKeys(context.Background())
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	want := []string{"saved-table:legacy_orders", "tables/data/orders", "tables/manifest"}
	if len(keys) != len(want) {
		t.Fatalf("ListKeys() returned %d keys, want %d", len(keys), len(want))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Fatalf("ListKeys()[%d] = %q, want %q", i, keys[i], key)
		}
	}
	assertSQLMock(t, mock)
}

func TestHealthCheckReportsPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewWithDB(db)
	if err != nil {
		t.Fatalf("NewWithDB() error = %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() error = nil, want ping failure")
	}
}

func TestNewWithDBRequiresDB(t *testing.T) {
	if _, err := NewWithDB(nil); err == nil {
		t.Fatal("NewWithDB(nil) error = nil, want error")
	}
}
