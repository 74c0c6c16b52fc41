package seeder

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

func sampleOrders() []Order {
	return []Order{
		{
			OrderID:   1,
			Customer:  "customer-001",
			Country:   "DE",
			Device:    "desktop",
			Status:    "paid",
			Amount:    19.99,
			Paid:      true,
			OrderedAt: time.Date(2026, time.January, 1, 0, 1, 30, 0, time.UTC),
		},
		{
			OrderID:   2,
			Customer:  "customer-002",
			Country:   "US",
			Device:    "mobile",
			Status:    "cancelled",
			Amount:    0,
			Paid:      false,
			OrderedAt: time.Date(2026, time.January, 1, 0, 2, 15, 0, time.UTC),
		},
	}
}

func TestEncodeParquetRoundTrips(t *testing.T) {
	data, err := EncodeParquet(sampleOrders())
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	reader := parquet.NewGenericReader[parquetOrder](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetOrder, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].OrderID != 1 || rows[0].Customer != "customer-001" || rows[0].Amount != 19.99 {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	wantMs := time.Date(2026, time.January, 1, 0, 2, 15, 0, time.UTC).UnixMilli()
	if rows[1].OrderedAtUnixMs != wantMs {
		t.Fatalf("OrderedAtUnixMs = %d, want %d", rows[1].OrderedAtUnixMs, wantMs)
	}
}

func TestEncodeParquetRequiresOrders(t *testing.T) {
	if _, err := EncodeParquet(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestEncodeCSVLayout(t *testing.T) {
	data := EncodeCSV(sampleOrders())
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("line count = %d, content = %q", len(lines), data)
	}
	if lines[0] != "order_id,customer,country,device,status,amount,paid,ordered_at" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "1,customer-001,DE,desktop,paid,19.99,true,2026-01-01T00:01:30Z" {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if lines[2] != "2,customer-002,US,mobile,cancelled,0.00,false,2026-01-01T00:02:15Z" {
		t.Fatalf("row 2 = %q", lines[2])
	}
}
