package seeder

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

type parquetOrder struct {
	OrderID         int64   `parquet:"order_id"`
	Customer        string  `parquet:"customer"`
	Country         string  `parquet:"country"`
	Device          string  `parquet:"device"`
	Status          string  `parquet:"status"`
	Amount          float64 `parquet:"amount"`
	Paid            bool    `parquet:"paid"`
	OrderedAtUnixMs int64   `parquet:"ordered_at_unix_ms"`
}

func EncodeParquet(orders []Order) ([]byte, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("orders are required")
	}

	rows := make([]parquetOrder, 0, len(orders))
	for _, order := range orders {
		rows = append(rows, parquetOrder{
			OrderID:         order.OrderID,
			Customer:        order.Customer,
			Country:         order.Country,
			Device:          order.Device,
			Status:          order.Status,
			Amount:          order.Amount,
			Paid:            order.Paid,
			OrderedAtUnixMs: order.OrderedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetOrder](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeCSV writes ordered_at as RFC 3339 so the engine sniffs it as a
// timestamp column rather than the unix milliseconds the parquet layout
// carries.
func EncodeCSV(orders []Order) []byte {
	var sb strings.Builder
	sb.WriteString("order_id,customer,country,device,status,amount,paid,ordered_at\n")
	for _, order := range orders {
		sb.WriteString(strconv.FormatInt(order.OrderID, 10))
		sb.WriteByte(',')
		sb.WriteString(order.Customer)
		sb.WriteByte(',')
		sb.WriteString(order.Country)
		sb.WriteByte(',')
		sb.WriteString(order.Device)
		sb.WriteByte(',')
		sb.WriteString(order.Status)
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(order.Amount, 'f', 2, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatBool(order.Paid))
		sb.WriteByte(',')
		sb.WriteString(order.OrderedAt.UTC().Format(time.RFC3339))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
