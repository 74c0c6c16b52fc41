package kv

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("kv: key not found")

// Store is the durable key-value surface the workbench persists through.
// Values are opaque bytes. There are no transactions and no prefix
// operations; callers that need prefix deletion list and filter keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context) ([]string, error)
}
