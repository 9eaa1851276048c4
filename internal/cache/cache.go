package cache

import (
	"context"
	"time"
)

// SymbolCache stores rendered barcode images keyed by payload, symbology and size.
type SymbolCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type NoopSymbolCache struct{}

func (NoopSymbolCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopSymbolCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
