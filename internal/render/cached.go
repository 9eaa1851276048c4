package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/cache"
)

const sharedRenderTimeout = 10 * time.Second

// CachedRenderer serves repeat symbols from a SymbolCache and collapses
// concurrent renders of the same key into one call.
type CachedRenderer struct {
	next  Renderer
	cache cache.SymbolCache
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedRenderer(next Renderer, symbolCache cache.SymbolCache, ttl time.Duration) *CachedRenderer {
	if symbolCache == nil {
		symbolCache = cache.NoopSymbolCache{}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedRenderer{next: next, cache: symbolCache, ttl: ttl}
}

func CacheKey(payload string, sym barcode.Symbology, hints SizeHints) string {
	return fmt.Sprintf("%s|%dx%d|%s", sym, hints.WidthPx, hints.HeightPx, payload)
}

func (r *CachedRenderer) Render(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
	key := CacheKey(payload, sym, hints)

	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("symbol cache read failed", "key", key, "error", err)
	}
	if ok {
		if img, err := imageFromPNG(data); err == nil {
			return img, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	// The shared render ignores caller cancellation; each caller still stops
	// waiting when its own ctx is done.
	ch := r.group.DoChan(key, func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedRenderTimeout)
		defer cancel()

		img, err := r.next.Render(sharedCtx, payload, sym, hints)
		if err != nil {
			return Image{}, err
		}
		if err := r.cache.Set(sharedCtx, key, img.Data, r.ttl); err != nil {
			slog.Warn("symbol cache write failed", "key", key, "error", err)
		}
		return img, nil
	})

	select {
	case <-ctx.Done():
		return Image{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Image{}, res.Err
		}
		return res.Val.(Image), nil
	}
}

func imageFromPNG(data []byte) (Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, err
	}
	if format != "png" {
		return Image{}, fmt.Errorf("cached symbol is %s, want png", format)
	}
	return Image{ContentType: "image/png", Data: data, WidthPx: cfg.Width, HeightPx: cfg.Height}, nil
}
