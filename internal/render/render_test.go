package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/cache"
)

func TestBarcodeRendererDrawsEverySymbology(t *testing.T) {
	r := NewBarcodeRenderer()
	cases := map[barcode.Symbology]string{
		barcode.Code128: "SKU-0001",
		barcode.Code39:  "ABC-123",
		barcode.EAN13:   "1234567890128",
		barcode.UPC:     "123456789012",
		barcode.QR:      "https://example.com/p/42",
	}

	for sym, payload := range cases {
		t.Run(string(sym), func(t *testing.T) {
			img, err := r.Render(context.Background(), payload, sym, SizeHints{WidthPx: 320, HeightPx: 120})
			require.NoError(t, err)
			assert.Equal(t, "image/png", img.ContentType)

			decoded, err := png.Decode(bytes.NewReader(img.Data))
			require.NoError(t, err)
			assert.Equal(t, img.WidthPx, decoded.Bounds().Dx())
			assert.Equal(t, img.HeightPx, decoded.Bounds().Dy())
			if sym == barcode.QR {
				assert.Equal(t, img.WidthPx, img.HeightPx)
			}
		})
	}
}

func TestBarcodeRendererNeverShrinksBelowModuleWidth(t *testing.T) {
	img, err := NewBarcodeRenderer().Render(context.Background(), "A-VERY-LONG-CODE128-PAYLOAD", barcode.Code128, SizeHints{WidthPx: 10, HeightPx: 10})
	require.NoError(t, err)
	assert.Greater(t, img.WidthPx, 10)
}

func TestBarcodeRendererHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBarcodeRenderer().Render(ctx, "SKU-1", barcode.Code128, SizeHints{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBarcodeRendererRejectsUnknownSymbology(t *testing.T) {
	_, err := NewBarcodeRenderer().Render(context.Background(), "X", barcode.Symbology("pdf417"), SizeHints{})
	assert.Error(t, err)
}

func TestCachedRendererServesRepeatsFromCache(t *testing.T) {
	var calls atomic.Int32
	inner := NewBarcodeRenderer()
	counting := RendererFunc(func(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
		calls.Add(1)
		return inner.Render(ctx, payload, sym, hints)
	})

	r := NewCachedRenderer(counting, cache.NewMemorySymbolCache(100, time.Minute), time.Minute)
	hints := SizeHints{WidthPx: 300, HeightPx: 80}

	first, err := r.Render(context.Background(), "1234567890128", barcode.EAN13, hints)
	require.NoError(t, err)
	second, err := r.Render(context.Background(), "1234567890128", barcode.EAN13, hints)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, first.WidthPx, second.WidthPx)

	_, err = r.Render(context.Background(), "1234567890128", barcode.EAN13, SizeHints{WidthPx: 400, HeightPx: 80})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedRendererCollapsesConcurrentRenders(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	slow := RendererFunc(func(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
		calls.Add(1)
		<-release
		return NewBarcodeRenderer().Render(ctx, payload, sym, hints)
	})
	r := NewCachedRenderer(slow, cache.NoopSymbolCache{}, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(context.Background(), "SKU-1", barcode.Code128, SizeHints{})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedRendererWaiterSurvivesLeaderCancellation(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := RendererFunc(func(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return Image{}, ctx.Err()
		}
		return NewBarcodeRenderer().Render(ctx, payload, sym, hints)
	})
	r := NewCachedRenderer(blocking, cache.NewMemorySymbolCache(100, time.Minute), time.Minute)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.Render(leaderCtx, "SKU-1", barcode.Code128, SizeHints{})
		leaderErr <- err
	}()
	<-started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := r.Render(context.Background(), "SKU-1", barcode.Code128, SizeHints{})
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	require.NoError(t, <-waiterErr)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedRendererWaiterHonoursOwnDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	hanging := RendererFunc(func(ctx context.Context, payload string, sym barcode.Symbology, hints SizeHints) (Image, error) {
		<-release
		return Image{}, errors.New("released")
	})
	r := NewCachedRenderer(hanging, cache.NoopSymbolCache{}, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Render(ctx, "SKU-1", barcode.Code128, SizeHints{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCachedRendererDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	failing := RendererFunc(func(context.Context, string, barcode.Symbology, SizeHints) (Image, error) {
		calls.Add(1)
		return Image{}, errors.New("printer offline")
	})
	r := NewCachedRenderer(failing, cache.NewMemorySymbolCache(100, time.Minute), time.Minute)

	for range 2 {
		_, err := r.Render(context.Background(), "SKU-1", barcode.Code128, SizeHints{})
		assert.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestHintsFor(t *testing.T) {
	h := HintsFor(barcode.Code128, 50.8, 25.4, 100)
	assert.Equal(t, SizeHints{WidthPx: 200, HeightPx: 50}, h)

	q := HintsFor(barcode.QR, 50.8, 25.4, 100)
	assert.Equal(t, SizeHints{WidthPx: 100, HeightPx: 100}, q)
}
