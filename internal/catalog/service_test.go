package catalog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamoortahir09/atlas-store/internal/paynow"
)

type countingLister struct {
	calls    atomic.Int32
	delay    time.Duration
	products []paynow.StoreProduct
}

func (l *countingLister) GetStoreProducts(ctx context.Context) ([]paynow.StoreProduct, error) {
	l.calls.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	return l.products, nil
}

func TestService_CachesWithinFreshnessWindow(t *testing.T) {
	lister := &countingLister{products: []paynow.StoreProduct{{ID: "prod-vip", Price: 999}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(testLocalConfig(), lister, 30*time.Second, logger)

	first, err := svc.GetCatalog(context.Background())
	require.NoError(t, err)
	second, err := svc.GetCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), lister.calls.Load())
}

func TestService_ConcurrentCallersShareOneFetch(t *testing.T) {
	lister := &countingLister{
		delay:    50 * time.Millisecond,
		products: []paynow.StoreProduct{{ID: "prod-vip", Price: 999}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(testLocalConfig(), lister, 30*time.Second, logger)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetCatalog(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), lister.calls.Load())
}

func TestService_InvalidateForcesRefetch(t *testing.T) {
	lister := &countingLister{products: []paynow.StoreProduct{{ID: "prod-vip", Price: 999}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(testLocalConfig(), lister, 30*time.Second, logger)

	_, err := svc.GetCatalog(context.Background())
	require.NoError(t, err)

	svc.Invalidate()

	_, err = svc.GetCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), lister.calls.Load())
}
