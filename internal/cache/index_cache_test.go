package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/internal/index"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Errorf(error, string, ...any) {}

func snapshot(ids ...string) []index.Entry {
	entries := make([]index.Entry, 0, len(ids))
	for i, id := range ids {
		v := []float32{0, 0}
		v[i%2] = 1
		entries = append(entries, index.Entry{ProductID: id, Vector: v})
	}

	return entries
}

// countingFetcher считает реальные обращения за снапшотом.
func countingFetcher(calls *atomic.Int64, entries []index.Entry, err error) SnapshotFetcher {
	return func(ctx context.Context, key domain.PartitionKey) ([]index.Entry, error) {
		calls.Add(1)
		if err != nil {
			return nil, err
		}

		return entries, nil
	}
}

func TestGetOrBuild_BuildsOnceWithinTTL(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})
	key := domain.NewPartitionKey(1, "store-a")

	var calls atomic.Int64
	fetch := countingFetcher(&calls, snapshot("p1", "p2"), nil)

	first, err := c.GetOrBuild(context.Background(), key, fetch)
	require.NoError(t, err)

	second, err := c.GetOrBuild(context.Background(), key, fetch)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestGetOrBuild_RebuildsAfterTTL(t *testing.T) {
	c := NewIndexCache(10*time.Millisecond, 0, nopLogger{})
	key := domain.NewPartitionKey(1, "store-a")

	var calls atomic.Int64
	fetch := countingFetcher(&calls, snapshot("p1"), nil)

	_, err := c.GetOrBuild(context.Background(), key, fetch)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.GetOrBuild(context.Background(), key, fetch)
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
}

func TestGetOrBuild_SingleFlight(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})
	key := domain.NewPartitionKey(7, "store-b")

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(ctx context.Context, key domain.PartitionKey) ([]index.Entry, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release

		return snapshot("p1", "p2"), nil
	}

	const waiters = 8

	var wg sync.WaitGroup
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ix, err := c.GetOrBuild(context.Background(), key, fetch)
			assert.NoError(t, err)
			assert.NotNil(t, ix)
		}()
	}

	<-started
	// Даём остальным горутинам время встать в очередь singleflight
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestGetOrBuild_DifferentKeysIndependent(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})

	var calls atomic.Int64
	fetch := countingFetcher(&calls, snapshot("p1"), nil)

	_, err := c.GetOrBuild(context.Background(), domain.NewPartitionKey(1, "store-a"), fetch)
	require.NoError(t, err)

	_, err = c.GetOrBuild(context.Background(), domain.NewPartitionKey(1, "store-b"), fetch)
	require.NoError(t, err)

	_, err = c.GetOrBuild(context.Background(), domain.NewPartitionKey(2, "store-a"), fetch)
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 3, c.Len())
}

func TestGetOrBuild_FetchErrorWithoutStale(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})
	key := domain.NewPartitionKey(1, "store-a")

	var calls atomic.Int64
	fetch := countingFetcher(&calls, nil, errors.New("qdrant unavailable"))

	_, err := c.GetOrBuild(context.Background(), key, fetch)
	require.ErrorIs(t, err, e.ErrSnapshotUnavailable)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrBuild_ServesStaleOnFetchError(t *testing.T) {
	c := NewIndexCache(10*time.Millisecond, 0, nopLogger{})
	key := domain.NewPartitionKey(1, "store-a")

	var calls atomic.Int64
	good := countingFetcher(&calls, snapshot("p1", "p2"), nil)

	first, err := c.GetOrBuild(context.Background(), key, good)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	bad := countingFetcher(&calls, nil, errors.New("qdrant unavailable"))
	stale, err := c.GetOrBuild(context.Background(), key, bad)
	require.NoError(t, err)
	assert.Same(t, first, stale)
}

func TestGetOrBuild_EmptyPartition(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})
	key := domain.NewPartitionKey(1, "store-a")

	var calls atomic.Int64
	fetch := countingFetcher(&calls, []index.Entry{}, nil)

	_, err := c.GetOrBuild(context.Background(), key, fetch)
	require.ErrorIs(t, err, e.ErrEmptyPartition)
	assert.Equal(t, 0, c.Len())
}

func TestInvalidateAll(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})

	var calls atomic.Int64
	fetch := countingFetcher(&calls, snapshot("p1"), nil)

	key := domain.NewPartitionKey(1, "store-a")
	_, err := c.GetOrBuild(context.Background(), key, fetch)
	require.NoError(t, err)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	_, err = c.GetOrBuild(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestInvalidateCluster(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})

	var calls atomic.Int64
	fetch := countingFetcher(&calls, snapshot("p1"), nil)

	_, err := c.GetOrBuild(context.Background(), domain.NewPartitionKey(1, "store-a"), fetch)
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), domain.NewPartitionKey(1, "store-b"), fetch)
	require.NoError(t, err)
	_, err = c.GetOrBuild(context.Background(), domain.NewPartitionKey(2, "store-a"), fetch)
	require.NoError(t, err)

	c.InvalidateCluster(1)
	assert.Equal(t, 1, c.Len())

	// Партиция другого кластера осталась свежей и не перестраивается
	_, err = c.GetOrBuild(context.Background(), domain.NewPartitionKey(2, "store-a"), fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGetOrBuild_CanceledWaiterDoesNotAbortBuild(t *testing.T) {
	c := NewIndexCache(time.Hour, 0, nopLogger{})
	key := domain.NewPartitionKey(1, "store-a")

	release := make(chan struct{})
	fetch := func(ctx context.Context, key domain.PartitionKey) ([]index.Entry, error) {
		<-release
		// Контекст сборки отцеплен от отменившегося ожидающего
		assert.NoError(t, ctx.Err())

		return snapshot("p1"), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(ctx, key, fetch)
		done <- err
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)

	// Сборка завершилась и попала в кэш несмотря на отмену ожидающего
	require.Eventually(t, func() bool {
		return c.Len() == 1
	}, time.Second, 10*time.Millisecond)
}
