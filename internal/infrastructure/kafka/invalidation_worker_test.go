package kafka

import (
	"context"
	"sync"
	"testing"

	"github.com/DRSN-tech/search-backend/internal/cache"
	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/internal/index"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/stretchr/testify/assert"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Errorf(error, string, ...any) {}

type fakeIndexes struct {
	mu                 sync.Mutex
	invalidatedAll     int
	invalidatedCluster []int64
}

func (f *fakeIndexes) GetOrBuild(context.Context, domain.PartitionKey, cache.SnapshotFetcher) (*index.FlatIndex, error) {
	return nil, nil
}

func (f *fakeIndexes) InvalidateAll() {
	f.mu.Lock()
	f.invalidatedAll++
	f.mu.Unlock()
}

func (f *fakeIndexes) InvalidateCluster(clusterID int64) {
	f.mu.Lock()
	f.invalidatedCluster = append(f.invalidatedCluster, clusterID)
	f.mu.Unlock()
}

type fakeCache struct {
	mu      sync.Mutex
	deleted [][]string
}

func (f *fakeCache) GetProducts(context.Context, []string) (map[string]usecase.ProductInfo, error) {
	return nil, nil
}

func (f *fakeCache) SetProducts(context.Context, []usecase.ProductInfo) error {
	return nil
}

func (f *fakeCache) DeleteProducts(_ context.Context, ids []string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ids)
	f.mu.Unlock()

	return nil
}

func newTestWorker() (*InvalidationWorker, *fakeIndexes, *fakeCache) {
	indexes := &fakeIndexes{}
	cacheRepo := &fakeCache{}
	worker := &InvalidationWorker{
		indexes: indexes,
		cache:   cacheRepo,
		logger:  nopLogger{},
	}

	return worker, indexes, cacheRepo
}

func TestHandle_ClusterScopedEvent(t *testing.T) {
	worker, indexes, cacheRepo := newTestWorker()

	worker.handle(context.Background(), []byte(`{"event_id":"e1","occurred_at":1700000000,"cluster_id":42,"product_ids":["p1","p2"]}`))

	assert.Equal(t, []int64{42}, indexes.invalidatedCluster)
	assert.Zero(t, indexes.invalidatedAll)
	assert.Equal(t, [][]string{{"p1", "p2"}}, cacheRepo.deleted)
}

func TestHandle_GlobalEvent(t *testing.T) {
	worker, indexes, cacheRepo := newTestWorker()

	worker.handle(context.Background(), []byte(`{"event_id":"e2","occurred_at":1700000000}`))

	assert.Equal(t, 1, indexes.invalidatedAll)
	assert.Empty(t, indexes.invalidatedCluster)
	assert.Empty(t, cacheRepo.deleted)
}

func TestHandle_MalformedEventSkipped(t *testing.T) {
	worker, indexes, cacheRepo := newTestWorker()

	worker.handle(context.Background(), []byte(`not json`))

	assert.Zero(t, indexes.invalidatedAll)
	assert.Empty(t, indexes.invalidatedCluster)
	assert.Empty(t, cacheRepo.deleted)
}
