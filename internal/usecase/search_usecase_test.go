package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DRSN-tech/search-backend/internal/cache"
	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)         {}
func (nopLogger) Warnf(string, ...any)         {}
func (nopLogger) Errorf(error, string, ...any) {}

type fakeCatalog struct {
	products map[string]domain.Product
	byName   map[string][]domain.Product
}

func (f *fakeCatalog) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, e.ErrProductNotFound
	}

	return &p, nil
}

func (f *fakeCatalog) FindProductsByName(_ context.Context, substring string, _ int) ([]domain.Product, error) {
	return f.byName[substring], nil
}

func (f *fakeCatalog) GetProductsInfo(_ context.Context, ids []string) ([]ProductInfo, error) {
	infos := make([]ProductInfo, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			infos = append(infos, productToInfo(&p))
		}
	}

	return infos, nil
}

type fakeEmbeddings struct {
	embeddings  map[string]domain.Embedding
	snapshots   map[domain.PartitionKey][]domain.Embedding
	snapshotErr map[domain.PartitionKey]error
	stores      map[int64][]string
}

func (f *fakeEmbeddings) GetEmbedding(_ context.Context, productID string) (*domain.Embedding, error) {
	emb, ok := f.embeddings[productID]
	if !ok {
		return nil, e.ErrProductNotFound
	}

	return &emb, nil
}

func (f *fakeEmbeddings) GetPartitionSnapshot(_ context.Context, key domain.PartitionKey) ([]domain.Embedding, error) {
	if err := f.snapshotErr[key]; err != nil {
		return nil, err
	}

	return f.snapshots[key], nil
}

func (f *fakeEmbeddings) ListStoresForCluster(_ context.Context, clusterID int64) ([]string, error) {
	return f.stores[clusterID], nil
}

// fakeProductCache всегда промахивается; записи фиксируются для проверок.
type fakeProductCache struct {
	mu  sync.Mutex
	set []ProductInfo
}

func (f *fakeProductCache) GetProducts(context.Context, []string) (map[string]ProductInfo, error) {
	return map[string]ProductInfo{}, nil
}

func (f *fakeProductCache) SetProducts(_ context.Context, products []ProductInfo) error {
	f.mu.Lock()
	f.set = append(f.set, products...)
	f.mu.Unlock()

	return nil
}

func (f *fakeProductCache) DeleteProducts(context.Context, []string) error {
	return nil
}

type fakeImages struct{}

func (fakeImages) ResolveImageURL(_ context.Context, imageKey string) (string, error) {
	return "https://images.local/" + imageKey, nil
}

// fixture: кластер 1 с магазинами a и b.
// Продукт запроса q живёт в a; a содержит ещё near и far, b содержит bnear.
func newFixture() (*fakeCatalog, *fakeEmbeddings) {
	catalog := &fakeCatalog{
		products: map[string]domain.Product{
			"q":     {ID: "q", Name: "query milk", Store: "a", Price: 100, ImageKey: "q.jpg", ClusterID: 1},
			"near":  {ID: "near", Name: "near milk", Store: "a", Price: 90, ClusterID: 1},
			"far":   {ID: "far", Name: "kefir", Store: "a", Price: 80, ClusterID: 1},
			"bnear": {ID: "bnear", Name: "b milk", Store: "b", Price: 95, ClusterID: 1},
		},
		byName: map[string][]domain.Product{},
	}

	keyA := domain.NewPartitionKey(1, "a")
	keyB := domain.NewPartitionKey(1, "b")

	embeddings := &fakeEmbeddings{
		embeddings: map[string]domain.Embedding{
			"q": {ProductID: "q", Vector: []float32{1, 0}, ClusterID: 1, Store: "a"},
		},
		snapshots: map[domain.PartitionKey][]domain.Embedding{
			keyA: {
				{ProductID: "q", Vector: []float32{1, 0}, ClusterID: 1, Store: "a"},
				{ProductID: "near", Vector: []float32{0.99, 0.14}, ClusterID: 1, Store: "a"},
				{ProductID: "far", Vector: []float32{0, 1}, ClusterID: 1, Store: "a"},
			},
			keyB: {
				{ProductID: "bnear", Vector: []float32{0.9, 0.43}, ClusterID: 1, Store: "b"},
			},
		},
		snapshotErr: map[domain.PartitionKey]error{},
		stores:      map[int64][]string{1: {"a", "b"}},
	}

	return catalog, embeddings
}

func newTestUC(catalog *fakeCatalog, embeddings *fakeEmbeddings) *SearchUseCase {
	indexes := cache.NewIndexCache(time.Hour, 0, nopLogger{})

	return NewSearchUC(catalog, embeddings, &fakeProductCache{}, indexes, fakeImages{}, nopLogger{})
}

func TestSearchByProductID_ExcludesQueryProduct(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	res, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0,
	}))
	require.NoError(t, err)

	for store, hits := range res.ResultsByStore {
		for _, hit := range hits {
			assert.NotEqual(t, "q", hit.Product.ID, "query product leaked into store %s", store)
		}
	}

	require.Len(t, res.ResultsByStore["a"], 2)
	assert.Equal(t, "near", res.ResultsByStore["a"][0].Product.ID)
	require.Len(t, res.ResultsByStore["b"], 1)
	assert.Equal(t, "bnear", res.ResultsByStore["b"][0].Product.ID)
	assert.Empty(t, res.SkippedStores)
}

func TestSearchByProductID_MinScoreFilter(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	res, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0.5,
	}))
	require.NoError(t, err)

	// far ортогонален запросу и отфильтрован
	require.Len(t, res.ResultsByStore["a"], 1)
	assert.Equal(t, "near", res.ResultsByStore["a"][0].Product.ID)
}

func TestSearchByProductID_SkipsFailedPartition(t *testing.T) {
	catalog, embeddings := newFixture()
	embeddings.snapshotErr[domain.NewPartitionKey(1, "b")] = errors.New("qdrant timeout")
	uc := newTestUC(catalog, embeddings)

	res, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0,
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, res.SkippedStores)
	assert.NotContains(t, res.ResultsByStore, "b")
	require.Len(t, res.ResultsByStore["a"], 2)
}

func TestSearchByProductID_EmptyStoreDistinctFromSkipped(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	// Порог отсекает все хиты магазина b, но сам магазин опрошен успешно
	res, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0.95,
	}))
	require.NoError(t, err)

	assert.Empty(t, res.SkippedStores)
	assert.Equal(t, []string{"b"}, res.EmptyStores)
	assert.NotContains(t, res.ResultsByStore, "b")
	require.Len(t, res.ResultsByStore["a"], 1)
}

func TestSearchByProductID_NotFound(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	_, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("missing", SearchOptions{
		PerStoreLimit: 5,
	}))
	require.ErrorIs(t, err, e.ErrProductNotFound)
}

func TestSearchByProductID_InvalidOptions(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	_, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 0,
	}))
	require.ErrorIs(t, err, e.ErrLimitMustBePositive)

	_, err = uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      1.5,
	}))
	require.ErrorIs(t, err, e.ErrInvalidMinScore)
}

func TestSearchByProductID_ResolvesImageURLs(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	res, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0,
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://images.local/q.jpg", res.Query.ImageURL)
}

func TestSearchByName_SingleMatch(t *testing.T) {
	catalog, embeddings := newFixture()
	catalog.byName["query"] = []domain.Product{catalog.products["q"]}
	uc := newTestUC(catalog, embeddings)

	res, err := uc.SearchByName(context.Background(), NewSearchByNameReq("query", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0,
	}))
	require.NoError(t, err)
	assert.Equal(t, "q", res.Query.ID)
}

func TestSearchByName_NoMatch(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	_, err := uc.SearchByName(context.Background(), NewSearchByNameReq("nothing", SearchOptions{
		PerStoreLimit: 5,
	}))
	require.ErrorIs(t, err, e.ErrProductNotFound)
}

func TestSearchByName_Ambiguous(t *testing.T) {
	catalog, embeddings := newFixture()
	catalog.byName["milk"] = []domain.Product{catalog.products["q"], catalog.products["near"]}
	uc := newTestUC(catalog, embeddings)

	_, err := uc.SearchByName(context.Background(), NewSearchByNameReq("milk", SearchOptions{
		PerStoreLimit: 5,
	}))
	require.ErrorIs(t, err, e.ErrAmbiguousQuery)
}

func TestFindProducts(t *testing.T) {
	catalog, embeddings := newFixture()
	catalog.byName["milk"] = []domain.Product{catalog.products["q"], catalog.products["near"]}
	uc := newTestUC(catalog, embeddings)

	infos, err := uc.FindProducts(context.Background(), "milk")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "q", infos[0].ID)
	assert.Equal(t, "https://images.local/q.jpg", infos[0].ImageURL)
}

func TestInvalidateIndexes_ForcesRebuild(t *testing.T) {
	catalog, embeddings := newFixture()
	uc := newTestUC(catalog, embeddings)

	_, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0,
	}))
	require.NoError(t, err)

	uc.InvalidateIndexes()

	// После сброса снапшоты перечитываются; подменяем партицию b
	embeddings.snapshots[domain.NewPartitionKey(1, "b")] = []domain.Embedding{
		{ProductID: "bnear", Vector: []float32{0, 1}, ClusterID: 1, Store: "b"},
	}

	res, err := uc.SearchByProductID(context.Background(), NewSearchByIDReq("q", SearchOptions{
		PerStoreLimit: 5,
		MinScore:      0.5,
	}))
	require.NoError(t, err)
	assert.Contains(t, res.EmptyStores, "b")
}
