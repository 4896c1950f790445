package qdrant

import (
	"context"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// Payload-ключи точек коллекции, заполняемые upstream-пайплайном эмбеддингов
const (
	payloadProductID = "product_id"
	payloadStore     = "store"
	payloadClusterID = "cluster_id"
)

// EmbeddingRepo реализует read-only хранилище эмбеддингов поверх Qdrant.
// Пайплайн кластеризации пишет точки с payload {product_id, store, cluster_id};
// репозиторий только читает их для сборки процессных индексов партиций.
type EmbeddingRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewEmbeddingRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *EmbeddingRepo {
	return &EmbeddingRepo{
		client: client,
		cfg:    cfg,
	}
}

// GetEmbedding возвращает эмбеддинг продукта вместе с его кластером и магазином.
// Возвращает e.ErrProductNotFound, если точки с таким product_id нет.
func (q *EmbeddingRepo) GetEmbedding(ctx context.Context, productID string) (*domain.Embedding, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadProductID, productID),
			},
		},
		Limit:       qdrant.PtrOf(uint64(1)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if len(points) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return pointToEmbedding(points[0])
}

// GetPartitionSnapshot выгружает все эмбеддинги партиции (кластер, магазин)
// в детерминированном порядке точек коллекции.
func (q *EmbeddingRepo) GetPartitionSnapshot(ctx context.Context, key domain.PartitionKey) ([]domain.Embedding, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchInt(payloadClusterID, key.ClusterID),
			qdrant.NewMatch(payloadStore, key.Store),
		},
	}

	pageSize := uint64(q.cfg.ScrollPageSize)
	result := make([]domain.Embedding, 0)

	for offset := uint64(0); ; offset += pageSize {
		points, err := q.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.cfg.QdrantCollectionName,
			Filter:         filter,
			Limit:          qdrant.PtrOf(pageSize),
			Offset:         qdrant.PtrOf(offset),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		for _, point := range points {
			embedding, err := pointToEmbedding(point)
			if err != nil {
				return nil, err
			}

			result = append(result, *embedding)
		}

		if uint64(len(points)) < pageSize {
			break
		}
	}

	return result, nil
}

// ListStoresForCluster возвращает магазины, имеющие хотя бы один эмбеддинг в кластере.
func (q *EmbeddingRepo) ListStoresForCluster(ctx context.Context, clusterID int64) ([]string, error) {
	const maxStores = 1024

	hits, err := q.client.Facet(ctx, &qdrant.FacetCounts{
		CollectionName: q.cfg.QdrantCollectionName,
		Key:            payloadStore,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt(payloadClusterID, clusterID),
			},
		},
		Limit: qdrant.PtrOf(uint64(maxStores)),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	stores := make([]string, 0, len(hits))
	for _, hit := range hits {
		if store := hit.GetValue().GetStringValue(); store != "" {
			stores = append(stores, store)
		}
	}

	return stores, nil
}

// pointToEmbedding преобразует точку Qdrant в доменный эмбеддинг.
func pointToEmbedding(point *qdrant.ScoredPoint) (*domain.Embedding, error) {
	payload := point.GetPayload()

	productID := payload[payloadProductID].GetStringValue()
	store := payload[payloadStore].GetStringValue()
	clusterID := payload[payloadClusterID].GetIntegerValue()

	vector := point.GetVectors().GetVector().GetData()
	if productID == "" || len(vector) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrSnapshotUnavailable)
	}

	return domain.NewEmbedding(productID, vector, clusterID, store), nil
}
