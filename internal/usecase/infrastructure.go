package usecase

import (
	"context"

	"github.com/DRSN-tech/search-backend/internal/cache"
	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/internal/index"
)

// IndexProvider — процессный кэш индексов партиций.
type IndexProvider interface {
	GetOrBuild(ctx context.Context, key domain.PartitionKey, fetch cache.SnapshotFetcher) (*index.FlatIndex, error)
	InvalidateAll()
	InvalidateCluster(clusterID int64)
}

// ImagesInfra разрешает ключ объекта изображения во внешнюю ссылку.
type ImagesInfra interface {
	ResolveImageURL(ctx context.Context, imageKey string) (string, error)
}
