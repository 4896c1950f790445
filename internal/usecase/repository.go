package usecase

import (
	"context"

	"github.com/DRSN-tech/search-backend/internal/domain"
)

// CatalogRepository — хранилище каталога продуктов (внешний коллаборатор).
type CatalogRepository interface {
	// GetProductByID возвращает e.ErrProductNotFound, если продукт не найден.
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	// FindProductsByName ищет продукты по подстроке имени без учёта регистра.
	FindProductsByName(ctx context.Context, substring string, limit int) ([]domain.Product, error)
	GetProductsInfo(ctx context.Context, ids []string) ([]ProductInfo, error)
}

// EmbeddingRepository — хранилище нормализованных эмбеддингов (внешний коллаборатор).
type EmbeddingRepository interface {
	// GetEmbedding возвращает e.ErrProductNotFound, если эмбеддинг не найден.
	GetEmbedding(ctx context.Context, productID string) (*domain.Embedding, error)
	GetPartitionSnapshot(ctx context.Context, key domain.PartitionKey) ([]domain.Embedding, error)
	ListStoresForCluster(ctx context.Context, clusterID int64) ([]string, error)
}

// CacheRepository — кэш информации о продуктах (read-through поверх каталога).
type CacheRepository interface {
	GetProducts(ctx context.Context, ids []string) (map[string]ProductInfo, error)
	SetProducts(ctx context.Context, products []ProductInfo) error
	DeleteProducts(ctx context.Context, ids []string) error
}
