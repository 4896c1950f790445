package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/clients"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/DRSN-tech/search-backend/pkg/logger"
	"github.com/jimlawless/whereami"
)

// productCacheModel — JSON-модель продукта в Redis.
type productCacheModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Store       string `json:"store"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	ImageKey    string `json:"image_key"`
	ClusterID   int64  `json:"cluster_id"`
}

// CacheRepo кэширует информацию о продуктах каталога в Redis.
type CacheRepo struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetProducts возвращает закэшированные продукты по ID, игнорируя промахи и логируя их
func (r *CacheRepo) GetProducts(ctx context.Context, ids []string) (map[string]usecase.ProductInfo, error) {
	keys := r.buildProductCacheKeys(ids)

	values, err := r.client.Client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warnf("Redis MGET failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	result := make(map[string]usecase.ProductInfo, len(values))
	for i, val := range values {
		data, err := redisValueToBytes(val, keys[i])
		if err != nil {
			r.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
		}

		if data == nil {
			continue // cache miss
		}

		var model productCacheModel
		if err := json.Unmarshal(data, &model); err != nil {
			r.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
			continue
		}

		if model.ID != ids[i] {
			r.logger.Warnf("Cache ID mismatch: key_id: %s, model_id: %s", ids[i], model.ID)
			if err := r.client.Client.Del(context.Background(), keys[i]).Err(); err != nil {
				r.logger.Warnf("Redis del failed: %v", e.Wrap(whereami.WhereAmI(), err))
			}
			continue // cache miss
		}

		result[ids[i]] = modelToInfo(model)
	}

	return result, nil
}

// SetProducts атомарно кэширует несколько продуктов с заданным TTL.
// Игнорирует ошибки сериализации/записи, логируя их.
func (r *CacheRepo) SetProducts(ctx context.Context, products []usecase.ProductInfo) error {
	pipeline := r.client.Client.Pipeline()
	for _, info := range products {
		data, err := json.Marshal(infoToModel(info))
		if err != nil {
			r.logger.Warnf("Failed to marshal product for caching (Product ID: %s): %v", info.ID, e.Wrap(whereami.WhereAmI(), err))
			continue
		}

		pipeline.Set(ctx, r.productKey(info.ID), data, r.cfg.ProductTTL)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		r.logger.Warnf("Cache pipeline failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

// DeleteProducts удаляет продукты из кэша по ID
func (r *CacheRepo) DeleteProducts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := r.buildProductCacheKeys(ids)

	if err := r.client.Client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Warnf("Redis DEL failed: %v", e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

// buildProductCacheKeys формирует Redis-ключи из ID продуктов
func (r *CacheRepo) buildProductCacheKeys(ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.productKey(id)
	}

	return keys
}

// productKey возвращает Redis-ключ для одного продукта
func (r *CacheRepo) productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func modelToInfo(model productCacheModel) usecase.ProductInfo {
	return usecase.ProductInfo{
		ID:          model.ID,
		Name:        model.Name,
		Store:       model.Store,
		Price:       model.Price,
		Description: model.Description,
		ImageKey:    model.ImageKey,
		ClusterID:   model.ClusterID,
	}
}

func infoToModel(info usecase.ProductInfo) productCacheModel {
	return productCacheModel{
		ID:          info.ID,
		Name:        info.Name,
		Store:       info.Store,
		Price:       info.Price,
		Description: info.Description,
		ImageKey:    info.ImageKey,
		ClusterID:   info.ClusterID,
	}
}

// redisValueToBytes конвертирует значение из Redis в []byte.
// Поддерживает string и []byte, возвращает ошибку для неизвестных типов.
func redisValueToBytes(val interface{}, key string) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil // cache miss
	default:
		return nil, fmt.Errorf("unexpected Redis value type for key %s: %T", key, val)
	}
}
