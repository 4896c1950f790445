// Package cache содержит процессный кэш индексов партиций.
//
// Дисциплина доступа: чтение готовой записи не требует эксклюзивной блокировки;
// сборка индекса для одного ключа сериализуется через singleflight, сборки разных
// ключей идут параллельно. Готовый индекс неизменяем, замена записи — атомарный
// свап под мьютексом, поэтому читатели со старой ссылкой сохраняют согласованный вид.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/internal/index"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/DRSN-tech/search-backend/pkg/jitter"
	"github.com/DRSN-tech/search-backend/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// SnapshotFetcher получает текущий снапшот эмбеддингов партиции у коллаборатора.
type SnapshotFetcher func(ctx context.Context, key domain.PartitionKey) ([]index.Entry, error)

// entry — запись кэша: индекс и момент его сборки. Запись заменяется целиком
// и никогда не мутируется частично.
type entry struct {
	index     *index.FlatIndex
	builtAt   time.Time
	expiresAt time.Time
}

// IndexCache — кэш индексов партиций с ленивым TTL-устареванием.
// Устаревшая запись перестраивается при следующем обращении, не вытесняется фоном.
type IndexCache struct {
	ttl          time.Duration
	jitterFactor float64
	logger       logger.Logger

	mu      sync.RWMutex
	entries map[domain.PartitionKey]*entry
	group   singleflight.Group
}

func NewIndexCache(ttl time.Duration, jitterFactor float64, logger logger.Logger) *IndexCache {
	return &IndexCache{
		ttl:          ttl,
		jitterFactor: jitterFactor,
		logger:       logger,
		entries:      make(map[domain.PartitionKey]*entry),
	}
}

// GetOrBuild возвращает свежий индекс партиции, при необходимости собирая его.
// Конкурентные первые обращения к одному ключу схлопываются в одну сборку;
// все ожидающие получают её результат. Отмена контекста отцепляет ожидающего,
// не прерывая сборку для остальных и не оставляя в кэше частичных записей.
//
// Если fetch завершился ошибкой, а в кэше осталась устаревшая запись, она
// отдаётся как деградированный результат (serve-stale). Без такой записи
// возвращается e.ErrSnapshotUnavailable, предыдущее состояние кэша не меняется.
func (c *IndexCache) GetOrBuild(ctx context.Context, key domain.PartitionKey, fetch SnapshotFetcher) (*index.FlatIndex, error) {
	const op = "IndexCache.GetOrBuild"

	if ix, ok := c.fresh(key); ok {
		return ix, nil
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// Повторная проверка: запись могла обновиться, пока мы ждали слот singleflight
		if ix, ok := c.fresh(key); ok {
			return ix, nil
		}

		// Сборка не должна умирать вместе с первым отменившимся ожидающим
		return c.rebuild(context.WithoutCancel(ctx), key, fetch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, e.Wrap(op, res.Err)
		}

		return res.Val.(*index.FlatIndex), nil
	case <-ctx.Done():
		return nil, e.Wrap(op, ctx.Err())
	}
}

// InvalidateAll сбрасывает все записи кэша. Используется при явном refresh
// и при событиях об изменении исходных данных.
func (c *IndexCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[domain.PartitionKey]*entry)
	c.mu.Unlock()
}

// InvalidateCluster сбрасывает записи всех партиций указанного кластера.
func (c *IndexCache) InvalidateCluster(clusterID int64) {
	c.mu.Lock()
	for key := range c.entries {
		if key.ClusterID == clusterID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Len возвращает текущее число записей кэша.
func (c *IndexCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// fresh возвращает индекс, если запись существует и не устарела.
func (c *IndexCache) fresh(key domain.PartitionKey) (*index.FlatIndex, bool) {
	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(ent.expiresAt) {
		return nil, false
	}

	return ent.index, true
}

// rebuild получает снапшот, собирает новый индекс и атомарно заменяет запись.
func (c *IndexCache) rebuild(ctx context.Context, key domain.PartitionKey, fetch SnapshotFetcher) (*index.FlatIndex, error) {
	entries, err := fetch(ctx, key)
	if err != nil {
		if stale, ok := c.stale(key); ok {
			c.logger.Warnf("Snapshot fetch failed for partition %s, serving stale index: %v", key, err)
			return stale, nil
		}

		return nil, e.Wrap(err.Error(), e.ErrSnapshotUnavailable)
	}

	ix, err := index.Build(entries)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ent := &entry{
		index:   ix,
		builtAt: now,
		// Джиттер разносит истечение TTL соседних партиций
		expiresAt: now.Add(jitter.Duration(c.ttl, c.jitterFactor)),
	}

	c.mu.Lock()
	c.entries[key] = ent
	c.mu.Unlock()

	return ix, nil
}

// stale возвращает устаревшую запись, если она есть.
func (c *IndexCache) stale(key domain.PartitionKey) (*index.FlatIndex, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ent, ok := c.entries[key]; ok {
		return ent.index, true
	}

	return nil, false
}
