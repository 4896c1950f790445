package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/internal/index"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/DRSN-tech/search-backend/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// candidateLimit — максимум кандидатов при разрешении запроса по имени
	candidateLimit = 10
	// maxParallelPartitions — ограничение параллелизма опроса партиций одного поиска
	maxParallelPartitions = 8
)

// SearchUseCase реализует поиск похожих продуктов: разрешение запроса через каталог
// и хранилище эмбеддингов, опрос индексов всех партиций кластера запроса и агрегацию.
type SearchUseCase struct {
	catalogRepo   CatalogRepository
	embeddingRepo EmbeddingRepository
	cacheRepo     CacheRepository
	indexes       IndexProvider
	imagesInfra   ImagesInfra
	logger        logger.Logger
}

func NewSearchUC(
	catalogRepo CatalogRepository,
	embeddingRepo EmbeddingRepository,
	cacheRepo CacheRepository,
	indexes IndexProvider,
	imagesInfra ImagesInfra,
	logger logger.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		catalogRepo:   catalogRepo,
		embeddingRepo: embeddingRepo,
		cacheRepo:     cacheRepo,
		indexes:       indexes,
		imagesInfra:   imagesInfra,
		logger:        logger,
	}
}

// SearchByProductID ищет продукты, похожие на продукт с указанным идентификатором.
// Сбой отдельной партиции не прерывает поиск: её магазин попадает в SkippedStores,
// результаты остальных магазинов возвращаются.
func (s *SearchUseCase) SearchByProductID(ctx context.Context, req *SearchByIDReq) (*SearchRes, error) {
	const op = "SearchUseCase.SearchByProductID"

	if err := validateOptions(req.Options); err != nil {
		return nil, e.Wrap(op, err)
	}

	product, err := s.catalogRepo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	embedding, err := s.embeddingRepo.GetEmbedding(ctx, product.ID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	stores, err := s.embeddingRepo.ListStoresForCluster(ctx, embedding.ClusterID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	hits, candidateStores, skipped, err := s.searchCluster(ctx, embedding, stores, req.Options)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	infos, err := s.hydrate(ctx, hitProductIDs(hits))
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	s.resolveImageURLs(ctx, infos)

	resultsByStore, empty := aggregate(hits, infos, req.Options, candidateStores)

	queryInfo := productToInfo(product)
	s.resolveQueryImageURL(ctx, &queryInfo)

	return NewSearchRes(queryInfo, resultsByStore, skipped, empty), nil
}

// SearchByName разрешает запрос по подстроке имени через каталог.
// Ровно одно совпадение продолжает поиск; несколько — e.ErrAmbiguousQuery
// (выбор остаётся за слоем представления); ни одного — e.ErrProductNotFound.
func (s *SearchUseCase) SearchByName(ctx context.Context, req *SearchByNameReq) (*SearchRes, error) {
	const op = "SearchUseCase.SearchByName"

	candidates, err := s.catalogRepo.FindProductsByName(ctx, req.Name, candidateLimit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	switch len(candidates) {
	case 0:
		return nil, e.Wrap(op, e.ErrProductNotFound)
	case 1:
		return s.SearchByProductID(ctx, NewSearchByIDReq(candidates[0].ID, req.Options))
	default:
		return nil, e.Wrap(op, e.ErrAmbiguousQuery)
	}
}

// FindProducts возвращает кандидатов по подстроке имени для дизамбигуации на UI.
func (s *SearchUseCase) FindProducts(ctx context.Context, name string) ([]ProductInfo, error) {
	const op = "SearchUseCase.FindProducts"

	products, err := s.catalogRepo.FindProductsByName(ctx, name, candidateLimit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	infos := make([]ProductInfo, 0, len(products))
	for _, product := range products {
		info := productToInfo(&product)
		s.resolveQueryImageURL(ctx, &info)
		infos = append(infos, info)
	}

	return infos, nil
}

// InvalidateIndexes сбрасывает все индексы партиций (явный refresh).
func (s *SearchUseCase) InvalidateIndexes() {
	s.indexes.InvalidateAll()
}

// searchCluster опрашивает партиции всех магазинов кластера запроса параллельно.
// Возвращает сырые хиты, успешно опрошенные магазины и магазины, пропущенные из-за сбоев.
func (s *SearchUseCase) searchCluster(
	ctx context.Context,
	embedding *domain.Embedding,
	stores []string,
	opts SearchOptions,
) ([]rawHit, []string, []string, error) {
	var (
		mu         sync.Mutex
		hits       []rawHit
		candidates []string
		skipped    []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPartitions)

	for _, store := range stores {
		g.Go(func() error {
			key := domain.NewPartitionKey(embedding.ClusterID, store)

			storeHits, err := s.searchPartition(gctx, key, embedding, opts)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				// Сбой одной партиции деградирует поиск, но не прерывает его
				s.logger.Warnf("Partition %s skipped: %v", key, err)
				mu.Lock()
				skipped = append(skipped, store)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			candidates = append(candidates, store)
			hits = append(hits, storeHits...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	sort.Strings(candidates)
	sort.Strings(skipped)

	return hits, candidates, skipped, nil
}

// searchPartition запрашивает top-K у индекса одной партиции и исключает сам
// продукт запроса из результатов его магазина.
func (s *SearchUseCase) searchPartition(
	ctx context.Context,
	key domain.PartitionKey,
	embedding *domain.Embedding,
	opts SearchOptions,
) ([]rawHit, error) {
	ix, err := s.indexes.GetOrBuild(ctx, key, s.fetchSnapshot)
	if err != nil {
		return nil, err
	}

	// +1 на случай, если партиция содержит сам продукт запроса
	found, err := ix.Search(embedding.Vector, opts.PerStoreLimit+1)
	if err != nil {
		return nil, err
	}

	hits := make([]rawHit, 0, len(found))
	for _, hit := range found {
		if hit.ProductID == embedding.ProductID {
			continue
		}

		hits = append(hits, rawHit{productID: hit.ProductID, store: key.Store, score: hit.Score})
	}

	return hits, nil
}

// fetchSnapshot получает снапшот партиции у хранилища эмбеддингов.
func (s *SearchUseCase) fetchSnapshot(ctx context.Context, key domain.PartitionKey) ([]index.Entry, error) {
	embeddings, err := s.embeddingRepo.GetPartitionSnapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	entries := make([]index.Entry, 0, len(embeddings))
	for _, embedding := range embeddings {
		entries = append(entries, index.Entry{ProductID: embedding.ProductID, Vector: embedding.Vector})
	}

	return entries, nil
}

// hydrate возвращает информацию о продуктах по ID: сначала кэш, промахи — из каталога
// с фоновым добавлением в кэш.
func (s *SearchUseCase) hydrate(ctx context.Context, ids []string) (map[string]ProductInfo, error) {
	if len(ids) == 0 {
		return map[string]ProductInfo{}, nil
	}

	cached, err := s.cacheRepo.GetProducts(ctx, ids)
	if err != nil {
		s.logger.Warnf("Product cache lookup failed, falling back to catalog: %v", err)
		cached = map[string]ProductInfo{}
	}

	misses := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			misses = append(misses, id)
		}
	}

	if len(misses) > 0 {
		fromCatalog, err := s.catalogRepo.GetProductsInfo(ctx, misses)
		if err != nil {
			return nil, err
		}

		// Фоновое добавление продуктов в кэш
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := s.cacheRepo.SetProducts(bgCtx, fromCatalog); err != nil {
				s.logger.Warnf("Failed to cache products in background: %v", err)
			}
		}()

		for _, info := range fromCatalog {
			cached[info.ID] = info
		}
	}

	return cached, nil
}

// resolveImageURLs проставляет внешние ссылки на изображения; сбой разрешения
// одной ссылки не считается ошибкой поиска.
func (s *SearchUseCase) resolveImageURLs(ctx context.Context, infos map[string]ProductInfo) {
	for id, info := range infos {
		if info.ImageKey == "" {
			continue
		}

		url, err := s.imagesInfra.ResolveImageURL(ctx, info.ImageKey)
		if err != nil {
			s.logger.Warnf("Failed to resolve image URL for product %s: %v", id, err)
			continue
		}

		info.ImageURL = url
		infos[id] = info
	}
}

func (s *SearchUseCase) resolveQueryImageURL(ctx context.Context, info *ProductInfo) {
	if info.ImageKey == "" {
		return
	}

	url, err := s.imagesInfra.ResolveImageURL(ctx, info.ImageKey)
	if err != nil {
		s.logger.Warnf("Failed to resolve image URL for product %s: %v", info.ID, err)
		return
	}

	info.ImageURL = url
}

// hitProductIDs возвращает уникальные ID продуктов из пула сырых хитов.
func hitProductIDs(hits []rawHit) []string {
	seen := make(map[string]struct{}, len(hits))
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.productID]; ok {
			continue
		}

		seen[hit.productID] = struct{}{}
		ids = append(ids, hit.productID)
	}

	return ids
}

// productToInfo преобразует доменный продукт в DTO.
func productToInfo(product *domain.Product) ProductInfo {
	return ProductInfo{
		ID:          product.ID,
		Name:        product.Name,
		Store:       product.Store,
		Price:       product.Price,
		Description: product.Description,
		ImageKey:    product.ImageKey,
		ClusterID:   product.ClusterID,
	}
}

// validateOptions проверяет параметры поиска на допустимые диапазоны.
func validateOptions(opts SearchOptions) error {
	if opts.PerStoreLimit <= 0 {
		return e.ErrLimitMustBePositive
	}

	if opts.MinScore < -1 || opts.MinScore > 1 {
		return e.ErrInvalidMinScore
	}

	return nil
}
