package usecase

// SEARCH USECASE

// SearchOptions — параметры поиска, приходящие от слоя представления.
// Валидные диапазоны: PerStoreLimit 1..MaxPerStoreLimit, MinScore в [-1, 1].
type SearchOptions struct {
	PerStoreLimit int     // максимум результатов на магазин
	MinScore      float64 // нижняя граница score, включительно
	BestPriceOnly bool    // оставлять только самый дешёвый экземпляр группы
}

// SearchByIDReq — запрос поиска похожих продуктов по идентификатору.
type SearchByIDReq struct {
	ProductID string
	Options   SearchOptions
}

// SearchByNameReq — запрос поиска похожих продуктов по подстроке имени.
type SearchByNameReq struct {
	Name    string
	Options SearchOptions
}

// ProductInfo — DTO с информацией о продукте для внешнего использования.
type ProductInfo struct {
	ID          string
	Name        string
	Store       string
	Price       int64
	Description string
	ImageKey    string
	ImageURL    string
	ClusterID   int64
}

// SearchHit — один результат поиска: продукт и его сходство с запросом.
type SearchHit struct {
	Product ProductInfo
	Score   float64
}

// SearchRes — ответ поиска, сгруппированный по магазинам.
// SkippedStores — магазины, пропущенные из-за сбоев партиций;
// EmptyStores — магазины, в которых кандидаты были, но ни один не прошёл фильтры.
type SearchRes struct {
	Query          ProductInfo
	ResultsByStore map[string][]SearchHit
	SkippedStores  []string
	EmptyStores    []string
}

// rawHit — сырой результат запроса к индексу партиции до гидрации и агрегации.
type rawHit struct {
	productID string
	store     string
	score     float64
}

// MAPPERS

func NewSearchByIDReq(productID string, opts SearchOptions) *SearchByIDReq {
	return &SearchByIDReq{
		ProductID: productID,
		Options:   opts,
	}
}

func NewSearchByNameReq(name string, opts SearchOptions) *SearchByNameReq {
	return &SearchByNameReq{
		Name:    name,
		Options: opts,
	}
}

func NewSearchRes(query ProductInfo, resultsByStore map[string][]SearchHit, skipped, empty []string) *SearchRes {
	return &SearchRes{
		Query:          query,
		ResultsByStore: resultsByStore,
		SkippedStores:  skipped,
		EmptyStores:    empty,
	}
}

func NewProductInfo(id, name, store string, price int64, description, imageKey string, clusterID int64) ProductInfo {
	return ProductInfo{
		ID:          id,
		Name:        name,
		Store:       store,
		Price:       price,
		Description: description,
		ImageKey:    imageKey,
		ClusterID:   clusterID,
	}
}
