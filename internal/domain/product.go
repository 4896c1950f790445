package domain

// Product описывает продукт каталога.
// Записи принадлежат внешнему хранилищу каталога; ядро читает только копии.
type Product struct {
	ID          string // opaque-идентификатор из каталога
	Name        string
	Store       string
	Price       int64 // Цена хранится в минорных единицах (копейки/центы)
	Description string
	ImageKey    string // ключ объекта с изображением в S3
	ClusterID   int64  // кластер, назначенный upstream-пайплайном
}

func NewProduct(id, name, store string, price int64, clusterID int64) *Product {
	return &Product{
		ID:        id,
		Name:      name,
		Store:     store,
		Price:     price,
		ClusterID: clusterID,
	}
}
