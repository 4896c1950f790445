package domain

// Embedding представляет нормализованный эмбеддинг одного продукта (1:1 с Product).
// Предусловие: L2-норма вектора равна 1.0; ядро не нормализует векторы повторно.
type Embedding struct {
	ProductID string
	Vector    []float32
	ClusterID int64
	Store     string
}

func NewEmbedding(productID string, vector []float32, clusterID int64, store string) *Embedding {
	return &Embedding{
		ProductID: productID,
		Vector:    vector,
		ClusterID: clusterID,
		Store:     store,
	}
}

// PartitionKey возвращает ключ партиции, которой принадлежит эмбеддинг.
func (e *Embedding) PartitionKey() PartitionKey {
	return PartitionKey{ClusterID: e.ClusterID, Store: e.Store}
}
