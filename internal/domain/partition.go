package domain

import "fmt"

// PartitionKey — пара (кластер, магазин); единица построения индекса.
// Все эмбеддинги с одинаковым ключом образуют одну партицию.
type PartitionKey struct {
	ClusterID int64
	Store     string
}

func NewPartitionKey(clusterID int64, store string) PartitionKey {
	return PartitionKey{ClusterID: clusterID, Store: store}
}

// String возвращает строковое представление ключа, пригодное для дедупликации билдов.
func (k PartitionKey) String() string {
	return fmt.Sprintf("%d/%s", k.ClusterID, k.Store)
}
