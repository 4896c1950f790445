// Package index реализует точный индекс скалярных произведений для одной партиции —
// in-process эквивалент плоского IP-индекса. Для нормализованных векторов скалярное
// произведение совпадает с косинусной мерой, поэтому оно используется как score напрямую.
package index

import (
	"sort"

	"github.com/DRSN-tech/search-backend/pkg/e"
)

// Entry — пара (продукт, нормализованный вектор), добавляемая в индекс при сборке.
type Entry struct {
	ProductID string
	Vector    []float32
}

// Hit — результат поиска: продукт и его score в диапазоне [-1, 1].
type Hit struct {
	ProductID string
	Score     float64
}

// FlatIndex — неизменяемый индекс одной партиции.
// Порядок строк индекса совпадает с порядком входных данных при сборке;
// после сборки индекс безопасен для конкурентного чтения без синхронизации.
type FlatIndex struct {
	dim     int
	ids     []string
	vectors [][]float32
}

// Build собирает индекс из снапшота партиции.
// Возвращает e.ErrEmptyPartition для пустого снапшота и e.ErrDimensionMismatch,
// если размерности векторов не совпадают.
func Build(entries []Entry) (*FlatIndex, error) {
	const op = "index.Build"

	if len(entries) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyPartition)
	}

	dim := len(entries[0].Vector)
	if dim == 0 {
		return nil, e.Wrap(op, e.ErrDimensionMismatch)
	}

	ix := &FlatIndex{
		dim:     dim,
		ids:     make([]string, 0, len(entries)),
		vectors: make([][]float32, 0, len(entries)),
	}

	for _, entry := range entries {
		if len(entry.Vector) != dim {
			return nil, e.Wrap(op, e.ErrDimensionMismatch)
		}

		ix.ids = append(ix.ids, entry.ProductID)
		ix.vectors = append(ix.vectors, entry.Vector)
	}

	return ix, nil
}

// Search возвращает до k продуктов, наиболее похожих на query, по убыванию score.
// При равных score первой идёт строка, добавленная в индекс раньше.
// Если в партиции меньше k элементов, возвращаются все.
func (ix *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	const op = "FlatIndex.Search"

	if k <= 0 {
		return nil, e.Wrap(op, e.ErrLimitMustBePositive)
	}

	if len(query) != ix.dim {
		return nil, e.Wrap(op, e.ErrDimensionMismatch)
	}

	hits := make([]Hit, len(ix.vectors))
	for i, vector := range ix.vectors {
		hits[i] = Hit{ProductID: ix.ids[i], Score: dot(query, vector)}
	}

	// Стабильная сортировка сохраняет порядок строк индекса при равных score
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k < len(hits) {
		hits = hits[:k]
	}

	return hits, nil
}

// Dim возвращает размерность векторов индекса.
func (ix *FlatIndex) Dim() int {
	return ix.dim
}

// Len возвращает число строк индекса.
func (ix *FlatIndex) Len() int {
	return len(ix.ids)
}

// dot вычисляет скалярное произведение с накоплением в float64.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}
