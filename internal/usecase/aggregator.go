package usecase

import (
	"sort"
	"strings"
)

// aggregate превращает пул сырых хитов в итоговую форму ответа.
// Шаги применяются строго в таком порядке:
//  1. фильтр по score (граница включительно);
//  2. опциональная best-price-редукция;
//  3. группировка по магазинам;
//  4. сортировка внутри магазина: score убыв., цена возр., id возр.;
//  5. усечение каждой группы до perStoreLimit.
//
// candidateStores — магазины, чьи партиции были успешно опрошены; те из них,
// что не дали ни одного прошедшего фильтры результата, попадают в emptyStores.
func aggregate(hits []rawHit, infos map[string]ProductInfo, opts SearchOptions, candidateStores []string) (map[string][]SearchHit, []string) {
	survived := make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.score < opts.MinScore {
			continue
		}

		info, ok := infos[hit.productID]
		if !ok {
			// Эмбеддинг без записи в каталоге: гидрация невозможна
			continue
		}

		survived = append(survived, SearchHit{Product: info, Score: hit.score})
	}

	if opts.BestPriceOnly {
		survived = reduceToBestPrice(survived)
	}

	byStore := make(map[string][]SearchHit)
	for _, hit := range survived {
		byStore[hit.Product.Store] = append(byStore[hit.Product.Store], hit)
	}

	for store, group := range byStore {
		sortHits(group)

		if len(group) > opts.PerStoreLimit {
			byStore[store] = group[:opts.PerStoreLimit]
		}
	}

	empty := make([]string, 0)
	for _, store := range candidateStores {
		if len(byStore[store]) == 0 {
			delete(byStore, store)
			empty = append(empty, store)
		}
	}
	sort.Strings(empty)

	return byStore, empty
}

// reduceToBestPrice оставляет в каждой межмагазинной группе эквивалентных продуктов
// только самый дешёвый хит, сохраняя его собственный score.
// Группа никогда не даёт больше одного результата, и выбранный хит не может быть
// дороже другого хита той же группы, прошедшего фильтр по score.
func reduceToBestPrice(hits []SearchHit) []SearchHit {
	best := make(map[string]SearchHit, len(hits))
	order := make([]string, 0, len(hits))

	for _, hit := range hits {
		key := bestPriceKey(hit.Product.Name)

		current, ok := best[key]
		if !ok {
			best[key] = hit
			order = append(order, key)
			continue
		}

		if cheaper(hit, current) {
			best[key] = hit
		}
	}

	result := make([]SearchHit, 0, len(best))
	for _, key := range order {
		result = append(result, best[key])
	}

	return result
}

// bestPriceKey — ключ межмагазинной группировки эквивалентных продуктов.
// Каталог не даёт канонического cross-store идентификатора, поэтому группировка
// идёт по точному имени после case-фолдинга и обрезки пробелов. Никакого
// нечёткого сопоставления.
func bestPriceKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// cheaper сообщает, предпочтительнее ли хит a хита b в best-price-редукции:
// ниже цена, при равной цене выше score, далее меньший id.
func cheaper(a, b SearchHit) bool {
	if a.Product.Price != b.Product.Price {
		return a.Product.Price < b.Product.Price
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}

	return a.Product.ID < b.Product.ID
}

// sortHits упорядочивает группу магазина полностью детерминированно:
// score по убыванию, при равенстве цена по возрастанию, далее id по возрастанию.
func sortHits(hits []SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Product.Price != hits[j].Product.Price {
			return hits[i].Product.Price < hits[j].Product.Price
		}

		return hits[i].Product.ID < hits[j].Product.ID
	})
}
