package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AmbiguousResponse — ответ 409 с кандидатами для дизамбигуации на стороне UI.
type AmbiguousResponse struct {
	Code       int               `json:"code"`
	Message    string            `json:"message"`
	Candidates []ProductResponse `json:"candidates"`
}

type ProductResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Store       string `json:"store"`
	Price       string `json:"price"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type HitResponse struct {
	Product ProductResponse `json:"product"`
	Score   float64         `json:"score"`
}

// SearchResponse различает три исхода: пустой результат без ошибок,
// деградированный поиск (skipped_stores непуст) и обычный успех.
type SearchResponse struct {
	Query          ProductResponse          `json:"query"`
	ResultsByStore map[string][]HitResponse `json:"results_by_store"`
	SkippedStores  []string                 `json:"skipped_stores"`
	EmptyStores    []string                 `json:"empty_stores"`
	Degraded       bool                     `json:"degraded"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrProductNotFound):
		return http.StatusNotFound, e.ErrProductNotFound.Error()
	case errors.Is(err, e.ErrAmbiguousQuery):
		return http.StatusConflict, e.ErrAmbiguousQuery.Error()
	case errors.Is(err, e.ErrMissingQuery):
		return http.StatusBadRequest, e.ErrMissingQuery.Error()
	case errors.Is(err, e.ErrLimitMustBePositive):
		return http.StatusBadRequest, e.ErrLimitMustBePositive.Error()
	case errors.Is(err, e.ErrLimitTooLarge):
		return http.StatusBadRequest, e.ErrLimitTooLarge.Error()
	case errors.Is(err, e.ErrInvalidMinScore):
		return http.StatusBadRequest, e.ErrInvalidMinScore.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parseSearchOptions собирает параметры поиска из query-строки,
// подставляя значения по умолчанию из конфигурации.
func parseSearchOptions(r *http.Request, searchCfg *cfg.SearchCfg) (usecase.SearchOptions, error) {
	opts := usecase.SearchOptions{
		PerStoreLimit: searchCfg.DefaultPerStoreLimit,
		MinScore:      searchCfg.DefaultMinScore,
	}

	if v := r.URL.Query().Get("per_store_limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return opts, e.ErrLimitMustBePositive
		}
		if limit > searchCfg.MaxPerStoreLimit {
			return opts, e.ErrLimitTooLarge
		}
		opts.PerStoreLimit = limit
	}

	if v := r.URL.Query().Get("min_score"); v != "" {
		minScore, err := strconv.ParseFloat(v, 64)
		if err != nil || minScore < -1 || minScore > 1 {
			return opts, e.ErrInvalidMinScore
		}
		opts.MinScore = minScore
	}

	if v := r.URL.Query().Get("best_price_only"); v != "" {
		bestPrice, err := strconv.ParseBool(v)
		if err != nil {
			return opts, e.ErrStatusBadRequest
		}
		opts.BestPriceOnly = bestPrice
	}

	return opts, nil
}

// formatPrice переводит цену из минорных единиц в строку вида "599.99".
func formatPrice(price int64) string {
	return decimal.NewFromInt(price).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func toProductResponse(info usecase.ProductInfo) ProductResponse {
	return ProductResponse{
		ID:          info.ID,
		Name:        strings.TrimSpace(info.Name),
		Store:       info.Store,
		Price:       formatPrice(info.Price),
		Description: info.Description,
		ImageURL:    info.ImageURL,
	}
}

func toSearchResponse(res *usecase.SearchRes) *SearchResponse {
	byStore := make(map[string][]HitResponse, len(res.ResultsByStore))
	for store, hits := range res.ResultsByStore {
		group := make([]HitResponse, 0, len(hits))
		for _, hit := range hits {
			group = append(group, HitResponse{
				Product: toProductResponse(hit.Product),
				Score:   hit.Score,
			})
		}
		byStore[store] = group
	}

	return &SearchResponse{
		Query:          toProductResponse(res.Query),
		ResultsByStore: byStore,
		SkippedStores:  res.SkippedStores,
		EmptyStores:    res.EmptyStores,
		Degraded:       len(res.SkippedStores) > 0,
	}
}
