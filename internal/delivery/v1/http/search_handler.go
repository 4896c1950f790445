package http

import (
	"errors"
	"net/http"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/DRSN-tech/search-backend/pkg/logger"
)

type SearchHandler struct {
	searchUsecase usecase.SearchUC
	searchCfg     *cfg.SearchCfg
	logger        logger.Logger
}

func NewSearchHandler(searchUsecase usecase.SearchUC, searchCfg *cfg.SearchCfg, logger logger.Logger) *SearchHandler {
	return &SearchHandler{
		searchUsecase: searchUsecase,
		searchCfg:     searchCfg,
		logger:        logger,
	}
}

// search обрабатывает GET /search: поиск похожих продуктов по product_id или name.
// Ровно один из параметров обязателен; name с несколькими совпадениями
// возвращает 409 со списком кандидатов.
func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	opts, err := parseSearchOptions(r, h.searchCfg)
	if err != nil {
		h.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	var (
		productID = r.URL.Query().Get("product_id")
		name      = r.URL.Query().Get("name")
	)

	var res *usecase.SearchRes
	switch {
	case productID != "":
		res, err = h.searchUsecase.SearchByProductID(r.Context(), usecase.NewSearchByIDReq(productID, opts))
	case name != "":
		res, err = h.searchUsecase.SearchByName(r.Context(), usecase.NewSearchByNameReq(name, opts))
	default:
		h.logger.Warnf("%d %s", http.StatusBadRequest, e.ErrMissingQuery.Error())
		WriteError(w, e.ErrMissingQuery)
		return
	}

	if err != nil {
		if errors.Is(err, e.ErrAmbiguousQuery) {
			h.writeAmbiguous(w, r, name)
			return
		}

		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toSearchResponse(res))
}

// findProducts обрабатывает GET /products: список кандидатов по подстроке имени.
func (h *SearchHandler) findProducts(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		WriteError(w, e.ErrMissingQuery)
		return
	}

	infos, err := h.searchUsecase.FindProducts(r.Context(), name)
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	candidates := make([]ProductResponse, 0, len(infos))
	for _, info := range infos {
		candidates = append(candidates, toProductResponse(info))
	}

	WriteSuccess(w, http.StatusOK, candidates)
}

// refreshIndexes обрабатывает POST /search/refresh: явный сброс всех индексов партиций.
func (h *SearchHandler) refreshIndexes(w http.ResponseWriter, r *http.Request) {
	h.searchUsecase.InvalidateIndexes()
	h.logger.Infof("Partition indexes invalidated by explicit refresh request")

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"Invalidated": true,
	})
}

// writeAmbiguous отвечает 409 со списком кандидатов для выбора на стороне UI.
func (h *SearchHandler) writeAmbiguous(w http.ResponseWriter, r *http.Request, name string) {
	infos, err := h.searchUsecase.FindProducts(r.Context(), name)
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	candidates := make([]ProductResponse, 0, len(infos))
	for _, info := range infos {
		candidates = append(candidates, toProductResponse(info))
	}

	WriteSuccess(w, http.StatusConflict, &AmbiguousResponse{
		Code:       http.StatusConflict,
		Message:    e.ErrAmbiguousQuery.Error(),
		Candidates: candidates,
	})
}
