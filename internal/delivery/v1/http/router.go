package http

import (
	"net/http"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(searchUC usecase.SearchUC, searchCfg *cfg.SearchCfg) {
	r.router.Use(requestID)

	r.router.Route("/api/v1", func(v1 chi.Router) {
		handler := NewSearchHandler(searchUC, searchCfg, r.logger)
		registerSearchRoutes(v1, handler)
	})
}

func registerSearchRoutes(router chi.Router, handler *SearchHandler) {
	router.Get("/products", handler.findProducts)

	router.Route("/search", func(s chi.Router) {
		s.Get("/", handler.search)
		s.Post("/refresh", handler.refreshIndexes)
	})
}

// requestID проставляет сквозной идентификатор запроса, если клиент его не прислал.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)

		next.ServeHTTP(w, r)
	})
}
