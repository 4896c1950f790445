package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSearchCfg() *cfg.SearchCfg {
	return &cfg.SearchCfg{
		DefaultPerStoreLimit: 5,
		MaxPerStoreLimit:     20,
		DefaultMinScore:      0.5,
	}
}

func TestParseSearchOptions_Defaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/search?product_id=p1", nil)

	opts, err := parseSearchOptions(r, testSearchCfg())
	require.NoError(t, err)

	assert.Equal(t, 5, opts.PerStoreLimit)
	assert.InDelta(t, 0.5, opts.MinScore, 1e-9)
	assert.False(t, opts.BestPriceOnly)
}

func TestParseSearchOptions_Explicit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/search?per_store_limit=3&min_score=-0.25&best_price_only=true", nil)

	opts, err := parseSearchOptions(r, testSearchCfg())
	require.NoError(t, err)

	assert.Equal(t, 3, opts.PerStoreLimit)
	assert.InDelta(t, -0.25, opts.MinScore, 1e-9)
	assert.True(t, opts.BestPriceOnly)
}

func TestParseSearchOptions_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"zero limit", "per_store_limit=0", e.ErrLimitMustBePositive},
		{"negative limit", "per_store_limit=-2", e.ErrLimitMustBePositive},
		{"non-numeric limit", "per_store_limit=abc", e.ErrLimitMustBePositive},
		{"limit above max", "per_store_limit=21", e.ErrLimitTooLarge},
		{"score below range", "min_score=-1.5", e.ErrInvalidMinScore},
		{"score above range", "min_score=1.01", e.ErrInvalidMinScore},
		{"non-numeric score", "min_score=high", e.ErrInvalidMinScore},
		{"bad bool", "best_price_only=maybe", e.ErrStatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/search?"+tt.query, nil)

			_, err := parseSearchOptions(r, testSearchCfg())
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToHTTPResponse(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{e.ErrProductNotFound, http.StatusNotFound},
		{e.ErrAmbiguousQuery, http.StatusConflict},
		{e.ErrMissingQuery, http.StatusBadRequest},
		{e.ErrLimitMustBePositive, http.StatusBadRequest},
		{e.ErrLimitTooLarge, http.StatusBadRequest},
		{e.ErrInvalidMinScore, http.StatusBadRequest},
		{e.Wrap("SearchUseCase.SearchByProductID", e.ErrProductNotFound), http.StatusNotFound},
		{e.ErrSnapshotUnavailable, http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		code, _ := ToHTTPResponse(tt.err)
		assert.Equal(t, tt.code, code, "error %v", tt.err)
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "599.99", formatPrice(59999))
	assert.Equal(t, "0.05", formatPrice(5))
	assert.Equal(t, "100.00", formatPrice(10000))
	assert.Equal(t, "0.00", formatPrice(0))
}

func TestToSearchResponse_DegradedFlag(t *testing.T) {
	res := usecase.NewSearchRes(
		usecase.ProductInfo{ID: "q", Name: "query", Store: "a", Price: 100},
		map[string][]usecase.SearchHit{
			"a": {{Product: usecase.ProductInfo{ID: "p1", Name: "one", Store: "a", Price: 200}, Score: 0.9}},
		},
		[]string{"b"},
		[]string{},
	)

	resp := toSearchResponse(res)

	assert.True(t, resp.Degraded)
	assert.Equal(t, []string{"b"}, resp.SkippedStores)
	require.Len(t, resp.ResultsByStore["a"], 1)
	assert.Equal(t, "2.00", resp.ResultsByStore["a"][0].Product.Price)
}

func TestToSearchResponse_NotDegraded(t *testing.T) {
	res := usecase.NewSearchRes(
		usecase.ProductInfo{ID: "q"},
		map[string][]usecase.SearchHit{},
		[]string{},
		[]string{"b"},
	)

	resp := toSearchResponse(res)

	assert.False(t, resp.Degraded)
	assert.Equal(t, []string{"b"}, resp.EmptyStores)
}
