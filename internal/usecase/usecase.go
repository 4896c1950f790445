package usecase

import "context"

type SearchUC interface {
	SearchByProductID(ctx context.Context, req *SearchByIDReq) (*SearchRes, error)
	SearchByName(ctx context.Context, req *SearchByNameReq) (*SearchRes, error)
	FindProducts(ctx context.Context, name string) ([]ProductInfo, error)
	InvalidateIndexes()
}
