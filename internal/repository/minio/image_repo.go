package minio

import (
	"context"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ImageRepo реализует репозиторий изображений продуктов поверх MinIO.
// Изображения загружает upstream-пайплайн; здесь они только читаются.
type ImageRepo struct {
	mc  *minio.Client
	cfg *cfg.MinIOCfg
}

func NewImageRepo(mc *minio.Client, cfg *cfg.MinIOCfg) *ImageRepo {
	return &ImageRepo{
		mc:  mc,
		cfg: cfg,
	}
}

// ResolveImageURL возвращает presigned-ссылку на изображение с ограниченным сроком жизни.
func (i *ImageRepo) ResolveImageURL(ctx context.Context, imageKey string) (string, error) {
	url, err := i.mc.PresignedGetObject(ctx, i.cfg.BucketName, imageKey, i.cfg.URLExpiry, nil)
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return url.String(), nil
}
