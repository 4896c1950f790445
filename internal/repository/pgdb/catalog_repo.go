package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/search-backend/internal/domain"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// CatalogRepo реализует read-only репозиторий каталога продуктов поверх PostgreSQL.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// GetProductByID возвращает продукт по идентификатору.
// Возвращает e.ErrProductNotFound, если записи нет.
func (c *CatalogRepo) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, name, store, price, description, image_key, cluster_id
		FROM products
		WHERE id = $1
	`

	var product domain.Product
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&product.ID, &product.Name, &product.Store, &product.Price,
		&product.Description, &product.ImageKey, &product.ClusterID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}

		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &product, nil
}

// FindProductsByName ищет продукты по подстроке имени без учёта регистра.
// Порядок выдачи детерминирован (имя, затем id).
func (c *CatalogRepo) FindProductsByName(ctx context.Context, substring string, limit int) ([]domain.Product, error) {
	query := `
		SELECT id, name, store, price, description, image_key, cluster_id
		FROM products
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name, id
		LIMIT $2
	`

	rows, err := c.pool.Query(ctx, query, substring, limit)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.Name, &product.Store, &product.Price,
			&product.Description, &product.ImageKey, &product.ClusterID,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, product)
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

// GetProductsInfo возвращает информацию о продуктах по их идентификаторам.
// Отсутствующие идентификаторы молча пропускаются: гидрация хитов терпима к дырам.
func (c *CatalogRepo) GetProductsInfo(ctx context.Context, ids []string) ([]usecase.ProductInfo, error) {
	query := `
		SELECT id, name, store, price, description, image_key, cluster_id
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := c.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]usecase.ProductInfo, 0, len(ids))
	for rows.Next() {
		var info usecase.ProductInfo
		if err := rows.Scan(
			&info.ID, &info.Name, &info.Store, &info.Price,
			&info.Description, &info.ImageKey, &info.ClusterID,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, info)
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}
