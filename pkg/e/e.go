package e

import "fmt"

var (
	// Ошибки запроса: поиск прерывается целиком
	ErrProductNotFound = fmt.Errorf("product not found")
	ErrAmbiguousQuery  = fmt.Errorf("ambiguous query: multiple products match")

	// Ошибки целостности данных партиции
	ErrEmptyPartition    = fmt.Errorf("partition has no embeddings")
	ErrDimensionMismatch = fmt.Errorf("vector dimension mismatch")

	// Ошибки коллабораторов
	ErrSnapshotUnavailable = fmt.Errorf("partition snapshot unavailable")

	// 400 Bad Request
	ErrStatusBadRequest    = fmt.Errorf("bad request")
	ErrMissingQuery        = fmt.Errorf("product_id or name is required")
	ErrLimitMustBePositive = fmt.Errorf("per_store_limit must be positive")
	ErrLimitTooLarge       = fmt.Errorf("per_store_limit exceeds maximum")
	ErrInvalidMinScore     = fmt.Errorf("min_score must be in [-1, 1]")

	// 500 Internal Server Error
	ErrInternalServerError = fmt.Errorf("internal server error")

	// Внутренние ошибки конфигурации
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
