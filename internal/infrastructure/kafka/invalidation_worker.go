package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/DRSN-tech/search-backend/internal/cfg"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/jitter"
	"github.com/DRSN-tech/search-backend/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// CatalogChangeEvent — событие upstream-пайплайна об изменении каталога/эмбеддингов.
// Событие с cluster_id инвалидирует партиции одного кластера; без него — все.
type CatalogChangeEvent struct {
	EventID    string   `json:"event_id"`
	OccurredAt int64    `json:"occurred_at"`
	ClusterID  *int64   `json:"cluster_id,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// InvalidationWorker слушает события изменения каталога и сбрасывает
// закэшированные индексы партиций и записи кэша продуктов.
type InvalidationWorker struct {
	reader  *kafka.Reader
	indexes usecase.IndexProvider
	cache   usecase.CacheRepository
	logger  logger.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewInvalidationWorker(
	cfg *cfg.KafkaCfg,
	indexes usecase.IndexProvider,
	cache usecase.CacheRepository,
	logger logger.Logger,
) *InvalidationWorker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})

	return &InvalidationWorker{
		reader:  reader,
		indexes: indexes,
		cache:   cache,
		logger:  logger,
	}
}

func (w *InvalidationWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop останавливает воркер и закрывает reader.
func (w *InvalidationWorker) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	return w.reader.Close()
}

func (w *InvalidationWorker) run(ctx context.Context) {
	const (
		baseBackoff = time.Second
		maxBackoff  = 30 * time.Second
	)

	attempt := 0
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}

			backoff := jitter.ExponentialBackoff(baseBackoff, maxBackoff, attempt, jitter.DefaultJitter)
			attempt++
			w.logger.Warnf("Kafka fetch failed (attempt %d), retrying in %s: %v", attempt, backoff, err)

			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		attempt = 0

		w.handle(ctx, msg.Value)

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Warnf("Kafka commit failed: %v", err)
		}
	}
}

// handle применяет одно событие; некорректные сообщения пропускаются с логом.
func (w *InvalidationWorker) handle(ctx context.Context, value []byte) {
	var event CatalogChangeEvent
	if err := json.Unmarshal(value, &event); err != nil {
		w.logger.Warnf("Malformed catalog change event skipped: %v", err)
		return
	}

	if event.ClusterID != nil {
		w.indexes.InvalidateCluster(*event.ClusterID)
		w.logger.Infof("Invalidated partition indexes for cluster %d (event %s)", *event.ClusterID, event.EventID)
	} else {
		w.indexes.InvalidateAll()
		w.logger.Infof("Invalidated all partition indexes (event %s)", event.EventID)
	}

	if len(event.ProductIDs) > 0 {
		if err := w.cache.DeleteProducts(ctx, event.ProductIDs); err != nil {
			w.logger.Warnf("Failed to purge product cache entries: %v", err)
		}
	}
}
