package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DRSN-tech/search-backend/internal/cache"
	config "github.com/DRSN-tech/search-backend/internal/cfg"
	v1Http "github.com/DRSN-tech/search-backend/internal/delivery/v1/http"
	"github.com/DRSN-tech/search-backend/internal/infrastructure/kafka"
	s3Repo "github.com/DRSN-tech/search-backend/internal/repository/minio"
	"github.com/DRSN-tech/search-backend/internal/repository/pgdb"
	qdrantRepo "github.com/DRSN-tech/search-backend/internal/repository/qdrant"
	"github.com/DRSN-tech/search-backend/internal/repository/redis"
	"github.com/DRSN-tech/search-backend/internal/usecase"
	"github.com/DRSN-tech/search-backend/pkg/clients"
	"github.com/DRSN-tech/search-backend/pkg/closer"
	"github.com/DRSN-tech/search-backend/pkg/e"
	"github.com/DRSN-tech/search-backend/pkg/logger"
	"github.com/DRSN-tech/search-backend/pkg/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

func Run() {
	logger := logger.NewSlogLogger()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	cl := closer.NewCloser(2 * time.Second)

	db, err := initPGDB(logger, cfg)
	if err != nil {
		logger.Errorf(err, "failed to initialize database")
		os.Exit(1)
	}
	cl.AddPlain(func() error {
		db.Close()
		logger.Infof("Postgres pool closed")
		return nil
	})

	catalogRepo := pgdb.NewCatalogRepo(db.Pool)

	minioClient, err := clients.NewMinIOClient(cfg.Minio)
	if err != nil {
		logger.Errorf(err, "failed to initialize minio client")
		os.Exit(1)
	}

	minioCtx, minioCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := clients.EnsureBucket(minioCtx, minioClient, cfg.Minio.BucketName); err != nil {
		minioCancel()
		logger.Errorf(err, "failed to initialize MinIO bucket")
		os.Exit(1)
	}
	minioCancel()

	imageRepo := s3Repo.NewImageRepo(minioClient, cfg.Minio)

	qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		logger.Errorf(err, "failed to initialize qdrant")
		os.Exit(1)
	}
	qdrantCtx, qdrantCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := clients.EnsureCollection(qdrantCtx, qdrantClient); err != nil {
		qdrantCancel()
		logger.Errorf(err, "failed to initialize qdrant")
		os.Exit(1)
	}
	qdrantCancel()
	cl.AddPlain(func() error {
		return qdrantClient.Client.Close()
	})

	embRepo := qdrantRepo.NewEmbeddingRepo(qdrantClient.Client, cfg.Qdrant)

	redisClient := clients.NewRedisClient(cfg.Redis)
	redisCtx, redisCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer redisCancel()
	if err := redisClient.Ping(redisCtx); err != nil {
		logger.Errorf(err, "failed to connect to redis")
		os.Exit(1)
	}
	cl.AddPlain(redisClient.Close)

	cacheRepo := redis.NewCacheRepo(redisClient, cfg.Redis, logger)

	indexCache := cache.NewIndexCache(cfg.Search.IndexTTL, cfg.Search.IndexTTLJitter, logger)

	searchUC := usecase.NewSearchUC(
		catalogRepo,
		embRepo,
		cacheRepo,
		indexCache,
		imageRepo,
		logger,
	)

	worker := kafka.NewInvalidationWorker(cfg.Kafka, indexCache, cacheRepo, logger)
	worker.Start(context.Background())
	logger.Infof("Kafka invalidation worker started for topic %s", cfg.Kafka.Topic)
	cl.AddPlain(func() error {
		if err := worker.Stop(); err != nil {
			return err
		}
		logger.Infof("Kafka invalidation worker stopped")
		return nil
	})

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, logger)
	router.Init(searchUC, cfg.Search)

	httpSrv := v1Http.NewServer(r, cfg.Http)
	cl.Add(func(ctx context.Context) error {
		if err := httpSrv.Stop(ctx); err != nil {
			return err
		}
		logger.Infof("HTTP server stopped")
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server started on port %s", cfg.Http.Port)
		if err := httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(err, "HTTP server failed: %v", err)
			errCh <- err
		}
	}()

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdown:
		logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := cl.Close(shutdownCtx); err != nil {
		logger.Errorf(err, "shutdown finished with errors")
		os.Exit(1)
	}

	logger.Infof("Application shutdown complete")
	if appErr != nil {
		os.Exit(1)
	}
}

func initPGDB(logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(cfg.Db)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		logger.Errorf(err, "failed to run migrations")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.Ping(); err != nil {
		logger.Errorf(err, "failed to ping database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
