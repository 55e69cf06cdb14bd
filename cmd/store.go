package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/resqlink/internal/config"
	"github.com/shenikar/resqlink/internal/repository"
	"github.com/shenikar/resqlink/internal/service"
	mongoclient "github.com/shenikar/resqlink/pkg/mongo"
	"github.com/shenikar/resqlink/pkg/postgres"
	redisclient "github.com/shenikar/resqlink/pkg/redis"
	"github.com/sirupsen/logrus"
)

// store - выбранное хранилище и функция освобождения его ресурсов.
// pool заполнен только для postgres, по нему собирается статистика пула.
type store struct {
	repo  service.IncidentRepository
	pool  *pgxpool.Pool
	close func()
}

func (s *store) Close() {
	if s.close != nil {
		s.close()
	}
}

// openStore подключает хранилище по STORE_DRIVER
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*store, error) {
	log := logger.WithField("driver", cfg.StoreDriver)

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info("Successfully connected to PostgreSQL")
		return &store{
			repo:  repository.NewIncidentRepository(dbpool),
			pool:  dbpool,
			close: dbpool.Close,
		}, nil

	case config.DriverMongo:
		client, err := mongoclient.NewMongoClient(ctx, cfg.MongoURI, cfg.StoreTimeout)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMongoIncidentRepository(client, cfg.MongoDatabase)

		indexCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := repo.EnsureIndexes(indexCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("failed to create MongoDB indexes: %w", err)
		}
		log.Info("Successfully connected to MongoDB")
		return &store{
			repo: repo,
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.WithError(err).Warn("Failed to disconnect from MongoDB")
				}
			},
		}, nil

	case config.DriverMemory:
		log.Warn("Using in-memory store, incidents are lost on restart")
		return &store{repo: repository.NewMemoryIncidentRepository()}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// connectRedis возвращает nil, если Redis выключен или недоступен
func connectRedis(ctx context.Context, cfg *config.Config, log *logrus.Logger) *redis.Client {
	if !cfg.RedisEnabled {
		log.Info("Redis disabled, running without cache")
		return nil
	}
	client, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, running without cache")
		return nil
	}
	log.Info("Successfully connected to Redis")
	return client
}
