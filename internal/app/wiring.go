// Package app assembles the booking service from configuration. It is shared
// by the api-server, reminder-worker and seed binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-appointment-booking/internal/booking"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
)

// Store is the configured booking repository plus the handles needed to
// check and close it.
type Store struct {
	Driver string
	Repo   booking.Repository
	Pool   *pgxpool.Pool // postgres only

	mongo *mongo.Client
}

func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Driver: cfg.StoreDriver, Repo: booking.NewPgRepository(pool), Pool: pool}, nil

	case config.StoreMongo:
		client, database, err := db.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		repo := booking.NewMongoRepository(database)
		if err := repo.EnsureIndexes(connectCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("connected to mongo", zap.String("database", cfg.MongoDatabase))
		return &Store{Driver: cfg.StoreDriver, Repo: repo, mongo: client}, nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Store{Driver: cfg.StoreDriver, Repo: booking.NewMemoryRepository()}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Migrate applies pending SQL migrations. Only postgres has any.
func (s *Store) Migrate(ctx context.Context, logger *zap.Logger) error {
	if s.Pool == nil {
		return nil
	}
	m, err := db.NewMigrator(s.Pool, logger)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.Repo.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.mongo != nil {
		_ = s.mongo.Disconnect(context.Background())
	}
}

// OpenLocker returns a Redis slot locker, or a no-op locker when Redis is
// not configured. The returned client is nil in the latter case.
func OpenLocker(cfg config.Config, logger *zap.Logger) (redisclient.Locker, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, slot locking relies on the store's unique index only")
		return redisclient.NopLocker{}, nil, nil
	}
	rdb, err := redisclient.NewRedisClient(context.Background(), redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
		Timeout:  cfg.RedisTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL), rdb, nil
}

type Notifier interface {
	booking.Notifier
	Close() error
}

// OpenNotifier publishes to Kafka when brokers are configured and logs otherwise.
func OpenNotifier(cfg config.Config, logger *zap.Logger) Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLogNotifier(logger.Named("notify"))
	}
	logger.Info("publishing notifications to kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
	)
	return notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Named("notify"))
}
