// Package bootstrap assembles the local storage stack from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"famhub/internal/config"
	"famhub/internal/database"
	"famhub/internal/domain"
	"famhub/internal/queue"
	"famhub/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Storage is the key/value backend chosen by storage.driver. DB is set
// whenever a SQLite file is open, either as the store itself or as the
// redis fallback, so the backup service can copy it.
type Storage struct {
	KV     domain.KeyValueStore
	DB     *database.DB
	Driver string

	redis *redis.Client
}

func OpenStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Storage, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	switch cfg.Storage.Driver {
	case "", "sqlite":
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		return &Storage{KV: db, DB: db, Driver: "sqlite"}, nil
	case "memory":
		return &Storage{KV: repository.NewMemoryStorage(), Driver: "memory"}, nil
	case "redis":
		return openRedis(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// openRedis puts redis behind a failover store. The fallback is the SQLite
// file when database.path is set, otherwise process memory.
func openRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Storage, error) {
	st := &Storage{Driver: "redis"}

	var fallback domain.KeyValueStore
	if cfg.Database.Path != "" {
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		st.DB = db
		fallback = db
	} else {
		logger.Warn().Msg("no database path set, redis fallback is in-memory only")
		fallback = repository.NewMemoryStorage()
	}

	st.redis = repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, st.redis); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unavailable, starting on fallback storage")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisStorage(st.redis, cfg.Storage.KeyPrefix)
	st.KV = repository.NewFailoverStorage(primary, fallback, logger)
	return st, nil
}

// Close releases every connection opened by OpenStorage.
func (s *Storage) Close() error {
	var firstErr error
	if s.redis != nil {
		if err := repository.Close(s.redis); err != nil {
			firstErr = err
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewQueue builds the offline queue over the opened storage.
func NewQueue(st *Storage, cfg *config.Config) *queue.Store {
	return queue.NewStore(st.KV, queue.Options{
		Key:     cfg.Storage.QueueKey,
		MaxSize: cfg.Storage.MaxQueueSize,
	})
}
