// Package factory opens the persistence backend named in the configuration.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/config"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/badger"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/leveldb"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/memory"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/redis"
)

// NewPersistence opens the backend selected by cfg.PersistenceType.
// A nil logger discards backend logs.
func NewPersistence(cfg *config.Config, logger *zap.Logger) (persistence.IKeyPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("persistence config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.PersistenceType {
	case config.PersistenceMemory, "":
		logger.Sugar().Warnw("Using in-memory persistence, consumed keys are forgotten on exit")
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceBadger:
		return badger.NewBadgerPersistence(cfg.DataPath, logger)
	case config.PersistenceLevelDB:
		return leveldb.NewLevelDBPersistence(cfg.DataPath, logger)
	case config.PersistenceRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.PersistenceType)
	}
}
