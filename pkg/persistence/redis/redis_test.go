package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/logger"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/persistencetest"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not available. Every call gets its
// own key prefix so tests never see each other's keys.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	testLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "lamport-test:" + uuid.NewString() + ":",
	}

	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	t.Cleanup(func() { cleanupRedis(t, cfg) })
	return rp
}

// cleanupRedis removes every key under the test prefix
func cleanupRedis(t *testing.T, cfg *RedisConfig) {
	t.Helper()

	testLogger := logger.NewNopLogger()
	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		return
	}
	defer func() { _ = rp.Close() }()

	ctx := context.Background()
	iter := rp.client.Scan(ctx, 0, cfg.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rp.client.Del(ctx, iter.Val())
	}
}

func TestRedisPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.IKeyPersistence {
		return requireRedis(t)
	})
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	testLogger := logger.NewNopLogger()

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address cannot be empty")
}

func TestRedisPersistence_SharedPoolAcrossClients(t *testing.T) {
	first := requireRedis(t)
	defer func() { _ = first.Close() }()

	second, err := NewRedisPersistence(&RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15,
		KeyPrefix: first.keyPrefix,
	}, logger.NewNopLogger())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	require.NoError(t, first.SaveKeyPair(persistencetest.NewTestRecord(t, "shared-key", 1)))

	require.NoError(t, second.MarkKeyUsed("shared-key", 2))
	err = first.MarkKeyUsed("shared-key", 3)
	require.ErrorIs(t, err, lamport.ErrKeyAlreadyUsed)
}
