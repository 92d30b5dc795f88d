package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

const (
	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetKeyPairs = "keypairs:index"

	// maxConsumeRetries bounds optimistic retries when another client races MarkKeyUsed
	maxConsumeRetries = 10

	defaultKeyNamespace = "lamport:"
)

// RedisPersistence stores key pairs in Redis, suitable for several signer
// processes sharing one key pool. MarkKeyUsed is atomic across clients.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	timeout   time.Duration
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix namespaces every key, e.g. "signer-a:" gives "signer-a:keypair:<id>".
	// Defaults to "lamport:".
	KeyPrefix string
	// OpTimeout bounds each operation. Defaults to 5s.
	OpTimeout time.Duration
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyNamespace
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: prefix,
		timeout:   timeout,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", prefix)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) keyPairKey(keyID string) string {
	return r.prefixKey(persistence.KeyPrefixKeyPair + keyID)
}

func (r *RedisPersistence) signedMessageKey(keyID string) string {
	return r.prefixKey(persistence.KeyPrefixSignedMessage + keyID)
}

func (r *RedisPersistence) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(persistence.KeySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, persistence.CurrentSchemaVersion, 0).Err()
	}
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	if existingVersion != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
	}
	return nil
}

// SaveKeyPair persists a key pair record and indexes its id
func (r *RedisPersistence) SaveKeyPair(record *types.KeyPairRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil KeyPairRecord")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalKeyPairRecord(record)
	if err != nil {
		return err
	}

	ctx, cancel := r.opContext()
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keyPairKey(record.KeyID), data, 0)
		pipe.SAdd(ctx, r.prefixKey(keySetKeyPairs), record.KeyID)
		return nil
	})
	return errors.Wrapf(err, "failed to save key pair %s", record.KeyID)
}

// LoadKeyPair retrieves a key pair record
func (r *RedisPersistence) LoadKeyPair(keyID string) (*types.KeyPairRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	data, err := r.client.Get(ctx, r.keyPairKey(keyID)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load key pair %s", keyID)
	}

	return persistence.UnmarshalKeyPairRecord(data)
}

// ListKeyPairs returns all key pair records sorted by creation time
func (r *RedisPersistence) ListKeyPairs() ([]*types.KeyPairRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	indexKey := r.prefixKey(keySetKeyPairs)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list key pair ids")
	}

	records := make([]*types.KeyPairRecord, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.keyPairKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch key pairs")
	}

	for i, val := range values {
		if val == nil {
			// Key was in index but doesn't exist - clean up index
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for KeyPairRecord", "key", keys[i])
			continue
		}

		record, err := persistence.UnmarshalKeyPairRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal KeyPairRecord, skipping", "key", keys[i], "error", err)
			continue
		}
		records = append(records, record)
	}

	persistence.SortKeyPairs(records)
	return records, nil
}

// DeleteKeyPair removes a key pair, its signed message and its index entry
func (r *RedisPersistence) DeleteKeyPair(keyID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.keyPairKey(keyID), r.signedMessageKey(keyID))
		pipe.SRem(ctx, r.prefixKey(keySetKeyPairs), keyID)
		return nil
	})
	return errors.Wrapf(err, "failed to delete key pair %s", keyID)
}

// MarkKeyUsed consumes a key with an optimistic WATCH/MULTI transaction so
// that two processes sharing the database can never both consume it.
func (r *RedisPersistence) MarkKeyUsed(keyID string, usedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	key := r.keyPairKey(keyID)
	consume := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		var record *types.KeyPairRecord
		switch {
		case err == redis.Nil:
		case err != nil:
			return errors.Wrapf(err, "failed to load key pair %s", keyID)
		default:
			if record, err = persistence.UnmarshalKeyPairRecord(data); err != nil {
				return err
			}
		}

		if err := persistence.ConsumeKeyPair(record, keyID, usedAt); err != nil {
			return err
		}

		updated, err := persistence.MarshalKeyPairRecord(record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxConsumeRetries; attempt++ {
		err := r.client.Watch(ctx, consume, key)
		if err != redis.TxFailedErr {
			return err
		}
		r.logger.Sugar().Debugw("MarkKeyUsed lost a race, retrying", "key_id", keyID, "attempt", attempt+1)
	}
	return fmt.Errorf("failed to mark key %s used after %d attempts", keyID, maxConsumeRetries)
}

// SaveSignedMessage persists a signed message
func (r *RedisPersistence) SaveSignedMessage(msg *types.SignedMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil SignedMessage")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalSignedMessage(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal SignedMessage")
	}

	ctx, cancel := r.opContext()
	defer cancel()

	err = r.client.Set(ctx, r.signedMessageKey(msg.KeyID), data, 0).Err()
	return errors.Wrapf(err, "failed to save signed message for key %s", msg.KeyID)
}

// LoadSignedMessage retrieves a signed message
func (r *RedisPersistence) LoadSignedMessage(keyID string) (*types.SignedMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	data, err := r.client.Get(ctx, r.signedMessageKey(keyID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load signed message for key %s", keyID)
	}

	return persistence.UnmarshalSignedMessage(data)
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil // Already closed, idempotent
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies Redis is reachable
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

var _ persistence.IKeyPersistence = (*RedisPersistence)(nil)
