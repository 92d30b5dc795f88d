package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

// BadgerPersistence is a durable, disk-based IKeyPersistence backed by Badger.
// Writes are synced so a consumed key stays consumed across crashes.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) a Badger database at dataPath.
// A background goroutine is started for value log garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newZapBadgerLogger(logger)
	opts.SyncWrites = true // fsync on every write
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(persistence.KeySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(persistence.KeySchemaVersion), []byte(persistence.CurrentSchemaVersion))
		}
		if err != nil {
			return errors.Wrap(err, "failed to read schema version")
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to read schema version value")
		}

		if existingVersion != persistence.CurrentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
		}
		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func keyPairKey(keyID string) []byte {
	return []byte(persistence.KeyPrefixKeyPair + keyID)
}

func signedMessageKey(keyID string) []byte {
	return []byte(persistence.KeyPrefixSignedMessage + keyID)
}

// getValue copies the value at key, returning nil when absent
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// SaveKeyPair persists a key pair record
func (b *BadgerPersistence) SaveKeyPair(record *types.KeyPairRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil KeyPairRecord")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalKeyPairRecord(record)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyPairKey(record.KeyID), data)
	})
	return errors.Wrapf(err, "failed to save key pair %s", record.KeyID)
}

// LoadKeyPair retrieves a key pair record
func (b *BadgerPersistence) LoadKeyPair(keyID string) (*types.KeyPairRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, keyPairKey(keyID))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load key pair %s", keyID)
	}
	if data == nil {
		return nil, nil // Not found
	}

	return persistence.UnmarshalKeyPairRecord(data)
}

// ListKeyPairs returns all key pair records sorted by creation time
func (b *BadgerPersistence) ListKeyPairs() ([]*types.KeyPairRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*types.KeyPairRecord, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(persistence.KeyPrefixKeyPair)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return errors.Wrap(err, "failed to read value")
			}

			record, err := persistence.UnmarshalKeyPairRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal KeyPairRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list key pairs")
	}

	persistence.SortKeyPairs(records)
	return records, nil
}

// DeleteKeyPair removes a key pair record and its signed message
func (b *BadgerPersistence) DeleteKeyPair(keyID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(keyPairKey(keyID)); err != nil {
			return err
		}
		return txn.Delete(signedMessageKey(keyID))
	})
	return errors.Wrapf(err, "failed to delete key pair %s", keyID)
}

// MarkKeyUsed consumes a key. The exclusive lock serializes consumers so
// badger never has to report a transaction conflict.
func (b *BadgerPersistence) MarkKeyUsed(keyID string, usedAt int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		data, err := getValue(txn, keyPairKey(keyID))
		if err != nil {
			return errors.Wrapf(err, "failed to load key pair %s", keyID)
		}

		var record *types.KeyPairRecord
		if data != nil {
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
		return txn.Set(keyPairKey(keyID), updated)
	})
}

// SaveSignedMessage persists a signed message
func (b *BadgerPersistence) SaveSignedMessage(msg *types.SignedMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil SignedMessage")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalSignedMessage(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal SignedMessage")
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(signedMessageKey(msg.KeyID), data)
	})
	return errors.Wrapf(err, "failed to save signed message for key %s", msg.KeyID)
}

// LoadSignedMessage retrieves a signed message
func (b *BadgerPersistence) LoadSignedMessage(keyID string) (*types.SignedMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		data, err = getValue(txn, signedMessageKey(keyID))
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load signed message for key %s", keyID)
	}
	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalSignedMessage(data)
}

// Close stops GC and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(persistence.KeySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}

var _ persistence.IKeyPersistence = (*BadgerPersistence)(nil)
