// Package leveldb stores one-time key pairs in an embedded LevelDB database.
package leveldb

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

var syncWrite = &opt.WriteOptions{Sync: true}

// LevelDBPersistence implements IKeyPersistence on goleveldb.
type LevelDBPersistence struct {
	db     *leveldb.DB
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewLevelDBPersistence opens (or creates) a LevelDB database at dataPath.
func NewLevelDBPersistence(dataPath string, logger *zap.Logger) (*LevelDBPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	db, err := leveldb.OpenFile(absPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb database at %s: %w", absPath, err)
	}

	lp := &LevelDBPersistence{db: db, logger: logger}
	if err := lp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("LevelDB persistence initialized", "path", absPath)
	return lp, nil
}

func (l *LevelDBPersistence) initSchema() error {
	existing, err := l.db.Get([]byte(persistence.KeySchemaVersion), nil)
	if err == leveldb.ErrNotFound {
		return l.db.Put([]byte(persistence.KeySchemaVersion), []byte(persistence.CurrentSchemaVersion), syncWrite)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}
	if string(existing) != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, persistence.CurrentSchemaVersion)
	}
	return nil
}

func keyPairKey(keyID string) []byte {
	return []byte(persistence.KeyPrefixKeyPair + keyID)
}

func signedMessageKey(keyID string) []byte {
	return []byte(persistence.KeyPrefixSignedMessage + keyID)
}

// get returns nil, nil for a missing key
func (l *LevelDBPersistence) get(key []byte) ([]byte, error) {
	data, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return data, err
}

func (l *LevelDBPersistence) SaveKeyPair(record *types.KeyPairRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil KeyPairRecord")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalKeyPairRecord(record)
	if err != nil {
		return err
	}
	return errors.Wrapf(l.db.Put(keyPairKey(record.KeyID), data, syncWrite), "failed to save key pair %s", record.KeyID)
}

func (l *LevelDBPersistence) LoadKeyPair(keyID string) (*types.KeyPairRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	data, err := l.get(keyPairKey(keyID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load key pair %s", keyID)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalKeyPairRecord(data)
}

func (l *LevelDBPersistence) ListKeyPairs() ([]*types.KeyPairRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*types.KeyPairRecord, 0)

	iter := l.db.NewIterator(util.BytesPrefix([]byte(persistence.KeyPrefixKeyPair)), nil)
	for iter.Next() {
		record, err := persistence.UnmarshalKeyPairRecord(iter.Value())
		if err != nil {
			l.logger.Sugar().Warnw("Failed to unmarshal KeyPairRecord, skipping",
				"key", string(iter.Key()), "error", err)
			continue
		}
		records = append(records, record)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to list key pairs")
	}

	persistence.SortKeyPairs(records)
	return records, nil
}

func (l *LevelDBPersistence) DeleteKeyPair(keyID string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	batch := new(leveldb.Batch)
	batch.Delete(keyPairKey(keyID))
	batch.Delete(signedMessageKey(keyID))
	return errors.Wrapf(l.db.Write(batch, syncWrite), "failed to delete key pair %s", keyID)
}

// MarkKeyUsed consumes a key. LevelDB has no read-modify-write transaction,
// so the exclusive lock is what makes this atomic within the process.
func (l *LevelDBPersistence) MarkKeyUsed(keyID string, usedAt int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return persistence.ErrClosed
	}

	data, err := l.get(keyPairKey(keyID))
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
	return errors.Wrapf(l.db.Put(keyPairKey(keyID), updated, syncWrite), "failed to mark key pair %s used", keyID)
}

func (l *LevelDBPersistence) SaveSignedMessage(msg *types.SignedMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil SignedMessage")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalSignedMessage(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal SignedMessage")
	}
	return errors.Wrapf(l.db.Put(signedMessageKey(msg.KeyID), data, syncWrite), "failed to save signed message for key %s", msg.KeyID)
}

func (l *LevelDBPersistence) LoadSignedMessage(keyID string) (*types.SignedMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, persistence.ErrClosed
	}

	data, err := l.get(signedMessageKey(keyID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load signed message for key %s", keyID)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalSignedMessage(data)
}

func (l *LevelDBPersistence) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("failed to close leveldb database: %w", err)
	}
	l.logger.Sugar().Info("LevelDB persistence closed")
	return nil
}

func (l *LevelDBPersistence) HealthCheck() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return persistence.ErrClosed
	}

	ok, err := l.db.Has([]byte(persistence.KeySchemaVersion), nil)
	if err != nil {
		return errors.Wrap(err, "leveldb health check failed")
	}
	if !ok {
		return fmt.Errorf("schema version not found - database may be corrupted")
	}
	return nil
}

var _ persistence.IKeyPersistence = (*LevelDBPersistence)(nil)
