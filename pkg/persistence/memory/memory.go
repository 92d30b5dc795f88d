package memory

import (
	"fmt"
	"sync"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

// MemoryPersistence is an in-memory implementation of IKeyPersistence.
// This implementation is intended for TESTING and one-shot CLI runs.
//
// All data is stored in memory and will be lost when the process exits, so
// the one-time guarantee only holds for the lifetime of the process.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// keyID -> KeyPairRecord
	keyPairs map[string]*types.KeyPairRecord

	// keyID -> SignedMessage
	signatures map[string]*types.SignedMessage

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		keyPairs:   make(map[string]*types.KeyPairRecord),
		signatures: make(map[string]*types.SignedMessage),
	}
}

// SaveKeyPair persists a key pair record.
func (m *MemoryPersistence) SaveKeyPair(record *types.KeyPairRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil KeyPairRecord")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.keyPairs[record.KeyID] = record.Copy()
	return nil
}

// LoadKeyPair retrieves a key pair record by ID.
func (m *MemoryPersistence) LoadKeyPair(keyID string) (*types.KeyPairRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	record, exists := m.keyPairs[keyID]
	if !exists {
		return nil, nil // Not found is not an error
	}
	return record.Copy(), nil
}

// ListKeyPairs returns all key pair records sorted by creation time.
func (m *MemoryPersistence) ListKeyPairs() ([]*types.KeyPairRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.KeyPairRecord, 0, len(m.keyPairs))
	for _, record := range m.keyPairs {
		result = append(result, record.Copy())
	}
	persistence.SortKeyPairs(result)
	return result, nil
}

// DeleteKeyPair removes a key pair record and its signed message.
func (m *MemoryPersistence) DeleteKeyPair(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.keyPairs, keyID)
	delete(m.signatures, keyID)
	return nil
}

// MarkKeyUsed flips a key to used under the write lock.
func (m *MemoryPersistence) MarkKeyUsed(keyID string, usedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	return persistence.ConsumeKeyPair(m.keyPairs[keyID], keyID, usedAt)
}

// SaveSignedMessage persists a signed message.
func (m *MemoryPersistence) SaveSignedMessage(msg *types.SignedMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil SignedMessage")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.signatures[msg.KeyID] = msg.Copy()
	return nil
}

// LoadSignedMessage retrieves the signed message for a key.
func (m *MemoryPersistence) LoadSignedMessage(keyID string) (*types.SignedMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	msg, exists := m.signatures[keyID]
	if !exists {
		return nil, nil
	}
	return msg.Copy(), nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck always succeeds while open.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

var _ persistence.IKeyPersistence = (*MemoryPersistence)(nil)
