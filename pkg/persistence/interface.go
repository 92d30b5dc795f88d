package persistence

import "github.com/Layr-Labs/lamport-merkle-go/pkg/types"

// IKeyPersistence defines the interface for persisting one-time key pairs and
// the signatures they produced. All implementations must be thread-safe.
//
// The interface supports:
// - Key pair management (save, load, list, delete)
// - One-time consumption tracking (MarkKeyUsed is the single place a key flips to used)
// - Signed message storage, one per consumed key
// - Lifecycle management (close, health check)
type IKeyPersistence interface {
	// Key Pair Management

	// SaveKeyPair persists a key pair record indexed by KeyID.
	// Overwrites any existing record with the same KeyID.
	SaveKeyPair(record *types.KeyPairRecord) error

	// LoadKeyPair retrieves a key pair record by KeyID.
	// Returns nil if the key doesn't exist, error only on storage failure.
	LoadKeyPair(keyID string) (*types.KeyPairRecord, error)

	// ListKeyPairs returns all key pair records sorted by CreatedAt, then KeyID.
	// Returns empty slice if none exist, error only on storage failure.
	ListKeyPairs() ([]*types.KeyPairRecord, error)

	// DeleteKeyPair removes a key pair record and its signed message.
	// Idempotent - returns nil if the key doesn't exist.
	DeleteKeyPair(keyID string) error

	// One-time consumption

	// MarkKeyUsed atomically flips a key to used.
	// Returns ErrKeyNotFound if the key doesn't exist and an error wrapping
	// lamport.ErrKeyAlreadyUsed if it was already consumed. Exactly one of
	// several concurrent callers for the same key succeeds.
	MarkKeyUsed(keyID string, usedAt int64) error

	// Signed Messages

	// SaveSignedMessage persists the signature produced by a key, indexed by KeyID.
	SaveSignedMessage(msg *types.SignedMessage) error

	// LoadSignedMessage retrieves the signed message for a key.
	// Returns nil if none exists, error only on storage failure.
	LoadSignedMessage(keyID string) (*types.SignedMessage, error)

	// Lifecycle Management

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
