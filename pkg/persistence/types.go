package persistence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

const (
	// Key prefixes shared by the key-value backends
	KeyPrefixKeyPair       = "keypair:"
	KeyPrefixSignedMessage = "signature:"
	KeySchemaVersion       = "metadata:schema_version"
	CurrentSchemaVersion   = "v1"
)

var (
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("persistence layer is closed")

	// ErrKeyNotFound is returned by MarkKeyUsed for an unknown key
	ErrKeyNotFound = errors.New("key pair not found")
)

// AlreadyUsedError reports a second consumption attempt for keyID.
func AlreadyUsedError(keyID string) error {
	return fmt.Errorf("key %s: %w", keyID, lamport.ErrKeyAlreadyUsed)
}

// SortKeyPairs orders records by CreatedAt then KeyID, in place.
func SortKeyPairs(records []*types.KeyPairRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].KeyID < records[j].KeyID
	})
}

// ConsumeKeyPair applies the MarkKeyUsed transition to a loaded record.
// Backends call it inside their own atomic section.
func ConsumeKeyPair(record *types.KeyPairRecord, keyID string, usedAt int64) error {
	if record == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if record.Used {
		return AlreadyUsedError(keyID)
	}
	record.Used = true
	record.UsedAt = usedAt
	return nil
}
