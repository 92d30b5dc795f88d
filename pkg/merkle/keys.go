package merkle

import (
	"fmt"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
)

// DefaultKeyBatchSize is the number of leaves in a public key commitment
const DefaultKeyBatchSize = 512

// BuildPublicKeyTree commits to an ordered batch of Lamport public keys. Each
// leaf value is the canonical serialization from PublicKey.Bytes.
func (b *Builder) BuildPublicKeyTree(keys []*lamport.PublicKey) (*MerkleTree, error) {
	values := make([][]byte, len(keys))
	for i, pk := range keys {
		if pk == nil {
			return nil, fmt.Errorf("%w: public key %d is nil", ErrInvalidInput, i)
		}
		values[i] = pk.Bytes()
	}
	return b.Build(values)
}

// CommitPublicKey builds a tree of copies identical leaves of pk.
func (b *Builder) CommitPublicKey(pk *lamport.PublicKey, copies int) (*MerkleTree, error) {
	if copies <= 0 {
		return nil, ErrEmptyInput
	}
	keys := make([]*lamport.PublicKey, copies)
	for i := range keys {
		keys[i] = pk
	}
	return b.BuildPublicKeyTree(keys)
}

// BuildPublicKeyTree commits to keys with the default builder.
func BuildPublicKeyTree(keys []*lamport.PublicKey) (*MerkleTree, error) {
	return defaultBuilder.BuildPublicKeyTree(keys)
}
