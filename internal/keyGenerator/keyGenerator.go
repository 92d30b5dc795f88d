package keyGenerator

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
)

// GeneratedKeyPair is a freshly generated, unused one-time key pair.
type GeneratedKeyPair struct {
	KeyId      string
	KeyName    string
	Hasher     string
	PrivateKey *lamport.PrivateKey
	PublicKey  *lamport.PublicKey
}

func (g *GeneratedKeyPair) GetPublicKeyBytes() ([]byte, error) {
	if g.PublicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return g.PublicKey.Bytes(), nil
}

// GetFingerprintHex returns the 0x-prefixed hash of the serialized public
// key under the pair's hash function. It identifies the key in logs and CLI
// output without printing all 512 cells.
func (g *GeneratedKeyPair) GetFingerprintHex() (string, error) {
	pubKeyBytes, err := g.GetPublicKeyBytes()
	if err != nil {
		return "", fmt.Errorf("failed to get public key bytes: %w", err)
	}
	h, err := crypto.HasherByName(g.Hasher)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(h.Hash(pubKeyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to decode fingerprint: %w", err)
	}
	return hexutil.Encode(raw), nil
}

type IKeyGenerator interface {
	GenerateKeyPair(ctx context.Context, keyName string) (*GeneratedKeyPair, error)
	HasherName() string
}
