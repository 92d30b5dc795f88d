package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Hasher produces 256-bit digests as lowercase hex strings.
// Signers, verifiers and tree builders that talk to each other must agree on one.
type Hasher interface {
	Name() string
	Hash(data []byte) string
}

const (
	HasherSHA256    = "sha256"
	HasherKeccak256 = "keccak256"
	HasherSHA3      = "sha3-256"
)

// DefaultHasher is SHA-256, the digest used by the reference client.
var DefaultHasher Hasher = SHA256Hasher{}

type SHA256Hasher struct{}

func (SHA256Hasher) Name() string { return HasherSHA256 }

func (SHA256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Keccak256Hasher uses legacy Keccak-256 so roots can be checked by EVM contracts.
type Keccak256Hasher struct{}

func (Keccak256Hasher) Name() string { return HasherKeccak256 }

func (Keccak256Hasher) Hash(data []byte) string {
	return hex.EncodeToString(ethcrypto.Keccak256(data))
}

type SHA3Hasher struct{}

func (SHA3Hasher) Name() string { return HasherSHA3 }

func (SHA3Hasher) Hash(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HasherByName resolves a configured hash function name. An empty name
// selects the default.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HasherSHA256:
		return SHA256Hasher{}, nil
	case HasherKeccak256, "keccak":
		return Keccak256Hasher{}, nil
	case HasherSHA3, "sha3":
		return SHA3Hasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash function: %s", name)
	}
}

// SupportedHashers lists the names accepted by HasherByName.
func SupportedHashers() []string {
	return []string{HasherSHA256, HasherKeccak256, HasherSHA3}
}
