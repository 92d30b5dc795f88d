package lamport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
)

const (
	// Rows is the number of secret rows: row 0 signs a 0 bit, row 1 signs a 1 bit
	Rows = 2

	// KeyBits is the number of digest bits a key pair can sign
	KeyBits = crypto.DigestBits

	// GridSize is the number of cells in a private or public key
	GridSize = Rows * KeyBits

	// SecretBytes is the amount of randomness in each private key cell
	SecretBytes = 32
)

var (
	// ErrInvalidKeyShape is returned when a key grid is not a fully populated 2x256 grid
	ErrInvalidKeyShape = errors.New("lamport: invalid key shape")

	// ErrKeyAlreadyUsed is returned when a private key that already produced a signature is asked to sign again
	ErrKeyAlreadyUsed = errors.New("lamport: key already used (one-time property violated)")
)

// Index maps a (row, bitIndex) grid address onto the flat cell array.
func Index(row, bit int) int {
	return row*KeyBits + bit
}

// PrivateKey is a 2x256 grid of hex-encoded 256-bit secrets stored as a flat
// array. It may sign exactly one message; the used flag is set by the first
// successful Sign. A PrivateKey must be owned by a single signer.
type PrivateKey struct {
	cells [GridSize]string
	used  bool
}

// PublicKey holds the hash of every PrivateKey cell at the same address.
type PublicKey struct {
	cells [GridSize]string
}

// Signature is the ordered list of 256 revealed secrets, one per digest bit.
type Signature []string

// NewPrivateKeyFromHex loads a private key from its 512 cells in flat order
// (row 0 then row 1). used restores the one-time flag of a persisted key.
func NewPrivateKeyFromHex(cells []string, used bool) (*PrivateKey, error) {
	if len(cells) != GridSize {
		return nil, fmt.Errorf("%w: expected %d cells, got %d", ErrInvalidKeyShape, GridSize, len(cells))
	}
	sk := &PrivateKey{used: used}
	for i, c := range cells {
		if err := validateCell(c); err != nil {
			return nil, fmt.Errorf("private key cell %d: %w", i, err)
		}
		sk.cells[i] = c
	}
	return sk, nil
}

// NewPublicKeyFromHex loads a public key from its 512 digests in flat order.
func NewPublicKeyFromHex(cells []string) (*PublicKey, error) {
	if len(cells) != GridSize {
		return nil, fmt.Errorf("%w: expected %d cells, got %d", ErrInvalidKeyShape, GridSize, len(cells))
	}
	pk := &PublicKey{}
	for i, c := range cells {
		if err := validateCell(c); err != nil {
			return nil, fmt.Errorf("public key cell %d: %w", i, err)
		}
		pk.cells[i] = c
	}
	return pk, nil
}

// cells are compared and hashed as text, so only the canonical lowercase form is accepted
func validateCell(c string) error {
	if err := crypto.ValidateDigest(c); err != nil {
		return err
	}
	if strings.ToLower(c) != c {
		return fmt.Errorf("%w: digest must be lowercase", crypto.ErrMalformedDigest)
	}
	return nil
}

// Cell returns the secret at (row, bit).
func (sk *PrivateKey) Cell(row, bit int) string {
	return sk.cells[Index(row, bit)]
}

// Cells returns a copy of the flat cell array.
func (sk *PrivateKey) Cells() []string {
	out := make([]string, GridSize)
	copy(out, sk.cells[:])
	return out
}

// Used reports whether the key has already produced a signature.
func (sk *PrivateKey) Used() bool {
	return sk.used
}

// Clone returns an independent copy including the used flag.
func (sk *PrivateKey) Clone() *PrivateKey {
	c := *sk
	return &c
}

func (sk *PrivateKey) populated() bool {
	if sk == nil {
		return false
	}
	for _, c := range sk.cells {
		if c == "" {
			return false
		}
	}
	return true
}

// Cell returns the digest at (row, bit).
func (pk *PublicKey) Cell(row, bit int) string {
	return pk.cells[Index(row, bit)]
}

// Cells returns a copy of the flat digest array.
func (pk *PublicKey) Cells() []string {
	out := make([]string, GridSize)
	copy(out, pk.cells[:])
	return out
}

// Bytes is the canonical serialization used as a merkle leaf value: the hex
// digests of row 0 followed by row 1, concatenated as text.
func (pk *PublicKey) Bytes() []byte {
	out := make([]byte, 0, GridSize*crypto.DigestHexLen)
	for _, c := range pk.cells {
		out = append(out, c...)
	}
	return out
}

func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	return pk.cells == other.cells
}

func (pk *PublicKey) populated() bool {
	if pk == nil {
		return false
	}
	for _, c := range pk.cells {
		if c == "" {
			return false
		}
	}
	return true
}
