// Package lamport implements Lamport one-time signatures over a 256-bit hash.
//
// Every private key cell is a hex-encoded 32-byte secret, and every public
// key cell is the hash of that hex text. Signing a message reveals, for each
// bit of the zero-padded message digest, the secret from row 0 or row 1 at
// that bit position. Verification hashes the revealed secrets and compares
// them with the selected public key cells.
//
// SECURITY: a private key must sign at most one message. Signing twice
// reveals secrets from both rows and allows forgeries, so Sign refuses a key
// that has already been used.
package lamport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/metrics"
)

// EngineConfig configures an Engine. Zero values select the defaults.
type EngineConfig struct {
	// Hasher defaults to SHA-256
	Hasher crypto.Hasher
	// Random defaults to crypto/rand.Reader
	Random  io.Reader
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Engine generates, signs and verifies with a fixed hash function.
type Engine struct {
	hasher  crypto.Hasher
	random  io.Reader
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine from cfg. A nil cfg yields the default engine.
func NewEngine(cfg *EngineConfig) *Engine {
	e := &Engine{
		hasher: crypto.DefaultHasher,
		random: rand.Reader,
		logger: zap.NewNop(),
	}
	if cfg == nil {
		return e
	}
	if cfg.Hasher != nil {
		e.hasher = cfg.Hasher
	}
	if cfg.Random != nil {
		e.random = cfg.Random
	}
	if cfg.Logger != nil {
		e.logger = cfg.Logger
	}
	e.metrics = cfg.Metrics
	return e
}

var defaultEngine = NewEngine(nil)

// GenerateKeyPair creates a fresh key pair with the default engine.
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	return defaultEngine.GenerateKeyPair()
}

// Sign signs message with sk using the default engine.
func Sign(message string, sk *PrivateKey) (Signature, error) {
	return defaultEngine.Sign(message, sk)
}

// Verify checks sig over message against pk using the default engine.
func Verify(message string, sig Signature, pk *PublicKey) bool {
	return defaultEngine.Verify(message, sig, pk)
}

// Hasher returns the hash function the engine was built with.
func (e *Engine) Hasher() crypto.Hasher {
	return e.hasher
}

// GenerateKeyPair fills all 512 private cells with independent 32-byte
// secrets and derives the public key cell by cell.
func (e *Engine) GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	start := time.Now()

	sk := &PrivateKey{}
	buf := make([]byte, SecretBytes)
	for i := 0; i < GridSize; i++ {
		if _, err := io.ReadFull(e.random, buf); err != nil {
			return nil, nil, fmt.Errorf("failed to read randomness for cell %d: %w", i, err)
		}
		sk.cells[i] = hex.EncodeToString(buf)
	}
	// don't leave the last secret lying around in the scratch buffer
	for i := range buf {
		buf[i] = 0
	}

	pk, err := e.PublicKey(sk)
	if err != nil {
		return nil, nil, err
	}

	e.metrics.KeyGenerated(start)
	e.logger.Debug("Generated Lamport key pair", zap.String("hasher", e.hasher.Name()))
	return sk, pk, nil
}

// PublicKey derives the public key of sk: every cell is the hash of the
// corresponding private cell's hex text.
func (e *Engine) PublicKey(sk *PrivateKey) (*PublicKey, error) {
	if !sk.populated() {
		return nil, ErrInvalidKeyShape
	}
	pk := &PublicKey{}
	for i, c := range sk.cells {
		pk.cells[i] = e.hasher.Hash([]byte(c))
	}
	return pk, nil
}

// Digest returns the zero-padded hex digest of message that Sign and Verify select keys with.
func (e *Engine) Digest(message string) string {
	return crypto.ZeroPad(e.hasher.Hash([]byte(message)))
}

// Sign reveals one secret per digest bit. It consumes sk: a second call on
// the same key returns ErrKeyAlreadyUsed.
func (e *Engine) Sign(message string, sk *PrivateKey) (Signature, error) {
	start := time.Now()

	if !sk.populated() {
		e.metrics.SignRejected("invalid_key")
		return nil, ErrInvalidKeyShape
	}
	if sk.used {
		e.metrics.SignRejected("already_used")
		e.logger.Warn("Refusing to sign with an already used Lamport key")
		return nil, ErrKeyAlreadyUsed
	}

	bits, err := crypto.ExpandDigest(e.Digest(message))
	if err != nil {
		// the hasher broke its contract, nothing the caller can fix
		return nil, fmt.Errorf("hash function %s returned a bad digest: %w", e.hasher.Name(), err)
	}

	sig := make(Signature, KeyBits)
	for i, bit := range bits {
		sig[i] = sk.cells[Index(int(bit), i)]
	}
	sk.used = true

	e.metrics.Signed(start)
	return sig, nil
}

// Verify recomputes the message digest, picks the public key cell for each
// bit and compares it with the hash of the matching signature element. It
// stops at the first mismatch. Malformed input is reported as false.
func (e *Engine) Verify(message string, sig Signature, pk *PublicKey) bool {
	start := time.Now()
	ok := e.verify(message, sig, pk)
	e.metrics.Verified(ok, start)
	return ok
}

func (e *Engine) verify(message string, sig Signature, pk *PublicKey) bool {
	if !pk.populated() {
		return false
	}
	if len(sig) != KeyBits {
		return false
	}

	digest := e.Digest(message)
	if len(digest) != crypto.DigestHexLen {
		return false
	}
	bits, err := crypto.ExpandDigest(digest)
	if err != nil {
		return false
	}

	for i, bit := range bits {
		if pk.cells[Index(int(bit), i)] != e.hasher.Hash([]byte(sig[i])) {
			return false
		}
	}
	return true
}
