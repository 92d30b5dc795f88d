package keystore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/internal/keyGenerator"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

var (
	// ErrNoUnusedKeys is returned when every stored key pair has been consumed
	ErrNoUnusedKeys = errors.New("no unused key pairs available")

	// ErrHasherMismatch is returned when a stored key was generated under a
	// different hash function than the keystore's engine
	ErrHasherMismatch = errors.New("key pair hash function does not match engine")
)

// maxClaimAttempts bounds how often SignWithNextKey moves on to the next key
// after another signer sharing the pool consumed the one it picked.
const maxClaimAttempts = 8

// Config wires a KeyStore to its collaborators.
type Config struct {
	Persistence persistence.IKeyPersistence
	Generator   keyGenerator.IKeyGenerator
	Engine      *lamport.Engine
	Logger      *zap.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

// KeyStore hands out one-time key pairs and makes sure each is consumed at
// most once. Consumption is recorded in persistence before any secret is
// revealed, so a crash between the two leaves the key burned, never reusable.
type KeyStore struct {
	mu sync.Mutex

	store     persistence.IKeyPersistence
	generator keyGenerator.IKeyGenerator
	engine    *lamport.Engine
	logger    *zap.Logger
	now       func() time.Time
}

// NewKeyStore creates a new key store
func NewKeyStore(cfg *Config) (*KeyStore, error) {
	if cfg == nil || cfg.Persistence == nil {
		return nil, fmt.Errorf("keystore requires a persistence layer")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("keystore requires a key generator")
	}

	ks := &KeyStore{
		store:     cfg.Persistence,
		generator: cfg.Generator,
		engine:    cfg.Engine,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if ks.engine == nil {
		ks.engine = lamport.NewEngine(nil)
	}
	if ks.logger == nil {
		ks.logger = zap.NewNop()
	}
	if ks.now == nil {
		ks.now = time.Now
	}

	if ks.engine.Hasher().Name() != cfg.Generator.HasherName() {
		return nil, fmt.Errorf("%w: generator uses %s, engine uses %s",
			ErrHasherMismatch, cfg.Generator.HasherName(), ks.engine.Hasher().Name())
	}
	return ks, nil
}

// Engine returns the engine signatures are produced and checked with.
func (ks *KeyStore) Engine() *lamport.Engine {
	return ks.engine
}

// Generate creates and stores a fresh unused key pair.
func (ks *KeyStore) Generate(ctx context.Context, keyName string) (*types.KeyPairRecord, error) {
	generated, err := ks.generator.GenerateKeyPair(ctx, keyName)
	if err != nil {
		return nil, err
	}

	record := types.NewKeyPairRecord(generated.KeyId, generated.Hasher, generated.PrivateKey, generated.PublicKey, ks.now().Unix())
	if err := ks.store.SaveKeyPair(record); err != nil {
		return nil, fmt.Errorf("failed to store key pair %s: %w", record.KeyID, err)
	}
	return record, nil
}

// GetKeyPair returns the stored record or nil if keyID is unknown.
func (ks *KeyStore) GetKeyPair(keyID string) (*types.KeyPairRecord, error) {
	return ks.store.LoadKeyPair(keyID)
}

// GetPublicKey loads the public key of keyID.
func (ks *KeyStore) GetPublicKey(keyID string) (*lamport.PublicKey, error) {
	record, err := ks.loadExisting(keyID)
	if err != nil {
		return nil, err
	}
	return record.LoadPublicKey()
}

// ListKeyPairs returns all stored key pairs, oldest first.
func (ks *KeyStore) ListKeyPairs() ([]*types.KeyPairRecord, error) {
	return ks.store.ListKeyPairs()
}

// NextUnused returns the oldest key pair that has not signed anything yet.
func (ks *KeyStore) NextUnused() (*types.KeyPairRecord, error) {
	records, err := ks.store.ListKeyPairs()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if !r.Used && r.Hasher == ks.engine.Hasher().Name() {
			return r, nil
		}
	}
	return nil, ErrNoUnusedKeys
}

// Sign consumes keyID and signs message with it. A key that already signed
// anything is refused with lamport.ErrKeyAlreadyUsed.
func (ks *KeyStore) Sign(keyID string, message string) (*types.SignedMessage, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	record, err := ks.loadExisting(keyID)
	if err != nil {
		return nil, err
	}
	msg, err := ks.signLocked(record, message)
	if errors.Is(err, lamport.ErrKeyAlreadyUsed) {
		ks.logger.Sugar().Warnw("Refusing to reuse a consumed one-time key", "key_id", keyID)
	}
	return msg, err
}

// SignWithNextKey signs message with the oldest unused key, generating a new
// key pair when the pool is empty. When another process sharing the pool
// consumes the picked key first, the next unused key is tried.
func (ks *KeyStore) SignWithNextKey(ctx context.Context, message string) (*types.SignedMessage, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := ks.NextUnused()
		if errors.Is(err, ErrNoUnusedKeys) {
			record, err = ks.Generate(ctx, "auto")
		}
		if err != nil {
			return nil, err
		}

		msg, err := ks.signLocked(record, message)
		if !errors.Is(err, lamport.ErrKeyAlreadyUsed) {
			return msg, err
		}
		ks.logger.Sugar().Debugw("Key consumed by another signer, trying the next one",
			"key_id", record.KeyID, "attempt", attempt)
	}
	return nil, fmt.Errorf("failed to claim an unused key after %d attempts: %w", maxClaimAttempts, lamport.ErrKeyAlreadyUsed)
}

func (ks *KeyStore) signLocked(record *types.KeyPairRecord, message string) (*types.SignedMessage, error) {
	if record.Hasher != ks.engine.Hasher().Name() {
		return nil, fmt.Errorf("%w: key %s uses %s", ErrHasherMismatch, record.KeyID, record.Hasher)
	}

	sk, err := record.LoadPrivateKey()
	if err != nil {
		return nil, err
	}

	signedAt := ks.now().Unix()
	if err := ks.store.MarkKeyUsed(record.KeyID, signedAt); err != nil {
		return nil, err
	}

	sig, err := ks.engine.Sign(message, sk)
	if err != nil {
		return nil, fmt.Errorf("failed to sign with key %s: %w", record.KeyID, err)
	}

	msg := &types.SignedMessage{
		KeyID:     record.KeyID,
		Message:   message,
		Digest:    ks.engine.Digest(message),
		Signature: sig,
		PublicKey: append([]string(nil), record.PublicKey...),
		SignedAt:  signedAt,
	}
	if err := ks.store.SaveSignedMessage(msg); err != nil {
		// the key is already burned; the caller still gets the signature
		ks.logger.Sugar().Errorw("Failed to persist signed message", "key_id", record.KeyID, "error", err)
	}

	ks.logger.Sugar().Infow("Signed message with one-time key", "key_id", record.KeyID)
	return msg, nil
}

// Verify checks msg against the stored public key of msg.KeyID. A message
// whose embedded public key differs from the stored one does not verify.
func (ks *KeyStore) Verify(msg *types.SignedMessage) (bool, error) {
	if msg == nil {
		return false, fmt.Errorf("cannot verify nil SignedMessage")
	}
	pk, err := ks.GetPublicKey(msg.KeyID)
	if err != nil {
		return false, err
	}
	if len(msg.PublicKey) > 0 && !slices.Equal(msg.PublicKey, pk.Cells()) {
		return false, nil
	}
	return ks.engine.Verify(msg.Message, msg.LamportSignature(), pk), nil
}

// GetSignedMessage returns what keyID signed, or nil if it has not signed.
func (ks *KeyStore) GetSignedMessage(keyID string) (*types.SignedMessage, error) {
	return ks.store.LoadSignedMessage(keyID)
}

// DeleteKeyPair removes a key pair and its signed message.
func (ks *KeyStore) DeleteKeyPair(keyID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	return ks.store.DeleteKeyPair(keyID)
}

func (ks *KeyStore) loadExisting(keyID string) (*types.KeyPairRecord, error) {
	record, err := ks.store.LoadKeyPair(keyID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", persistence.ErrKeyNotFound, keyID)
	}
	return record, nil
}
