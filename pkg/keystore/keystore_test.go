package keystore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/logger"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/memory"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

func newTestKeyStore(t *testing.T) (*KeyStore, persistence.IKeyPersistence) {
	t.Helper()

	l := logger.NewNopLogger()
	engine := lamport.NewEngine(&lamport.EngineConfig{Logger: l})
	store := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = store.Close() })

	clock := int64(1000)
	ks, err := NewKeyStore(&Config{
		Persistence: store,
		Generator:   localKeyGenerator.NewLocalKeyGenerator(engine, l),
		Engine:      engine,
		Logger:      l,
		Now: func() time.Time {
			clock++
			return time.Unix(clock, 0)
		},
	})
	require.NoError(t, err)
	return ks, store
}

func TestNewKeyStore_Validation(t *testing.T) {
	_, err := NewKeyStore(nil)
	require.Error(t, err)

	_, err = NewKeyStore(&Config{Persistence: memory.NewMemoryPersistence()})
	require.Error(t, err)

	keccak := lamport.NewEngine(&lamport.EngineConfig{Hasher: crypto.Keccak256Hasher{}})
	_, err = NewKeyStore(&Config{
		Persistence: memory.NewMemoryPersistence(),
		Generator:   localKeyGenerator.NewLocalKeyGenerator(nil, logger.NewNopLogger()),
		Engine:      keccak,
	})
	require.ErrorIs(t, err, ErrHasherMismatch)
}

func TestKeyStore_GenerateSignVerify(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	record, err := ks.Generate(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, record.Used)

	msg, err := ks.Sign(record.KeyID, "hello")
	require.NoError(t, err)
	assert.Equal(t, record.KeyID, msg.KeyID)
	assert.Equal(t, "hello", msg.Message)
	assert.Len(t, msg.Signature, lamport.KeyBits)
	assert.Equal(t, ks.Engine().Digest("hello"), msg.Digest)

	ok, err := ks.Verify(msg)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := msg.Copy()
	tampered.Message = "hellO"
	ok, err = ks.Verify(tampered)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := ks.GetSignedMessage(record.KeyID)
	require.NoError(t, err)
	assert.Equal(t, msg, stored)

	loaded, err := ks.GetKeyPair(record.KeyID)
	require.NoError(t, err)
	assert.True(t, loaded.Used)
	assert.NotZero(t, loaded.UsedAt)
}

func TestKeyStore_RefusesSecondSignature(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	record, err := ks.Generate(context.Background(), "once")
	require.NoError(t, err)

	_, err = ks.Sign(record.KeyID, "first")
	require.NoError(t, err)

	_, err = ks.Sign(record.KeyID, "second")
	require.ErrorIs(t, err, lamport.ErrKeyAlreadyUsed)

	// The stored signature is still the first one
	stored, err := ks.GetSignedMessage(record.KeyID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Message)
}

func TestKeyStore_UnknownKey(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	_, err := ks.Sign("missing", "m")
	require.ErrorIs(t, err, persistence.ErrKeyNotFound)

	_, err = ks.GetPublicKey("missing")
	require.ErrorIs(t, err, persistence.ErrKeyNotFound)
}

func TestKeyStore_NextUnused(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	_, err := ks.NextUnused()
	require.ErrorIs(t, err, ErrNoUnusedKeys)

	first, err := ks.Generate(context.Background(), "a")
	require.NoError(t, err)
	second, err := ks.Generate(context.Background(), "b")
	require.NoError(t, err)

	next, err := ks.NextUnused()
	require.NoError(t, err)
	assert.Equal(t, first.KeyID, next.KeyID)

	_, err = ks.Sign(first.KeyID, "m")
	require.NoError(t, err)

	next, err = ks.NextUnused()
	require.NoError(t, err)
	assert.Equal(t, second.KeyID, next.KeyID)
}

func TestKeyStore_SignWithNextKey(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	// Empty pool generates on demand
	msg, err := ks.SignWithNextKey(context.Background(), "auto")
	require.NoError(t, err)

	ok, err := ks.Verify(msg)
	require.NoError(t, err)
	assert.True(t, ok)

	records, err := ks.ListKeyPairs()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Used)
}

// racingPersistence lets another signer consume a key between the pool
// listing and the claim, the way a second process sharing the store would.
type racingPersistence struct {
	persistence.IKeyPersistence
	beforeList func(records []*types.KeyPairRecord)
}

func (r *racingPersistence) ListKeyPairs() ([]*types.KeyPairRecord, error) {
	records, err := r.IKeyPersistence.ListKeyPairs()
	if r.beforeList != nil {
		hook := r.beforeList
		r.beforeList = nil
		hook(records)
	}
	return records, err
}

func newKeyStoreOver(t *testing.T, store persistence.IKeyPersistence) *KeyStore {
	t.Helper()

	l := logger.NewNopLogger()
	engine := lamport.NewEngine(&lamport.EngineConfig{Logger: l})
	ks, err := NewKeyStore(&Config{
		Persistence: store,
		Generator:   localKeyGenerator.NewLocalKeyGenerator(engine, l),
		Engine:      engine,
		Logger:      l,
	})
	require.NoError(t, err)
	return ks
}

func TestKeyStore_SignWithNextKey_SharedPoolMovesOn(t *testing.T) {
	shared := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = shared.Close() })

	first := newKeyStoreOver(t, shared)
	racing := &racingPersistence{IKeyPersistence: shared}
	second := newKeyStoreOver(t, racing)

	for i := 0; i < 2; i++ {
		_, err := first.Generate(context.Background(), "pool")
		require.NoError(t, err)
	}

	// second sees both keys unused, then first consumes the one second is about to pick
	var taken, left string
	racing.beforeList = func(records []*types.KeyPairRecord) {
		require.Len(t, records, 2)
		taken, left = records[0].KeyID, records[1].KeyID
		_, err := first.Sign(taken, "first")
		require.NoError(t, err)
	}

	msg, err := second.SignWithNextKey(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, left, msg.KeyID)

	ok, err := second.Verify(msg)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := shared.LoadSignedMessage(taken)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Message)
}

func TestKeyStore_SignWithNextKey_CancelledContext(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ks.SignWithNextKey(ctx, "never")
	require.ErrorIs(t, err, context.Canceled)

	records, err := ks.ListKeyPairs()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestKeyStore_SignedMessageCarriesPublicKey(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	record, err := ks.Generate(context.Background(), "embedded")
	require.NoError(t, err)

	msg, err := ks.Sign(record.KeyID, "hello")
	require.NoError(t, err)
	assert.Equal(t, record.PublicKey, msg.PublicKey)

	pk, err := msg.LoadPublicKey()
	require.NoError(t, err)
	assert.True(t, ks.Engine().Verify(msg.Message, msg.LamportSignature(), pk))

	// an embedded key that disagrees with the stored one is rejected
	_, other, err := lamport.GenerateKeyPair()
	require.NoError(t, err)
	swapped := msg.Copy()
	swapped.PublicKey = other.Cells()
	ok, err := ks.Verify(swapped)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyStore_ConcurrentSignsNeverShareKeys(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	for i := 0; i < 4; i++ {
		_, err := ks.Generate(context.Background(), "pool")
		require.NoError(t, err)
	}

	const signers = 8
	var wg sync.WaitGroup
	results := make(chan string, signers)
	for i := 0; i < signers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := ks.SignWithNextKey(context.Background(), "concurrent")
			if err == nil {
				results <- msg.KeyID
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for keyID := range results {
		assert.False(t, seen[keyID], "key %s signed twice", keyID)
		seen[keyID] = true
	}
	assert.Len(t, seen, signers)
}

func TestKeyStore_DeleteKeyPair(t *testing.T) {
	ks, _ := newTestKeyStore(t)

	record, err := ks.Generate(context.Background(), "gone")
	require.NoError(t, err)
	require.NoError(t, ks.DeleteKeyPair(record.KeyID))

	loaded, err := ks.GetKeyPair(record.KeyID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
