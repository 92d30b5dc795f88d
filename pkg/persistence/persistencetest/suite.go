// Package persistencetest holds the behavioral tests every IKeyPersistence
// backend must pass.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

// Factory opens a fresh, empty backend for one subtest.
type Factory func(t *testing.T) persistence.IKeyPersistence

// NewTestRecord creates a record holding a real key pair.
func NewTestRecord(t *testing.T, keyID string, createdAt int64) *types.KeyPairRecord {
	t.Helper()
	sk, pk, err := lamport.GenerateKeyPair()
	require.NoError(t, err)
	return types.NewKeyPairRecord(keyID, "sha256", sk, pk, createdAt)
}

// Run executes the conformance suite against backends produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("SaveAndLoadKeyPair", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		record := NewTestRecord(t, "key-save-load", 1234567890)
		require.NoError(t, p.SaveKeyPair(record))

		loaded, err := p.LoadKeyPair(record.KeyID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, record, loaded)
	})

	t.Run("LoadKeyPair_NotFound", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		loaded, err := p.LoadKeyPair("does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveKeyPair_Nil", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		err := p.SaveKeyPair(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil KeyPairRecord")
	})

	t.Run("LoadedRecordIsIsolated", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		record := NewTestRecord(t, "key-isolated", 1)
		require.NoError(t, p.SaveKeyPair(record))
		record.PrivateKey[0] = "mutated after save"

		loaded, err := p.LoadKeyPair("key-isolated")
		require.NoError(t, err)
		assert.NotEqual(t, "mutated after save", loaded.PrivateKey[0])
	})

	t.Run("ListKeyPairs_Sorted", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		empty, err := p.ListKeyPairs()
		require.NoError(t, err)
		assert.Empty(t, empty)

		for i, created := range []int64{30, 10, 20} {
			require.NoError(t, p.SaveKeyPair(NewTestRecord(t, fmt.Sprintf("key-%d", i), created)))
		}

		records, err := p.ListKeyPairs()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, int64(10), records[0].CreatedAt)
		assert.Equal(t, int64(20), records[1].CreatedAt)
		assert.Equal(t, int64(30), records[2].CreatedAt)
	})

	t.Run("DeleteKeyPair", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		record := NewTestRecord(t, "key-delete", 1)
		require.NoError(t, p.SaveKeyPair(record))
		require.NoError(t, p.SaveSignedMessage(&types.SignedMessage{KeyID: "key-delete", Message: "m"}))

		require.NoError(t, p.DeleteKeyPair("key-delete"))

		loaded, err := p.LoadKeyPair("key-delete")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		msg, err := p.LoadSignedMessage("key-delete")
		require.NoError(t, err)
		assert.Nil(t, msg)

		// Idempotent
		require.NoError(t, p.DeleteKeyPair("key-delete"))
	})

	t.Run("MarkKeyUsed", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		require.NoError(t, p.SaveKeyPair(NewTestRecord(t, "key-used", 1)))
		require.NoError(t, p.MarkKeyUsed("key-used", 99))

		loaded, err := p.LoadKeyPair("key-used")
		require.NoError(t, err)
		assert.True(t, loaded.Used)
		assert.Equal(t, int64(99), loaded.UsedAt)

		err = p.MarkKeyUsed("key-used", 100)
		require.ErrorIs(t, err, lamport.ErrKeyAlreadyUsed)

		err = p.MarkKeyUsed("unknown-key", 1)
		require.ErrorIs(t, err, persistence.ErrKeyNotFound)
	})

	t.Run("MarkKeyUsed_Concurrent", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		require.NoError(t, p.SaveKeyPair(NewTestRecord(t, "key-race", 1)))

		const workers = 10
		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := p.MarkKeyUsed("key-race", int64(i+1)); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes, "exactly one caller may consume a key")
	})

	t.Run("SaveAndLoadSignedMessage", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		msg := &types.SignedMessage{
			KeyID:     "key-msg",
			Message:   "hello",
			Digest:    "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
			Signature: []string{"00", "11"},
			SignedAt:  5,
		}
		require.NoError(t, p.SaveSignedMessage(msg))

		loaded, err := p.LoadSignedMessage("key-msg")
		require.NoError(t, err)
		assert.Equal(t, msg, loaded)

		missing, err := p.LoadSignedMessage("nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.Error(t, p.SaveSignedMessage(nil))
	})

	t.Run("HealthCheck", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		require.NoError(t, p.HealthCheck())
	})

	t.Run("OperationsAfterClose", func(t *testing.T) {
		p := open(t)
		require.NoError(t, p.Close())

		// Idempotent close
		require.NoError(t, p.Close())

		require.Error(t, p.SaveKeyPair(NewTestRecord(t, "late", 1)))
		_, err := p.LoadKeyPair("late")
		require.Error(t, err)
		_, err = p.ListKeyPairs()
		require.Error(t, err)
		require.Error(t, p.MarkKeyUsed("late", 1))
		require.Error(t, p.HealthCheck())
	})
}
