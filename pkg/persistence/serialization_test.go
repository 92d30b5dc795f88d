package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

// TestMarshalUnmarshalKeyPairRecord_RoundTrip tests JSON marshaling/unmarshaling
func TestMarshalUnmarshalKeyPairRecord_RoundTrip(t *testing.T) {
	sk, pk, err := lamport.GenerateKeyPair()
	require.NoError(t, err)
	original := types.NewKeyPairRecord("key-1", "sha256", sk, pk, 1700000000)

	data, err := MarshalKeyPairRecord(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalKeyPairRecord(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	// keys still work after the round trip
	restoredSK, err := restored.LoadPrivateKey()
	require.NoError(t, err)
	restoredPK, err := restored.LoadPublicKey()
	require.NoError(t, err)
	sig, err := lamport.Sign("persisted", restoredSK)
	require.NoError(t, err)
	require.True(t, lamport.Verify("persisted", sig, restoredPK))
}

func TestMarshalUnmarshalSignedMessage_RoundTrip(t *testing.T) {
	original := &types.SignedMessage{
		KeyID:     "key-1",
		Message:   "hello",
		Digest:    "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Signature: []string{"aa", "bb"},
		SignedAt:  42,
	}

	data, err := MarshalSignedMessage(original)
	require.NoError(t, err)

	restored, err := UnmarshalSignedMessage(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

// TestMarshal_NilInput tests error handling for nil input
func TestMarshal_NilInput(t *testing.T) {
	_, err := MarshalKeyPairRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil KeyPairRecord")

	_, err = MarshalSignedMessage(nil)
	require.Error(t, err)
}

// TestUnmarshal_InvalidInput tests error handling for empty and malformed data
func TestUnmarshal_InvalidInput(t *testing.T) {
	_, err := UnmarshalKeyPairRecord(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")

	_, err = UnmarshalKeyPairRecord([]byte("{not json"))
	require.Error(t, err)

	_, err = UnmarshalSignedMessage([]byte{})
	require.Error(t, err)

	_, err = UnmarshalSignedMessage([]byte("[]"))
	require.Error(t, err)
}

func TestConsumeKeyPair(t *testing.T) {
	err := ConsumeKeyPair(nil, "missing", 1)
	require.ErrorIs(t, err, ErrKeyNotFound)

	rec := &types.KeyPairRecord{KeyID: "k"}
	require.NoError(t, ConsumeKeyPair(rec, "k", 7))
	require.True(t, rec.Used)
	require.Equal(t, int64(7), rec.UsedAt)

	err = ConsumeKeyPair(rec, "k", 8)
	require.ErrorIs(t, err, lamport.ErrKeyAlreadyUsed)
	require.Equal(t, int64(7), rec.UsedAt)
}

func TestSortKeyPairs(t *testing.T) {
	records := []*types.KeyPairRecord{
		{KeyID: "c", CreatedAt: 2},
		{KeyID: "b", CreatedAt: 1},
		{KeyID: "a", CreatedAt: 2},
	}
	SortKeyPairs(records)
	require.Equal(t, "b", records[0].KeyID)
	require.Equal(t, "a", records[1].KeyID)
	require.Equal(t, "c", records[2].KeyID)
}
