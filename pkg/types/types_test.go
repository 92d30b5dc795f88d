package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
)

func TestKeyPairRecord_LoadKeys(t *testing.T) {
	sk, pk, err := lamport.GenerateKeyPair()
	require.NoError(t, err)

	rec := NewKeyPairRecord("key-1", "sha256", sk, pk, 100)
	require.False(t, rec.Used)
	require.Len(t, rec.PrivateKey, lamport.GridSize)
	require.Len(t, rec.PublicKey, lamport.GridSize)

	loadedSK, err := rec.LoadPrivateKey()
	require.NoError(t, err)
	loadedPK, err := rec.LoadPublicKey()
	require.NoError(t, err)
	require.True(t, loadedPK.Equal(pk))

	sig, err := lamport.Sign("record", loadedSK)
	require.NoError(t, err)
	require.True(t, lamport.Verify("record", sig, loadedPK))

	rec.Used = true
	usedSK, err := rec.LoadPrivateKey()
	require.NoError(t, err)
	require.True(t, usedSK.Used())
}

func TestKeyPairRecord_LoadInvalid(t *testing.T) {
	rec := &KeyPairRecord{KeyID: "broken", PrivateKey: []string{"00"}, PublicKey: nil}

	_, err := rec.LoadPrivateKey()
	require.ErrorIs(t, err, lamport.ErrInvalidKeyShape)
	require.Contains(t, err.Error(), "broken")

	_, err = rec.LoadPublicKey()
	require.ErrorIs(t, err, lamport.ErrInvalidKeyShape)
}

func TestCopy_IsDeep(t *testing.T) {
	rec := &KeyPairRecord{KeyID: "k", PrivateKey: []string{"a"}, PublicKey: []string{"b"}}
	c := rec.Copy()
	c.PrivateKey[0] = "changed"
	require.Equal(t, "a", rec.PrivateKey[0])

	msg := &SignedMessage{KeyID: "k", Signature: []string{"s"}, PublicKey: []string{"p"}}
	mc := msg.Copy()
	mc.Signature[0] = "changed"
	mc.PublicKey[0] = "changed"
	require.Equal(t, "s", msg.Signature[0])
	require.Equal(t, "p", msg.PublicKey[0])

	require.Nil(t, (*KeyPairRecord)(nil).Copy())
	require.Nil(t, (*SignedMessage)(nil).Copy())
}

func TestSignedMessage_LoadPublicKey(t *testing.T) {
	_, pk, err := lamport.GenerateKeyPair()
	require.NoError(t, err)

	msg := &SignedMessage{KeyID: "k", PublicKey: pk.Cells()}
	loaded, err := msg.LoadPublicKey()
	require.NoError(t, err)
	require.True(t, loaded.Equal(pk))

	_, err = (&SignedMessage{KeyID: "bare"}).LoadPublicKey()
	require.Error(t, err)
	require.Contains(t, err.Error(), "bare")

	_, err = (&SignedMessage{KeyID: "short", PublicKey: []string{"00"}}).LoadPublicKey()
	require.ErrorIs(t, err, lamport.ErrInvalidKeyShape)
}
