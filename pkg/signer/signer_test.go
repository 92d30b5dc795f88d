package signer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/internal/keyGenerator/localKeyGenerator"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/keystore"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/logger"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/memory"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/transport"
)

func newTestKeyStore(t *testing.T) *keystore.KeyStore {
	t.Helper()

	l := logger.NewNopLogger()
	engine := lamport.NewEngine(&lamport.EngineConfig{Logger: l})
	ks, err := keystore.NewKeyStore(&keystore.Config{
		Persistence: memory.NewMemoryPersistence(),
		Generator:   localKeyGenerator.NewLocalKeyGenerator(engine, l),
		Engine:      engine,
		Logger:      l,
	})
	require.NoError(t, err)
	return ks
}

type failingSender struct{}

func (failingSender) Send(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestSigner_RunOverTCP(t *testing.T) {
	srv := transport.NewServer("127.0.0.1:0", nil, logger.NewNopLogger())
	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop() }()

	ks := newTestKeyStore(t)
	s, err := NewSigner(&Config{
		KeyStore:   ks,
		Sender:     transport.NewClient(&transport.ClientConfig{Address: srv.Addr()}),
		LeafCopies: 8,
	})
	require.NoError(t, err)

	result, err := s.Run(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "hello", string(result.Response))
	assert.True(t, result.Verified)
	assert.Equal(t, VerifiedMessage, result.Status())
	require.NotNil(t, result.SignedMessage)
	assert.Equal(t, "hello", result.SignedMessage.Message)

	pk, err := ks.GetPublicKey(result.SignedMessage.KeyID)
	require.NoError(t, err)
	expected, err := merkle.NewBuilder(nil).CommitPublicKey(pk, 8)
	require.NoError(t, err)
	assert.Equal(t, expected.RootHash(), result.RootHash)
	assert.Equal(t, 8, result.Tree.LeafCount())
}

func TestSigner_DefaultCommitmentSize(t *testing.T) {
	s, err := NewSigner(&Config{KeyStore: newTestKeyStore(t)})
	require.NoError(t, err)

	result, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, result.Response)
	assert.True(t, result.Verified)
	assert.Equal(t, merkle.DefaultKeyBatchSize, result.Tree.LeafCount())
	assert.Len(t, result.RootHash, 64)
}

func TestSigner_EachRunUsesFreshKey(t *testing.T) {
	s, err := NewSigner(&Config{KeyStore: newTestKeyStore(t), LeafCopies: 2})
	require.NoError(t, err)

	first, err := s.Run(context.Background(), "one")
	require.NoError(t, err)
	second, err := s.Run(context.Background(), "two")
	require.NoError(t, err)

	assert.NotEqual(t, first.SignedMessage.KeyID, second.SignedMessage.KeyID)
	assert.NotEqual(t, first.RootHash, second.RootHash)
}

func TestSigner_SendFailureBurnsNoKey(t *testing.T) {
	ks := newTestKeyStore(t)
	s, err := NewSigner(&Config{KeyStore: ks, Sender: failingSender{}})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "lost")
	require.Error(t, err)

	records, err := ks.ListKeyPairs()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResult_Status(t *testing.T) {
	assert.Equal(t, FailedMessage, (&Result{}).Status())
	assert.Equal(t, VerifiedMessage, (&Result{Verified: true}).Status())
}

func TestNewSigner_RequiresKeyStore(t *testing.T) {
	_, err := NewSigner(nil)
	require.Error(t, err)
}
