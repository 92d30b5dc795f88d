package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/logger"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/persistence/persistencetest"
)

func TestLevelDBPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.IKeyPersistence {
		lp, err := NewLevelDBPersistence(t.TempDir(), logger.NewNopLogger())
		require.NoError(t, err)
		return lp
	})
}

func TestLevelDBPersistence_Reopen(t *testing.T) {
	dir := t.TempDir()

	lp, err := NewLevelDBPersistence(dir, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, lp.SaveKeyPair(persistencetest.NewTestRecord(t, "a", 2)))
	require.NoError(t, lp.SaveKeyPair(persistencetest.NewTestRecord(t, "b", 1)))
	require.NoError(t, lp.MarkKeyUsed("a", 3))
	require.NoError(t, lp.Close())

	reopened, err := NewLevelDBPersistence(dir, logger.NewNopLogger())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	records, err := reopened.ListKeyPairs()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].KeyID)
	assert.Equal(t, "a", records[1].KeyID)
	assert.True(t, records[1].Used)

	require.ErrorIs(t, reopened.MarkKeyUsed("a", 4), lamport.ErrKeyAlreadyUsed)
}
