package localKeyGenerator

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/internal/keyGenerator"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
)

const KeyIdPrefix = "lamport-key-"

// LocalKeyGenerator generates Lamport key pairs in-process from crypto/rand
// (or whatever source the engine was built with).
type LocalKeyGenerator struct {
	logger    *zap.Logger
	engine    *lamport.Engine
	generated atomic.Uint64
}

func NewLocalKeyGenerator(engine *lamport.Engine, logger *zap.Logger) *LocalKeyGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = lamport.NewEngine(&lamport.EngineConfig{Logger: logger})
	}
	return &LocalKeyGenerator{
		logger: logger,
		engine: engine,
	}
}

func (l *LocalKeyGenerator) HasherName() string {
	return l.engine.Hasher().Name()
}

func (l *LocalKeyGenerator) GenerateKeyPair(ctx context.Context, keyName string) (*keyGenerator.GeneratedKeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sk, pk, err := l.engine.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate Lamport key pair: %w", err)
	}

	keyId := fmt.Sprintf("%s%s", KeyIdPrefix, uuid.New().String())
	l.generated.Add(1)

	l.logger.Info("Generated local Lamport key",
		zap.String("keyName", keyName),
		zap.String("keyId", keyId),
		zap.String("hasher", l.HasherName()),
	)

	return &keyGenerator.GeneratedKeyPair{
		KeyId:      keyId,
		KeyName:    keyName,
		Hasher:     l.HasherName(),
		PrivateKey: sk,
		PublicKey:  pk,
	}, nil
}

// GetKeyCount returns how many key pairs this generator has produced.
func (l *LocalKeyGenerator) GetKeyCount() uint64 {
	return l.generated.Load()
}

var _ keyGenerator.IKeyGenerator = (*LocalKeyGenerator)(nil)
