// Package signer runs the host flow: send a message to a peer, sign it with
// a fresh one-time key, verify the signature and commit to the public key in
// a Merkle tree.
package signer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/keystore"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/merkle"
	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

const (
	VerifiedMessage = "message verified!!"
	FailedMessage   = "verification failed!!"
)

// Sender delivers a message to a peer and returns its reply.
type Sender interface {
	Send(ctx context.Context, message []byte) ([]byte, error)
}

type Config struct {
	KeyStore *keystore.KeyStore
	// Sender may be nil to sign without talking to a peer
	Sender  Sender
	Builder *merkle.Builder
	// LeafCopies is how many copies of the public key the commitment tree holds
	LeafCopies int
	Logger     *zap.Logger
}

// Result is everything the flow produced for one message.
type Result struct {
	Response      []byte
	SignedMessage *types.SignedMessage
	Verified      bool
	RootHash      string
	Tree          *merkle.MerkleTree
}

// Status is the human readable verification outcome.
func (r *Result) Status() string {
	if r.Verified {
		return VerifiedMessage
	}
	return FailedMessage
}

type Signer struct {
	keyStore   *keystore.KeyStore
	sender     Sender
	builder    *merkle.Builder
	leafCopies int
	logger     *zap.Logger
}

func NewSigner(cfg *Config) (*Signer, error) {
	if cfg == nil || cfg.KeyStore == nil {
		return nil, fmt.Errorf("signer requires a keystore")
	}
	s := &Signer{
		keyStore:   cfg.KeyStore,
		sender:     cfg.Sender,
		builder:    cfg.Builder,
		leafCopies: cfg.LeafCopies,
		logger:     cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.builder == nil {
		s.builder = merkle.NewBuilder(&merkle.BuilderConfig{
			Hasher: cfg.KeyStore.Engine().Hasher(),
			Logger: s.logger,
		})
	}
	if s.leafCopies <= 0 {
		s.leafCopies = merkle.DefaultKeyBatchSize
	}
	return s, nil
}

// Run sends message, signs it with the next unused key, verifies the
// signature against the stored public key and builds the commitment tree.
func (s *Signer) Run(ctx context.Context, message string) (*Result, error) {
	result := &Result{}

	if s.sender != nil {
		resp, err := s.sender.Send(ctx, []byte(message))
		if err != nil {
			return nil, fmt.Errorf("failed to send message: %w", err)
		}
		result.Response = resp
	}

	signed, err := s.keyStore.SignWithNextKey(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	result.SignedMessage = signed

	if result.Verified, err = s.keyStore.Verify(signed); err != nil {
		return nil, fmt.Errorf("failed to verify message: %w", err)
	}

	pk, err := s.keyStore.GetPublicKey(signed.KeyID)
	if err != nil {
		return nil, err
	}
	tree, err := s.builder.CommitPublicKey(pk, s.leafCopies)
	if err != nil {
		return nil, fmt.Errorf("failed to build commitment tree: %w", err)
	}
	result.Tree = tree
	result.RootHash = tree.RootHash()

	s.logger.Sugar().Infow("Signed and committed message",
		"key_id", signed.KeyID,
		"verified", result.Verified,
		"root_hash", result.RootHash,
	)
	return result, nil
}
