package types

import (
	"fmt"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/lamport"
)

// KeyPairRecord is the persisted form of a one-time key pair.
// All cells are lowercase 64-character hex strings in flat order (row 0 then row 1).
type KeyPairRecord struct {
	KeyID      string   `json:"keyId"`
	Hasher     string   `json:"hasher"`
	PrivateKey []string `json:"privateKey"`
	PublicKey  []string `json:"publicKey"`

	// Used is set once the private key produced a signature; the key must never sign again
	Used bool `json:"used"`

	// CreatedAt and UsedAt are Unix timestamps, UsedAt is 0 until the key is consumed
	CreatedAt int64 `json:"createdAt"`
	UsedAt    int64 `json:"usedAt"`
}

// NewKeyPairRecord captures sk and pk under keyID.
func NewKeyPairRecord(keyID, hasher string, sk *lamport.PrivateKey, pk *lamport.PublicKey, createdAt int64) *KeyPairRecord {
	return &KeyPairRecord{
		KeyID:      keyID,
		Hasher:     hasher,
		PrivateKey: sk.Cells(),
		PublicKey:  pk.Cells(),
		Used:       sk.Used(),
		CreatedAt:  createdAt,
	}
}

// LoadPrivateKey rebuilds the private key, carrying over the used flag.
func (r *KeyPairRecord) LoadPrivateKey() (*lamport.PrivateKey, error) {
	sk, err := lamport.NewPrivateKeyFromHex(r.PrivateKey, r.Used)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", r.KeyID, err)
	}
	return sk, nil
}

// LoadPublicKey rebuilds the public key.
func (r *KeyPairRecord) LoadPublicKey() (*lamport.PublicKey, error) {
	pk, err := lamport.NewPublicKeyFromHex(r.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", r.KeyID, err)
	}
	return pk, nil
}

// Copy returns a deep copy of the record.
func (r *KeyPairRecord) Copy() *KeyPairRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.PrivateKey = append([]string(nil), r.PrivateKey...)
	c.PublicKey = append([]string(nil), r.PublicKey...)
	return &c
}

// SignedMessage is a message together with the Lamport signature over it and
// the key that produced it. This is what a signer hands to a verifier.
// PublicKey carries the signer's public cells so a verifier without access
// to the key store can check the signature.
type SignedMessage struct {
	KeyID     string   `json:"keyId"`
	Message   string   `json:"message"`
	Digest    string   `json:"digest"`
	Signature []string `json:"signature"`
	PublicKey []string `json:"publicKey,omitempty"`
	SignedAt  int64    `json:"signedAt"`
}

// LamportSignature returns the signature in engine form.
func (m *SignedMessage) LamportSignature() lamport.Signature {
	return lamport.Signature(append([]string(nil), m.Signature...))
}

// LoadPublicKey rebuilds the embedded public key.
func (m *SignedMessage) LoadPublicKey() (*lamport.PublicKey, error) {
	if len(m.PublicKey) == 0 {
		return nil, fmt.Errorf("signed message for key %s carries no public key", m.KeyID)
	}
	pk, err := lamport.NewPublicKeyFromHex(m.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", m.KeyID, err)
	}
	return pk, nil
}

// Copy returns a deep copy of the message.
func (m *SignedMessage) Copy() *SignedMessage {
	if m == nil {
		return nil
	}
	c := *m
	c.Signature = append([]string(nil), m.Signature...)
	if m.PublicKey != nil {
		c.PublicKey = append([]string(nil), m.PublicKey...)
	}
	return &c
}
