package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/types"
)

// MarshalKeyPairRecord serializes a KeyPairRecord to JSON bytes.
func MarshalKeyPairRecord(record *types.KeyPairRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil KeyPairRecord")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal KeyPairRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalKeyPairRecord deserializes a KeyPairRecord from JSON bytes.
func UnmarshalKeyPairRecord(data []byte) (*types.KeyPairRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record types.KeyPairRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to KeyPairRecord: %w", err)
	}

	return &record, nil
}

// MarshalSignedMessage serializes a SignedMessage to JSON bytes.
func MarshalSignedMessage(msg *types.SignedMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot marshal nil SignedMessage")
	}

	return json.Marshal(msg)
}

// UnmarshalSignedMessage deserializes a SignedMessage from JSON bytes.
func UnmarshalSignedMessage(data []byte) (*types.SignedMessage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var msg types.SignedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to SignedMessage: %w", err)
	}

	return &msg, nil
}
