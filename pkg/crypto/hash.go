package crypto

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DigestBytes is the size of every supported hash output
	DigestBytes = 32

	// DigestHexLen is the width of a hex-encoded digest. ZeroPad targets this width.
	DigestHexLen = DigestBytes * 2

	// DigestBits is the number of message bits a digest selects keys for
	DigestBits = DigestBytes * 8
)

// ErrMalformedDigest is returned when a value that should be a hex digest is not one.
var ErrMalformedDigest = errors.New("malformed digest")

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	return DefaultHasher.Hash(data)
}

// HashString hashes the UTF-8 bytes of s.
func HashString(s string) string {
	return DefaultHasher.Hash([]byte(s))
}

// ZeroPad left-pads a hex digest with '0' up to DigestHexLen characters.
// Inputs that are already DigestHexLen or longer are returned unchanged.
func ZeroPad(hexDigest string) string {
	if len(hexDigest) >= DigestHexLen {
		return hexDigest
	}
	return strings.Repeat("0", DigestHexLen-len(hexDigest)) + hexDigest
}

// CharToBin4 expands one hex character into its 4-bit binary form, most
// significant bit first ('a' -> "1010").
func CharToBin4(c byte) (string, error) {
	n, ok := nibble(c)
	if !ok {
		return "", fmt.Errorf("%w: invalid hex character %q", ErrMalformedDigest, c)
	}
	return fmt.Sprintf("%04b", n), nil
}

// ExpandDigest turns a DigestHexLen-character hex digest into DigestBits
// bits (each 0 or 1), ordered by hex position then by bit within the nibble.
func ExpandDigest(digest string) ([]byte, error) {
	if err := ValidateDigest(digest); err != nil {
		return nil, err
	}

	bits := make([]byte, 0, DigestBits)
	for i := 0; i < len(digest); i++ {
		n, _ := nibble(digest[i])
		for j := 3; j >= 0; j-- {
			bits = append(bits, (n>>uint(j))&1)
		}
	}
	return bits, nil
}

// ValidateDigest checks that digest is exactly DigestHexLen hex characters.
func ValidateDigest(digest string) error {
	if len(digest) != DigestHexLen {
		return fmt.Errorf("%w: expected %d hex characters, got %d", ErrMalformedDigest, DigestHexLen, len(digest))
	}
	for i := 0; i < len(digest); i++ {
		if _, ok := nibble(digest[i]); !ok {
			return fmt.Errorf("%w: invalid hex character %q at position %d", ErrMalformedDigest, digest[i], i)
		}
	}
	return nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
