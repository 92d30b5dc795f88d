package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHash checks known SHA-256 vectors and the lowercase fixed-width encoding
func TestHash(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			require.Equal(t, tc.expected, HashString(tc.input))
			require.Equal(t, tc.expected, Hash([]byte(tc.input)))
		})
	}
}

// TestHash_AlwaysFullWidth asserts digests are 64 characters before any padding runs
func TestHash_AlwaysFullWidth(t *testing.T) {
	inputs := []string{"", "a", "hello world", strings.Repeat("x", 10000), "こんにちは"}
	for _, in := range inputs {
		d := HashString(in)
		require.Len(t, d, DigestHexLen)
		require.Equal(t, strings.ToLower(d), d)
		require.Equal(t, d, ZeroPad(d))
		require.NoError(t, ValidateDigest(d))
	}
}

func TestZeroPad(t *testing.T) {
	t.Run("already full width", func(t *testing.T) {
		d := HashString("abc")
		require.Equal(t, d, ZeroPad(d))
	})

	t.Run("longer than target", func(t *testing.T) {
		long := strings.Repeat("f", 100)
		require.Equal(t, long, ZeroPad(long))
	})

	t.Run("short input", func(t *testing.T) {
		padded := ZeroPad("abc")
		require.Len(t, padded, DigestHexLen)
		require.Equal(t, strings.Repeat("0", 61)+"abc", padded)
	})

	t.Run("empty input", func(t *testing.T) {
		require.Equal(t, strings.Repeat("0", DigestHexLen), ZeroPad(""))
	})
}

func TestCharToBin4(t *testing.T) {
	testCases := map[byte]string{
		'0': "0000",
		'1': "0001",
		'7': "0111",
		'9': "1001",
		'a': "1010",
		'A': "1010",
		'f': "1111",
	}
	for c, expected := range testCases {
		got, err := CharToBin4(c)
		require.NoError(t, err)
		assert.Equal(t, expected, got, "char %q", c)
	}

	_, err := CharToBin4('g')
	require.ErrorIs(t, err, ErrMalformedDigest)
}

func TestExpandDigest(t *testing.T) {
	t.Run("bit order follows CharToBin4", func(t *testing.T) {
		digest := "a" + strings.Repeat("0", DigestHexLen-2) + "1"
		bits, err := ExpandDigest(digest)
		require.NoError(t, err)
		require.Len(t, bits, DigestBits)

		require.Equal(t, []byte{1, 0, 1, 0}, bits[:4])
		require.Equal(t, []byte{0, 0, 0, 1}, bits[DigestBits-4:])
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := ExpandDigest("abcd")
		require.ErrorIs(t, err, ErrMalformedDigest)
	})

	t.Run("non-hex character", func(t *testing.T) {
		_, err := ExpandDigest(strings.Repeat("z", DigestHexLen))
		require.ErrorIs(t, err, ErrMalformedDigest)
	})
}

func TestHasherByName(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
		empty    string
	}{
		{HasherSHA256, HasherSHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"", HasherSHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{HasherKeccak256, HasherKeccak256, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{"SHA3-256", HasherSHA3, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			h, err := HasherByName(tc.name)
			require.NoError(t, err)
			require.Equal(t, tc.expected, h.Name())
			require.Equal(t, tc.empty, h.Hash(nil))
			require.Len(t, h.Hash([]byte("abc")), DigestHexLen)
		})
	}

	_, err := HasherByName("md5")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported hash function")
}

// TestHashers_DifferentOutputs ensures the alternates are not accidentally aliased
func TestHashers_DifferentOutputs(t *testing.T) {
	data := []byte("lamport")
	seen := make(map[string]string)
	for _, name := range SupportedHashers() {
		h, err := HasherByName(name)
		require.NoError(t, err)
		d := h.Hash(data)
		if other, ok := seen[d]; ok {
			t.Fatalf("%s and %s produced the same digest", name, other)
		}
		seen[d] = name
	}
}
