package sha256

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var hexKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

// TestHasherHashDeterministic ensures repeated hashing yields the same digest.
func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestSumIsFilenameSafe(t *testing.T) {
	t.Parallel()

	require.Regexp(t, hexKey, Sum([]byte(`[["url","https://example.com"]]`)))
	require.Regexp(t, hexKey, Sum(nil))
	require.NotEqual(t, Sum([]byte("a")), Sum([]byte("b")))
}
