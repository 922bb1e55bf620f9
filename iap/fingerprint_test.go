package iap

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("receipt a"))
	b := Fingerprint([]byte("receipt b"))

	require.Equal(t, a, Fingerprint([]byte("receipt a")))
	require.NotEqual(t, a, b)

	decoded, err := base58.Decode(a)
	require.NoError(t, err)
	require.Len(t, decoded, 32)
}
