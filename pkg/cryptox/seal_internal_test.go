package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealerDerivesKeyOncePerSalt(t *testing.T) {
	t.Parallel()

	sealer, err := NewSealer("passphrase")
	require.NoError(t, err)

	derivations := 0
	sealer.derive = func(passphrase, salt []byte) []byte {
		derivations++
		return deriveKey(passphrase, salt)
	}

	sealed, err := sealer.Seal([]byte("one"))
	require.NoError(t, err)
	for range 5 {
		_, err = sealer.Open(sealed)
		require.NoError(t, err)
		sealed, err = sealer.Seal([]byte("again"))
		require.NoError(t, err)
	}
	require.Equal(t, 1, derivations)

	// A file sealed elsewhere has its own salt; once opened, writes reuse it.
	other, err := NewSealer("passphrase")
	require.NoError(t, err)
	foreign, err := other.Seal([]byte("foreign"))
	require.NoError(t, err)

	_, err = sealer.Open(foreign)
	require.NoError(t, err)
	resealed, err := sealer.Seal([]byte("after"))
	require.NoError(t, err)
	require.Equal(t, foreign[:saltLength], resealed[:saltLength])
	require.Equal(t, 2, derivations)
}
