package keypair

import (
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/zklogin-recovery/internal/model"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.Equal(t, crypto.PubkeyToAddress(a.PrivateKey.PublicKey), a.Address)
	assert.Len(t, a.PublicKey(), 20)
	assert.NotEqual(t, a.Address, b.Address)
	assert.False(t, a.Randomness.Equal(&b.Randomness))
	assert.False(t, a.CreatedAt.IsZero())
}

func TestParseRandomness(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	got, err := ParseRandomness(kp.RandomnessHex())
	require.NoError(t, err)
	assert.True(t, kp.Randomness.Equal(&got))

	small, err := ParseRandomness("0x2a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), small.Uint64())
}

func TestParseRandomness_Invalid(t *testing.T) {
	t.Parallel()

	modulus := fr.Modulus()

	tests := []struct {
		name string
		in   string
	}{
		{"not hex", "0xzz"},
		{"too long", "0x" + strings.Repeat("01", 33)},
		{"modulus", "0x" + modulus.Text(16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRandomness(tt.in)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}
