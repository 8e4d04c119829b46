package xcrypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCurve25519SharedSecretAgrees(t *testing.T) {
	a, err := GenerateCurve25519KeyPair()
	require.NoError(t, err)
	b, err := GenerateCurve25519KeyPair()
	require.NoError(t, err)

	sa, err := a.SharedSecret(b.Public)
	require.NoError(t, err)
	sb, err := b.SharedSecret(a.Public)
	require.NoError(t, err)

	require.Equal(t, sa, sb)
}

func TestEd25519SignAndVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("pair-setup M5 identity")
	sig := kp.Sign(msg)

	require.True(t, VerifySignature(kp.Public, msg, sig))
	require.False(t, VerifySignature(kp.Public, []byte("tampered"), sig))
}

func TestDeriveKeyDeterministicPerInfo(t *testing.T) {
	secret := []byte("shared-secret-from-srp-or-ecdh")
	salt := []byte("Pair-Setup-Salt")

	k1, err := DeriveKey(secret, salt, InfoControlWrite)
	require.NoError(t, err)
	k2, err := DeriveKey(secret, salt, InfoControlRead)
	require.NoError(t, err)

	require.Len(t, k1, 32)
	require.Len(t, k2, 32)
	require.NotEqual(t, k1, k2)

	k1Again, err := DeriveKey(secret, salt, InfoControlWrite)
	require.NoError(t, err)
	require.Equal(t, k1, k1Again)
}
