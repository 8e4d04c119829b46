package xcrypto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	writer, err := NewAEAD(key)
	require.NoError(t, err)
	reader, err := NewAEAD(key)
	require.NoError(t, err)

	plaintext := []byte("MRP heartbeat payload")
	aad := FrameAAD(len(plaintext))

	ct, err := writer.Seal(plaintext, aad)
	require.NoError(t, err)

	pt, err := reader.Open(ct, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestAEADNoncesStrictlyIncrease(t *testing.T) {
	var nc NonceCounter
	n1 := nc.Next()
	n2 := nc.Next()
	require.NotEqual(t, n1, n2)

	first := binary.LittleEndian.Uint64(n1[4:])
	second := binary.LittleEndian.Uint64(n2[4:])
	require.Equal(t, first+1, second)
}

func TestAEADRejectsShortKey(t *testing.T) {
	_, err := NewAEAD([]byte("too short"))
	require.Error(t, err)
}

func TestAEADTamperedCiphertextFailsToOpen(t *testing.T) {
	key := make([]byte, 32)
	writer, _ := NewAEAD(key)
	reader, _ := NewAEAD(key)

	ct, err := writer.Seal([]byte("data"), FrameAAD(4))
	require.NoError(t, err)
	ct[0] ^= 0xFF

	_, err = reader.Open(ct, FrameAAD(4))
	require.Error(t, err)
}
