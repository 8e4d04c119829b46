package tlv8

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	items := []Item{
		{Type: 0x06, Value: []byte{0x01}},
		{Type: 0x09, Value: []byte("salt-bytes")},
	}
	encoded := Encode(items)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, items, decoded)
}

func TestSplitAndCoalesceLargeValue(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 600)
	items := []Item{{Type: 0x03, Value: big}}

	encoded := Encode(items)
	// 600 bytes = 255 + 255 + 90, three chunks, each with a 2-byte header
	require.Equal(t, 600+6, len(encoded))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, big, decoded[0].Value)
}

func TestDecodeTruncatedHeaderFails(t *testing.T) {
	_, err := Decode([]byte{0x01})
	require.Error(t, err)
}

func TestDecodeLengthExceedsBufferFails(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x05, 0x00, 0x00})
	require.Error(t, err)
}

func TestFindAndFindAll(t *testing.T) {
	items := []Item{
		{Type: 0x01, Value: []byte{1}},
		{Type: 0x02, Value: []byte{2}},
	}
	v, ok := Find(items, 0x02)
	require.True(t, ok)
	require.Equal(t, []byte{2}, v)
	require.Equal(t, [][]byte{{2}}, FindAll(items, 0x02))

	_, ok = Find(items, 0x99)
	require.False(t, ok)
}

func TestEncodeEmptyValue(t *testing.T) {
	encoded := Encode([]Item{{Type: 0x00, Value: nil}})
	require.Equal(t, []byte{0x00, 0x00}, encoded)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Empty(t, decoded[0].Value)
}
