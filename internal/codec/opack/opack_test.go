package opack

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	encoded, err := Encode(v)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	return decoded
}

func TestRoundTripScalars(t *testing.T) {
	require.Equal(t, true, roundTrip(t, true))
	require.Equal(t, false, roundTrip(t, false))
	require.Nil(t, roundTrip(t, nil))
	require.Equal(t, int64(0), roundTrip(t, 0))
	require.Equal(t, int64(39), roundTrip(t, 39))
	require.Equal(t, int64(40), roundTrip(t, 40))
	require.Equal(t, int64(-5), roundTrip(t, -5))
	require.Equal(t, int64(1000), roundTrip(t, 1000))
	require.Equal(t, int64(100000), roundTrip(t, 100000))
	require.Equal(t, int64(5_000_000_000), roundTrip(t, int64(5_000_000_000)))
}

func TestRoundTripFloats(t *testing.T) {
	require.Equal(t, float32(3.5), roundTrip(t, float32(3.5)))
	require.Equal(t, float64(2.71828), roundTrip(t, float64(2.71828)))
}

func TestRoundTripStrings(t *testing.T) {
	require.Equal(t, "", roundTrip(t, ""))
	require.Equal(t, "short", roundTrip(t, "short"))
	require.Equal(t, string(make([]byte, 300)), roundTrip(t, string(make([]byte, 300))))
}

func TestRoundTripData(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	require.Equal(t, b, roundTrip(t, b))
}

func TestRoundTripUUID(t *testing.T) {
	u := uuid.New()
	require.Equal(t, u, roundTrip(t, u))
}

func TestRoundTripArray(t *testing.T) {
	v := []any{int64(1), "two", true, nil}
	require.Equal(t, v, roundTrip(t, v))
}

func TestRoundTripDict(t *testing.T) {
	v := map[string]any{"a": int64(1), "b": "two"}
	require.Equal(t, v, roundTrip(t, v))
}

func TestBackReferenceReusesOffset(t *testing.T) {
	shared := "com.apple.tvremote"
	v := []any{shared, shared, shared}

	encoded, err := Encode(v)
	require.NoError(t, err)

	// A naive encoding of three 18-byte strings with 1-byte headers would
	// be 3*19=57 bytes plus the 2 array framing bytes; back-reference reuse
	// should make this much smaller.
	require.Less(t, len(encoded), 40)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}

func TestBackReferenceAcrossDict(t *testing.T) {
	key := "_i"
	v := map[string]any{"a": map[string]any{key: int64(1)}}
	// Encode twice concatenated isn't meaningful for dict key reuse test;
	// instead verify nested reuse of the same string value across an array.
	arr := []any{key, map[string]any{key: "x"}}
	encoded, err := Encode(arr)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, arr, decoded)
	_ = v
}

func TestDecodeUnknownPointerFails(t *testing.T) {
	_, err := Decode([]byte{opPointer32, 0xFF, 0xFF, 0xFF, 0x7F})
	require.Error(t, err)
}

func TestDecodeTruncatedBufferFails(t *testing.T) {
	_, err := Decode([]byte{opStr1})
	require.Error(t, err)
}

func TestEncodeUnsupportedTypeFails(t *testing.T) {
	_, err := Encode(struct{}{})
	require.Error(t, err)
}
