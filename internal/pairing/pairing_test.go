package pairing

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"encoding/hex"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/wire"
)

func newLoopbackListener(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestDMAPOrchestratorWrongOrder(t *testing.T) {
	o := NewDMAPOrchestrator("127.0.0.1:1")
	require.ErrorIs(t, o.PIN("1234"), atverrors.KindPairing)
	require.ErrorIs(t, o.Finish(context.Background()), atverrors.KindPairing)
}

func TestDMAPOrchestratorPairingCodeIsDeterministicAndPinSensitive(t *testing.T) {
	a := dmapPairingCode("0xAAAAAAAAAAAAAAAA", "1234")
	b := dmapPairingCode("0xAAAAAAAAAAAAAAAA", "1234")
	c := dmapPairingCode("0xAAAAAAAAAAAAAAAA", "5678")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestDMAPOrchestratorFullFlow(t *testing.T) {
	l := newLoopbackListener(t)
	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		sc := wire.NewConn(nc)
		req, _, _, err := sc.ReadRequest()
		require.NoError(t, err)
		require.Equal(t, "GET", req.Method)

		body, err := dmaptlv.Encode([]dmaptlv.Node{
			{Tag: "cmpa", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
				{Tag: "cmpg", Kind: dmaptlv.KindUint8, Value: int64(42)},
			}},
		})
		require.NoError(t, err)
		require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, body, false))
	}()

	o := NewDMAPOrchestrator(l.Addr().String())
	require.NoError(t, o.Begin(context.Background()))
	require.False(t, o.DeviceProvidesPIN())
	require.NoError(t, o.PIN("1234"))
	require.NoError(t, o.Finish(context.Background()))
	require.True(t, o.HasPaired())
	require.NotEmpty(t, o.Credentials().PairingGUID)
	require.NoError(t, o.Close())
}

func TestDMAPOrchestratorRejectedPINSurfacesPairingError(t *testing.T) {
	l := newLoopbackListener(t)
	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		sc := wire.NewConn(nc)
		_, _, _, err = sc.ReadRequest()
		require.NoError(t, err)
		require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 403, Reason: "Forbidden"}, nil, nil, false))
	}()

	o := NewDMAPOrchestrator(l.Addr().String())
	require.NoError(t, o.Begin(context.Background()))
	err := o.PIN("0000")
	require.ErrorIs(t, err, atverrors.KindPairing)
	require.False(t, o.HasPaired())
}

func TestAirPlayLegacyOrchestratorWrongOrder(t *testing.T) {
	o := NewAirPlayLegacyOrchestrator("127.0.0.1:1")
	require.ErrorIs(t, o.PIN("1234"), atverrors.KindPairing)
	require.ErrorIs(t, o.Finish(context.Background()), atverrors.KindPairing)
}

func TestAirPlayLegacyOrchestratorFullFlow(t *testing.T) {
	l := newLoopbackListener(t)
	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		sc := wire.NewConn(nc)

		// /pair-pin-start
		req, _, _, err := sc.ReadRequest()
		require.NoError(t, err)
		require.Equal(t, "/pair-pin-start", req.Target)
		require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, nil, false))

		// /pair-setup-pin
		req, _, body, err := sc.ReadRequest()
		require.NoError(t, err)
		require.Equal(t, "/pair-setup-pin", req.Target)

		parts := splitOnce(string(body), '\n')
		require.Equal(t, "FF:FF:FF:FF:FF:FF", parts[0])
		encryptedClientPub, err := hex.DecodeString(parts[1])
		require.NoError(t, err)

		key := pinAESKey("7732")
		block, err := aes.NewCipher(key)
		require.NoError(t, err)
		iv := make([]byte, aes.BlockSize)
		clientPub := make([]byte, len(encryptedClientPub))
		cipher.NewCTR(block, iv).XORKeyStream(clientPub, encryptedClientPub)

		serverPub, serverPriv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		signature := ed25519.Sign(serverPriv, clientPub)

		plain := append(append([]byte{}, serverPub...), signature...)
		encrypted := make([]byte, len(plain))
		cipher.NewCTR(block, iv).XORKeyStream(encrypted, plain)

		require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, encrypted, false))
	}()

	o := NewAirPlayLegacyOrchestrator(l.Addr().String())
	require.NoError(t, o.Begin(context.Background()))
	require.True(t, o.DeviceProvidesPIN())
	require.NoError(t, o.PIN("7732"))
	require.NoError(t, o.Finish(context.Background()))
	require.True(t, o.HasPaired())

	creds := o.Credentials()
	require.NotEmpty(t, creds.AirPlayIdentifier)
	require.NotEmpty(t, creds.AirPlayPrivateKey)
	require.NoError(t, o.Close())
}

func TestAirPlayLegacyOrchestratorRejectedPINSurfacesPairingError(t *testing.T) {
	l := newLoopbackListener(t)
	go func() {
		nc, err := l.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		sc := wire.NewConn(nc)
		_, _, _, err = sc.ReadRequest()
		require.NoError(t, err)
		require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, nil, false))
		_, _, _, err = sc.ReadRequest()
		require.NoError(t, err)
		require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 470, Reason: "Invalid PIN"}, nil, nil, false))
	}()

	o := NewAirPlayLegacyOrchestrator(l.Addr().String())
	require.NoError(t, o.Begin(context.Background()))
	err := o.PIN("0000")
	require.ErrorIs(t, err, atverrors.KindPairing)
	require.False(t, o.HasPaired())
}

func TestHAPOrchestratorWrongOrder(t *testing.T) {
	o := NewHAPOrchestrator(nil)
	require.ErrorIs(t, o.PIN("1234"), atverrors.KindPairing)
	require.ErrorIs(t, o.Finish(context.Background()), atverrors.KindPairing)
	require.True(t, o.DeviceProvidesPIN())
}

func splitOnce(s string, sep byte) [2]string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return [2]string{s[:i], s[i+1:]}
		}
	}
	return [2]string{s, ""}
}
