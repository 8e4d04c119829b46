package dmap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/wire"
)

func newTestClient(t *testing.T) (*Client, *wire.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	c := &Client{conn: wire.NewConn(clientConn), host: "device.local", logger: atvlog.WithComponent("dmap-test")}
	return c, wire.NewConn(serverConn)
}

func encodeResponse(t *testing.T, sc *wire.Conn, nodes []dmaptlv.Node) {
	t.Helper()
	body, err := dmaptlv.Encode(nodes)
	require.NoError(t, err)
	require.NoError(t, sc.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, body, false))
}

func TestLoginStoresSessionID(t *testing.T) {
	c, sc := newTestClient(t)

	go func() {
		req, _, _, err := sc.ReadRequest()
		require.NoError(t, err)
		require.Equal(t, "/login?pairing-guid=0xDEADBEEF&hasFP=1", req.Target)
		encodeResponse(t, sc, []dmaptlv.Node{
			{Tag: "mlog", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
				{Tag: "mlid", Kind: dmaptlv.KindUint4, Value: int64(12345)},
			}},
		})
	}()

	err := c.Login("0xDEADBEEF", "")
	require.NoError(t, err)
	require.EqualValues(t, 12345, c.sessionID)
}

func TestControlUsesSessionID(t *testing.T) {
	c, sc := newTestClient(t)
	c.sessionID = 777

	go func() {
		req, _, _, err := sc.ReadRequest()
		require.NoError(t, err)
		require.Equal(t, "POST", req.Method)
		require.Equal(t, "/ctrl-int/1/play?session-id=777&prompt-id=0", req.Target)
		encodeResponse(t, sc, nil)
	}()

	_, err := c.Control("play")
	require.NoError(t, err)
}

func TestPlayStatusParsesRevision(t *testing.T) {
	c, sc := newTestClient(t)
	c.sessionID = 1

	go func() {
		_, _, _, err := sc.ReadRequest()
		require.NoError(t, err)
		encodeResponse(t, sc, []dmaptlv.Node{
			{Tag: "cmst", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
				{Tag: "caps", Kind: dmaptlv.KindUint1, Value: int64(3)},
				{Tag: "catg", Kind: dmaptlv.KindUint4, Value: int64(42)},
			}},
		})
	}()

	rev, nodes, err := c.PlayStatus(0)
	require.NoError(t, err)
	require.Equal(t, 42, rev)
	caps, ok := dmaptlv.Find(nodes, "caps")
	require.True(t, ok)
	require.EqualValues(t, 3, caps.Value)
}

func TestSubscribeDeliversUpdates(t *testing.T) {
	c, sc := newTestClient(t)

	updates := make(chan Update, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_, _, _, err := sc.ReadRequest()
		require.NoError(t, err)
		encodeResponse(t, sc, []dmaptlv.Node{
			{Tag: "cmst", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
				{Tag: "catg", Kind: dmaptlv.KindUint4, Value: int64(1)},
			}},
		})

		_, _, _, err = sc.ReadRequest()
		require.NoError(t, err)
		cancel()
	}()

	go func() {
		_ = c.Subscribe(ctx, 10*time.Millisecond, func(u Update) {
			updates <- u
		})
	}()

	select {
	case u := <-updates:
		require.Equal(t, 1, u.Revision)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
}
