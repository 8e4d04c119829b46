package companion

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/opack"
	"github.com/atvkit/atvkit/internal/eventbus"
)

func newTestClient(t *testing.T) (*Client, *transport) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	c := &Client{
		t:        newTransport(clientConn),
		clientID: "test-client",
		logger:   atvlog.WithComponent("companion-test"),
		producer: eventbus.NewStateProducer(0),
		pending:  make(map[string]chan map[string]any),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, newTransport(serverConn)
}

func TestCallRoundTripsResponse(t *testing.T) {
	c, st := newTestClient(t)

	go func() {
		body, err := st.recv()
		require.NoError(t, err)
		req, err := opack.Decode(body)
		require.NoError(t, err)
		frame := req.(map[string]any)
		require.Equal(t, "LaunchApplicationEvent", frame["_c"])

		resp := map[string]any{"_x": frame["_x"], "_c": frame["_c"], "_r": map[string]any{"ok": true}}
		out, err := opack.Encode(resp)
		require.NoError(t, err)
		require.NoError(t, st.send(out))
	}()

	err := c.LaunchApp(context.Background(), "com.netflix.app")
	require.NoError(t, err)
}

func TestCallSurfacesProtocolErrorFromResponse(t *testing.T) {
	c, st := newTestClient(t)

	go func() {
		body, err := st.recv()
		require.NoError(t, err)
		req, err := opack.Decode(body)
		require.NoError(t, err)
		frame := req.(map[string]any)

		resp := map[string]any{"_x": frame["_x"], "_em": "app not found"}
		out, err := opack.Encode(resp)
		require.NoError(t, err)
		require.NoError(t, st.send(out))
	}()

	err := c.LaunchApp(context.Background(), "com.missing.app")
	require.Error(t, err)
}

func TestHandleEventEmitsVolumeUpdate(t *testing.T) {
	c, st := newTestClient(t)
	h, ok := c.producer.Listen()
	require.True(t, ok)

	go func() {
		frame := map[string]any{"_c": "_volumeDidChange", "_a": map[string]any{"volume": 42.0}}
		out, err := opack.Encode(frame)
		require.NoError(t, err)
		require.NoError(t, st.send(out))
	}()

	select {
	case e := <-h.C():
		require.Equal(t, eventbus.EventVolumeUpdate, e.Type)
		data := e.Data.(eventbus.VolumeUpdateData)
		require.Equal(t, 42.0, data.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for volume event")
	}
}
