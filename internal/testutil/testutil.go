// Package testutil hosts the fake-device harness shared across protocol
// packages: loopback listeners plus small wire-level fake servers that
// speak just enough of DMAP and RAOP to drive round-trip and streaming
// tests without a real Apple TV. MRP and Companion pairing/command
// fakes live alongside their own packages instead (internal/hap,
// internal/mrp, internal/pairing): their framing is protocol-specific
// enough that an in-package fake is clearer than a shared one, the way
// the teacher keeps internal/ctlplane's mock next to the client it
// mocks rather than in a shared testing package.
package testutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewLoopbackListener opens a TCP listener on an ephemeral loopback
// port and registers it for cleanup.
func NewLoopbackListener(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// NewLoopbackUDP opens a UDP socket on an ephemeral loopback port and
// registers it for cleanup.
func NewLoopbackUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}
