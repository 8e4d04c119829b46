package relay

import (
	"io"

	"github.com/atvkit/atvkit/internal/mrp"
)

// ShouldUseAirPlayTunnel implements §4.8's tvOS-15 selection rule: fall
// back to tunneling MRP through an already-established AirPlay-2
// connection only when no standalone MRP service was discovered and
// AirPlay 2 pairing credentials are available to bring that connection
// up in the first place.
func ShouldUseAirPlayTunnel(mrpServiceDiscovered, hasAirPlay2Credentials bool) bool {
	return !mrpServiceDiscovered && hasAirPlay2Credentials
}

// NewAirPlayTunnelTransport wraps an already-established AirPlay-2
// tunnel data stream in an mrp.Transport. Framing and message content
// are identical to the plain-TCP case (mrp.NewStreamTransport doesn't
// care what carries its bytes); only the source of the stream differs,
// which is why internal/mrp never needed a second Transport
// implementation of its own.
func NewAirPlayTunnelTransport(tunnelStream io.ReadWriteCloser) mrp.Transport {
	return mrp.NewStreamTransport(tunnelStream)
}
