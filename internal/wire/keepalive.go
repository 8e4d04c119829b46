package wire

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/atvkit/atvkit/internal/atverrors"
)

// KeepAliveConfig tunes the TCP keep-alive probe schedule for a
// connection, matching the timeouts a device that silently drops a
// long-lived DMAP/RAOP socket needs to be detected within.
type KeepAliveConfig struct {
	Idle     time.Duration
	Interval time.Duration
	Count    int
}

// DefaultKeepAliveConfig mirrors the connect/command timeouts used
// elsewhere in the library: a dead peer is detected within roughly 30s.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Idle:     10 * time.Second,
		Interval: 5 * time.Second,
		Count:    4,
	}
}

// EnableKeepAlive reaches through net.TCPConn's raw file descriptor to
// set SO_KEEPALIVE plus the Linux-specific idle/interval/probe-count
// socket options, since net.TCPConn's own SetKeepAlivePeriod only
// controls the idle timer on most platforms.
func EnableKeepAlive(nc net.Conn, cfg KeepAliveConfig) error {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return atverrors.Wrap(atverrors.KindConnection, err, "wire: obtaining raw TCP connection")
	}

	var opErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); opErr != nil {
			return
		}
		if opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(cfg.Idle.Seconds())); opErr != nil {
			return
		}
		if opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(cfg.Interval.Seconds())); opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cfg.Count)
	})
	if ctrlErr != nil {
		return atverrors.Wrap(atverrors.KindConnection, ctrlErr, "wire: controlling raw TCP connection")
	}
	if opErr != nil {
		return atverrors.Wrap(atverrors.KindConnection, opErr, "wire: setting keep-alive socket options")
	}
	return nil
}
