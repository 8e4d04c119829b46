package mdns

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/atvkit/atvkit/internal/atvlog"
)

// Port is the standard mDNS port.
const Port = 5353

var multicastGroup = net.ParseIP("224.0.0.251")

// ScanOptions configures one scan pass.
type ScanOptions struct {
	// Hosts, if non-empty, switches the engine to unicast mode: one query
	// is sent to each host instead of to the multicast group.
	Hosts []string
	// ServiceTypes is the set of "_service._proto" strings to query for.
	ServiceTypes []string
	// Timeout bounds the whole scan; it also bounds the unicast wake-knock
	// retry loop.
	Timeout time.Duration
	// Quiescence is how long the engine waits after the last received
	// packet before finishing the scan early.
	Quiescence time.Duration
}

// Engine sends DNS-SD queries and aggregates responses.
type Engine struct {
	logger *atvlog.Logger
}

// NewEngine creates a scan engine.
func NewEngine() *Engine {
	return &Engine{logger: atvlog.WithComponent("mdns")}
}

// Scan runs one multicast or unicast scan pass and returns every discovered
// service instance, keyed by service type.
func (e *Engine) Scan(ctx context.Context, opts ScanOptions) (map[string][]Instance, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Quiescence <= 0 {
		opts.Quiescence = 500 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := listen()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	packets, err := BuildQuery(uint16(time.Now().UnixNano()), opts.ServiceTypes)
	if err != nil {
		return nil, err
	}

	agg := NewAggregator()
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.receive(ctx, conn, agg, done, opts.Quiescence)
	}()

	if len(opts.Hosts) > 0 {
		for _, host := range opts.Hosts {
			e.wakeKnock(ctx, host, opts.Timeout)
			dst := &net.UDPAddr{IP: net.ParseIP(host), Port: Port}
			for _, p := range packets {
				_, _ = conn.WriteTo(p, dst)
			}
		}
	} else {
		dst := &net.UDPAddr{IP: multicastGroup, Port: Port}
		for _, p := range packets {
			_, _ = conn.WriteTo(p, dst)
		}
	}

	wg.Wait()
	return agg.Snapshot(), nil
}

// receive reads response packets until the quiescence timer expires after
// the last packet, the context is done, or the socket is closed.
func (e *Engine) receive(ctx context.Context, conn net.PacketConn, agg *Aggregator, done chan struct{}, quiescence time.Duration) {
	defer close(done)

	buf := make([]byte, MaxPacketSize)
	quiet := time.NewTimer(quiescence)
	defer quiet.Stop()

	results := make(chan []byte, 16)
	go func() {
		for {
			conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			select {
			case results <- cp:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quiet.C:
			return
		case pkt := <-results:
			records, err := ParseResponse(pkt)
			if err != nil {
				e.logger.Debug("discarding malformed mdns packet", "error", err)
				continue
			}
			agg.Feed(records)
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(quiescence)
		}
	}
}

// wakeKnock attempts a TCP SYN to the target's mDNS port to wake a
// sleeping device before querying it by unicast, retrying every second up
// to the scan timeout.
func (e *Engine) wakeKnock(ctx context.Context, host string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	d := net.Dialer{Timeout: 200 * time.Millisecond}
	for time.Now().Before(deadline) {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, "5353"))
		if err == nil {
			conn.Close()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func listen() (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if opErr != nil {
					return
				}
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", ":5353")
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		_ = pc.JoinGroup(&iface, &net.UDPAddr{IP: multicastGroup})
	}
	return conn, nil
}
