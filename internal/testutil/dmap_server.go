package testutil

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/wire"
)

// dmapTagDict mirrors the tags internal/dmap's own client decodes, kept
// as a private copy here since this fake sits on the server side of
// the same wire format rather than importing the client package.
var dmapTagDict = dmaptlv.TagDict{
	"mlog": dmaptlv.KindContainer,
	"mlid": dmaptlv.KindUint4,
	"cmst": dmaptlv.KindContainer,
	"catg": dmaptlv.KindUint4,
	"caps": dmaptlv.KindUint1,
	"cann": dmaptlv.KindString,
	"cana": dmaptlv.KindString,
	"canl": dmaptlv.KindString,
}

// FakeDMAPTrack is one now-playing state the fake server can report.
type FakeDMAPTrack struct {
	Title    string
	Revision int
}

// FakeDMAPServer is a minimal DMAP device: it accepts /login and
// answers the playstatusupdate long-poll by blocking until the
// server's revision advances past the one the client last saw, the
// way a real Apple TV holds the HTTP request open between track
// changes.
type FakeDMAPServer struct {
	listener net.Listener

	mu    sync.Mutex
	cond  *sync.Cond
	track FakeDMAPTrack
}

// NewFakeDMAPServer starts a fake DMAP device on a loopback port,
// initially reporting track at track.Revision.
func NewFakeDMAPServer(t *testing.T, track FakeDMAPTrack) *FakeDMAPServer {
	t.Helper()
	s := &FakeDMAPServer{listener: NewLoopbackListener(t), track: track}
	s.cond = sync.NewCond(&s.mu)
	go s.serve()
	return s
}

// Addr returns the host:port the fake device is listening on.
func (s *FakeDMAPServer) Addr() string { return s.listener.Addr().String() }

// Advance publishes a new track/revision and wakes any blocked
// playstatusupdate request.
func (s *FakeDMAPServer) Advance(track FakeDMAPTrack) {
	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *FakeDMAPServer) serve() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(nc)
	}
}

func (s *FakeDMAPServer) handleConn(nc net.Conn) {
	defer nc.Close()
	conn := wire.NewConn(nc)
	for {
		req, _, _, err := conn.ReadRequest()
		if err != nil {
			return
		}
		target, query := splitQuery(req.Target)
		switch {
		case strings.HasPrefix(target, "/login"):
			s.handleLogin(conn)
		case strings.HasPrefix(target, "/ctrl-int/1/playstatusupdate"):
			s.handlePlayStatus(conn, query)
		default:
			_ = conn.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 404, Reason: "Not Found"}, nil, nil, false)
		}
	}
}

func (s *FakeDMAPServer) handleLogin(conn *wire.Conn) {
	body, _ := dmaptlv.Encode([]dmaptlv.Node{
		{Tag: "mlog", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
			{Tag: "mlid", Kind: dmaptlv.KindUint4, Value: int64(1)},
		}},
	})
	_ = conn.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, body, false)
}

func (s *FakeDMAPServer) handlePlayStatus(conn *wire.Conn, query url.Values) {
	requested, _ := strconv.Atoi(query.Get("revision-number"))

	s.mu.Lock()
	for s.track.Revision <= requested {
		s.cond.Wait()
	}
	track := s.track
	s.mu.Unlock()

	body, _ := dmaptlv.Encode([]dmaptlv.Node{
		{Tag: "cmst", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
			{Tag: "catg", Kind: dmaptlv.KindUint4, Value: int64(track.Revision)},
			{Tag: "cann", Kind: dmaptlv.KindString, Value: track.Title},
		}},
	})
	_ = conn.WriteStatus(wire.StatusLine{Proto: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, nil, body, false)
}

func splitQuery(target string) (string, url.Values) {
	path, rawQuery, found := strings.Cut(target, "?")
	if !found {
		return path, url.Values{}
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return path, url.Values{}
	}
	return path, values
}
