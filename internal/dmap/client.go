package dmap

import (
	"fmt"
	"net"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
	"github.com/atvkit/atvkit/internal/wire"
)

// Client drives one DMAP session over a single HTTP/1.1 connection.
type Client struct {
	conn      *wire.Conn
	host      string
	sessionID uint32
	logger    *atvlog.Logger
}

// Dial opens a plain TCP connection to addr (host:port) and wraps it
// in a DMAP client. DMAP's legacy pairing (pairing-guid/HSGID) predates
// HAP, so the connection carries no encryption processors.
func Dial(addr string) (*Client, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "dmap: invalid address %q", addr)
	}
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "dmap: dialing %q", addr)
	}
	_ = wire.EnableKeepAlive(nc, wire.DefaultKeepAliveConfig())
	return &Client{conn: wire.NewConn(nc), host: host, logger: atvlog.WithComponent("dmap")}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Login authenticates with either a pairing GUID (0xHHHHHHHHHHHHHHHH)
// or a Home Sharing GUID, storing the session id from the response for
// use by every subsequent request.
func (c *Client) Login(pairingGUID, hsgid string) error {
	target := "/login?hasFP=1"
	if pairingGUID != "" {
		target = fmt.Sprintf("/login?pairing-guid=%s&hasFP=1", pairingGUID)
	} else if hsgid != "" {
		target = fmt.Sprintf("/login?hsgid=%s&hasFP=1", hsgid)
	} else {
		return atverrors.InvalidArgument("dmap: Login requires a pairing GUID or HSGID")
	}

	nodes, err := c.get(target)
	if err != nil {
		return err
	}
	login, ok := dmaptlv.Find(nodes, "mlog")
	if !ok {
		return atverrors.Protocol("dmap: login response missing mlog container")
	}
	idNode, ok := dmaptlv.Find(login.Children, "mlid")
	if !ok {
		return atverrors.Protocol("dmap: login response missing mlid")
	}
	sessionID, ok := idNode.Value.(int64)
	if !ok {
		return atverrors.Protocol("dmap: mlid has unexpected type %T", idNode.Value)
	}
	c.sessionID = uint32(sessionID)
	return nil
}

// Control issues a POST to /ctrl-int/1/<command> with the current
// session id, returning the decoded response body.
func (c *Client) Control(command string) ([]dmaptlv.Node, error) {
	target := fmt.Sprintf("/ctrl-int/1/%s?session-id=%d&prompt-id=0", command, c.sessionID)
	return c.post(target, nil)
}

// SetProperty issues a property update via /ctrl-int/1/setproperty.
func (c *Client) SetProperty(key, value string) error {
	target := fmt.Sprintf("/ctrl-int/1/setproperty?%s=%s&session-id=%d", key, value, c.sessionID)
	_, err := c.post(target, nil)
	return err
}

// PlayStatus issues one playstatusupdate request at the given
// revision and decodes the response into the revision it reports plus
// its raw TLV nodes; callers needing the long-poll loop use Subscribe.
func (c *Client) PlayStatus(revision int) (int, []dmaptlv.Node, error) {
	target := fmt.Sprintf("/ctrl-int/1/playstatusupdate?revision-number=%d&session-id=%d", revision, c.sessionID)
	nodes, err := c.get(target)
	if err != nil {
		return 0, nil, err
	}
	cmst, ok := dmaptlv.Find(nodes, "cmst")
	if !ok {
		return 0, nodes, atverrors.Protocol("dmap: playstatusupdate response missing cmst container")
	}
	revNode, ok := dmaptlv.Find(cmst.Children, "catg")
	if !ok {
		return 0, cmst.Children, nil
	}
	newRev, ok := revNode.Value.(int64)
	if !ok {
		return 0, cmst.Children, atverrors.Protocol("dmap: catg has unexpected type %T", revNode.Value)
	}
	return int(newRev), cmst.Children, nil
}

// Artwork issues a GET against DACP's nowplayingartwork endpoint and
// returns the raw image bytes (JPEG or PNG; the response carries no
// TLV container, unlike every other ctrl-int endpoint). width/height
// of 0 requests the device's default artwork size.
func (c *Client) Artwork(width, height int) ([]byte, error) {
	target := fmt.Sprintf("/ctrl-int/1/nowplayingartwork?mw=%d&mh=%d&session-id=%d", width, height, c.sessionID)
	if err := c.conn.WriteRequest(wire.RequestLine{Method: "GET", Target: target, Proto: "HTTP/1.1"}, c.baseHeaders(), nil, false); err != nil {
		return nil, err
	}
	status, _, body, err := c.conn.ReadResponse()
	if err != nil {
		return nil, err
	}
	if status.StatusCode == 404 {
		return nil, atverrors.NotSupported("dmap: device has no current artwork")
	}
	if status.StatusCode >= 400 {
		return nil, atverrors.Protocol("dmap: nowplayingartwork request failed: %d %s", status.StatusCode, status.Reason)
	}
	return body, nil
}

func (c *Client) get(target string) ([]dmaptlv.Node, error) {
	if err := c.conn.WriteRequest(wire.RequestLine{Method: "GET", Target: target, Proto: "HTTP/1.1"}, c.baseHeaders(), nil, false); err != nil {
		return nil, err
	}
	return c.readTLVResponse()
}

func (c *Client) post(target string, body []byte) ([]dmaptlv.Node, error) {
	headers := c.baseHeaders()
	if err := c.conn.WriteRequest(wire.RequestLine{Method: "POST", Target: target, Proto: "HTTP/1.1"}, headers, body, false); err != nil {
		return nil, err
	}
	return c.readTLVResponse()
}

func (c *Client) baseHeaders() map[string]string {
	return map[string]string{
		"Host":       c.host,
		"User-Agent": "atvkit",
		"Viewer-Only-Client": "1",
	}
}

func (c *Client) readTLVResponse() ([]dmaptlv.Node, error) {
	status, _, body, err := c.conn.ReadResponse()
	if err != nil {
		return nil, err
	}
	if status.StatusCode >= 400 {
		return nil, atverrors.Protocol("dmap: request failed: %d %s", status.StatusCode, status.Reason)
	}
	if len(body) == 0 {
		return nil, nil
	}
	nodes, err := dmaptlv.Decode(body, tagDict)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "dmap: decoding response body")
	}
	return nodes, nil
}
