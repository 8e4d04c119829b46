package companion

import (
	"context"
	"crypto/ed25519"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/opack"
	"github.com/atvkit/atvkit/internal/eventbus"
	"github.com/atvkit/atvkit/internal/hap"
	"github.com/atvkit/atvkit/internal/wire"
	"github.com/atvkit/atvkit/internal/xcrypto"
)

// Client drives one Companion connection: HAP Pair-Verify followed by
// OPACK request/response RPC and event subscription.
type Client struct {
	t        *transport
	clientID string
	logger   *atvlog.Logger
	producer *eventbus.StateProducer

	mu      sync.Mutex
	pending map[string]chan map[string]any

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a TCP connection to addr, performs Pair-Verify using the
// long-term identity and peer public key a prior Pair-Setup produced,
// and returns a ready Client.
func Dial(ctx context.Context, addr, clientID string, identity *xcrypto.Ed25519KeyPair, peerPublicKey ed25519.PublicKey) (*Client, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "companion: dialing %q", addr)
	}
	_ = wire.EnableKeepAlive(nc, wire.DefaultKeepAliveConfig())

	c := &Client{
		t:        newTransport(nc),
		clientID: clientID,
		logger:   atvlog.WithComponent("companion"),
		producer: eventbus.NewStateProducer(0),
		pending:  make(map[string]chan map[string]any),
		closed:   make(chan struct{}),
	}

	session, err := c.pairVerify(identity, peerPublicKey)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	c.t.installSession(session)

	go c.readLoop()
	return c, nil
}

// pairVerify runs Pair-Verify directly over the raw TCP stream: unlike
// MRP's protobuf envelope, Companion has no outer message type to tunnel
// through before encryption exists, so the TLV8 bytes are framed
// directly by the same 4-byte length prefix every later frame uses.
func (c *Client) pairVerify(identity *xcrypto.Ed25519KeyPair, peerPublicKey ed25519.PublicKey) (*hap.Session, error) {
	pv := hap.NewPairVerify(c.clientID, identity, peerPublicKey)

	m1, err := pv.BuildM1()
	if err != nil {
		return nil, err
	}
	if err := c.t.send(m1); err != nil {
		return nil, err
	}
	m2, err := c.t.recv()
	if err != nil {
		return nil, err
	}
	m3, err := pv.HandleM2BuildM3(m2)
	if err != nil {
		return nil, err
	}
	if err := c.t.send(m3); err != nil {
		return nil, err
	}
	m4, err := c.t.recv()
	if err != nil {
		return nil, err
	}
	return pv.HandleM4(m4)
}

// Events returns the producer Companion emits keyboard and volume EVENT
// frames on; other event commands are logged and not emitted.
func (c *Client) Events() *eventbus.StateProducer {
	return c.producer
}

// Close tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.t.Close()
		c.producer.ConnectionClosed()
	})
	return err
}

// call sends a REQUEST frame for command with the given args and blocks
// for its RESPONSE, returning the result dict.
func (c *Client) call(ctx context.Context, command string, args map[string]any) (map[string]any, error) {
	xid := uuid.NewString()
	req := map[string]any{
		"_i": uuid.NewString(),
		"_x": xid,
		"_c": command,
		"_t": string(frameRequest),
	}
	if len(args) > 0 {
		req["_a"] = args
	}
	body, err := opack.Encode(req)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "companion: encoding request %q", command)
	}

	ch := make(chan map[string]any, 1)
	c.mu.Lock()
	c.pending[xid] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, xid)
		c.mu.Unlock()
	}()

	if err := c.t.send(body); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return nil, atverrors.Connection("companion: command %q timed out", command)
	case resp := <-ch:
		if errVal, ok := resp["_em"]; ok {
			return nil, atverrors.Protocol("companion: command %q failed: %v", command, errVal)
		}
		if result, ok := resp["_r"].(map[string]any); ok {
			return result, nil
		}
		return nil, nil
	}
}

func (c *Client) readLoop() {
	for {
		body, err := c.t.recv()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.logger.Warn("companion connection lost", "error", err)
			c.producer.ConnectionLost(err)
			return
		}
		decoded, err := opack.Decode(body)
		if err != nil {
			c.logger.Warn("companion: discarding malformed frame", "error", err)
			continue
		}
		frame, ok := decoded.(map[string]any)
		if !ok {
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame map[string]any) {
	if xid, ok := frame["_x"].(string); ok {
		c.mu.Lock()
		ch, ok := c.pending[xid]
		c.mu.Unlock()
		if ok {
			select {
			case ch <- frame:
			default:
			}
			return
		}
	}
	c.handleEvent(frame)
}

func (c *Client) handleEvent(frame map[string]any) {
	command, _ := frame["_c"].(string)
	body, _ := frame["_a"].(map[string]any)
	switch command {
	case "_systemInfo", "_keyboardFocus":
		c.producer.Emit(eventbus.Event{Type: eventbus.EventKeyboardUpdate, Data: body})
	case "_volumeDidChange":
		if level, ok := body["volume"].(float64); ok {
			c.producer.Emit(eventbus.Event{Type: eventbus.EventVolumeUpdate, Data: eventbus.VolumeUpdateData{Level: level}})
		}
	default:
		c.logger.Debug("companion: unhandled event", "command", command)
	}
}

// AppList returns the set of installed apps reporting to Companion, as
// bundle-identifier → display-name.
func (c *Client) AppList(ctx context.Context) (map[string]string, error) {
	result, err := c.call(ctx, "FetchLaunchableApplicationsEvent", nil)
	if err != nil {
		return nil, err
	}
	apps := make(map[string]string)
	if raw, ok := result["_c"].(map[string]any); ok {
		for bundleID, name := range raw {
			if s, ok := name.(string); ok {
				apps[bundleID] = s
			}
		}
	}
	return apps, nil
}

// LaunchApp launches bundleIDOrURL, per §4.9.
func (c *Client) LaunchApp(ctx context.Context, bundleIDOrURL string) error {
	_, err := c.call(ctx, "LaunchApplicationEvent", map[string]any{"_bundleID": bundleIDOrURL})
	return err
}

// PressButton issues a remote-control button not covered by MRP.
func (c *Client) PressButton(ctx context.Context, button string) error {
	_, err := c.call(ctx, "_hidCommand", map[string]any{"_hidC": button})
	return err
}

// SetPower turns the device on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	command := "_wakeDevice"
	if !on {
		command = "_sleepDevice"
	}
	_, err := c.call(ctx, command, nil)
	return err
}

// ReadKeyboard returns the current text-field contents, if any.
func (c *Client) ReadKeyboard(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "_getKeyboardSession", nil)
	if err != nil {
		return "", err
	}
	text, _ := result["text"].(string)
	return text, nil
}

// WriteKeyboard sets the current text-field contents.
func (c *Client) WriteKeyboard(ctx context.Context, text string) error {
	_, err := c.call(ctx, "_setKeyboardSession", map[string]any{"text": text})
	return err
}
