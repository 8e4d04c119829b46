package mrp

import (
	"context"
	"crypto/ed25519"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/atvlog"
	"github.com/atvkit/atvkit/internal/codec/mrpproto"
	"github.com/atvkit/atvkit/internal/eventbus"
	"github.com/atvkit/atvkit/internal/hap"
	"github.com/atvkit/atvkit/internal/xcrypto"
)

const heartbeatInterval = 30 * time.Second
const maxMissedHeartbeats = 3

// DeviceInfo is this client's identity, announced during the handshake.
type DeviceInfo struct {
	UniqueIdentifier            string
	Name                        string
	LocalizedModelName          string
	SystemBuildVersion          string
	ApplicationBundleIdentifier string
}

// Client drives one MRP connection: handshake, heartbeat, player
// tracking, and remote-control command dispatch.
type Client struct {
	transport Transport
	clientID  string
	identity  *xcrypto.Ed25519KeyPair

	identifier string // uniqueIdentifier of the peer, from its DEVICE_INFO

	registry *Registry
	producer *eventbus.StateProducer
	logger   *atvlog.Logger

	mu      sync.Mutex
	pending map[string]chan *mrpproto.CommandResultMessage

	missedHeartbeats int32
	closeOnce        sync.Once
	closed           chan struct{}
}

// Connect performs the full MRP bring-up over transport: DEVICE_INFO,
// Pair-Verify, SET_CONNECTION_STATE(Connected), and the
// CLIENT_UPDATES_CONFIG subscribe, per §4.8. It then starts the
// heartbeat loop and a background frame-reader goroutine.
func Connect(ctx context.Context, transport Transport, info DeviceInfo, identity *xcrypto.Ed25519KeyPair, peerPublicKey ed25519.PublicKey) (*Client, error) {
	c := &Client{
		transport: transport,
		clientID:  info.UniqueIdentifier,
		identity:  identity,
		registry:  NewRegistry(),
		producer:  eventbus.NewStateProducer(0),
		logger:    atvlog.WithComponent("mrp"),
		pending:   make(map[string]chan *mrpproto.CommandResultMessage),
		closed:    make(chan struct{}),
	}

	if err := c.sendEnvelope(&mrpproto.ProtocolMessage{
		Type:       mrpproto.TypeDeviceInfoMessage,
		Identifier: uuid.NewString(),
		Payload: &mrpproto.DeviceInfoMessage{
			UniqueIdentifier:            info.UniqueIdentifier,
			Name:                        info.Name,
			LocalizedModelName:          info.LocalizedModelName,
			SystemBuildVersion:          info.SystemBuildVersion,
			ApplicationBundleIdentifier: info.ApplicationBundleIdentifier,
			ProtocolVersion:             1,
			AllowsPairing:               true,
		},
	}); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "mrp: sending DEVICE_INFO")
	}
	if _, err := c.recvEnvelope(); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "mrp: receiving peer DEVICE_INFO")
	}

	session, err := c.pairVerify(peerPublicKey)
	if err != nil {
		return nil, err
	}
	transport.InstallSession(session)

	if err := c.sendEnvelope(&mrpproto.ProtocolMessage{
		Type: mrpproto.TypeSetConnectionStateMessage,
		Payload: &mrpproto.SetConnectionStateMessage{
			State: mrpproto.ConnectionStateConnected,
		},
	}); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "mrp: sending SET_CONNECTION_STATE")
	}

	if err := c.sendEnvelope(&mrpproto.ProtocolMessage{
		Type: mrpproto.TypeClientUpdatesConfigMessage,
		Payload: &mrpproto.ClientUpdatesConfigMessage{
			ArtworkUpdates:      true,
			NowPlayingUpdates:   true,
			VolumeUpdates:       true,
			KeyboardUpdates:     true,
			OutputDeviceUpdates: true,
		},
	}); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "mrp: subscribing to updates")
	}

	go c.readLoop()
	go c.heartbeatLoop()

	return c, nil
}

// pairVerify drives the 4-message Pair-Verify handshake over the
// transport's CryptoPairingMessage tunnel, establishing the Session
// that covers every frame from here on.
func (c *Client) pairVerify(peerPublicKey ed25519.PublicKey) (*hap.Session, error) {
	pv := hap.NewPairVerify(c.clientID, c.identity, peerPublicKey)

	m1, err := pv.BuildM1()
	if err != nil {
		return nil, err
	}
	if err := c.sendCryptoPairing(m1); err != nil {
		return nil, err
	}
	m2, err := c.recvCryptoPairing()
	if err != nil {
		return nil, err
	}
	m3, err := pv.HandleM2BuildM3(m2)
	if err != nil {
		return nil, err
	}
	if err := c.sendCryptoPairing(m3); err != nil {
		return nil, err
	}
	m4, err := c.recvCryptoPairing()
	if err != nil {
		return nil, err
	}
	return pv.HandleM4(m4)
}

func (c *Client) sendCryptoPairing(data []byte) error {
	return c.sendEnvelope(&mrpproto.ProtocolMessage{
		Type:    mrpproto.TypeCryptoPairingMessage,
		Payload: &mrpproto.CryptoPairingMessage{Data: data},
	})
}

func (c *Client) recvCryptoPairing() ([]byte, error) {
	pm, err := c.recvEnvelope()
	if err != nil {
		return nil, err
	}
	cp, ok := pm.Payload.(*mrpproto.CryptoPairingMessage)
	if !ok {
		return nil, atverrors.Protocol("mrp: expected CryptoPairingMessage, got type %d", pm.Type)
	}
	return cp.Data, nil
}

func (c *Client) sendEnvelope(pm *mrpproto.ProtocolMessage) error {
	body, err := mrpproto.Encode(pm)
	if err != nil {
		return err
	}
	return c.transport.SendFrame(body)
}

func (c *Client) recvEnvelope() (*mrpproto.ProtocolMessage, error) {
	body, err := c.transport.RecvFrame()
	if err != nil {
		return nil, err
	}
	return mrpproto.Decode(body)
}

// Events returns the event bus producer this client emits active-player
// changes, connection loss, and other push updates on.
func (c *Client) Events() *eventbus.StateProducer {
	return c.producer
}

// Active returns the currently elected active player, or nil.
func (c *Client) Active() *Player {
	return c.registry.Active()
}

// Close tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.transport.Close()
		c.producer.ConnectionClosed()
	})
	return err
}

func (c *Client) readLoop() {
	for {
		pm, err := c.recvEnvelope()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.logger.Warn("mrp connection lost", "error", err)
			c.producer.ConnectionLost(err)
			return
		}
		c.noteHeartbeatReply()
		c.dispatch(pm)
	}
}

func (c *Client) dispatch(pm *mrpproto.ProtocolMessage) {
	switch payload := pm.Payload.(type) {
	case *mrpproto.SetStateMessage:
		c.handleSetState(payload)
	case *mrpproto.UpdateClientMessage:
		c.handleUpdateClient(payload)
	case *mrpproto.UpdateContentItemMessage:
		c.handleUpdateContentItem(payload)
	case *mrpproto.UpdateOutputDeviceMessage:
		c.producer.Emit(eventbus.Event{
			Type: eventbus.EventOutputDevicesUpdate,
			Data: eventbus.OutputDevicesUpdateData{Devices: []string{payload.DeviceName}},
		})
	case *mrpproto.SetNowPlayingClientMessage:
		if c.registry.SetNowPlayingClient(payload.BundleIdentifier, time.Now()) {
			c.emitActivePlayer()
		}
	case *mrpproto.CommandResultMessage:
		c.resolveCommand(payload)
	}
}

func (c *Client) handleSetState(m *mrpproto.SetStateMessage) {
	changed := c.registry.Upsert(m.PlayerPath, func(p *Player) {
		p.BundleIdentifier = m.BundleIdentifier
		p.stateTimestamp = time.UnixMilli(m.TimestampUnixMillis)
		p.NowPlaying = newPlayingState(
			DeviceState(m.PlaybackState),
			time.Duration(m.ElapsedTimeSeconds*float64(time.Second)),
			time.Duration(m.TotalTimeSeconds*float64(time.Second)),
			m.PlaybackRate,
			p.stateTimestamp,
			m.Title, m.Artist, m.Album, "",
		)
		p.NowPlaying.Repeat = m.Repeat
		p.NowPlaying.Shuffle = m.Shuffle
	})
	if changed {
		c.emitActivePlayer()
	} else if active := c.registry.Active(); active != nil && active.Path == m.PlayerPath {
		c.emitActivePlayer()
	}
}

func (c *Client) handleUpdateClient(m *mrpproto.UpdateClientMessage) {
	c.registry.Upsert(m.PlayerPath, func(p *Player) {
		p.BundleIdentifier = m.BundleIdentifier
		p.DisplayName = m.DisplayName
	})
}

func (c *Client) handleUpdateContentItem(m *mrpproto.UpdateContentItemMessage) {
	changed := c.registry.Upsert(m.PlayerPath, func(p *Player) {
		state := DeviceStatePlaying
		if p.NowPlaying != nil {
			state = p.NowPlaying.State
		}
		p.NowPlaying = newPlayingState(
			state,
			time.Duration(m.ElapsedTimeSeconds*float64(time.Second)),
			time.Duration(m.TotalTimeSeconds*float64(time.Second)),
			1.0,
			time.Now(),
			m.Title, m.Artist, m.Album, m.Genre,
		)
	})
	if changed {
		c.emitActivePlayer()
	}
}

func (c *Client) emitActivePlayer() {
	active := c.registry.Active()
	if active == nil || active.NowPlaying == nil {
		return
	}
	hash := contentHashUint64(active.NowPlaying.ContentHash)
	c.producer.Emit(eventbus.Event{
		Type: eventbus.EventPlaystatusUpdate,
		Data: eventbus.PlaystatusUpdateData{Playing: active.NowPlaying, Hash: hash},
	})
}

func contentHashUint64(h [32]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&c.missedHeartbeats) >= maxMissedHeartbeats {
				c.logger.Warn("mrp heartbeat missed 3 consecutive replies, closing connection")
				c.producer.ConnectionLost(atverrors.Connection("mrp: heartbeat timeout"))
				_ = c.Close()
				return
			}
			if err := c.sendEnvelope(&mrpproto.ProtocolMessage{
				Type:       mrpproto.TypeHeartbeatMessage,
				Identifier: uuid.NewString(),
				Payload:    &mrpproto.HeartbeatMessage{},
			}); err != nil {
				atomic.AddInt32(&c.missedHeartbeats, 1)
				continue
			}
			atomic.AddInt32(&c.missedHeartbeats, 1)
		}
	}
}

// noteHeartbeatReply resets the missed-heartbeat counter; called from
// the read loop whenever any frame arrives, since a live peer answering
// other traffic is proof enough that it isn't hung.
func (c *Client) noteHeartbeatReply() {
	atomic.StoreInt32(&c.missedHeartbeats, 0)
}
