package atv

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/mrpproto"
	"github.com/atvkit/atvkit/internal/mrp"
	"github.com/atvkit/atvkit/internal/pairing"
	"github.com/atvkit/atvkit/internal/storage"
)

const maxPairingFrameBody = 1 << 20

// lengthPrefixedChannel frames TLV8 messages with the same 4-byte
// length prefix Companion and the raw HAP Pair-Setup/Pair-Verify
// exchange use before any session exists — the shape
// internal/companion's frame.go applies once a session is
// installed, minus the encryption step this runs before one exists.
type lengthPrefixedChannel struct {
	nc net.Conn
}

func newLengthPrefixedChannel(nc net.Conn) pairing.Channel {
	return &lengthPrefixedChannel{nc: nc}
}

func (c *lengthPrefixedChannel) WriteTLV8(data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := c.nc.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(data)
	return err
}

func (c *lengthPrefixedChannel) ReadTLV8() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "pairing: reading frame header")
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxPairingFrameBody {
		return nil, atverrors.Protocol("pairing: frame body too large (%d bytes)", n)
	}
	body := make([]byte, n)
	_, err := io.ReadFull(c.nc, body)
	return body, err
}

func (c *lengthPrefixedChannel) Close() error { return c.nc.Close() }

// mrpPairingChannel tunnels TLV8 through MRP's CryptoPairingMessage
// protobuf envelope, per internal/mrp/client.go's sendCryptoPairing/
// recvCryptoPairing.
type mrpPairingChannel struct {
	transport mrp.Transport
}

func newMRPPairingChannel(transport mrp.Transport) pairing.Channel {
	return &mrpPairingChannel{transport: transport}
}

func (c *mrpPairingChannel) WriteTLV8(data []byte) error {
	body, err := mrpproto.Encode(&mrpproto.ProtocolMessage{
		Type:    mrpproto.TypeCryptoPairingMessage,
		Payload: &mrpproto.CryptoPairingMessage{Data: data},
	})
	if err != nil {
		return err
	}
	return c.transport.SendFrame(body)
}

func (c *mrpPairingChannel) ReadTLV8() ([]byte, error) {
	body, err := c.transport.RecvFrame()
	if err != nil {
		return nil, err
	}
	pm, err := mrpproto.Decode(body)
	if err != nil {
		return nil, err
	}
	cp, ok := pm.Payload.(*mrpproto.CryptoPairingMessage)
	if !ok {
		return nil, atverrors.Protocol("pairing: expected CryptoPairingMessage, got type %d", pm.Type)
	}
	return cp.Data, nil
}

func (c *mrpPairingChannel) Close() error { return c.transport.Close() }

// Pair opens Begin on the orchestrator matching svc's protocol against
// dev. Callers drive PIN/Finish themselves (the device may prompt for a
// PIN shown on-screen, or itself ask the user for one depending on
// orchestrator.DeviceProvidesPIN).
func Pair(ctx context.Context, dev *DeviceConfiguration, svc ServiceKind, opts ...Option) (pairing.Orchestrator, error) {
	service, ok := findService(dev, svc)
	if !ok {
		return nil, atverrors.InvalidArgument("atv: device %q has no %s service", dev.Name, svc)
	}
	addr := net.JoinHostPort(dev.Address.String(), fmt.Sprint(service.Port))

	switch svc {
	case ServiceMRP:
		transport, err := mrp.DialTCP(addr)
		if err != nil {
			return nil, err
		}
		return pairing.NewHAPOrchestrator(newMRPPairingChannel(transport)), nil

	case ServiceCompanion:
		nc, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, atverrors.Wrap(atverrors.KindConnection, err, "atv: dialing %s for pairing", addr)
		}
		return pairing.NewHAPOrchestrator(newLengthPrefixedChannel(nc)), nil

	case ServiceDMAP:
		return pairing.NewDMAPOrchestrator(addr), nil

	case ServiceAirPlay, ServiceRAOP:
		return pairing.NewAirPlayLegacyOrchestrator(addr), nil

	default:
		return nil, atverrors.NotSupported("atv: pairing not supported for %s", svc)
	}
}

func findService(dev *DeviceConfiguration, kind ServiceKind) (Service, bool) {
	for _, svc := range dev.Services {
		if svc.Protocol == kind {
			return svc, true
		}
	}
	return Service{}, false
}

// protocolKey names the Credentials map key connectService reads back
// for svc — "mrp"/"companion"/"dmap" rather than ServiceKind.String()'s
// display form, so a stored record survives a rename of that method.
func protocolKey(svc ServiceKind) string {
	switch svc {
	case ServiceMRP:
		return "mrp"
	case ServiceCompanion:
		return "companion"
	case ServiceDMAP:
		return "dmap"
	case ServiceAirPlay, ServiceRAOP:
		return "airplay"
	default:
		return ""
	}
}

// SaveCredentials persists a finished Orchestrator's Credentials into
// store, keyed under dev's primary stable identifier — the record
// Connect later reads back to dial that protocol without pairing again.
func SaveCredentials(store storage.Storage, dev *DeviceConfiguration, svc ServiceKind, creds pairing.Credentials) error {
	if store == nil {
		return atverrors.InvalidArgument("atv: no storage configured to save pairing credentials")
	}
	id := primaryIdentifier(dev)
	if id == "" {
		return atverrors.InvalidArgument("atv: device %q has no stable identifier to key credentials on", dev.Name)
	}
	key := protocolKey(svc)
	if key == "" {
		return atverrors.NotSupported("atv: no credential storage key for %s", svc)
	}

	settings, ok := store.GetSettings(id)
	if !ok {
		settings = storage.DeviceSettings{Identifier: id, Name: dev.Name}
	}
	if settings.Credentials == nil {
		settings.Credentials = make(map[string]storage.Credentials)
	}

	switch svc {
	case ServiceDMAP:
		settings.Credentials[key] = storage.Credentials{PairingGUID: creds.PairingGUID}
	case ServiceAirPlay, ServiceRAOP:
		settings.Credentials[key] = storage.Credentials{
			Identity:   creds.AirPlayPrivateKey,
			PeerPublic: creds.PeerPublicKey,
			ClientID:   creds.AirPlayIdentifier,
		}
	default:
		settings.Credentials[key] = storage.Credentials{
			Identity:   creds.Identity,
			PeerPublic: creds.PeerPublicKey,
			ClientID:   creds.ClientID,
		}
	}

	store.UpdateSettings(id, settings)
	return nil
}
