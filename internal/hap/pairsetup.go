package hap

import (
	"crypto/ed25519"
	"math/big"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/tlv8"
	"github.com/atvkit/atvkit/internal/xcrypto"
)

// SetupState is one step of the Pair-Setup handshake.
type SetupState int

const (
	SetupIdle SetupState = iota
	SetupM1Sent
	SetupM2Recv
	SetupM3Sent
	SetupM4Recv
	SetupM5Sent
	SetupM6Recv
	SetupEstablished
)

func (s SetupState) String() string {
	switch s {
	case SetupIdle:
		return "Idle"
	case SetupM1Sent:
		return "M1Sent"
	case SetupM2Recv:
		return "M2Recv"
	case SetupM3Sent:
		return "M3Sent"
	case SetupM4Recv:
		return "M4Recv"
	case SetupM5Sent:
		return "M5Sent"
	case SetupM6Recv:
		return "M6Recv"
	case SetupEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// SetupResult is produced once Pair-Setup reaches SetupEstablished. For a
// normal handshake it carries the long-term identity this side persists
// plus the peer's verified long-term public key and pairing identifier.
// For transient pairing (AirPlay 2) Identity and PeerIdentifier are left
// zero and Session instead holds an already-established session keyed
// directly off the SRP secret, since no persistent credentials exist to
// pair-verify against later.
type SetupResult struct {
	Identity       *xcrypto.Ed25519KeyPair
	PeerIdentifier string
	PeerPublicKey  ed25519.PublicKey
	Session        *Session
}

// PairSetup drives the client side of the 6-message Pair-Setup flow:
// M1 request, M2 start, M3 verify, M4 verify, M5 exchange, M6 exchange.
// Transient mode (AirPlay 2) skips persisting an identity and instead
// derives a session key directly from the SRP secret.
type PairSetup struct {
	state      SetupState
	clientID   string
	password   []byte
	transient  bool

	srp       *xcrypto.ClientState
	sharedK   []byte
	clientM1  []byte
	identity  *xcrypto.Ed25519KeyPair

	peerIdentifier string
	peerPublicKey  ed25519.PublicKey
}

// NewPairSetup creates a Pair-Setup handshake. clientID is this side's
// persistent pairing identifier (a UUID string); password is the PIN
// the user enters, required unless transient is true.
func NewPairSetup(clientID string, password []byte, transient bool) *PairSetup {
	return &PairSetup{state: SetupIdle, clientID: clientID, password: password, transient: transient}
}

// BuildM1 emits the initial "start pairing" request.
func (p *PairSetup) BuildM1() ([]byte, error) {
	if p.state != SetupIdle {
		return nil, atverrors.Protocol("hap: BuildM1 called out of order (state %v)", p.state)
	}
	method := methodPairSetupWithAuth
	if p.transient {
		method = methodTransientPairSetup
	}
	items := []tlv8.Item{
		{Type: tlvState, Value: []byte{stateM1}},
		{Type: tlvMethod, Value: []byte{method}},
	}
	p.state = SetupM1Sent
	return tlv8.Encode(items), nil
}

// HandleM2BuildM3 consumes the server's M2 (salt, B) and emits M3 (A,
// client proof M1).
func (p *PairSetup) HandleM2BuildM3(m2 []byte) ([]byte, error) {
	if p.state != SetupM1Sent {
		return nil, atverrors.Protocol("hap: HandleM2BuildM3 called out of order (state %v)", p.state)
	}
	items, err := tlv8.Decode(m2)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding M2")
	}
	if errSub, ok := tlv8.Find(items, tlvError); ok {
		return nil, pairingErrorFromTLV(errSub)
	}
	salt, ok := tlv8.Find(items, tlvSalt)
	if !ok {
		return nil, atverrors.Protocol("hap: M2 missing salt")
	}
	bBytes, ok := tlv8.Find(items, tlvPublicKey)
	if !ok {
		return nil, atverrors.Protocol("hap: M2 missing public key")
	}

	identity := "Pair-Setup"
	srp, err := xcrypto.NewClient(xcrypto.Group3072, identity, p.password)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: starting SRP client")
	}
	p.srp = srp
	p.state = SetupM2Recv

	B := new(big.Int).SetBytes(bBytes)
	K, M1, err := srp.ComputeSessionKey(salt, B)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindAuthentication, err, "hap: computing SRP session key")
	}
	p.sharedK = K
	p.clientM1 = M1

	out := []tlv8.Item{
		{Type: tlvState, Value: []byte{stateM3}},
		{Type: tlvPublicKey, Value: srp.PublicKey().Bytes()},
		{Type: tlvProof, Value: M1},
	}
	p.state = SetupM3Sent
	return tlv8.Encode(out), nil
}

// HandleM4BuildM5 verifies the server's M4 proof, then builds M5: this
// side's identity encrypted under a session-derived key.
func (p *PairSetup) HandleM4BuildM5(m4 []byte) ([]byte, error) {
	if p.state != SetupM3Sent {
		return nil, atverrors.Protocol("hap: HandleM4BuildM5 called out of order (state %v)", p.state)
	}
	items, err := tlv8.Decode(m4)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding M4")
	}
	if errSub, ok := tlv8.Find(items, tlvError); ok {
		return nil, pairingErrorFromTLV(errSub)
	}
	serverProof, ok := tlv8.Find(items, tlvProof)
	if !ok {
		return nil, atverrors.Protocol("hap: M4 missing proof")
	}
	if !xcrypto.VerifyServerProof(p.srp.PublicKey(), p.clientM1, p.sharedK, serverProof) {
		return nil, atverrors.Pairing("bad PIN")
	}
	p.state = SetupM4Recv

	if p.transient {
		p.state = SetupEstablished
		return nil, nil
	}

	identity, err := xcrypto.GenerateEd25519KeyPair()
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: generating long-term identity")
	}
	p.identity = identity

	encryptKey, err := xcrypto.DeriveKey(p.sharedK, nil, xcrypto.InfoPairSetupEncrypt)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving M5 encrypt key")
	}
	signBuf := append([]byte{}, p.sharedK...)
	signBuf = append(signBuf, []byte(p.clientID)...)
	signBuf = append(signBuf, identity.Public...)
	signature := identity.Sign(signBuf)

	sub := tlv8.Encode([]tlv8.Item{
		{Type: tlvIdentifier, Value: []byte(p.clientID)},
		{Type: tlvPublicKey, Value: identity.Public},
		{Type: tlvSignature, Value: signature},
	})
	aead, err := xcrypto.NewAEAD(encryptKey)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: building M5 AEAD")
	}
	sealed, err := aead.Seal(sub, []byte("PS-Msg05"))
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: sealing M5")
	}

	out := []tlv8.Item{
		{Type: tlvState, Value: []byte{stateM5}},
		{Type: tlvEncryptedData, Value: sealed},
	}
	p.state = SetupM5Sent
	return tlv8.Encode(out), nil
}

// HandleM6 decrypts and verifies the server's M6 (its persistent
// identity and signature), completing Pair-Setup.
func (p *PairSetup) HandleM6(m6 []byte) (*SetupResult, error) {
	if p.transient {
		if p.state != SetupEstablished {
			return nil, atverrors.Protocol("hap: HandleM6 called out of order (state %v)", p.state)
		}
		writeKey, err := xcrypto.DeriveKey(p.sharedK, nil, xcrypto.InfoControlWrite)
		if err != nil {
			return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving transient control write key")
		}
		readKey, err := xcrypto.DeriveKey(p.sharedK, nil, xcrypto.InfoControlRead)
		if err != nil {
			return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving transient control read key")
		}
		session, err := NewSession(p.clientID, nil, writeKey, readKey)
		if err != nil {
			return nil, err
		}
		return &SetupResult{Session: session}, nil
	}
	if p.state != SetupM5Sent {
		return nil, atverrors.Protocol("hap: HandleM6 called out of order (state %v)", p.state)
	}
	items, err := tlv8.Decode(m6)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding M6")
	}
	if errSub, ok := tlv8.Find(items, tlvError); ok {
		return nil, pairingErrorFromTLV(errSub)
	}
	encrypted, ok := tlv8.Find(items, tlvEncryptedData)
	if !ok {
		return nil, atverrors.Protocol("hap: M6 missing encrypted data")
	}

	decryptKey, err := xcrypto.DeriveKey(p.sharedK, nil, xcrypto.InfoPairSetupEncrypt)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving M6 decrypt key")
	}
	aead, err := xcrypto.NewAEAD(decryptKey)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: building M6 AEAD")
	}
	plain, err := aead.Open(encrypted, []byte("PS-Msg06"))
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindAuthentication, err, "hap: decrypting M6")
	}

	subItems, err := tlv8.Decode(plain)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding M6 sub-TLV")
	}
	peerID, ok := tlv8.Find(subItems, tlvIdentifier)
	if !ok {
		return nil, atverrors.Protocol("hap: M6 missing peer identifier")
	}
	peerPub, ok := tlv8.Find(subItems, tlvPublicKey)
	if !ok {
		return nil, atverrors.Protocol("hap: M6 missing peer public key")
	}
	peerSig, ok := tlv8.Find(subItems, tlvSignature)
	if !ok {
		return nil, atverrors.Protocol("hap: M6 missing peer signature")
	}

	signBuf := append([]byte{}, p.sharedK...)
	signBuf = append(signBuf, peerID...)
	signBuf = append(signBuf, peerPub...)
	if !xcrypto.VerifySignature(ed25519.PublicKey(peerPub), signBuf, peerSig) {
		return nil, atverrors.Authentication("hap: peer signature verification failed in M6")
	}

	p.peerIdentifier = string(peerID)
	p.peerPublicKey = ed25519.PublicKey(peerPub)
	p.state = SetupEstablished

	return &SetupResult{
		Identity:       p.identity,
		PeerIdentifier: p.peerIdentifier,
		PeerPublicKey:  p.peerPublicKey,
	}, nil
}

func pairingErrorFromTLV(sub []byte) error {
	if len(sub) == 0 {
		return atverrors.Pairing("unspecified pairing error")
	}
	switch sub[0] {
	case tlvErrAuthentication:
		return atverrors.Pairing("bad PIN")
	case tlvErrBackoff:
		return atverrors.BackOff(0, "too many attempts, server requested backoff")
	case tlvErrMaxPeers:
		return atverrors.Pairing("server has reached its maximum number of pairings")
	case tlvErrMaxTries:
		return atverrors.Pairing("maximum authentication attempts exceeded")
	case tlvErrUnavailable:
		return atverrors.Pairing("pairing unavailable")
	case tlvErrBusy:
		return atverrors.Pairing("server busy, try again")
	default:
		return atverrors.Pairing("unknown pairing error sub-code %d", sub[0])
	}
}
