package hap

import (
	"crypto/ed25519"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/tlv8"
	"github.com/atvkit/atvkit/internal/xcrypto"
)

// VerifyState is one step of the Pair-Verify handshake.
type VerifyState int

const (
	VerifyIdle VerifyState = iota
	VerifyM1Sent
	VerifyM2Recv
	VerifyM3Sent
	VerifyM4Recv
	VerifyEstablished
)

func (s VerifyState) String() string {
	switch s {
	case VerifyIdle:
		return "Idle"
	case VerifyM1Sent:
		return "M1Sent"
	case VerifyM2Recv:
		return "M2Recv"
	case VerifyM3Sent:
		return "M3Sent"
	case VerifyM4Recv:
		return "M4Recv"
	case VerifyEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// PairVerify drives the client side of the 4-message Pair-Verify flow,
// establishing a fresh per-connection Session from an ephemeral
// Curve25519 exchange authenticated by the long-term identities
// Pair-Setup produced.
type PairVerify struct {
	state VerifyState

	clientID      string
	identity      *xcrypto.Ed25519KeyPair
	peerPublicKey ed25519.PublicKey

	ephemeral    *xcrypto.Curve25519KeyPair
	sharedSecret []byte
	peerEphemeralPublic [32]byte
}

// NewPairVerify creates a Pair-Verify handshake using the long-term
// identity and the peer's long-term public key Pair-Setup produced.
func NewPairVerify(clientID string, identity *xcrypto.Ed25519KeyPair, peerPublicKey ed25519.PublicKey) *PairVerify {
	return &PairVerify{state: VerifyIdle, clientID: clientID, identity: identity, peerPublicKey: peerPublicKey}
}

// BuildM1 generates this side's ephemeral Curve25519 key pair and emits
// the verify-start request.
func (p *PairVerify) BuildM1() ([]byte, error) {
	if p.state != VerifyIdle {
		return nil, atverrors.Protocol("hap: BuildM1 called out of order (state %v)", p.state)
	}
	ephemeral, err := xcrypto.GenerateCurve25519KeyPair()
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: generating Pair-Verify ephemeral key")
	}
	p.ephemeral = ephemeral

	out := []tlv8.Item{
		{Type: tlvState, Value: []byte{stateM1}},
		{Type: tlvPublicKey, Value: ephemeral.Public[:]},
	}
	p.state = VerifyM1Sent
	return tlv8.Encode(out), nil
}

// HandleM2BuildM3 consumes the server's ephemeral key and encrypted,
// signed proof of identity, verifies it, and emits M3 with this side's
// own signed proof.
func (p *PairVerify) HandleM2BuildM3(m2 []byte) ([]byte, error) {
	if p.state != VerifyM1Sent {
		return nil, atverrors.Protocol("hap: HandleM2BuildM3 called out of order (state %v)", p.state)
	}
	items, err := tlv8.Decode(m2)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding Pair-Verify M2")
	}
	if errSub, ok := tlv8.Find(items, tlvError); ok {
		return nil, pairingErrorFromTLV(errSub)
	}
	peerPub, ok := tlv8.Find(items, tlvPublicKey)
	if !ok || len(peerPub) != 32 {
		return nil, atverrors.Protocol("hap: Pair-Verify M2 missing/invalid public key")
	}
	encrypted, ok := tlv8.Find(items, tlvEncryptedData)
	if !ok {
		return nil, atverrors.Protocol("hap: Pair-Verify M2 missing encrypted data")
	}
	copy(p.peerEphemeralPublic[:], peerPub)

	shared, err := p.ephemeral.SharedSecret(p.peerEphemeralPublic)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: computing Pair-Verify shared secret")
	}
	p.sharedSecret = shared
	p.state = VerifyM2Recv

	decryptKey, err := xcrypto.DeriveKey(shared, nil, xcrypto.InfoPairVerifyEncrypt)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving Pair-Verify decrypt key")
	}
	aead, err := xcrypto.NewAEAD(decryptKey)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: building Pair-Verify decrypt AEAD")
	}
	plain, err := aead.Open(encrypted, []byte("PV-Msg02"))
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindAuthentication, err, "hap: decrypting Pair-Verify M2")
	}

	subItems, err := tlv8.Decode(plain)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding Pair-Verify M2 sub-TLV")
	}
	peerID, ok := tlv8.Find(subItems, tlvIdentifier)
	if !ok {
		return nil, atverrors.Protocol("hap: Pair-Verify M2 missing peer identifier")
	}
	peerSig, ok := tlv8.Find(subItems, tlvSignature)
	if !ok {
		return nil, atverrors.Protocol("hap: Pair-Verify M2 missing peer signature")
	}

	signBuf := append([]byte{}, p.peerEphemeralPublic[:]...)
	signBuf = append(signBuf, peerID...)
	signBuf = append(signBuf, p.ephemeral.Public[:]...)
	if !xcrypto.VerifySignature(p.peerPublicKey, signBuf, peerSig) {
		return nil, atverrors.Authentication("hap: Pair-Verify peer signature verification failed")
	}

	mySignBuf := append([]byte{}, p.ephemeral.Public[:]...)
	mySignBuf = append(mySignBuf, []byte(p.clientID)...)
	mySignBuf = append(mySignBuf, p.peerEphemeralPublic[:]...)
	mySig := p.identity.Sign(mySignBuf)

	sub := tlv8.Encode([]tlv8.Item{
		{Type: tlvIdentifier, Value: []byte(p.clientID)},
		{Type: tlvSignature, Value: mySig},
	})
	encryptKey, err := xcrypto.DeriveKey(shared, nil, xcrypto.InfoPairVerifyEncrypt)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving Pair-Verify encrypt key")
	}
	encAEAD, err := xcrypto.NewAEAD(encryptKey)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: building Pair-Verify encrypt AEAD")
	}
	sealed, err := encAEAD.Seal(sub, []byte("PV-Msg03"))
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: sealing Pair-Verify M3")
	}

	out := []tlv8.Item{
		{Type: tlvState, Value: []byte{stateM3}},
		{Type: tlvEncryptedData, Value: sealed},
	}
	p.state = VerifyM3Sent
	return tlv8.Encode(out), nil
}

// HandleM4 confirms the server accepted M3 and derives the session's
// two direction keys, returning an established Session.
func (p *PairVerify) HandleM4(m4 []byte) (*Session, error) {
	if p.state != VerifyM3Sent {
		return nil, atverrors.Protocol("hap: HandleM4 called out of order (state %v)", p.state)
	}
	items, err := tlv8.Decode(m4)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindProtocol, err, "hap: decoding Pair-Verify M4")
	}
	if errSub, ok := tlv8.Find(items, tlvError); ok {
		return nil, pairingErrorFromTLV(errSub)
	}
	p.state = VerifyM4Recv

	writeKey, err := xcrypto.DeriveKey(p.sharedSecret, nil, xcrypto.InfoControlWrite)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving control write key")
	}
	readKey, err := xcrypto.DeriveKey(p.sharedSecret, nil, xcrypto.InfoControlRead)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindPairing, err, "hap: deriving control read key")
	}

	session, err := NewSession(p.clientID, p.peerPublicKey, writeKey, readKey)
	if err != nil {
		return nil, err
	}
	p.state = VerifyEstablished
	return session, nil
}
