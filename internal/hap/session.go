package hap

import (
	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/xcrypto"
)

// Session is the keyed state shared by one HAP-encrypted TCP connection:
// two ChaCha20-Poly1305 keys (one per direction) with independent nonce
// counters, the negotiated pair identifier, and the peer's long-term
// public key. A Session is single-owner and dies with its socket.
type Session struct {
	PairID    string
	PeerPublicKey []byte

	encryptKey *xcrypto.AEAD
	decryptKey *xcrypto.AEAD
}

// NewSession builds a Session from the two direction keys Pair-Verify
// (or transient Pair-Setup) derived.
func NewSession(pairID string, peerPublicKey, encryptKey, decryptKey []byte) (*Session, error) {
	enc, err := xcrypto.NewAEAD(encryptKey)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "hap: building encrypt AEAD")
	}
	dec, err := xcrypto.NewAEAD(decryptKey)
	if err != nil {
		return nil, atverrors.Wrap(atverrors.KindConnection, err, "hap: building decrypt AEAD")
	}
	return &Session{
		PairID:        pairID,
		PeerPublicKey: peerPublicKey,
		encryptKey:    enc,
		decryptKey:    dec,
	}, nil
}

// Encrypt is the transport pre-processor: it chunks plaintext into
// xcrypto.MaxFrameSize pieces, each framed as a 2-byte little-endian
// length plus sealed ciphertext+tag, ready to write to the socket.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	var out []byte
	for len(plaintext) > 0 {
		n := len(plaintext)
		if n > xcrypto.MaxFrameSize {
			n = xcrypto.MaxFrameSize
		}
		chunk := plaintext[:n]
		plaintext = plaintext[n:]

		aad := xcrypto.FrameAAD(len(chunk))
		sealed, err := s.encryptKey.Seal(chunk, aad)
		if err != nil {
			return nil, atverrors.Wrap(atverrors.KindConnection, err, "hap: sealing frame")
		}

		out = append(out, aad...)
		out = append(out, sealed...)
	}
	return out, nil
}

// Decrypt is the transport post-processor: it consumes as many complete
// length-prefixed encrypted frames as are present in data, returning
// the concatenated plaintext and the number of bytes consumed (always a
// multiple of a full frame — callers buffer the remainder until more
// data arrives).
func (s *Session) Decrypt(data []byte) (plaintext []byte, consumed int, err error) {
	for len(data) >= 2 {
		frameLen := int(data[0]) | int(data[1])<<8
		total := 2 + frameLen + xcrypto.TagSize
		if len(data) < total {
			break
		}
		aad := data[:2]
		sealed := data[2:total]
		opened, err := s.decryptKey.Open(sealed, aad)
		if err != nil {
			return nil, consumed, atverrors.Wrap(atverrors.KindConnection, err, "hap: decrypting frame")
		}
		plaintext = append(plaintext, opened...)
		data = data[total:]
		consumed += total
	}
	return plaintext, consumed, nil
}
