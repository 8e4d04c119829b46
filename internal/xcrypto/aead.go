package xcrypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceCounter builds the 96-bit ChaCha20-Poly1305 nonces HAP framing
// uses: a 64-bit little-endian counter in the low 8 bytes, zero in the
// upper 4 bytes. Nonces must never repeat for a given key; Next panics if
// the counter would wrap, since that would mean roughly 2^64 frames were
// sent on one session.
type NonceCounter struct {
	counter uint64
}

// Next returns the nonce for the next frame and advances the counter.
func (n *NonceCounter) Next() [chacha20poly1305.NonceSize]byte {
	if n.counter == ^uint64(0) {
		panic("xcrypto: nonce counter exhausted")
	}
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n.counter)
	n.counter++
	return nonce
}

// AEAD wraps one ChaCha20-Poly1305 key with its own nonce counter, one
// per direction of a HapSession.
type AEAD struct {
	key   [32]byte
	nonce NonceCounter
}

// NewAEAD creates an AEAD keyed by a 32-byte HKDF-derived key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("xcrypto: chacha20poly1305 key must be 32 bytes, got %d", len(key))
	}
	a := &AEAD{}
	copy(a.key[:], key)
	return a, nil
}

// Seal encrypts plaintext, authenticating aad, using the next nonce.
func (a *AEAD) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(a.key[:])
	if err != nil {
		return nil, err
	}
	nonce := a.nonce.Next()
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// Open decrypts ciphertext, verifying aad, using the next expected nonce.
func (a *AEAD) Open(ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(a.key[:])
	if err != nil {
		return nil, err
	}
	nonce := a.nonce.Next()
	pt, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: decrypt frame: %w", err)
	}
	return pt, nil
}

// FrameAAD builds the 2-byte little-endian length AAD HAP transport
// framing authenticates alongside each encrypted chunk.
func FrameAAD(payloadLen int) []byte {
	aad := make([]byte, 2)
	binary.LittleEndian.PutUint16(aad, uint16(payloadLen))
	return aad
}

// MaxFrameSize is the largest plaintext chunk HAP's pre/post-processors
// encrypt as a single frame.
const MaxFrameSize = 1024

// TagSize is the ChaCha20-Poly1305 authentication tag length appended to
// every sealed frame.
const TagSize = chacha20poly1305.Overhead
