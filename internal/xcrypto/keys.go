package xcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

func sha512New() hash.Hash { return sha512.New() }

// HKDF info strings used across the four HAP key-derivation points.
const (
	InfoPairSetupEncrypt  = "Pair-Setup-Encrypt-Info"
	InfoPairVerifyEncrypt = "Pair-Verify-Encrypt-Info"
	InfoControlWrite      = "Control-Write-Encryption-Key"
	InfoControlRead       = "Control-Read-Encryption-Key"
)

// keySize is the output length of every derived HAP key: 32 bytes for
// ChaCha20-Poly1305.
const keySize = 32

// DeriveKey runs HKDF-SHA-512 over sharedSecret with the given salt and
// info string, returning a 32-byte key.
func DeriveKey(sharedSecret, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha512New, sharedSecret, salt, []byte(info))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("xcrypto: hkdf derive: %w", err)
	}
	return key, nil
}

// Curve25519KeyPair is an ephemeral ECDH key pair used in Pair-Verify.
type Curve25519KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateCurve25519KeyPair creates a fresh ephemeral X25519 key pair.
func GenerateCurve25519KeyPair() (*Curve25519KeyPair, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	kp := &Curve25519KeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// SharedSecret computes the X25519 shared secret with a peer's public key.
func (kp *Curve25519KeyPair) SharedSecret(peerPublic [32]byte) ([]byte, error) {
	return curve25519.X25519(kp.Private[:], peerPublic[:])
}

// Ed25519KeyPair is a long-term identity key pair persisted after
// Pair-Setup.
type Ed25519KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateEd25519KeyPair creates a new long-term identity key pair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519KeyPair{Public: pub, Private: priv}, nil
}

// Sign signs data with the long-term private key.
func (kp *Ed25519KeyPair) Sign(data []byte) []byte {
	return ed25519.Sign(kp.Private, data)
}

// VerifySignature verifies an Ed25519 signature against a peer's public
// key.
func VerifySignature(peerPublic ed25519.PublicKey, data, signature []byte) bool {
	return ed25519.Verify(peerPublic, data, signature)
}
