// Package xcrypto implements the cryptographic primitives HAP pairing is
// built from: SRP-6a (hand-written, see below), Curve25519 ephemeral ECDH,
// Ed25519 long-term signatures, HKDF-SHA-512 key derivation, and
// ChaCha20-Poly1305 AEAD framing. Everything except SRP-6a is a thin
// wrapper over golang.org/x/crypto; SRP-6a has no corpus or ecosystem
// library that implements RFC 5054's 3072-bit group with Apple's exact
// verifier/session-key derivation, so its big.Int modular arithmetic is
// written from the RFC directly.
package xcrypto

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// rfc5054Group3072Hex is the 3072-bit MODP group from RFC 5054 Appendix A
// (equivalently RFC 3526 Group 15), generator 5.
const rfc5054Group3072Hex = "" +
	"FFFFFFFFFFFFFFFFADF85458A2BB4A9AAFDC5620273D3CF1D8B9C583CE2D3695A9E13" +
	"641146433FBCC939DCE249B3EF97D2FE363630C75D8F681B202AEC4617AD3DF1ED5D5" +
	"FD65612433F51F5F066ED0856365553DED1AF3B557135E7F57C935984F0C70E0E68B7" +
	"7E2A689DAF3EFE8721DF158A136ADE73530ACCA4F483A797ABC0AB182B324FB61D108" +
	"A94BB2C8E3FBB96ADAB760D7F4681D4F42A3DE394DF4AE56EDE76372BB190B07A7C8E" +
	"E0A6D709E02FCE1CDF7E2ECC03404CD28342F619172FE9CE98583FF8E4F1232EEF281" +
	"83C3FE3B1B4C6FAD733BB5FCBC2EC22005C58EF1837D1683B2C6F34A26C1B2EFFA886" +
	"B4238611FCFDCDE355B3B6519035BBC34F4DEF99C023861B46FC9D6E6C9077AD91D26" +
	"91F7F7EE598CB0FAC186D91CAEFE130985139270B4130C93BC437944F4FD4452E2D74" +
	"DD364F2E21E71F54BFF5CAE82AB9C9DF69EE86D2BC522363A0DABC521979B0DEADA1D" +
	"BF9A42D5C4484E0ABCD06BFA53DDEF3C1B20EE3FD59D7C25E41D2B66C62E37FFFFFFF" +
	"FFFFFFFFF"

// Group holds the modular-arithmetic parameters for one SRP group.
type Group struct {
	N *big.Int
	G *big.Int
}

// Group3072 is the RFC 5054 3072-bit group HAP pairing uses.
var Group3072 = mustGroup(rfc5054Group3072Hex, "5")

func mustGroup(nHex, g string) *Group {
	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		panic("xcrypto: invalid group modulus")
	}
	gg, ok := new(big.Int).SetString(g, 10)
	if !ok {
		panic("xcrypto: invalid generator")
	}
	return &Group{N: n, G: gg}
}

// hashXORByte computes H(N) XOR H(PAD(g)), with g left-padded to N's
// byte length, as used in SRP-6a's client proof M1.
func (g *Group) hashXORByte() []byte {
	nLen := (g.N.BitLen() + 7) / 8
	hn := sha512.Sum512(g.N.Bytes())
	padded := make([]byte, nLen)
	gBytes := g.G.Bytes()
	copy(padded[nLen-len(gBytes):], gBytes)
	hg := sha512.Sum512(padded)

	out := make([]byte, len(hn))
	for i := range out {
		out[i] = hn[i] ^ hg[i]
	}
	return out
}

// ClientState holds one SRP-6a client handshake's ephemeral values.
type ClientState struct {
	group      *Group
	identity   string
	password   []byte
	a          *big.Int
	A          *big.Int
	privateKey *big.Int
}

// NewClient begins a client-side SRP-6a handshake for the given identity
// (HAP uses "Pair-Setup" or "Pair-Verify") and password (the numeric PIN).
func NewClient(group *Group, identity string, password []byte) (*ClientState, error) {
	a, err := rand.Int(rand.Reader, group.N)
	if err != nil {
		return nil, fmt.Errorf("xcrypto: generate a: %w", err)
	}
	if a.Sign() == 0 {
		a = big.NewInt(1)
	}
	A := new(big.Int).Exp(group.G, a, group.N)
	return &ClientState{group: group, identity: identity, password: password, a: a, A: A}, nil
}

// PublicKey returns A, the client's public ephemeral key.
func (c *ClientState) PublicKey() *big.Int { return c.A }

// u computes the SRP scrambling parameter u = H(A | B).
func u(group *Group, A, B *big.Int) *big.Int {
	h := sha512.New()
	padAndWrite(h, group.N, A)
	padAndWrite(h, group.N, B)
	return new(big.Int).SetBytes(h.Sum(nil))
}

func padAndWrite(h interface{ Write([]byte) (int, error) }, n, v *big.Int) {
	size := (n.BitLen() + 7) / 8
	b := v.Bytes()
	if len(b) < size {
		pad := make([]byte, size-len(b))
		h.Write(pad)
	}
	h.Write(b)
}

// x computes the SRP private key x = H(salt | H(identity | ":" | password)).
func x(salt []byte, identity string, password []byte) *big.Int {
	inner := sha512.New()
	inner.Write([]byte(identity))
	inner.Write([]byte(":"))
	inner.Write(password)
	innerHash := inner.Sum(nil)

	outer := sha512.New()
	outer.Write(salt)
	outer.Write(innerHash)
	return new(big.Int).SetBytes(outer.Sum(nil))
}

// ComputeSessionKey derives the shared SRP session key K and the client's
// proof M1, given the server's salt and public key B.
func (c *ClientState) ComputeSessionKey(salt []byte, B *big.Int) (K, M1 []byte, err error) {
	n := c.group.N
	if new(big.Int).Mod(B, n).Sign() == 0 {
		return nil, nil, fmt.Errorf("xcrypto: server sent B == 0 mod N")
	}

	uVal := u(c.group, c.A, B)
	if uVal.Sign() == 0 {
		return nil, nil, fmt.Errorf("xcrypto: u == 0")
	}

	xVal := x(salt, c.identity, c.password)
	c.privateKey = xVal

	// k = H(N | PAD(g))
	kh := sha512.New()
	padAndWrite(kh, n, n)
	padAndWrite(kh, n, c.group.G)
	kVal := new(big.Int).SetBytes(kh.Sum(nil))

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(c.group.G, xVal, n)
	kgx := new(big.Int).Mul(kVal, gx)
	kgx.Mod(kgx, n)

	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, n)
	if base.Sign() < 0 {
		base.Add(base, n)
	}

	exp := new(big.Int).Mul(uVal, xVal)
	exp.Add(exp, c.a)

	S := new(big.Int).Exp(base, exp, n)

	hk := sha512.New()
	hk.Write(S.Bytes())
	K = hk.Sum(nil)

	xorHash := c.group.hashXORByte()
	idHash := sha512.Sum512([]byte(c.identity))

	m1 := sha512.New()
	m1.Write(xorHash)
	m1.Write(idHash[:])
	m1.Write(salt)
	m1.Write(c.A.Bytes())
	m1.Write(B.Bytes())
	m1.Write(K)
	M1 = m1.Sum(nil)

	return K, M1, nil
}

// VerifyServerProof checks the server's M2 proof against the session
// values this client computed.
func VerifyServerProof(A *big.Int, M1, K, M2 []byte) bool {
	h := sha512.New()
	h.Write(A.Bytes())
	h.Write(M1)
	h.Write(K)
	expected := h.Sum(nil)
	return subtle.ConstantTimeCompare(expected, M2) == 1
}
