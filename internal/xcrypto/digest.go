package xcrypto

import (
	"crypto/md5"
	"fmt"
)

// DigestResponse computes an RFC 2069-style HTTP Digest response hash:
// MD5(MD5(username:realm:password):nonce:MD5(method:uri)). This is the
// no-qop, no-cnonce variant legacy AirPlay/RAOP receivers challenge a
// password against, so it lives beside the rest of this package's
// protocol-mandated crypto primitives rather than in net/http's own
// (qop-aware, client-only) digest handling.
func DigestResponse(username, realm, password, nonce, method, uri string) string {
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", username, realm, password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
	return md5Hex(fmt.Sprintf("%s:%s:%s", ha1, nonce, ha2))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}
