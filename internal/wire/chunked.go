package wire

import (
	"fmt"

	"github.com/atvkit/atvkit/internal/atverrors"
)

// encodeChunks wraps body as a single HTTP/1.1 chunked-transfer body:
// one chunk carrying the whole payload, followed by the zero-length
// terminating chunk. Splitting into multiple chunks is never required
// since the caller always has the full body in memory before writing.
func encodeChunks(body []byte) []byte {
	if len(body) == 0 {
		return []byte("0\r\n\r\n")
	}
	out := []byte(fmt.Sprintf("%x\r\n", len(body)))
	out = append(out, body...)
	out = append(out, "\r\n0\r\n\r\n"...)
	return out
}

// readChunkedBody decodes a chunked-transfer body, stopping at the
// zero-length terminating chunk and discarding any trailer headers.
func (c *Conn) readChunkedBody() ([]byte, error) {
	var body []byte
	for {
		sizeLine, err := c.readLine()
		if err != nil {
			return nil, atverrors.Wrap(atverrors.KindConnection, err, "wire: reading chunk size")
		}
		var size int
		if _, err := fmt.Sscanf(sizeLine, "%x", &size); err != nil {
			return nil, atverrors.Wrap(atverrors.KindProtocol, err, "wire: invalid chunk size %q", sizeLine)
		}
		if size == 0 {
			for {
				trailer, err := c.readLine()
				if err != nil {
					return nil, atverrors.Wrap(atverrors.KindConnection, err, "wire: reading chunk trailer")
				}
				if trailer == "" {
					break
				}
			}
			return body, nil
		}
		if err := c.needPlain(size + 2); err != nil {
			return nil, atverrors.Wrap(atverrors.KindConnection, err, "wire: reading chunk body")
		}
		chunk := c.take(size + 2)
		body = append(body, chunk[:size]...)
	}
}
