// Package mrpproto implements the MRP wire protocol: a varint-prefixed
// stream of protobuf messages wrapped in an outer ProtocolMessage
// envelope, with an enum-indexed jump table dispatching each envelope's
// declared type to its concrete inner message.
//
// There is no .proto source for this protocol, so messages are
// hand-encoded against the wire format directly using
// google.golang.org/protobuf/encoding/protowire rather than generated
// structs.
package mrpproto

import (
	"bufio"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// ReadFrame reads one varint-length-prefixed protobuf body from r.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	length, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("mrpproto: reading frame body of %d bytes: %w", length, err)
	}
	return body, nil
}

// WriteFrame writes a varint length prefix followed by body to w.
func WriteFrame(w io.Writer, body []byte) error {
	prefix := protowire.AppendVarint(nil, uint64(len(body)))
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readVarint(r *bufio.Reader) (uint64, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("mrpproto: reading frame length: %w", err)
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
		if len(buf) > 10 {
			return 0, fmt.Errorf("mrpproto: frame length varint too long")
		}
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, fmt.Errorf("mrpproto: malformed frame length varint")
	}
	return v, nil
}
