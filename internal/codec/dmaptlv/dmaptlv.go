// Package dmaptlv implements the DMAP/DAAP binary container format: a
// stream of (4-byte ASCII tag, 4-byte big-endian length, length bytes)
// entries, decoded against a tag dictionary that says whether a tag is a
// container, an integer of some width, a string, a boolean, raw bytes, or
// to be ignored.
package dmaptlv

import (
	"encoding/binary"
	"fmt"

	"github.com/atvkit/atvkit/internal/atvlog"
)

// Kind describes how a tag's payload should be interpreted.
type Kind int

const (
	KindContainer Kind = iota
	KindUint1
	KindUint2
	KindUint4
	KindUint8
	KindString
	KindBool
	KindRaw
	KindIgnore
)

// TagDict maps a 4-byte tag to its Kind. Unknown tags are treated as Raw
// and logged once at debug level.
type TagDict map[string]Kind

// Node is one decoded DMAP entry. Container nodes carry Children;
// everything else carries a decoded Value (int64, string, bool, or
// []byte depending on Kind).
type Node struct {
	Tag      string
	Kind     Kind
	Value    any
	Children []Node
}

var loggedUnknown = map[string]bool{}

// Decode parses a DMAP TLV buffer into a flat list of top-level nodes,
// recursing into containers. Unknown tags are decoded as raw bytes and
// logged once.
func Decode(data []byte, dict TagDict) ([]Node, error) {
	return decodeAll(data, dict)
}

func decodeAll(data []byte, dict TagDict) ([]Node, error) {
	var nodes []Node
	i := 0
	for i < len(data) {
		if i+8 > len(data) {
			return nil, fmt.Errorf("dmaptlv: truncated header at offset %d", i)
		}
		tag := string(data[i : i+4])
		length := int(binary.BigEndian.Uint32(data[i+4 : i+8]))
		i += 8
		if length < 0 || i+length > len(data) {
			return nil, fmt.Errorf("dmaptlv: tag %q length %d exceeds remaining buffer (%d bytes)", tag, length, len(data)-i)
		}
		payload := data[i : i+length]
		i += length

		kind, known := dict[tag]
		if !known {
			if !loggedUnknown[tag] {
				loggedUnknown[tag] = true
				atvlog.WithComponent("dmap").Debug("unknown DMAP tag, decoding as raw", "tag", tag)
			}
			kind = KindRaw
		}

		node := Node{Tag: tag, Kind: kind}
		switch kind {
		case KindContainer:
			children, err := decodeAll(payload, dict)
			if err != nil {
				return nil, err
			}
			node.Children = children
		case KindUint1:
			if len(payload) < 1 {
				return nil, fmt.Errorf("dmaptlv: tag %q too short for uint1", tag)
			}
			node.Value = int64(payload[0])
		case KindUint2:
			if len(payload) < 2 {
				return nil, fmt.Errorf("dmaptlv: tag %q too short for uint2", tag)
			}
			node.Value = int64(binary.BigEndian.Uint16(payload))
		case KindUint4:
			if len(payload) < 4 {
				return nil, fmt.Errorf("dmaptlv: tag %q too short for uint4", tag)
			}
			node.Value = int64(binary.BigEndian.Uint32(payload))
		case KindUint8:
			if len(payload) < 8 {
				return nil, fmt.Errorf("dmaptlv: tag %q too short for uint8", tag)
			}
			node.Value = int64(binary.BigEndian.Uint64(payload))
		case KindString:
			node.Value = string(payload)
		case KindBool:
			node.Value = len(payload) > 0 && payload[0] != 0
		case KindRaw, KindIgnore:
			node.Value = append([]byte{}, payload...)
		}

		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Encode serializes nodes back into DMAP TLV wire format.
func Encode(nodes []Node) ([]byte, error) {
	var out []byte
	for _, n := range nodes {
		var payload []byte
		switch n.Kind {
		case KindContainer:
			enc, err := Encode(n.Children)
			if err != nil {
				return nil, err
			}
			payload = enc
		case KindUint1:
			v, ok := n.Value.(int64)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected int64 for uint1", n.Tag)
			}
			payload = []byte{byte(v)}
		case KindUint2:
			v, ok := n.Value.(int64)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected int64 for uint2", n.Tag)
			}
			payload = make([]byte, 2)
			binary.BigEndian.PutUint16(payload, uint16(v))
		case KindUint4:
			v, ok := n.Value.(int64)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected int64 for uint4", n.Tag)
			}
			payload = make([]byte, 4)
			binary.BigEndian.PutUint32(payload, uint32(v))
		case KindUint8:
			v, ok := n.Value.(int64)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected int64 for uint8", n.Tag)
			}
			payload = make([]byte, 8)
			binary.BigEndian.PutUint64(payload, uint64(v))
		case KindString:
			s, ok := n.Value.(string)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected string", n.Tag)
			}
			payload = []byte(s)
		case KindBool:
			b, ok := n.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected bool", n.Tag)
			}
			if b {
				payload = []byte{1}
			} else {
				payload = []byte{0}
			}
		case KindRaw, KindIgnore:
			b, ok := n.Value.([]byte)
			if !ok {
				return nil, fmt.Errorf("dmaptlv: tag %q: expected []byte", n.Tag)
			}
			payload = b
		}

		if len(n.Tag) != 4 {
			return nil, fmt.Errorf("dmaptlv: tag %q must be exactly 4 bytes", n.Tag)
		}
		out = append(out, n.Tag...)
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
		out = append(out, lenBuf...)
		out = append(out, payload...)
	}
	return out, nil
}

// Find returns the first top-level node with the given tag.
func Find(nodes []Node, tag string) (Node, bool) {
	for _, n := range nodes {
		if n.Tag == tag {
			return n, true
		}
	}
	return Node{}, false
}
