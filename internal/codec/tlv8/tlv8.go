// Package tlv8 implements Apple HAP's TLV8 framing: a stream of
// (1-byte type, 1-byte length <= 255, length bytes) entries. Values
// longer than 255 bytes are split across consecutive same-type entries,
// which Decode coalesces back into one value.
package tlv8

import (
	"fmt"
)

const maxChunk = 255

// Item is one decoded TLV8 entry with its fragments already coalesced.
type Item struct {
	Type  byte
	Value []byte
}

// Encode serializes items in order, splitting any value over 255 bytes
// into consecutive chunks of the same type.
func Encode(items []Item) []byte {
	var out []byte
	for _, it := range items {
		v := it.Value
		if len(v) == 0 {
			out = append(out, it.Type, 0)
			continue
		}
		for len(v) > 0 {
			n := len(v)
			if n > maxChunk {
				n = maxChunk
			}
			out = append(out, it.Type, byte(n))
			out = append(out, v[:n]...)
			v = v[n:]
		}
	}
	return out
}

// Decode parses a TLV8 byte stream into coalesced items, preserving the
// order types first appear in. A value split across repeated same-type
// chunks is only coalesced when the chunks are consecutive, matching HAP's
// framing rule (a different type byte in between starts a new item).
func Decode(data []byte) ([]Item, error) {
	var items []Item
	i := 0
	for i < len(data) {
		if i+2 > len(data) {
			return nil, fmt.Errorf("tlv8: truncated header at offset %d", i)
		}
		typ := data[i]
		length := int(data[i+1])
		i += 2
		if i+length > len(data) {
			return nil, fmt.Errorf("tlv8: value for type %d exceeds buffer (need %d, have %d)", typ, length, len(data)-i)
		}
		value := data[i : i+length]
		i += length

		// Consecutive entries of the same type are fragments of one value
		// that was split because it exceeded 255 bytes.
		if n := len(items); n > 0 && items[n-1].Type == typ {
			items[n-1].Value = append(items[n-1].Value, value...)
			continue
		}

		items = append(items, Item{Type: typ, Value: append([]byte{}, value...)})
	}
	return items, nil
}

// Find returns the coalesced value for the first item of the given type.
func Find(items []Item, typ byte) ([]byte, bool) {
	for _, it := range items {
		if it.Type == typ {
			return it.Value, true
		}
	}
	return nil, false
}

// FindAll returns every item of the given type, in order.
func FindAll(items []Item, typ byte) [][]byte {
	var out [][]byte
	for _, it := range items {
		if it.Type == typ {
			out = append(out, it.Value)
		}
	}
	return out
}
