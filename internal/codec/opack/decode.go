package opack

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Decoder deserializes an OPACK buffer, resolving back-references against
// a table of values keyed by the byte offset they were first decoded at.
type Decoder struct {
	data    []byte
	offsets map[int]any
}

// NewDecoder creates a Decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data, offsets: make(map[int]any)}
}

// Decode parses a single top-level value starting at offset 0.
func (d *Decoder) Decode() (any, error) {
	v, _, err := d.decodeAt(0)
	return v, err
}

// Decode is a convenience wrapper that allocates a fresh Decoder.
func Decode(data []byte) (any, error) {
	return NewDecoder(data).Decode()
}

func (d *Decoder) decodeAt(off int) (any, int, error) {
	if off >= len(d.data) {
		return nil, off, fmt.Errorf("opack: unexpected end of buffer at offset %d", off)
	}
	start := off
	op := d.data[off]

	switch {
	case op == opTrue:
		return d.remember(start, true), off + 1, nil
	case op == opFalse:
		return d.remember(start, false), off + 1, nil
	case op == opTerminator:
		return nil, off + 1, nil
	case op == opFloat32:
		if off+5 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated float32 at offset %d", off)
		}
		bits := binary.LittleEndian.Uint32(d.data[off+1 : off+5])
		return d.remember(start, math.Float32frombits(bits)), off + 5, nil
	case op == opFloat64:
		if off+9 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated float64 at offset %d", off)
		}
		bits := binary.LittleEndian.Uint64(d.data[off+1 : off+9])
		return d.remember(start, math.Float64frombits(bits)), off + 9, nil
	case op == opUUIDTag:
		if off+17 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated uuid at offset %d", off)
		}
		var u uuid.UUID
		copy(u[:], d.data[off+1:off+17])
		return d.remember(start, u), off + 17, nil
	case op >= opIntBase && op <= opIntSmallMax:
		return d.remember(start, int64(op-opIntBase)), off + 1, nil
	case op == op1ByteInt:
		if off+2 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated int8 at offset %d", off)
		}
		return d.remember(start, int64(int8(d.data[off+1]))), off + 2, nil
	case op == op2ByteInt:
		if off+3 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated int16 at offset %d", off)
		}
		return d.remember(start, int64(int16(binary.LittleEndian.Uint16(d.data[off+1:off+3])))), off + 3, nil
	case op == op4ByteInt:
		if off+5 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated int32 at offset %d", off)
		}
		return d.remember(start, int64(int32(binary.LittleEndian.Uint32(d.data[off+1:off+5])))), off + 5, nil
	case op == op8ByteInt:
		if off+9 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated int64 at offset %d", off)
		}
		return d.remember(start, int64(binary.LittleEndian.Uint64(d.data[off+1:off+9]))), off + 9, nil
	case op >= opStrBase && op <= opStrBase+0x20:
		n := int(op - opStrBase)
		return d.decodeString(start, off+1, n)
	case op == opStr1:
		if off+2 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated string length at offset %d", off)
		}
		return d.decodeString(start, off+2, int(d.data[off+1]))
	case op == opStr2:
		if off+3 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated string length at offset %d", off)
		}
		return d.decodeString(start, off+3, int(binary.LittleEndian.Uint16(d.data[off+1:off+3])))
	case op == opStr4:
		if off+5 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated string length at offset %d", off)
		}
		return d.decodeString(start, off+5, int(binary.LittleEndian.Uint32(d.data[off+1:off+5])))
	case op >= opDataBase && op <= opDataBase+0x20:
		n := int(op - opDataBase)
		return d.decodeData(start, off+1, n)
	case op == opData1:
		if off+2 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated data length at offset %d", off)
		}
		return d.decodeData(start, off+2, int(d.data[off+1]))
	case op == opData2:
		if off+3 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated data length at offset %d", off)
		}
		return d.decodeData(start, off+3, int(binary.LittleEndian.Uint16(d.data[off+1:off+3])))
	case op == opData4:
		if off+5 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated data length at offset %d", off)
		}
		return d.decodeData(start, off+5, int(binary.LittleEndian.Uint32(d.data[off+1:off+5])))
	case op == opArrayStart:
		return d.decodeArray(start, off+1)
	case op == opDictStart:
		return d.decodeDict(start, off+1)
	case op == opPointer32:
		if off+5 > len(d.data) {
			return nil, off, fmt.Errorf("opack: truncated pointer at offset %d", off)
		}
		target := int(binary.LittleEndian.Uint32(d.data[off+1 : off+5]))
		v, ok := d.offsets[target]
		if !ok {
			return nil, off, fmt.Errorf("opack: pointer at offset %d references unknown offset %d", off, target)
		}
		return v, off + 5, nil
	default:
		return nil, off, fmt.Errorf("opack: unsupported opcode 0x%02x at offset %d", op, off)
	}
}

func (d *Decoder) decodeString(start, dataOff, n int) (any, int, error) {
	if dataOff+n > len(d.data) {
		return nil, dataOff, fmt.Errorf("opack: string at offset %d exceeds buffer", start)
	}
	s := string(d.data[dataOff : dataOff+n])
	return d.remember(start, s), dataOff + n, nil
}

func (d *Decoder) decodeData(start, dataOff, n int) (any, int, error) {
	if dataOff+n > len(d.data) {
		return nil, dataOff, fmt.Errorf("opack: data at offset %d exceeds buffer", start)
	}
	b := append([]byte{}, d.data[dataOff:dataOff+n]...)
	return d.remember(start, b), dataOff + n, nil
}

func (d *Decoder) decodeArray(start, off int) (any, int, error) {
	var items []any
	for {
		if off >= len(d.data) {
			return nil, off, fmt.Errorf("opack: unterminated array starting at offset %d", start)
		}
		if d.data[off] == opTerminator {
			off++
			break
		}
		v, next, err := d.decodeAt(off)
		if err != nil {
			return nil, off, err
		}
		items = append(items, v)
		off = next
	}
	return d.remember(start, items), off, nil
}

func (d *Decoder) decodeDict(start, off int) (any, int, error) {
	m := make(map[string]any)
	for {
		if off >= len(d.data) {
			return nil, off, fmt.Errorf("opack: unterminated dictionary starting at offset %d", start)
		}
		if d.data[off] == opTerminator {
			off++
			break
		}
		key, next, err := d.decodeAt(off)
		if err != nil {
			return nil, off, err
		}
		keyStr, ok := key.(string)
		if !ok {
			return nil, off, fmt.Errorf("opack: dictionary key at offset %d is not a string", off)
		}
		val, next2, err := d.decodeAt(next)
		if err != nil {
			return nil, off, err
		}
		m[keyStr] = val
		off = next2
	}
	return d.remember(start, m), off, nil
}

func (d *Decoder) remember(offset int, v any) any {
	d.offsets[offset] = v
	return v
}
