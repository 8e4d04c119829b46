// Package opack implements Apple's OPACK binary serialization, the
// JSON-like wire format Companion-protocol RPC uses. Supported types:
// small-int shortcuts, length-prefixed UTF-8 strings and raw data, typed
// floats (32/64-bit), arrays, string-keyed dictionaries, booleans, null,
// UUID, and back-references ("pointer" reuse of a previously encoded
// string/data/uuid value).
package opack

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Opcode byte values from the OPACK wire format.
const (
	opTrue        = 0x01
	opFalse       = 0x02
	opTerminator  = 0x03
	opFloat32     = 0x04
	opFloat64     = 0x05
	opUUIDTag     = 0x06
	opIntBase     = 0x08 // 0x08..0x2F small-int shortcuts: value = opcode-0x08, 0..0x27 (39)
	opIntSmallMax = 0x2F
	op1ByteInt    = 0x30
	op2ByteInt    = 0x31
	op4ByteInt    = 0x32
	op8ByteInt    = 0x33
	opStrBase     = 0x40 // 0x40..0x60: short string, length = opcode-0x40 (0..0x20)
	opStr1        = 0x61
	opStr2        = 0x62
	opStr4        = 0x63
	opDataBase    = 0x70
	opData1       = 0x91
	opData2       = 0x92
	opData4       = 0x93
	opArrayStart  = 0xD0
	opDictStart   = 0xE0
	opPointer32   = 0xA0 // back-reference to a previously emitted string/data/uuid, by byte offset
)

// Null is the sentinel nil value OPACK encodes.
type Null struct{}

// Encoder serializes Go values to OPACK, interning previously emitted
// strings/UUIDs so repeated values become back-references instead of
// duplicate bytes.
type Encoder struct {
	buf     []byte
	interned map[string]int // value -> byte offset where first written
}

// NewEncoder creates an Encoder.
func NewEncoder() *Encoder {
	return &Encoder{interned: make(map[string]int)}
}

// Bytes returns the accumulated encoded output.
func (e *Encoder) Bytes() []byte { return e.buf }

// Encode appends the OPACK encoding of v.
func (e *Encoder) Encode(v any) error {
	switch x := v.(type) {
	case nil, Null:
		e.buf = append(e.buf, opTerminator)
	case bool:
		if x {
			e.buf = append(e.buf, opTrue)
		} else {
			e.buf = append(e.buf, opFalse)
		}
	case int:
		e.encodeInt(int64(x))
	case int64:
		e.encodeInt(x)
	case float32:
		e.buf = append(e.buf, opFloat32)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
		e.buf = append(e.buf, b...)
	case float64:
		e.buf = append(e.buf, opFloat64)
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
		e.buf = append(e.buf, b...)
	case string:
		e.encodeString(x)
	case []byte:
		e.encodeData(x)
	case uuid.UUID:
		e.encodeUUID(x)
	case []any:
		e.buf = append(e.buf, opArrayStart)
		for _, item := range x {
			if err := e.Encode(item); err != nil {
				return err
			}
		}
		e.buf = append(e.buf, opTerminator)
	case map[string]any:
		e.buf = append(e.buf, opDictStart)
		for k, val := range x {
			if err := e.Encode(k); err != nil {
				return err
			}
			if err := e.Encode(val); err != nil {
				return err
			}
		}
		e.buf = append(e.buf, opTerminator)
	default:
		return fmt.Errorf("opack: unsupported type %T", v)
	}
	return nil
}

func (e *Encoder) encodeInt(v int64) {
	switch {
	case v >= 0 && v <= opIntSmallMax-opIntBase:
		e.buf = append(e.buf, byte(opIntBase+v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		e.buf = append(e.buf, op1ByteInt, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		e.buf = append(e.buf, op2ByteInt)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		e.buf = append(e.buf, b...)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		e.buf = append(e.buf, op4ByteInt)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		e.buf = append(e.buf, b...)
	default:
		e.buf = append(e.buf, op8ByteInt)
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		e.buf = append(e.buf, b...)
	}
}

func (e *Encoder) encodeString(s string) {
	if off, ok := e.interned["s:"+s]; ok {
		e.encodePointer(off)
		return
	}
	start := len(e.buf)
	n := len(s)
	switch {
	case n <= 0x20:
		e.buf = append(e.buf, byte(opStrBase+n))
	case n <= math.MaxUint8:
		e.buf = append(e.buf, opStr1, byte(n))
	case n <= math.MaxUint16:
		e.buf = append(e.buf, opStr2)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(n))
		e.buf = append(e.buf, b...)
	default:
		e.buf = append(e.buf, opStr4)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(n))
		e.buf = append(e.buf, b...)
	}
	e.buf = append(e.buf, s...)
	e.interned["s:"+s] = start
}

func (e *Encoder) encodeData(d []byte) {
	key := "d:" + string(d)
	if off, ok := e.interned[key]; ok {
		e.encodePointer(off)
		return
	}
	start := len(e.buf)
	n := len(d)
	switch {
	case n <= 0x20:
		e.buf = append(e.buf, byte(opDataBase+n))
	case n <= math.MaxUint8:
		e.buf = append(e.buf, opData1, byte(n))
	case n <= math.MaxUint16:
		e.buf = append(e.buf, opData2)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(n))
		e.buf = append(e.buf, b...)
	default:
		e.buf = append(e.buf, opData4)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(n))
		e.buf = append(e.buf, b...)
	}
	e.buf = append(e.buf, d...)
	e.interned[key] = start
}

func (e *Encoder) encodeUUID(u uuid.UUID) {
	key := "u:" + string(u[:])
	if off, ok := e.interned[key]; ok {
		e.encodePointer(off)
		return
	}
	start := len(e.buf)
	e.buf = append(e.buf, opUUIDTag)
	e.buf = append(e.buf, u[:]...)
	e.interned[key] = start
}

func (e *Encoder) encodePointer(offset int) {
	e.buf = append(e.buf, opPointer32)
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(offset))
	e.buf = append(e.buf, b...)
}

// Encode is a convenience wrapper that allocates a fresh Encoder.
func Encode(v any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
