// Package tagvalue implements the gateway's tagged-union value type: the
// payload carried by every cache entry and every value crossing the
// transport. It mirrors the wire form described in SPEC_FULL.md §6 —
// (type_tag:u8, precision:u8, payload) — and the change-detection rules of
// §4.1, ported from the Neuron driver cache's C union discriminated by
// neu_type_e.
package tagvalue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Kind discriminates the payload carried by a Value, mirroring neu_type_e.
type Kind uint8

const (
	KindInt8 Kind = iota
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindBit
	KindBool
	KindFloat  // f32
	KindDouble // f64
	KindString
	KindBytes
	KindWord  // u16
	KindDWord // u32
	KindLWord // u64
	KindError // i32
)

func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "INT8"
	case KindUint8:
		return "UINT8"
	case KindInt16:
		return "INT16"
	case KindUint16:
		return "UINT16"
	case KindInt32:
		return "INT32"
	case KindUint32:
		return "UINT32"
	case KindInt64:
		return "INT64"
	case KindUint64:
		return "UINT64"
	case KindBit:
		return "BIT"
	case KindBool:
		return "BOOL"
	case KindFloat:
		return "FLOAT"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindBytes:
		return "BYTES"
	case KindWord:
		return "WORD"
	case KindDWord:
		return "DWORD"
	case KindLWord:
		return "LWORD"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// maxStringLen is the fixed buffer capacity used by the wire form for
// STRING/BYTES payloads (SPEC_FULL.md §6).
const maxStringLen = 128

// Value is the gateway's tagged-union tag payload. Zero value is an
// INT8(0), matching Go's usual zero-value convention; callers should use one
// of the constructors below rather than composite-literal Value directly.
type Value struct {
	Kind      Kind
	Precision uint8 // digits after decimal for FLOAT/DOUBLE; 0 = exact compare

	i int64   // integer-family, BIT/BOOL (0/1), WORD/DWORD/LWORD, ERROR code
	f float64 // FLOAT/DOUBLE, stored widened to float64
	s string  // STRING
	b []byte  // BYTES
}

func Int8(v int8) Value    { return Value{Kind: KindInt8, i: int64(v)} }
func Uint8(v uint8) Value  { return Value{Kind: KindUint8, i: int64(v)} }
func Int16(v int16) Value  { return Value{Kind: KindInt16, i: int64(v)} }
func Uint16(v uint16) Value { return Value{Kind: KindUint16, i: int64(v)} }
func Int32(v int32) Value  { return Value{Kind: KindInt32, i: int64(v)} }
func Uint32(v uint32) Value { return Value{Kind: KindUint32, i: int64(v)} }
func Int64(v int64) Value  { return Value{Kind: KindInt64, i: v} }
func Uint64(v uint64) Value { return Value{Kind: KindUint64, i: int64(v)} }

func Bit(v bool) Value {
	if v {
		return Value{Kind: KindBit, i: 1}
	}
	return Value{Kind: KindBit, i: 0}
}

func Bool(v bool) Value {
	if v {
		return Value{Kind: KindBool, i: 1}
	}
	return Value{Kind: KindBool, i: 0}
}

// Float builds an f32-width value; precision gates change detection (§4.1).
func Float(v float32, precision uint8) Value {
	return Value{Kind: KindFloat, f: float64(v), Precision: precision}
}

// Double builds an f64-width value; precision gates change detection (§4.1).
func Double(v float64, precision uint8) Value {
	return Value{Kind: KindDouble, f: v, Precision: precision}
}

func String(s string) Value {
	if len(s) > maxStringLen-1 {
		s = s[:maxStringLen-1]
	}
	return Value{Kind: KindString, s: s}
}

func Bytes(b []byte) Value {
	if len(b) > maxStringLen {
		b = b[:maxStringLen]
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{Kind: KindBytes, b: cp}
}

func Word(v uint16) Value  { return Value{Kind: KindWord, i: int64(v)} }
func DWord(v uint32) Value { return Value{Kind: KindDWord, i: int64(v)} }
func LWord(v uint64) Value { return Value{Kind: KindLWord, i: int64(v)} }

// Error builds an ERROR value carrying a signed gateway error code. ERROR
// values always report changed on update, and the cache's GetChanged does
// not clear the changed flag of an entry holding one; re-adding the entry
// resets it (§4.1).
func Error(code int32) Value { return Value{Kind: KindError, i: int64(code)} }

func (v Value) Int() int64      { return v.i }
func (v Value) Float32() float32 { return float32(v.f) }
func (v Value) Float64() float64 { return v.f }
func (v Value) Str() string     { return v.s }
func (v Value) Bin() []byte     { return v.b }
func (v Value) Bool() bool      { return v.i != 0 }
func (v Value) ErrorCode() int32 { return int32(v.i) }

func (v Value) String() string {
	switch v.Kind {
	case KindFloat, KindDouble:
		return fmt.Sprintf("%s(%v,p=%d)", v.Kind, v.f, v.Precision)
	case KindString:
		return fmt.Sprintf("STRING(%q)", v.s)
	case KindBytes:
		return fmt.Sprintf("BYTES(%d bytes)", len(v.b))
	case KindBool, KindBit:
		return fmt.Sprintf("%s(%v)", v.Kind, v.Bool())
	case KindError:
		return fmt.Sprintf("ERROR(%d)", v.ErrorCode())
	default:
		return fmt.Sprintf("%s(%d)", v.Kind, v.i)
	}
}

// Changed implements the §4.1 change-detection rule comparing the
// previously stored value (the receiver) to a freshly observed one (next),
// exactly mirroring the switch in cache.c's neu_driver_cache_update.
//
// A type mismatch always reports changed. ERROR always reports changed.
// Fixed-width/bool/bit/string/bytes/word-family values compare by equality
// (the Go analogue of cache.c's memcmp over the value union). Floating
// point compares exactly when precision is 0, otherwise with an absolute
// tolerance of 10^-precision.
func (v Value) Changed(next Value) bool {
	if v.Kind != next.Kind {
		return true
	}
	switch v.Kind {
	case KindFloat, KindDouble:
		if next.Precision == 0 {
			return v.f != next.f
		}
		tol := math.Pow(10, -float64(next.Precision))
		return math.Abs(v.f-next.f) > tol
	case KindError:
		return true
	case KindString:
		return v.s != next.s
	case KindBytes:
		return !bytesEqual(v.b, next.b)
	default:
		return v.i != next.i
	}
}

// bytesEqual compares two BYTES payloads as the fixed-capacity buffers the
// wire form carries: a shorter slice compares as if padded with zeros.
func bytesEqual(a, b []byte) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the value per the §6 wire form: (type_tag:u8,
// precision:u8, payload), payload width following type_tag. Strings/bytes
// are encoded into a fixed 128-byte buffer, NUL-padded for strings.
func (v Value) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 2, 2+maxStringLen)
	buf[0] = byte(v.Kind)
	buf[1] = v.Precision

	switch v.Kind {
	case KindInt8, KindUint8:
		buf = append(buf, byte(v.i))
	case KindInt16, KindUint16, KindWord:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v.i))
		buf = append(buf, b[:]...)
	case KindInt32, KindUint32, KindDWord, KindError:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.i))
		buf = append(buf, b[:]...)
	case KindInt64, KindUint64, KindLWord:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.i))
		buf = append(buf, b[:]...)
	case KindBit, KindBool:
		buf = append(buf, byte(v.i))
	case KindFloat:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v.f)))
		buf = append(buf, b[:]...)
	case KindDouble:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.f))
		buf = append(buf, b[:]...)
	case KindString:
		fixed := make([]byte, maxStringLen)
		copy(fixed, v.s)
		buf = append(buf, fixed...)
	case KindBytes:
		fixed := make([]byte, maxStringLen)
		copy(fixed, v.b)
		buf = append(buf, fixed...)
	default:
		return nil, fmt.Errorf("tagvalue: unknown kind %d", v.Kind)
	}
	return buf, nil
}

// jsonValue is Value's over-the-wire JSON shape, used by transport
// messages (SPEC_FULL.md §6) where a human-readable envelope matters more
// than the compact binary form MarshalBinary produces for framed links.
type jsonValue struct {
	Kind      Kind    `json:"kind"`
	Precision uint8   `json:"precision,omitempty"`
	Int       int64   `json:"int,omitempty"`
	Float     float64 `json:"float,omitempty"`
	Str       string  `json:"str,omitempty"`
	Bin       []byte  `json:"bin,omitempty"`
}

// MarshalJSON encodes Value's unexported payload explicitly, since the
// kind discriminates which field is meaningful (SPEC_FULL.md §6).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonValue{Kind: v.Kind, Precision: v.Precision, Int: v.i, Float: v.f, Str: v.s, Bin: v.b})
}

// UnmarshalJSON is MarshalJSON's inverse.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	*v = Value{Kind: jv.Kind, Precision: jv.Precision, i: jv.Int, f: jv.Float, s: jv.Str, b: jv.Bin}
	return nil
}

// UnmarshalBinary decodes a buffer produced by MarshalBinary.
func (v *Value) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("tagvalue: short buffer")
	}
	kind := Kind(data[0])
	precision := data[1]
	payload := data[2:]

	switch kind {
	case KindInt8:
		*v = Value{Kind: kind, i: int64(int8(payload[0]))}
	case KindUint8:
		*v = Value{Kind: kind, i: int64(payload[0])}
	case KindInt16:
		*v = Value{Kind: kind, i: int64(int16(binary.LittleEndian.Uint16(payload)))}
	case KindUint16, KindWord:
		*v = Value{Kind: kind, i: int64(binary.LittleEndian.Uint16(payload))}
	case KindInt32:
		*v = Value{Kind: kind, i: int64(int32(binary.LittleEndian.Uint32(payload)))}
	case KindUint32, KindDWord:
		*v = Value{Kind: kind, i: int64(binary.LittleEndian.Uint32(payload))}
	case KindError:
		*v = Value{Kind: kind, i: int64(int32(binary.LittleEndian.Uint32(payload)))}
	case KindInt64:
		*v = Value{Kind: kind, i: int64(binary.LittleEndian.Uint64(payload))}
	case KindUint64, KindLWord:
		*v = Value{Kind: kind, i: int64(binary.LittleEndian.Uint64(payload))}
	case KindBit, KindBool:
		*v = Value{Kind: kind, i: int64(payload[0])}
	case KindFloat:
		bits := binary.LittleEndian.Uint32(payload)
		*v = Value{Kind: kind, f: float64(math.Float32frombits(bits)), Precision: precision}
	case KindDouble:
		bits := binary.LittleEndian.Uint64(payload)
		*v = Value{Kind: kind, f: math.Float64frombits(bits), Precision: precision}
	case KindString:
		n := 0
		for n < len(payload) && payload[n] != 0 {
			n++
		}
		*v = Value{Kind: kind, s: string(payload[:n])}
	case KindBytes:
		cp := make([]byte, maxStringLen)
		copy(cp, payload)
		*v = Value{Kind: kind, b: cp}
	default:
		return fmt.Errorf("tagvalue: unknown kind %d", kind)
	}
	return nil
}
