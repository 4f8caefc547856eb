// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValueType is the one-byte (plus array high-bit) discriminator that
// precedes every typed value in the binary-XML stream and every
// value-descriptor entry in a template instance's descriptor array
// (spec §3, "Typed-Value Types"). The numbering matches the
// MS-EVEN6/EVTX binary-XML value-type enumeration as exercised by
// 2igosha/igevtx's TemplateInstance argument-type switch.
type ValueType byte

// Scalar value types.
const (
	TypeNull ValueType = 0x00
	TypeString ValueType = 0x01
	TypeAnsiString ValueType = 0x02
	TypeInt8 ValueType = 0x03
	TypeUInt8 ValueType = 0x04
	TypeInt16 ValueType = 0x05
	TypeUInt16 ValueType = 0x06
	TypeInt32 ValueType = 0x07
	TypeUInt32 ValueType = 0x08
	TypeInt64 ValueType = 0x09
	TypeUInt64 ValueType = 0x0A
	TypeReal32 ValueType = 0x0B
	TypeReal64 ValueType = 0x0C
	TypeBool ValueType = 0x0D
	TypeBinary ValueType = 0x0E
	TypeGuid ValueType = 0x0F
	TypeSize ValueType = 0x10
	TypeFileTime ValueType = 0x11
	TypeSysTime ValueType = 0x12
	TypeSid ValueType = 0x13
	TypeHexInt32 ValueType = 0x14
	TypeHexInt64 ValueType = 0x15
	TypeEvtHandle ValueType = 0x20
	TypeBinXml ValueType = 0x21
	TypeEvtXml ValueType = 0x22
)

// arrayFlag marks a ValueType as carrying an array of the base type
// rather than a single scalar (spec §3, "array variants marked by the
// high bit of the type byte").
const arrayFlag ValueType = 0x80

// IsArray reports whether t carries the array high bit.
func (t ValueType) IsArray() bool { return t&arrayFlag != 0 }

// Base strips the array high bit.
func (t ValueType) Base() ValueType { return t &^ arrayFlag }

func (t ValueType) String() string {
	names := map[ValueType]string{
		TypeNull: "Null", TypeString: "String", TypeAnsiString: "AnsiString",
		TypeInt8: "Int8", TypeUInt8: "UInt8", TypeInt16: "Int16", TypeUInt16: "UInt16",
		TypeInt32: "Int32", TypeUInt32: "UInt32", TypeInt64: "Int64", TypeUInt64: "UInt64",
		TypeReal32: "Real32", TypeReal64: "Real64", TypeBool: "Bool", TypeBinary: "Binary",
		TypeGuid: "Guid", TypeSize: "Size", TypeFileTime: "FileTime", TypeSysTime: "SysTime",
		TypeSid: "Sid", TypeHexInt32: "HexInt32", TypeHexInt64: "HexInt64",
		TypeEvtHandle: "EvtHandle", TypeBinXml: "BinXml", TypeEvtXml: "EvtXml",
	}
	base := t.Base()
	n, ok := names[base]
	if !ok {
		n = fmt.Sprintf("Unknown(0x%02X)", byte(base))
	}
	if t.IsArray() {
		return n + "Array"
	}
	return n
}

// Value is a single materialised typed value (spec §3). Arrays are
// represented as Value with Array set to the per-element values;
// Scalar is unused in that case.
type Value struct {
	Type   ValueType
	Scalar ScalarValue
	Array  []ScalarValue
}

// ScalarValue holds the decoded Go representation of one typed-value
// instance, tagged by the same ValueType as its owning Value.
type ScalarValue struct {
	Null     bool
	Str      string  // String, AnsiString
	Int      int64   // Int8/16/32/64
	Uint     uint64  // UInt8/16/32/64, Size, FileTime, EvtHandle, HexInt32/64
	Real     float64 // Real32, Real64
	Bool     bool
	Bin      []byte // Binary, Sid (raw), Guid (raw 16 bytes)
	SysTime  [8]uint16
	Nested   *Tree // BinXml / EvtXml
}

// renderScalar produces the deterministic textual rendering required by
// spec §4.3 for a single scalar of the given type.
func renderScalar(t ValueType, s ScalarValue) string {
	switch t.Base() {
	case TypeNull:
		return ""
	case TypeString, TypeAnsiString:
		return s.Str
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return fmt.Sprintf("%d", s.Int)
	case TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64, TypeSize, TypeEvtHandle:
		return fmt.Sprintf("%d", s.Uint)
	case TypeReal32:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", float32(s.Real)), "0"), ".")
	case TypeReal64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", s.Real), "0"), ".")
	case TypeBool:
		if s.Bool {
			return "true"
		}
		return "false"
	case TypeBinary:
		return strings.ToUpper(hexEncode(s.Bin))
	case TypeGuid:
		return renderGuid(s.Bin)
	case TypeFileTime:
		return renderFileTime(s.Uint)
	case TypeSysTime:
		return renderSysTime(s.SysTime)
	case TypeSid:
		return renderSid(s.Bin)
	case TypeHexInt32:
		return fmt.Sprintf("0x%08X", uint32(s.Uint))
	case TypeHexInt64:
		return fmt.Sprintf("0x%016X", s.Uint)
	case TypeBinXml, TypeEvtXml:
		if s.Nested == nil {
			return ""
		}
		out, err := s.Nested.SerializeUTF8()
		if err != nil {
			return ""
		}
		return string(out)
	default:
		return strings.ToUpper(hexEncode(s.Bin))
	}
}

// Render renders v per spec §4.3, joining array elements with a
// single space.
func (v Value) Render() string {
	if v.Type.IsArray() {
		parts := make([]string, 0, len(v.Array))
		for _, s := range v.Array {
			parts = append(parts, renderScalar(v.Type.Base(), s))
		}
		return strings.Join(parts, " ")
	}
	return renderScalar(v.Type, v.Scalar)
}

// clone deep-copies v, recursively cloning a nested BinXml/EvtXml
// tree and copying the Bin/Array byte and element slices so a cloned
// Record shares no mutable backing storage with its source (spec §3,
// "Clone semantics").
func (v Value) clone() Value {
	nv := v
	if v.Array != nil {
		nv.Array = make([]ScalarValue, len(v.Array))
		for i, s := range v.Array {
			nv.Array[i] = s.clone()
		}
	}
	nv.Scalar = v.Scalar.clone()
	return nv
}

func (s ScalarValue) clone() ScalarValue {
	ns := s
	if s.Bin != nil {
		ns.Bin = append([]byte(nil), s.Bin...)
	}
	if s.Nested != nil {
		ns.Nested = s.Nested.Clone()
	}
	return ns
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0F]
	}
	return string(out)
}

// renderGuid renders 16 raw little-endian GUID bytes as
// {XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX} uppercase, per spec §4.3.
// The mixed-endian Microsoft field order is flipped here by hand into
// uuid's big-endian RFC-4122 layout; github.com/google/uuid is used
// only for the hyphenated formatting, which is then upper-cased and
// braced since uuid.UUID's own String() gives lower case without
// braces.
func renderGuid(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	var g [16]byte
	// Microsoft GUIDs store the first three fields little-endian; flip
	// them into the big-endian layout uuid.UUID expects internally so
	// we can reuse its parsing/formatting without re-deriving it.
	g[0], g[1], g[2], g[3] = b[3], b[2], b[1], b[0]
	g[4], g[5] = b[5], b[4]
	g[6], g[7] = b[7], b[6]
	copy(g[8:], b[8:16])
	id := uuid.UUID(g)
	return "{" + strings.ToUpper(id.String()) + "}"
}

// guidBytes copies the 16 raw little-endian bytes as they appear in
// the chunk, unchanged; the field flip happens only in renderGuid, at
// render time.
func guidBytes(raw []byte) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// epochFileTimeToUnix100ns is the number of 100ns intervals between
// the FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const epochFileTimeToUnix100ns = 116444736000000000

func fileTimeToGoTime(ft uint64) time.Time {
	sec := (int64(ft) - epochFileTimeToUnix100ns) / 10000000
	rem := (int64(ft) - epochFileTimeToUnix100ns) % 10000000
	return time.Unix(sec, rem*100).UTC()
}

// renderFileTime renders a FILETIME per spec §4.3: ISO-8601 with
// nanosecond precision in UTC.
func renderFileTime(ft uint64) string {
	t := fileTimeToGoTime(ft)
	return t.Format("2006-01-02T15:04:05.000000000Z")
}

// renderSysTime renders the 8 little-endian uint16 fields of a
// Windows SYSTEMTIME: year, month, day-of-week, day, hour, minute,
// second, millisecond.
func renderSysTime(st [8]uint16) string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03dZ",
		st[0], st[1], st[3], st[4], st[5], st[6], st[7])
}

// renderSid renders a Windows SID (variable length: 1 byte revision,
// 1 byte sub-authority count, 6 bytes authority, then 4 bytes per
// sub-authority) in its standard S-1-... string form.
func renderSid(b []byte) string {
	if len(b) < 8 {
		return ""
	}
	revision := b[0]
	subCount := int(b[1])
	var authority uint64
	for i := 0; i < 6; i++ {
		authority = authority<<8 | uint64(b[2+i])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)
	off := 8
	for i := 0; i < subCount && off+4 <= len(b); i++ {
		sub := binary.LittleEndian.Uint32(b[off:])
		fmt.Fprintf(&sb, "-%d", sub)
		off += 4
	}
	return sb.String()
}

// fixedWidth returns the byte width of t's on-the-wire fixed-size
// encoding, or -1 if t has no single fixed width (String, AnsiString,
// Binary, Sid, Null, BinXml, EvtXml all carry an explicit length
// instead).
func fixedWidth(t ValueType) int {
	switch t {
	case TypeInt8, TypeUInt8:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeReal32, TypeHexInt32, TypeBool:
		return 4
	case TypeInt64, TypeUInt64, TypeReal64, TypeHexInt64, TypeFileTime, TypeEvtHandle, TypeSize:
		return 8
	case TypeGuid, TypeSysTime:
		return 16
	default:
		return -1
	}
}

// decodeFixedWidthScalar decodes a plain inline Value token (spec
// §4.2) whose width is implied entirely by its type, with no explicit
// length alongside it.
func decodeFixedWidthScalar(c *cursor, t ValueType) (ScalarValue, error) {
	w := fixedWidth(t)
	if w <= 0 {
		return ScalarValue{}, newDecodeErr(BadValueType, "type %s cannot appear as a plain inline value", t)
	}
	return decodeFixedWidthScalarSized(c, t, w)
}

// decodeFixedWidthScalarSized decodes a numeric scalar of type t whose
// on-the-wire width is the explicitly given size (the width a
// template's value-descriptor array carries), rather than t's own
// default width. Variable-width types are handled by the caller.
func decodeFixedWidthScalarSized(c *cursor, t ValueType, size int) (ScalarValue, error) {
	switch t {
	case TypeInt8, TypeUInt8, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32, TypeInt64, TypeUInt64,
		TypeHexInt32, TypeHexInt64, TypeFileTime, TypeEvtHandle, TypeSize:
		u, err := decodeUintBySize(c, size)
		if err != nil {
			return ScalarValue{}, err
		}
		switch t {
		case TypeInt8:
			return ScalarValue{Int: int64(int8(u))}, nil
		case TypeInt16:
			return ScalarValue{Int: int64(int16(u))}, nil
		case TypeInt32:
			return ScalarValue{Int: int64(int32(u))}, nil
		case TypeInt64:
			return ScalarValue{Int: int64(u)}, nil
		default:
			return ScalarValue{Uint: u}, nil
		}
	case TypeReal32:
		u, err := decodeUintBySize(c, size)
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Real: float64(math.Float32frombits(uint32(u)))}, nil
	case TypeReal64:
		u, err := decodeUintBySize(c, size)
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Real: math.Float64frombits(u)}, nil
	case TypeBool:
		u, err := decodeUintBySize(c, size)
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Bool: u != 0}, nil
	default:
		return ScalarValue{}, newDecodeErr(BadValueType, "type %s has no fixed-width decoding", t)
	}
}

// decodeUintBySize reads an unsigned integer of the given byte width
// (1, 2, 4, or 8), the way a template's value-descriptor size field
// dictates the on-the-wire width independent of the logical type.
func decodeUintBySize(c *cursor, size int) (uint64, error) {
	switch size {
	case 1:
		b, err := c.Byte()
		return uint64(b), err
	case 2:
		v, err := c.Uint16()
		return uint64(v), err
	case 4:
		v, err := c.Uint32()
		return uint64(v), err
	case 8:
		return c.Uint64()
	default:
		return 0, newDecodeErr(BadValueType, "unsupported integer width %d", size)
	}
}

// CoerceUint64 coerces a decoded scalar to an unsigned integer,
// failing with Overflow if the value cannot be represented losslessly
// (spec §4.3, "Typed-value extraction coerced ... with
// OverflowOrTruncation error on loss").
func (v Value) CoerceUint64() (uint64, error) {
	if v.Type.IsArray() {
		return 0, newErr(ArgumentError, "cannot coerce an array value to a scalar integer")
	}
	switch v.Type.Base() {
	case TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64, TypeSize, TypeEvtHandle,
		TypeHexInt32, TypeHexInt64, TypeFileTime:
		return v.Scalar.Uint, nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		if v.Scalar.Int < 0 {
			return 0, newErr(Overflow, "negative signed value cannot be coerced to unsigned")
		}
		return uint64(v.Scalar.Int), nil
	case TypeBool:
		if v.Scalar.Bool {
			return 1, nil
		}
		return 0, nil
	case TypeString, TypeAnsiString:
		return parseDecimalUint(v.Scalar.Str)
	default:
		return 0, newErrf(Overflow, nil, "value of type %s cannot be coerced to an integer", v.Type)
	}
}

func parseDecimalUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, newErr(Overflow, "empty string is not a number")
	}
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, newErrf(Overflow, nil, "%q is not a decimal number", s)
		}
		d := uint64(r - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, newErrf(Overflow, nil, "%q overflows uint64", s)
		}
		v = v*10 + d
	}
	return v, nil
}

// CoerceUint8/16/32 narrow CoerceUint64's result, failing with
// Overflow on truncation.
func (v Value) CoerceUint8() (uint8, error) {
	u, err := v.CoerceUint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint8 {
		return 0, newErrf(Overflow, nil, "value %d does not fit in 8 bits", u)
	}
	return uint8(u), nil
}

func (v Value) CoerceUint16() (uint16, error) {
	u, err := v.CoerceUint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint16 {
		return 0, newErrf(Overflow, nil, "value %d does not fit in 16 bits", u)
	}
	return uint16(u), nil
}

func (v Value) CoerceUint32() (uint32, error) {
	u, err := v.CoerceUint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint32 {
		return 0, newErrf(Overflow, nil, "value %d does not fit in 32 bits", u)
	}
	return uint32(u), nil
}
