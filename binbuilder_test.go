// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"encoding/binary"
	"unicode/utf16"
)

// binBuilder constructs binary-XML byte streams by hand, token by
// token, for use as literal test fixtures (spec §8, "End-to-end
// scenarios (literal inputs, expected outputs)"). Every writer method
// tracks the stream's own write position so name and template
// back-references can point at themselves consistently, the same way
// a real encoder lays a fragment out one token at a time.
type binBuilder struct {
	buf []byte
}

func newBin() *binBuilder { return &binBuilder{} }

func (b *binBuilder) pos() int { return len(b.buf) }

func (b *binBuilder) bytes() []byte { return b.buf }

func (b *binBuilder) u8(v byte) *binBuilder {
	b.buf = append(b.buf, v)
	return b
}

func (b *binBuilder) u16(v uint16) *binBuilder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *binBuilder) u32(v uint32) *binBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *binBuilder) u64(v uint64) *binBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *binBuilder) raw(p []byte) *binBuilder {
	b.buf = append(b.buf, p...)
	return b
}

func utf16LEBytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// name writes a binary-XML name reference whose definition is placed
// inline, right after the 4-byte reference field itself (spec §4.2,
// "Name references ... an element/attribute name is either inline
// (offset == current position)").
func (b *binBuilder) name(s string) *binBuilder {
	defStart := uint32(b.pos() + 4)
	b.u32(defStart)
	b.u32(0) // hash-bucket chain pointer, unused by the decoder
	units := utf16.Encode([]rune(s))
	b.u16(0) // hash: the decoder's cache keys by offset, not hash
	b.u16(uint16(len(units)))
	b.raw(utf16LEBytes(s))
	b.u16(0) // NUL terminator
	return b
}

// attrSpec describes one attribute to attach to an element built with
// elem: a name plus a writer for its value token.
type attrSpec struct {
	name string
	val  func(*binBuilder)
}

func attr(name string, val func(*binBuilder)) attrSpec { return attrSpec{name: name, val: val} }

// valueString writes a complete inline Value token (the opValue byte
// included) carrying a String scalar.
func (b *binBuilder) valueString(s string) *binBuilder {
	b.u8(opValue)
	b.u8(byte(TypeString))
	units := utf16.Encode([]rune(s))
	b.u16(uint16(len(units)))
	b.raw(utf16LEBytes(s))
	return b
}

func (b *binBuilder) valueUint8(v uint8) *binBuilder {
	b.u8(opValue)
	b.u8(byte(TypeUInt8))
	b.u8(v)
	return b
}

func (b *binBuilder) valueUint32(v uint32) *binBuilder {
	b.u8(opValue)
	b.u8(byte(TypeUInt32))
	b.u32(v)
	return b
}

func (b *binBuilder) valueHexInt32(v uint32) *binBuilder {
	b.u8(opValue)
	b.u8(byte(TypeHexInt32))
	b.u32(v)
	return b
}

func (b *binBuilder) valueGuid(raw [16]byte) *binBuilder {
	b.u8(opValue)
	b.u8(byte(TypeGuid))
	b.raw(raw[:])
	return b
}

func (b *binBuilder) valueBinary(data []byte) *binBuilder {
	b.u8(opValue)
	b.u8(byte(TypeBinary))
	b.u16(uint16(len(data)))
	b.raw(data)
	return b
}

// substitution writes a Normal/OptionalSubstitution token (spec
// §4.2, "Substitution index ... followed by ... declared type").
func (b *binBuilder) substitution(idx int, optional bool) *binBuilder {
	if optional {
		b.u8(opOptionalSubstitution)
	} else {
		b.u8(opNormalSubstitution)
	}
	b.u16(uint16(idx))
	b.u8(0) // declared type, redundant with the descriptor array
	return b
}

// elem writes a complete element: OpenStart, its attribute list (if
// any), CloseStart, its children (written by childrenFn, or none for
// a self-closing element), and EndElement/CloseEmpty.
func (b *binBuilder) elem(name string, attrs []attrSpec, childrenFn func(*binBuilder)) *binBuilder {
	tag := byte(opOpenStart)
	hasAttrs := len(attrs) > 0
	if hasAttrs {
		tag |= opMoreFlag
	}
	b.u8(tag)
	b.u16(0) // dependency id, unused
	b.u32(0) // element data size, unused (we parse structurally)
	b.name(name)
	if hasAttrs {
		b.u32(0) // attribute list byte size, unused
		for _, a := range attrs {
			b.u8(opAttribute)
			b.name(a.name)
			a.val(b)
		}
		b.u8(opCloseStart)
	}
	if childrenFn == nil {
		b.u8(opCloseEmpty)
		return b
	}
	childrenFn(b)
	b.u8(opEndElement)
	return b
}

// templateDescriptor is one entry of a TemplateInstance's
// value-descriptor array plus the writer for its raw value bytes.
type templateDescriptor struct {
	typ  ValueType
	size uint16
	val  func(*binBuilder)
}

func strDesc(s string) templateDescriptor {
	raw := utf16LEBytes(s)
	return templateDescriptor{typ: TypeString, size: uint16(len(raw)), val: func(b *binBuilder) { b.raw(raw) }}
}

func uint32Desc(v uint32) templateDescriptor {
	return templateDescriptor{typ: TypeUInt32, size: 4, val: func(b *binBuilder) { b.u32(v) }}
}

func nullDesc() templateDescriptor {
	return templateDescriptor{typ: TypeNull, size: 0, val: func(b *binBuilder) {}}
}

// templateInstance writes a TemplateInstanceToken with an inline
// template definition (spec §4.2, "Template instances"). bodyFn
// builds the template's own binary-XML fragment (containing
// Substitution tokens); descs supplies, in order, the values bound to
// those substitution slots.
func (b *binBuilder) templateInstance(id uint32, guid [16]byte, bodyFn func(*binBuilder), descs []templateDescriptor) *binBuilder {
	b.u8(opTemplateInstance)
	b.u8(0x01) // version
	b.u32(id)
	defStart := uint32(b.pos() + 4)
	b.u32(defStart)
	b.u32(0) // next-in-hash-chain, unused
	b.raw(guid[:])
	body := newBin()
	bodyFn(body)
	b.u32(uint32(len(body.bytes())))
	b.raw(body.bytes())
	b.u32(uint32(len(descs)))
	for _, d := range descs {
		b.u16(d.size)
		b.u16(uint16(d.typ))
	}
	for _, d := range descs {
		d.val(b)
	}
	return b
}

// recordBytes wraps a binary-XML payload in a full record header,
// ready to be handed to Record.ReadHeader/ReadXML (spec §3, "Record
// header layout"). The record is placed at chunk offset 0.
func recordBytes(payload []byte) []byte {
	size := uint32(recordHeaderSize + len(payload) + 4)
	c := newBin()
	c.raw(recordSignature[:])
	c.u32(size)
	c.u64(0xDEAD) // identifier
	c.u64(0x01D5C3A100000000) // written_time, arbitrary
	c.raw(payload)
	c.u32(size) // size_copy, matching
	return c.bytes()
}
