// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// cursor is a bounds-checked view over a chunk buffer. Every higher
// component (the binary-XML decoder, the record header parser) reads
// the chunk strictly through a cursor; nothing else in the package
// indexes into a chunk buffer directly. This mirrors the role
// saferwall/pe.File's ReadUint8/16/32/64 and ReadBytesAtOffset play
// over the memory-mapped PE image, generalised from a File-scoped
// offset API into a standalone, reusable value.
type cursor struct {
	buf []byte
	pos int
}

// newCursor wraps buf for bounds-checked reading starting at
// position 0.
func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) len() int { return len(c.buf) }

// Pos reports the current read position.
func (c *cursor) Pos() int { return c.pos }

// Seek moves the cursor to an absolute position within the buffer.
// It does not itself bounds-check pos against the buffer length;
// the next read will fail with OutOfBounds if pos was out of range.
func (c *cursor) Seek(pos int) { c.pos = pos }

func (c *cursor) remaining() int {
	r := len(c.buf) - c.pos
	if r < 0 {
		return 0
	}
	return r
}

// need fails with OutOfBounds unless n more bytes are available from
// the current position.
func (c *cursor) need(n int) error {
	if n < 0 || c.pos < 0 || c.pos > len(c.buf) || n > len(c.buf)-c.pos {
		return newErrf(OutOfBounds, nil,
			"need %d bytes at offset %d, buffer has %d", n, c.pos, len(c.buf))
	}
	return nil
}

// Byte reads one unsigned byte and advances the cursor.
func (c *cursor) Byte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// Uint16 reads a little-endian uint16 and advances the cursor.
func (c *cursor) Uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// Uint32 reads a little-endian uint32 and advances the cursor.
func (c *cursor) Uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// Uint64 reads a little-endian uint64 and advances the cursor.
func (c *cursor) Uint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// Bytes returns a sub-slice of n bytes at the current position and
// advances the cursor. The returned slice aliases the chunk buffer;
// callers must not retain it past the chunk's own lifetime.
func (c *cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// PeekBytes is like Bytes but does not advance the cursor.
func (c *cursor) PeekBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	return c.buf[c.pos : c.pos+n], nil
}

// BytesAt carves a bounds-checked sub-slice at an arbitrary absolute
// offset, independent of the cursor's current position. Mirrors
// saferwall/pe.File.ReadBytesAtOffset.
func (c *cursor) BytesAt(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 {
		return nil, newErr(ArgumentError, "negative offset or length")
	}
	end := offset + n
	if end < offset || offset > len(c.buf) || end > len(c.buf) {
		return nil, newErrf(OutOfBounds, nil,
			"range [%d,%d) outside buffer of length %d", offset, end, len(c.buf))
	}
	return c.buf[offset:end], nil
}

var utf16leDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// UTF16String reads a fixed-length run of nChars UTF-16LE code units
// and decodes it to a Go string, advancing the cursor by 2*nChars
// bytes. A trailing NUL code unit, if present, is trimmed.
func (c *cursor) UTF16String(nChars int) (string, error) {
	raw, err := c.Bytes(nChars * 2)
	if err != nil {
		return "", err
	}
	return decodeUTF16LE(raw)
}

// decodeUTF16LE decodes raw little-endian UTF-16 bytes (no length
// prefix, no cursor involved) the way saferwall/pe.DecodeUTF16String
// decodes a fixed-size resource string buffer.
func decodeUTF16LE(raw []byte) (string, error) {
	if len(raw) >= 2 && raw[len(raw)-2] == 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-2]
	}
	if len(raw) == 0 {
		return "", nil
	}
	s, err := utf16leDecoder.Bytes(raw)
	if err != nil {
		return "", newErrf(InternalError, err, "invalid utf-16le sequence")
	}
	return string(s), nil
}

// UTF16StringNul reads UTF-16LE code units until a NUL code unit (or
// the buffer end) and returns the decoded string, leaving the cursor
// positioned just past the terminator when one was found.
func (c *cursor) UTF16StringNul(maxChars int) (string, error) {
	start := c.pos
	n := 0
	for maxChars <= 0 || n < maxChars {
		if c.remaining()-2*n < 2 {
			break
		}
		u := binary.LittleEndian.Uint16(c.buf[c.pos+2*n:])
		n++
		if u == 0 {
			break
		}
	}
	raw := c.buf[start : start+2*n]
	c.pos = start + 2*n
	return decodeUTF16LE(raw)
}
