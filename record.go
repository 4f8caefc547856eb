// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "encoding/binary"

// recordHeaderSize is the fixed layout preceding the binary-XML
// payload: signature[4] + size:u32 + identifier:u64 + written_time:u64.
const recordHeaderSize = 24

// recordSignature is the constant 4-byte magic every record header
// must begin with.
var recordSignature = [4]byte{0x2A, 0x2A, 0x00, 0x00}

// eventDataKind discriminates which container the Strings accessors
// resolved to.
type eventDataKind int

const (
	eventDataNone eventDataKind = iota
	eventDataEventData
	eventDataUserData
)

// memo wraps a lazily computed, memoised (value, available, error)
// triple shared by every Record accessor. Internally every accessor
// keeps the richer value/available/error shape; collapsing further,
// to a bare nil-on-absence return for example, is a concern for any
// C-ABI style wrapper built on top of this package, not for the core.
type memo[T any] struct {
	done bool
	val  T
	ok   bool
	err  error
}

func (m *memo[T]) get(compute func() (T, bool, error)) (T, bool, error) {
	if !m.done {
		m.val, m.ok, m.err = compute()
		m.done = true
	}
	return m.val, m.ok, m.err
}

// Record is the decoded, queryable view of one EVTX event record. It
// is built in two phases — ReadHeader then ReadXML — and every
// accessor after that is an idempotent, memoised lookup into the owned
// XML Tree. A Record is not safe for concurrent use: the first
// accessor call on a given field writes its memoised result into the
// Record itself.
type Record struct {
	cfg *Config

	chunk []byte

	headerSet   bool
	offset      int
	size        uint32
	identifier  uint64
	writtenTime uint64
	sizeCopy    uint32

	tree *Tree

	eventIdentifier memo[uint32]
	eventLevel      memo[uint8]
	sourceName      memo[string]
	computerName    memo[string]
	container       memo[nodeRef]
	containerKind   eventDataKind
	numberOfStrings memo[int]
	strings         map[int]*memo[string]
	binaryData      memo[[]byte]
	fullXMLUTF8     memo[string]
}

// NewRecord creates an empty Record. cfg may be nil to take every
// Config default.
func NewRecord(cfg *Config) *Record {
	return &Record{cfg: cfg}
}

// Clone deep-copies src: header fields are duplicated and the XML
// tree (if materialised) is cloned; every memoised accessor is reset
// so it re-resolves against the clone's own tree on first use. A nil
// receiver produces a nil result.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	dst := &Record{
		cfg:         r.cfg,
		chunk:       r.chunk,
		headerSet:   r.headerSet,
		offset:      r.offset,
		size:        r.size,
		identifier:  r.identifier,
		writtenTime: r.writtenTime,
		sizeCopy:    r.sizeCopy,
	}
	dst.tree = r.tree.Clone()
	return dst
}

// ReadHeader parses the fixed record header at offset within chunk.
// It must be called exactly once, before ReadXML.
func (r *Record) ReadHeader(chunk []byte, offset int) error {
	if r.headerSet {
		return newErr(ArgumentError, "header already read for this record")
	}
	if offset < 0 {
		return newErr(ArgumentError, "negative record offset")
	}
	n := len(chunk)
	if offset+recordHeaderSize+4 > n {
		return newErrf(OutOfBounds, nil,
			"record header at offset %d needs %d bytes, chunk has %d", offset, recordHeaderSize+4, n)
	}
	c := newCursor(chunk)
	hdr, err := c.BytesAt(offset, recordHeaderSize)
	if err != nil {
		return err
	}
	var sig [4]byte
	copy(sig[:], hdr[0:4])
	if sig != recordSignature {
		return newErrf(UnsupportedSignature, nil,
			"signature %02X at offset %d does not match %02X", sig, offset, recordSignature)
	}
	size := binary.LittleEndian.Uint32(hdr[4:])
	identifier := binary.LittleEndian.Uint64(hdr[8:])
	writtenTime := binary.LittleEndian.Uint64(hdr[16:])

	// A declared size below the HDR+4 floor is SizeOutOfBounds; a
	// declared size the chunk is too short to hold is the plain
	// structural OutOfBounds, distinct from the former.
	if size < recordHeaderSize+4 {
		return newDecodeErr(SizeOutOfBounds,
			"record size %d at offset %d is below the minimum %d", size, offset, recordHeaderSize+4)
	}
	if uint64(size) > uint64(n-offset) {
		return newErrf(OutOfBounds, nil,
			"record size %d at offset %d exceeds chunk remainder %d", size, offset, n-offset)
	}

	tail, err := c.BytesAt(offset+int(size)-4, 4)
	if err != nil {
		return err
	}
	sizeCopy := binary.LittleEndian.Uint32(tail)
	if sizeCopy != size {
		if r.cfg.strictSizeCopy() {
			return newDecodeErr(SizeCopyMismatch,
				"size_copy %d does not match size %d at offset %d", sizeCopy, size, offset)
		}
		r.cfg.logger().Warn().
			Uint32("size", size).Uint32("size_copy", sizeCopy).Int("offset", offset).
			Msg("evtx: record size_copy mismatch, continuing (non-strict mode)")
	}

	r.chunk = chunk
	r.offset = offset
	r.size = size
	r.identifier = identifier
	r.writtenTime = writtenTime
	r.sizeCopy = sizeCopy
	r.headerSet = true
	return nil
}

// ReadXML materialises the record's binary-XML payload into an XML
// Tree, using cc's per-chunk template cache. ReadHeader must have
// succeeded first. chunk must be the same underlying buffer
// ReadHeader was given.
func (r *Record) ReadXML(chunk []byte, cc *ChunkContext) error {
	if !r.headerSet {
		return newErr(ArgumentError, "ReadXML called before ReadHeader")
	}
	start := r.offset + recordHeaderSize
	end := r.offset + int(r.size) - 4
	tree, err := cc.DecodeXML(chunk, start, end)
	if err != nil {
		return err
	}
	r.tree = tree
	return nil
}

// Identifier returns the record's 64-bit identifier, always available
// once the header has been read.
func (r *Record) Identifier() uint64 { return r.identifier }

// WrittenTime returns the record's raw FILETIME timestamp. Rendering
// it as a calendar time with locale-aware formatting is a
// caller/collaborator concern.
func (r *Record) WrittenTime() uint64 { return r.writtenTime }

// Offset returns the record's byte offset within its chunk.
func (r *Record) Offset() int { return r.offset }

// Size returns the record's total on-disk size, header through the
// trailing size_copy inclusive.
func (r *Record) Size() uint32 { return r.size }

// SizeCopy returns the trailing size-copy field read during
// ReadHeader, for diagnostics.
func (r *Record) SizeCopy() uint32 { return r.sizeCopy }

// Tree exposes the record's decoded XML tree directly, for callers
// that need more than the named accessors below (e.g. a JSON dumper).
// It is nil until ReadXML has succeeded.
func (r *Record) Tree() *Tree { return r.tree }

func (r *Record) requireTree() error {
	if r.tree == nil {
		return newErr(ArgumentError, "XML has not been read for this record")
	}
	return nil
}

// EventIdentifier locates Event/System/EventID and coerces it to a
// uint32; if the EventID element carries a Qualifiers attribute, that
// attribute is coerced to uint32, shifted left 16 bits, and OR'd into
// the result.
func (r *Record) EventIdentifier() (uint32, bool, error) {
	return r.eventIdentifier.get(r.computeEventIdentifier)
}

func (r *Record) computeEventIdentifier() (uint32, bool, error) {
	if err := r.requireTree(); err != nil {
		return 0, false, err
	}
	ref, ok := r.tree.FindPath(r.tree.Root(), "System/EventID")
	if !ok {
		return 0, false, nil
	}
	id, err := r.tree.ElementValue(ref).CoerceUint32()
	if err != nil {
		return 0, false, err
	}
	if qual, ok := r.tree.Attribute(ref, "Qualifiers"); ok {
		q, err := qual.CoerceUint32()
		if err != nil {
			return 0, false, err
		}
		id |= q << 16
	}
	return id, true, nil
}

// EventLevel locates Event/System/Level and coerces it to a uint8.
func (r *Record) EventLevel() (uint8, bool, error) {
	return r.eventLevel.get(r.computeEventLevel)
}

func (r *Record) computeEventLevel() (uint8, bool, error) {
	if err := r.requireTree(); err != nil {
		return 0, false, err
	}
	ref, ok := r.tree.FindPath(r.tree.Root(), "System/Level")
	if !ok {
		return 0, false, nil
	}
	lvl, err := r.tree.ElementValue(ref).CoerceUint8()
	if err != nil {
		return 0, false, err
	}
	return lvl, true, nil
}

// SourceName resolves Event/System/Provider's name, preferring the
// EventSourceName attribute and falling back to Name. The four
// near-duplicate size/UTF-8/UTF-16 accessor variants below all share
// this one internal computation.
func (r *Record) SourceName() (string, bool, error) {
	return r.sourceName.get(r.computeSourceName)
}

func (r *Record) computeSourceName() (string, bool, error) {
	if err := r.requireTree(); err != nil {
		return "", false, err
	}
	ref, ok := r.tree.FindPath(r.tree.Root(), "System/Provider")
	if !ok {
		return "", false, nil
	}
	if v, ok := r.tree.Attribute(ref, "EventSourceName"); ok {
		return v.Render(), true, nil
	}
	if v, ok := r.tree.Attribute(ref, "Name"); ok {
		return v.Render(), true, nil
	}
	return "", false, nil
}

// SourceNameUTF8Size returns the byte length SourceName's UTF-8 form
// would need, terminator included.
func (r *Record) SourceNameUTF8Size() (int, bool, error) {
	s, ok, err := r.SourceName()
	if err != nil || !ok {
		return 0, ok, err
	}
	return len(s) + 1, true, nil
}

// SourceNameUTF16 returns the UTF-16LE-encoded source name, NUL
// terminator not included (callers size the buffer with
// SourceNameUTF16Size).
func (r *Record) SourceNameUTF16() ([]byte, bool, error) {
	s, ok, err := r.SourceName()
	if err != nil || !ok {
		return nil, ok, err
	}
	b, err := utf16leEncoder.Bytes([]byte(s))
	if err != nil {
		return nil, false, newErrf(InternalError, err, "utf-16 encode of source name failed")
	}
	return b, true, nil
}

// SourceNameUTF16Size returns the number of UTF-16 code units
// SourceNameUTF16 would need, NUL terminator included.
func (r *Record) SourceNameUTF16Size() (int, bool, error) {
	b, ok, err := r.SourceNameUTF16()
	if err != nil || !ok {
		return 0, ok, err
	}
	return len(b)/2 + 1, true, nil
}

// ComputerName resolves Event/System/Computer's inner value.
func (r *Record) ComputerName() (string, bool, error) {
	return r.computerName.get(r.computeComputerName)
}

func (r *Record) computeComputerName() (string, bool, error) {
	if err := r.requireTree(); err != nil {
		return "", false, err
	}
	ref, ok := r.tree.FindPath(r.tree.Root(), "System/Computer")
	if !ok {
		return "", false, nil
	}
	return r.tree.ElementText(ref), true, nil
}

// ComputerNameUTF8Size mirrors SourceNameUTF8Size for ComputerName.
func (r *Record) ComputerNameUTF8Size() (int, bool, error) {
	s, ok, err := r.ComputerName()
	if err != nil || !ok {
		return 0, ok, err
	}
	return len(s) + 1, true, nil
}

// ComputerNameUTF16 mirrors SourceNameUTF16 for ComputerName.
func (r *Record) ComputerNameUTF16() ([]byte, bool, error) {
	s, ok, err := r.ComputerName()
	if err != nil || !ok {
		return nil, ok, err
	}
	b, err := utf16leEncoder.Bytes([]byte(s))
	if err != nil {
		return nil, false, newErrf(InternalError, err, "utf-16 encode of computer name failed")
	}
	return b, true, nil
}

// ComputerNameUTF16Size mirrors SourceNameUTF16Size for ComputerName.
func (r *Record) ComputerNameUTF16Size() (int, bool, error) {
	b, ok, err := r.ComputerNameUTF16()
	if err != nil || !ok {
		return 0, ok, err
	}
	return len(b)/2 + 1, true, nil
}

// eventDataContainer resolves the event-data container: Event/EventData
// preferred, else Event/UserData reduced to its single required child.
// The resolved node and its kind are memoised together since every
// string-related accessor needs both.
func (r *Record) eventDataContainer() (nodeRef, eventDataKind, error) {
	if err := r.requireTree(); err != nil {
		return nilRef, eventDataNone, err
	}
	ref, ok, err := r.container.get(func() (nodeRef, bool, error) {
		root := r.tree.Root()
		if ed, ok := r.tree.FindChild(root, "EventData"); ok {
			r.containerKind = eventDataEventData
			return ed, true, nil
		}
		if ud, ok := r.tree.FindChild(root, "UserData"); ok {
			children := r.tree.ChildElements(ud)
			if len(children) != 1 {
				return nilRef, false, newErrf(InternalError, nil,
					"UserData must have exactly one child element, found %d", len(children))
			}
			r.containerKind = eventDataUserData
			return children[0], true, nil
		}
		r.containerKind = eventDataNone
		return nilRef, false, nil
	})
	if err != nil {
		return nilRef, eventDataNone, err
	}
	if !ok {
		return nilRef, eventDataNone, nil
	}
	return ref, r.containerKind, nil
}

// NumberOfStrings resolves the count of numbered string substitutions
// carried by the record's event-data container. For EventData it is
// the length of the contiguous prefix of Data children, and a Data
// child after a non-Data one fails with NonContiguousData; for
// UserData every child element of the single container counts.
func (r *Record) NumberOfStrings() (int, error) {
	n, _, err := r.numberOfStrings.get(r.computeNumberOfStrings)
	return n, err
}

func (r *Record) computeNumberOfStrings() (int, bool, error) {
	if err := r.requireTree(); err != nil {
		return 0, false, err
	}
	ref, kind, err := r.eventDataContainer()
	if err != nil {
		return 0, false, err
	}
	if kind == eventDataNone {
		return 0, true, nil
	}
	children := r.tree.ChildElements(ref)
	if kind == eventDataUserData {
		return len(children), true, nil
	}
	prefix := 0
	for _, c := range children {
		if r.tree.ElementName(c) != "Data" {
			break
		}
		prefix++
	}
	for _, c := range children[prefix:] {
		if r.tree.ElementName(c) == "Data" {
			return 0, false, newDecodeErr(NonContiguousData,
				"EventData children named Data are not a contiguous prefix")
		}
	}
	return prefix, true, nil
}

// stringMemo returns (creating if needed) the memoised slot for
// string index idx.
func (r *Record) stringMemo(idx int) *memo[string] {
	if r.strings == nil {
		r.strings = make(map[int]*memo[string])
	}
	m, ok := r.strings[idx]
	if !ok {
		m = &memo[string]{}
		r.strings[idx] = m
	}
	return m
}

// StringUTF8 returns the idx-th numbered string.
func (r *Record) StringUTF8(idx int) (string, bool, error) {
	return r.stringMemo(idx).get(func() (string, bool, error) {
		return r.computeString(idx)
	})
}

func (r *Record) computeString(idx int) (string, bool, error) {
	count, err := r.NumberOfStrings()
	if err != nil {
		return "", false, err
	}
	if idx < 0 || idx >= count {
		return "", false, newErrf(ArgumentError, nil, "string index %d out of range [0,%d)", idx, count)
	}
	ref, _, err := r.eventDataContainer()
	if err != nil {
		return "", false, err
	}
	children := r.tree.ChildElements(ref)
	return r.tree.ElementText(children[idx]), true, nil
}

// StringUTF8Size returns the byte length StringUTF8(idx) would need,
// terminator included.
func (r *Record) StringUTF8Size(idx int) (int, bool, error) {
	s, ok, err := r.StringUTF8(idx)
	if err != nil || !ok {
		return 0, ok, err
	}
	return len(s) + 1, true, nil
}

// StringUTF16 returns the idx-th numbered string UTF-16LE encoded.
func (r *Record) StringUTF16(idx int) ([]byte, bool, error) {
	s, ok, err := r.StringUTF8(idx)
	if err != nil || !ok {
		return nil, ok, err
	}
	b, err := utf16leEncoder.Bytes([]byte(s))
	if err != nil {
		return nil, false, newErrf(InternalError, err, "utf-16 encode of string %d failed", idx)
	}
	return b, true, nil
}

// StringUTF16Size returns the number of UTF-16 code units
// StringUTF16(idx) would need, terminator included.
func (r *Record) StringUTF16Size(idx int) (int, bool, error) {
	b, ok, err := r.StringUTF16(idx)
	if err != nil || !ok {
		return 0, ok, err
	}
	return len(b)/2 + 1, true, nil
}

// BinaryData resolves Event/EventData/BinaryData's raw bytes.
func (r *Record) BinaryData() ([]byte, bool, error) {
	return r.binaryData.get(r.computeBinaryData)
}

func (r *Record) computeBinaryData() ([]byte, bool, error) {
	if err := r.requireTree(); err != nil {
		return nil, false, err
	}
	ref, kind, err := r.eventDataContainer()
	if err != nil {
		return nil, false, err
	}
	if kind != eventDataEventData {
		return nil, false, nil
	}
	bdRef, ok := r.tree.FindChild(ref, "BinaryData")
	if !ok {
		return nil, false, nil
	}
	v := r.tree.ElementValue(bdRef)
	if v.Type.Base() != TypeBinary {
		return nil, false, newErrf(UnsupportedValue, nil,
			"BinaryData element holds a %s value, not Binary", v.Type)
	}
	return v.Scalar.Bin, true, nil
}

// DataSize returns the byte length of BinaryData, 0 when not
// available.
func (r *Record) DataSize() (int, error) {
	b, ok, err := r.BinaryData()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return len(b), nil
}

// FullXMLUTF8 serialises the tree's root element as UTF-8 XML.
func (r *Record) FullXMLUTF8() (string, error) {
	s, _, err := r.fullXMLUTF8.get(func() (string, bool, error) {
		if err := r.requireTree(); err != nil {
			return "", false, err
		}
		b, err := r.tree.SerializeUTF8()
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	})
	return s, err
}

// FullXMLUTF8Size returns the byte length FullXMLUTF8 would need,
// terminator included.
func (r *Record) FullXMLUTF8Size() (int, error) {
	s, err := r.FullXMLUTF8()
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

// FullXMLUTF16 serialises the tree's root element as UTF-16LE XML.
func (r *Record) FullXMLUTF16() ([]byte, error) {
	s, err := r.FullXMLUTF8()
	if err != nil {
		return nil, err
	}
	b, err := utf16leEncoder.Bytes([]byte(s))
	if err != nil {
		return nil, newErrf(InternalError, err, "utf-16 encode of full xml failed")
	}
	return b, nil
}

// FullXMLUTF16Size returns the number of UTF-16 code units
// FullXMLUTF16 would need, terminator included.
func (r *Record) FullXMLUTF16Size() (int, error) {
	b, err := r.FullXMLUTF16()
	if err != nil {
		return 0, err
	}
	return len(b)/2 + 1, nil
}
