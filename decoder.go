// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"encoding/binary"

	"github.com/rs/zerolog"
)

// Binary-XML opcodes. The low 4 bits carry the opcode;
// bit 0x40 ("more") marks an OpenStartElement that is followed by an
// attribute list, matching 2igosha/igevtx's 0x01/0x41 distinction.
const (
	opEndOfFragment        = 0x00
	opOpenStart            = 0x01
	opCloseStart           = 0x02
	opCloseEmpty           = 0x03
	opEndElement           = 0x04
	opValue                = 0x05
	opAttribute            = 0x06
	opCDataSection         = 0x07
	opCharRef              = 0x08
	opEntityRef            = 0x09
	opPITarget             = 0x0A
	opPIData               = 0x0B
	opTemplateInstance     = 0x0C
	opNormalSubstitution   = 0x0D
	opOptionalSubstitution = 0x0E
	opStartOfStream        = 0x0F

	opMoreFlag = 0x40
)

// templateBody is the cacheable, per-chunk result of decoding a
// template's binary-XML fragment once. Node indices are relative to
// 0; spliceBody rebinds them
// into a record's own Tree on each instantiation.
type templateBody struct {
	id    uint32
	guid  [16]byte
	nodes []node
	root  int
}

// ChunkContext owns the per-chunk template cache (owned by the
// decoder context for
// that chunk"). It must be created fresh per chunk buffer and never
// shared across chunks with distinct underlying byte slices.
type ChunkContext struct {
	cfg       *Config
	templates map[uint32]*templateBody
	// templatesByOffset additionally indexes by the absolute chunk
	// offset of a template's definition, the way name back-references
	// are resolved positionally rather than just by a logical id.
	templatesByOffset map[int]*templateBody
}

// NewChunkContext creates a decoder context scoped to one chunk
// buffer. cfg may be nil to take every default.
func NewChunkContext(cfg *Config) *ChunkContext {
	return &ChunkContext{
		cfg:               cfg,
		templates:         make(map[uint32]*templateBody),
		templatesByOffset: make(map[int]*templateBody),
	}
}

// parser holds the mutable state of one decode of one binary-XML
// fragment (a record body, a template body, or a nested BinXml
// substitution). chunk addresses the whole chunk buffer for
// absolute-offset name/template back-references; c is the bounded
// cursor over the fragment actually being parsed.
type parser struct {
	cc    *ChunkContext
	chunk *cursor
	names *nameCache
	tree  *Tree
	log   zerolog.Logger
}

// DecodeXML decodes the binary-XML fragment chunk[start:end) into a
// Tree. chunk is the
// full chunk buffer; start/end bound the fragment within it.
func (cc *ChunkContext) DecodeXML(chunk []byte, start, end int) (*Tree, error) {
	return cc.decodeXMLAtDepth(chunk, start, end, 0)
}

// decodeXMLAtDepth is DecodeXML's internal form, carrying the caller's
// nesting depth through so a chain of nested BinXml/EvtXml
// substitutions is bounded by Config.MaxNestingDepth the same way
// element nesting is.
func (cc *ChunkContext) decodeXMLAtDepth(chunk []byte, start, end, depth int) (*Tree, error) {
	if start < 0 || end < start || end > len(chunk) {
		return nil, newErr(OutOfBounds, "fragment range outside chunk buffer")
	}
	p := &parser{
		cc:    cc,
		chunk: newCursor(chunk),
		names: newNameCache(),
		tree:  newTree(),
		log:   cc.cfg.logger(),
	}
	frag := newCursor(chunk[start:end])
	roots, err := p.parseNodes(frag, depth, false)
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		if n := p.tree.at(r); n != nil && n.Kind == KindElement {
			p.tree.root = r
			return p.tree, nil
		}
	}
	return nil, newDecodeErr(TruncatedStream, "fragment produced no root element")
}

// parseNodes reads sibling tokens until EndOfFragment, until
// EndElement (when inElement is true, in which case the EndElement
// token is consumed and the loop stops), or until the fragment is
// exhausted. It returns the references of the nodes produced at this
// level, in document order.
func (p *parser) parseNodes(c *cursor, depth int, inElement bool) ([]nodeRef, error) {
	if depth > p.cc.cfg.maxNestingDepth() {
		return nil, newDecodeErr(NestingTooDeep, "exceeded max nesting depth %d", p.cc.cfg.maxNestingDepth())
	}
	var out []nodeRef
	var lastPI nodeRef = nilRef
	for {
		if c.remaining() == 0 {
			if inElement {
				return nil, newDecodeErr(TruncatedStream, "fragment ended inside an open element")
			}
			return out, nil
		}
		tagPos := c.Pos()
		tag, err := c.Byte()
		if err != nil {
			return nil, err
		}
		op := tag & 0x0F
		switch op {
		case opEndOfFragment:
			return out, nil

		case opOpenStart:
			ref, err := p.parseOpenStart(c, tag, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, ref)

		case opCloseStart:
			if !inElement {
				return nil, newDecodeErr(TruncatedStream, "CloseStart outside an element at %d", tagPos)
			}
			// CloseStart only terminates the attribute list; children
			// follow in the same token stream, so just continue.
			continue

		case opCloseEmpty, opEndElement:
			if !inElement {
				return nil, newDecodeErr(TruncatedStream, "unmatched EndElement at %d", tagPos)
			}
			return out, nil

		case opValue:
			v, err := p.parseInlineValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, p.tree.alloc(node{Kind: KindValue, Typed: v}))

		case opAttribute:
			return nil, newDecodeErr(TruncatedStream, "Attribute token outside an element's start tag at %d", tagPos)

		case opCDataSection:
			s, err := p.readPrefixedUTF16(c)
			if err != nil {
				return nil, err
			}
			out = append(out, p.tree.alloc(node{Kind: KindCData, Text: s}))

		case opCharRef:
			code, err := c.Uint16()
			if err != nil {
				return nil, err
			}
			out = append(out, p.tree.alloc(node{Kind: KindCharData, Text: string(rune(code))}))

		case opEntityRef:
			n, err := p.names.resolveName(c, p.chunk)
			if err != nil {
				return nil, err
			}
			out = append(out, p.tree.alloc(node{Kind: KindCharData, Text: "&" + n.Value + ";", Raw: true}))

		case opPITarget:
			n, err := p.names.resolveName(c, p.chunk)
			if err != nil {
				return nil, err
			}
			lastPI = p.tree.alloc(node{Kind: KindPI, PITarget: n.Value})
			out = append(out, lastPI)

		case opPIData:
			s, err := p.readPrefixedUTF16(c)
			if err != nil {
				return nil, err
			}
			if lastPI == nilRef {
				return nil, newDecodeErr(TruncatedStream, "PIData without a preceding PITarget at %d", tagPos)
			}
			p.tree.at(lastPI).PIData = s

		case opTemplateInstance:
			ref, err := p.parseTemplateInstance(c, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, ref)

		case opNormalSubstitution, opOptionalSubstitution:
			idx, optional, err := p.readSubstitutionRef(c, op == opOptionalSubstitution)
			if err != nil {
				return nil, err
			}
			out = append(out, p.tree.alloc(node{Kind: KindSubstitution, SubIndex: idx, SubOptional: optional}))

		case opStartOfStream:
			if _, err := c.Bytes(3); err != nil {
				return nil, err
			}

		default:
			return nil, newDecodeErr(UnknownOpcode, "unknown opcode 0x%02X at %d", tag, tagPos)
		}
	}
}

// parseOpenStart reads an OpenStartElementToken: [2 bytes dependency
// id][4 bytes element data size][name reference][if tag has the
// opMoreFlag bit: 4 bytes attribute-list byte size], then the
// attribute list (terminated by CloseStart/CloseEmpty) and the
// element's children (terminated by EndElement).
func (p *parser) parseOpenStart(c *cursor, tag byte, depth int) (nodeRef, error) {
	if _, err := c.Uint16(); err != nil { // dependency id, unused here
		return nilRef, err
	}
	if _, err := c.Uint32(); err != nil { // element data size, unused: we parse structurally
		return nilRef, err
	}
	elemName, err := p.names.resolveName(c, p.chunk)
	if err != nil {
		return nilRef, err
	}
	hasAttrs := tag&opMoreFlag != 0
	if hasAttrs {
		if _, err := c.Uint32(); err != nil { // attribute list byte size
			return nilRef, err
		}
	}
	elem := p.tree.alloc(node{Kind: KindElement, Name: elemName})

	if hasAttrs {
		attrs, err := p.parseAttributes(c, depth)
		if err != nil {
			return nilRef, err
		}
		p.tree.at(elem).Attrs = attrs
	} else {
		// Some encoders emit CloseStart even without attributes.
		if c.remaining() > 0 {
			if b, err := c.PeekBytes(1); err == nil && b[0]&0x0F == opCloseStart {
				c.Byte()
			}
		}
	}

	// CloseEmpty may have already ended the element (no CloseStart/
	// children): detect it before descending into parseNodes.
	if c.remaining() > 0 {
		if b, err := c.PeekBytes(1); err == nil && b[0]&0x0F == opCloseEmpty {
			c.Byte()
			return elem, nil
		}
	}

	children, err := p.parseNodes(c, depth+1, true)
	if err != nil {
		return nilRef, err
	}
	p.tree.at(elem).Children = children
	return elem, nil
}

// parseAttributes reads AttributeToken entries until CloseStart or
// CloseEmpty is encountered (left unconsumed for the caller).
func (p *parser) parseAttributes(c *cursor, depth int) ([]nodeRef, error) {
	var attrs []nodeRef
	for {
		if c.remaining() == 0 {
			return nil, newDecodeErr(TruncatedStream, "attribute list ran off the end of the fragment")
		}
		peek, err := c.PeekBytes(1)
		if err != nil {
			return nil, err
		}
		op := peek[0] & 0x0F
		if op == opCloseStart || op == opCloseEmpty {
			return attrs, nil
		}
		if op != opAttribute {
			return nil, newDecodeErr(TruncatedStream, "expected Attribute token, got opcode 0x%02X", peek[0])
		}
		c.Byte()
		attrName, err := p.names.resolveName(c, p.chunk)
		if err != nil {
			return nil, err
		}
		valRef, err := p.parseAttributeValue(c, depth)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, p.tree.alloc(node{Kind: KindAttribute, Name: attrName, Value: valRef}))
	}
}

// parseAttributeValue reads exactly one value-producing token
// (Value, CharRef, EntityRef, Substitution) as an attribute's value.
func (p *parser) parseAttributeValue(c *cursor, depth int) (nodeRef, error) {
	tagPos := c.Pos()
	tag, err := c.Byte()
	if err != nil {
		return nilRef, err
	}
	switch tag & 0x0F {
	case opValue:
		v, err := p.parseInlineValue(c)
		if err != nil {
			return nilRef, err
		}
		return p.tree.alloc(node{Kind: KindValue, Typed: v}), nil
	case opCharRef:
		code, err := c.Uint16()
		if err != nil {
			return nilRef, err
		}
		return p.tree.alloc(node{Kind: KindCharData, Text: string(rune(code))}), nil
	case opEntityRef:
		n, err := p.names.resolveName(c, p.chunk)
		if err != nil {
			return nilRef, err
		}
		return p.tree.alloc(node{Kind: KindCharData, Text: "&" + n.Value + ";"}), nil
	case opNormalSubstitution, opOptionalSubstitution:
		idx, optional, err := p.readSubstitutionRef(c, tag&0x0F == opOptionalSubstitution)
		if err != nil {
			return nilRef, err
		}
		return p.tree.alloc(node{Kind: KindSubstitution, SubIndex: idx, SubOptional: optional}), nil
	default:
		return nilRef, newDecodeErr(TruncatedStream, "expected an attribute value token at %d, got 0x%02X", tagPos, tag)
	}
}

func (p *parser) readSubstitutionRef(c *cursor, optional bool) (int, bool, error) {
	idx, err := c.Uint16()
	if err != nil {
		return 0, false, err
	}
	if _, err := c.Byte(); err != nil { // declared type, redundant with the descriptor array
		return 0, false, err
	}
	return int(idx), optional, nil
}

// readPrefixedUTF16 reads a 2-byte character count followed by that
// many UTF-16LE code units (no NUL terminator), the layout used by
// CDataSection and plain Value tokens.
func (p *parser) readPrefixedUTF16(c *cursor) (string, error) {
	count, err := c.Uint16()
	if err != nil {
		return "", err
	}
	return c.UTF16String(int(count))
}

// parseInlineValue reads a ValueTextToken body: a one-byte type
// followed by the value itself. Plain inline Value tokens (as opposed
// to a template's value-descriptor array, which carries an explicit
// byte length per slot) only support the types that are either
// self-delimiting (String/AnsiString/Binary, via a 2-byte prefix
// count) or fixed-width (including the 16-byte Guid and SysTime).
func (p *parser) parseInlineValue(c *cursor) (Value, error) {
	tb, err := c.Byte()
	if err != nil {
		return Value{}, err
	}
	t := ValueType(tb)
	switch t.Base() {
	case TypeBinary, TypeGuid, TypeSysTime:
		size := fixedWidth(t.Base())
		if t.Base() == TypeBinary {
			count, err := c.Uint16()
			if err != nil {
				return Value{}, err
			}
			size = int(count)
		}
		sc, err := p.decodeSizedScalar(c, t.Base(), size)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Scalar: sc}, nil
	case TypeString:
		s, err := p.readPrefixedUTF16(c)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeString, Scalar: ScalarValue{Str: s}}, nil
	case TypeAnsiString:
		count, err := c.Uint16()
		if err != nil {
			return Value{}, err
		}
		raw, err := c.Bytes(int(count))
		if err != nil {
			return Value{}, err
		}
		s, err := decodeAnsiString(raw, p.cc.cfg.codePage())
		if err != nil {
			return Value{}, err
		}
		return Value{Type: TypeAnsiString, Scalar: ScalarValue{Str: s}}, nil
	default:
		sc, err := decodeFixedWidthScalar(c, t.Base())
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Scalar: sc}, nil
	}
}

// parseTemplateInstance reads a TemplateInstanceToken: [1 byte
// version = 0x01][4 bytes template
// id][4 bytes template definition offset][if offset points here: the
// template definition itself][4 bytes substitution count][that many
// (size,type) descriptors][the concatenated raw substitution values].
func (p *parser) parseTemplateInstance(c *cursor, depth int) (nodeRef, error) {
	if depth+1 > p.cc.cfg.maxNestingDepth() {
		return nilRef, newDecodeErr(NestingTooDeep, "template instance nesting exceeds max depth")
	}
	version, err := c.Byte()
	if err != nil {
		return nilRef, err
	}
	if version != 0x01 {
		return nilRef, newDecodeErr(BadValueType, "unexpected template instance version 0x%02X", version)
	}
	id, err := c.Uint32()
	if err != nil {
		return nilRef, err
	}
	defOffset, err := c.Uint32()
	if err != nil {
		return nilRef, err
	}
	afterOffsetPos := c.Pos()

	body, err := p.resolveOrDecodeInlineTemplate(c, id, int(defOffset), afterOffsetPos, depth)
	if err != nil {
		return nilRef, err
	}

	nargs, err := c.Uint32()
	if err != nil {
		return nilRef, err
	}
	type descriptor struct {
		size uint16
		typ  ValueType
	}
	descs := make([]descriptor, nargs)
	for i := range descs {
		size, err := c.Uint16()
		if err != nil {
			return nilRef, err
		}
		typAndFlags, err := c.Uint16()
		if err != nil {
			return nilRef, err
		}
		descs[i] = descriptor{size: size, typ: ValueType(typAndFlags & 0xFF)}
	}
	values := make([]Value, len(descs))
	for i, d := range descs {
		v, err := p.decodeDescriptorValue(c, d.typ, int(d.size), depth)
		if err != nil {
			return nilRef, err
		}
		values[i] = v
	}

	resolve := func(subIndex int, optional bool) (node, error) {
		if subIndex < 0 || subIndex >= len(values) {
			return node{}, newDecodeErr(BadSubstitutionIndex, "substitution index %d has no descriptor (narg=%d)", subIndex, len(values))
		}
		v := values[subIndex]
		if optional && v.Type.Base() == TypeNull {
			return node{Kind: KindCharData, Text: ""}, nil
		}
		return node{Kind: KindValue, Typed: v}, nil
	}
	return p.tree.spliceBody(body.nodes, body.root, resolve)
}

// resolveTemplateBody returns the cached (or freshly decoded) body of
// a template whose definition lives elsewhere in the chunk (not right
// after the offset field the caller just read): already cached by id
// or by offset, or fetched out-of-line the way name back-references
// are, without disturbing the instance cursor.
func (p *parser) resolveTemplateBody(id uint32, defOffset, depth int) (*templateBody, error) {
	if tb, ok := p.cc.templates[id]; ok {
		return tb, nil
	}
	if tb, ok := p.cc.templatesByOffset[defOffset]; ok {
		p.cc.templates[id] = tb
		return tb, nil
	}
	defCur := newCursor(p.chunk.buf)
	defCur.Seek(defOffset)
	tb, err := p.decodeTemplateDefinition(defCur, id, depth)
	if err != nil {
		return nil, newDecodeErr(BadNameRef, "template %08X at offset %d: %v", id, defOffset, err)
	}
	p.cc.templates[id] = tb
	p.cc.templatesByOffset[defOffset] = tb
	return tb, nil
}

// decodeTemplateDefinition parses a template definition header
// ([4 bytes next-in-hash-chain][16 bytes GUID][4 bytes fragment
// size]) followed by the binary-XML fragment itself, from c.
func (p *parser) decodeTemplateDefinition(c *cursor, id uint32, depth int) (*templateBody, error) {
	if _, err := c.Uint32(); err != nil { // next-template-offset / hash chain, unused
		return nil, err
	}
	guidRaw, err := c.Bytes(16)
	if err != nil {
		return nil, err
	}
	var guid [16]byte
	copy(guid[:], guidRaw)
	dataSize, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	fragBuf, err := c.Bytes(int(dataSize))
	if err != nil {
		return nil, err
	}

	sub := &parser{cc: p.cc, chunk: p.chunk, names: p.names, tree: newTree(), log: p.log}
	fragCur := newCursor(fragBuf)
	roots, err := sub.parseNodes(fragCur, depth+1, false)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, newDecodeErr(TruncatedStream, "template body produced no nodes")
	}
	return &templateBody{id: id, guid: guid, nodes: sub.tree.nodes, root: int(roots[0])}, nil
}

// resolveOrDecodeInlineTemplate decides, from defOffset vs.
// afterOffsetPos (the position right after the 4-byte offset field
// parseTemplateInstance just read), whether the template's definition
// is written in place in the live instance cursor c (defOffset ==
// afterOffsetPos) or lives elsewhere in the chunk.
func (p *parser) resolveOrDecodeInlineTemplate(c *cursor, id uint32, defOffset, afterOffsetPos, depth int) (*templateBody, error) {
	if defOffset != afterOffsetPos {
		return p.resolveTemplateBody(id, defOffset, depth)
	}
	if tb, ok := p.cc.templates[id]; ok {
		// Already cached from an earlier record in this chunk: skip
		// the inline definition bytes without re-decoding them.
		if err := p.skipTemplateDefinition(c); err != nil {
			return nil, err
		}
		return tb, nil
	}
	tb, err := p.decodeTemplateDefinition(c, id, depth)
	if err != nil {
		return nil, err
	}
	p.cc.templates[id] = tb
	p.cc.templatesByOffset[defOffset] = tb
	return tb, nil
}

func (p *parser) skipTemplateDefinition(c *cursor) error {
	if _, err := c.Uint32(); err != nil {
		return err
	}
	if _, err := c.Bytes(16); err != nil {
		return err
	}
	dataSize, err := c.Uint32()
	if err != nil {
		return err
	}
	_, err = c.Bytes(int(dataSize))
	return err
}

// decodeDescriptorValue decodes one template substitution value given
// its declared (size, type) descriptor, reading from c. Arrays are
// split from the flat byte run
// per the element width (fixed-width types) or NUL separators
// (strings).
func (p *parser) decodeDescriptorValue(c *cursor, t ValueType, size int, depth int) (Value, error) {
	base := t.Base()
	if base == TypeNull {
		return Value{Type: t}, nil
	}
	if base == TypeBinXml || base == TypeEvtXml {
		raw, err := c.Bytes(size)
		if err != nil {
			return Value{}, err
		}
		nested, err := p.cc.decodeXMLAtDepth(raw, 0, len(raw), depth+1)
		if err != nil {
			p.log.Debug().Err(err).Msg("nested BinXml substitution failed to decode")
			return Value{Type: t}, nil
		}
		return Value{Type: t, Scalar: ScalarValue{Nested: nested}}, nil
	}
	if !t.IsArray() {
		sc, err := p.decodeSizedScalar(c, base, size)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Scalar: sc}, nil
	}
	elems, err := p.decodeArrayElements(c, base, size)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: t, Array: elems}, nil
}

// decodeSizedScalar decodes one scalar of type t occupying exactly
// size bytes at c's current position. String/AnsiString are decoded
// to text and fixed-width numeric types are interpreted directly;
// Binary, Sid and the 16-byte Guid carry their raw bytes through
// as-is, and the 16-byte SysTime is split into its eight uint16
// fields.
func (p *parser) decodeSizedScalar(c *cursor, t ValueType, size int) (ScalarValue, error) {
	switch t {
	case TypeString:
		raw, err := c.Bytes(size)
		if err != nil {
			return ScalarValue{}, err
		}
		s, err := decodeUTF16LE(raw)
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Str: s}, nil
	case TypeAnsiString:
		raw, err := c.Bytes(size)
		if err != nil {
			return ScalarValue{}, err
		}
		s, err := decodeAnsiString(raw, p.cc.cfg.codePage())
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Str: s}, nil
	case TypeBinary:
		raw, err := c.Bytes(size)
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Bin: raw}, nil
	case TypeSid:
		raw, err := c.Bytes(size)
		if err != nil {
			return ScalarValue{}, err
		}
		return ScalarValue{Bin: raw}, nil
	case TypeGuid:
		raw, err := c.Bytes(size)
		if err != nil {
			return ScalarValue{}, err
		}
		if len(raw) != 16 {
			return ScalarValue{}, newDecodeErr(BadValueType, "Guid value must be 16 bytes, got %d", len(raw))
		}
		return ScalarValue{Bin: guidBytes(raw)}, nil
	case TypeSysTime:
		raw, err := c.Bytes(size)
		if err != nil {
			return ScalarValue{}, err
		}
		if len(raw) != 16 {
			return ScalarValue{}, newDecodeErr(BadValueType, "SysTime value must be 16 bytes, got %d", len(raw))
		}
		var st [8]uint16
		for i := range st {
			st[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
		return ScalarValue{SysTime: st}, nil
	default:
		return decodeFixedWidthScalarSized(c, t, size)
	}
}

func (p *parser) decodeArrayElements(c *cursor, base ValueType, totalSize int) ([]ScalarValue, error) {
	if base == TypeString || base == TypeAnsiString {
		raw, err := c.Bytes(totalSize)
		if err != nil {
			return nil, err
		}
		return splitStringArray(raw, base, p.cc.cfg.codePage())
	}
	width := fixedWidth(base)
	if width <= 0 {
		raw, err := c.Bytes(totalSize)
		if err != nil {
			return nil, err
		}
		return []ScalarValue{{Bin: raw}}, nil
	}
	if totalSize%width != 0 {
		return nil, newDecodeErr(BadValueType, "array of %s: size %d is not a multiple of element width %d", base, totalSize, width)
	}
	count := totalSize / width
	out := make([]ScalarValue, count)
	for i := 0; i < count; i++ {
		sc, err := decodeFixedWidthScalarSized(c, base, width)
		if err != nil {
			return nil, err
		}
		out[i] = sc
	}
	return out, nil
}
