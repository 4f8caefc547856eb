// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// NodeKind tags the variant a Tree node holds. Rather than an
// interface-per-variant, which would forbid the back-reference-by-index
// scheme the Tree relies on, every node is one flat struct carrying
// only the fields its Kind uses, addressed by integer nodeRef into the
// Tree's arena. This mirrors how saferwall/pe keeps its resource
// directory as a flat slice of entries addressed by offset rather
// than a pointer-linked structure.
type NodeKind int

// Node kinds.
const (
	KindElement NodeKind = iota
	KindAttribute
	KindValue
	KindCharData
	KindCData
	KindPI
	KindTemplateInstance
	KindSubstitution
)

// nodeRef is a non-owning handle into a Tree's node arena: the index
// of a node in Tree.nodes. Index 0 is a valid reference (usually the
// root, which is normally allocated first); absence is spelled with
// the dedicated nilRef sentinel.
type nodeRef int

const nilRef nodeRef = -1

type node struct {
	Kind NodeKind

	// Element
	Name     name
	Attrs    []nodeRef
	Children []nodeRef

	// Attribute: Name (above) + Value
	Value nodeRef

	// Value
	Typed Value

	// CharData / CData
	Text string

	// CharData only: true when Text is already well-formed XML markup
	// (a named entity reference the decoder could not resolve against
	// a DTD) that must be emitted as-is rather than escaped a second
	// time.
	Raw bool

	// PI
	PITarget string
	PIData   string

	// Substitution (transient: always resolved away before a Tree is
	// handed to a caller, but modelled as its own kind while a template
	// body is being cached, per spec §3)
	SubIndex    int
	SubOptional bool
}

// Tree is a decoded binary-XML document: an arena of nodes plus the
// index of its root element. It is owned exclusively by whatever
// Record created it (spec §3, "Record Values entity" lifecycle); all
// handles into it are nodeRef values with lifetime no longer than the
// Tree itself, never raw pointers (spec §9).
type Tree struct {
	nodes []node
	root  nodeRef
}

func newTree() *Tree {
	return &Tree{root: nilRef}
}

func (t *Tree) alloc(n node) nodeRef {
	t.nodes = append(t.nodes, n)
	return nodeRef(len(t.nodes) - 1)
}

func (t *Tree) at(r nodeRef) *node {
	if r < 0 || int(r) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[r]
}

// Root returns the root element's reference, or nilRef if the tree is
// empty.
func (t *Tree) Root() nodeRef { return t.root }

// ElementName returns the UTF-8 name of the element at ref, or "" if
// ref does not name an element.
func (t *Tree) ElementName(ref nodeRef) string {
	n := t.at(ref)
	if n == nil || n.Kind != KindElement {
		return ""
	}
	return n.Name.Value
}

// Children returns the child node references of the element at ref.
func (t *Tree) Children(ref nodeRef) []nodeRef {
	n := t.at(ref)
	if n == nil {
		return nil
	}
	return n.Children
}

// ChildElements returns, in document order, the references of ref's
// children that are themselves elements (spec §4.3, "Enumeration of
// child elements with index access").
func (t *Tree) ChildElements(ref nodeRef) []nodeRef {
	var out []nodeRef
	for _, c := range t.Children(ref) {
		if cn := t.at(c); cn != nil && cn.Kind == KindElement {
			out = append(out, c)
		}
	}
	return out
}

// FindChild returns the first child element of ref named childName
// (spec §4.3, "Query by element name").
func (t *Tree) FindChild(ref nodeRef, childName string) (nodeRef, bool) {
	for _, c := range t.ChildElements(ref) {
		if t.ElementName(c) == childName {
			return c, true
		}
	}
	return nilRef, false
}

// FindPath walks a "/"-separated sequence of element names starting
// from ref (e.g. "System/EventID").
func (t *Tree) FindPath(ref nodeRef, path string) (nodeRef, bool) {
	cur := ref
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next, ok := t.FindChild(cur, part)
		if !ok {
			return nilRef, false
		}
		cur = next
	}
	return cur, true
}

// Attribute returns the resolved Value of the attribute named
// attrName on the element at ref (spec §4.3, "Query by attribute name
// on a given element").
func (t *Tree) Attribute(ref nodeRef, attrName string) (Value, bool) {
	n := t.at(ref)
	if n == nil || n.Kind != KindElement {
		return Value{}, false
	}
	for _, a := range n.Attrs {
		an := t.at(a)
		if an == nil || an.Kind != KindAttribute {
			continue
		}
		if an.Name.Value == attrName {
			return t.valueOf(an.Value), true
		}
	}
	return Value{}, false
}

// ElementValue returns the resolved inner typed value of the element
// at ref: the Value held by its first Value child, or the
// concatenation of CharData/CData children when there is no typed
// Value child.
func (t *Tree) ElementValue(ref nodeRef) Value {
	n := t.at(ref)
	if n == nil {
		return Value{}
	}
	var text strings.Builder
	sawText := false
	for _, c := range n.Children {
		cn := t.at(c)
		if cn == nil {
			continue
		}
		switch cn.Kind {
		case KindValue:
			return cn.Typed
		case KindCharData, KindCData:
			text.WriteString(cn.Text)
			sawText = true
		}
	}
	if sawText {
		return Value{Type: TypeString, Scalar: ScalarValue{Str: text.String()}}
	}
	return Value{}
}

// ElementText returns the element's inner value rendered as a string.
func (t *Tree) ElementText(ref nodeRef) string {
	return t.valueOf(ref).Render()
}

func (t *Tree) valueOf(ref nodeRef) Value {
	n := t.at(ref)
	if n == nil {
		return Value{}
	}
	switch n.Kind {
	case KindValue:
		return n.Typed
	case KindCharData, KindCData:
		return Value{Type: TypeString, Scalar: ScalarValue{Str: n.Text}}
	case KindAttribute:
		return t.valueOf(n.Value)
	case KindElement:
		return t.ElementValue(ref)
	default:
		return Value{}
	}
}

// spliceBody copies a template's cached body (node indices relative
// to 0) into t's arena, replacing every KindSubstitution node with
// whatever resolve returns for its (SubIndex, SubOptional), and
// returns the reference of the spliced root (body[rootIdx]).
//
// Each instantiation splices a fresh copy, so no record's Tree holds
// indices or pointers into the template cache. Substitutions are
// resolved here, when the template instance is decoded, and not at
// serialisation: by the time a caller sees the Tree, substitutions are
// already ordinary Value/CharData nodes and no TemplateInstance node
// remains.
func (t *Tree) spliceBody(body []node, rootIdx int, resolve func(subIndex int, optional bool) (node, error)) (nodeRef, error) {
	base := nodeRef(len(t.nodes))
	remap := func(r nodeRef) nodeRef {
		if r == nilRef {
			return nilRef
		}
		return base + r
	}
	remapSlice := func(rs []nodeRef) []nodeRef {
		if rs == nil {
			return nil
		}
		out := make([]nodeRef, len(rs))
		for i, r := range rs {
			out[i] = remap(r)
		}
		return out
	}
	for _, n := range body {
		nn := n
		nn.Attrs = remapSlice(nn.Attrs)
		nn.Children = remapSlice(nn.Children)
		nn.Value = remap(nn.Value)
		t.nodes = append(t.nodes, nn)
	}
	for i := 0; i < len(body); i++ {
		idx := int(base) + i
		if t.nodes[idx].Kind != KindSubstitution {
			continue
		}
		resolved, err := resolve(t.nodes[idx].SubIndex, t.nodes[idx].SubOptional)
		if err != nil {
			return nilRef, err
		}
		t.nodes[idx] = resolved
	}
	return base + nodeRef(rootIdx), nil
}

// Clone deep-copies t: every node's slices are copied independently
// and any nested BinXml/EvtXml sub-tree is cloned recursively, so the
// result shares no mutable state with t (spec §3, "Clone semantics:
// a deep clone duplicates the header fields and clones the XML
// tree"). A nil receiver clones to nil.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	nt := &Tree{root: t.root, nodes: make([]node, len(t.nodes))}
	for i, n := range t.nodes {
		nn := n
		if n.Attrs != nil {
			nn.Attrs = append([]nodeRef(nil), n.Attrs...)
		}
		if n.Children != nil {
			nn.Children = append([]nodeRef(nil), n.Children...)
		}
		if n.Kind == KindValue {
			nn.Typed = n.Typed.clone()
		}
		nt.nodes[i] = nn
	}
	return nt
}

// --- Serialisation (spec §4.3) ---

// SerializeUTF8 renders the tree's root element as UTF-8 XML.
func (t *Tree) SerializeUTF8() ([]byte, error) {
	if t.root == nilRef {
		return nil, newErr(InternalError, "tree has no root element")
	}
	var sb strings.Builder
	t.writeElement(&sb, t.root)
	return []byte(sb.String()), nil
}

// SizeUTF8 returns the number of bytes SerializeUTF8 would need,
// terminator included, without allocating the rendered string twice
// in the caller (spec §4.3, "size-query ... with terminator").
func (t *Tree) SizeUTF8() (int, error) {
	b, err := t.SerializeUTF8()
	if err != nil {
		return 0, err
	}
	return len(b) + 1, nil
}

var utf16leEncoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

// SerializeUTF16 renders the tree's root element as UTF-16LE XML.
func (t *Tree) SerializeUTF16() ([]byte, error) {
	u8, err := t.SerializeUTF8()
	if err != nil {
		return nil, err
	}
	u16, err := utf16leEncoder.Bytes(u8)
	if err != nil {
		return nil, newErrf(InternalError, err, "utf-16 encode failed")
	}
	return u16, nil
}

// SizeUTF16 returns the number of UTF-16 code units SerializeUTF16
// would need, NUL terminator included.
func (t *Tree) SizeUTF16() (int, error) {
	b, err := t.SerializeUTF16()
	if err != nil {
		return 0, err
	}
	return len(b)/2 + 1, nil
}

func (t *Tree) writeElement(sb *strings.Builder, ref nodeRef) {
	n := t.at(ref)
	if n == nil {
		return
	}
	sb.WriteByte('<')
	sb.WriteString(n.Name.Value)
	for _, a := range n.Attrs {
		an := t.at(a)
		if an == nil {
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(an.Name.Value)
		sb.WriteString(`="`)
		sb.WriteString(escapeXML(t.valueOf(an.Value).Render(), true))
		sb.WriteByte('"')
	}
	if len(n.Children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	for _, c := range n.Children {
		t.writeNode(sb, c)
	}
	sb.WriteString("</")
	sb.WriteString(n.Name.Value)
	sb.WriteByte('>')
}

func (t *Tree) writeNode(sb *strings.Builder, ref nodeRef) {
	n := t.at(ref)
	if n == nil {
		return
	}
	switch n.Kind {
	case KindElement:
		t.writeElement(sb, ref)
	case KindValue:
		sb.WriteString(escapeXML(n.Typed.Render(), false))
	case KindCharData:
		if n.Raw {
			sb.WriteString(n.Text)
		} else {
			sb.WriteString(escapeXML(n.Text, false))
		}
	case KindCData:
		sb.WriteString("<![CDATA[")
		sb.WriteString(n.Text)
		sb.WriteString("]]>")
	case KindPI:
		sb.WriteString("<?")
		sb.WriteString(n.PITarget)
		if n.PIData != "" {
			sb.WriteByte(' ')
			sb.WriteString(n.PIData)
		}
		sb.WriteString("?>")
	}
}

// escapeXML escapes & < > and, for attribute values, " and '. Control
// characters below 0x20 other than tab/LF/CR become numeric character
// references, per spec §4.3.
func escapeXML(s string, attr bool) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '"':
			if attr {
				sb.WriteString("&quot;")
			} else {
				sb.WriteRune(r)
			}
		case '\'':
			if attr {
				sb.WriteString("&apos;")
			} else {
				sb.WriteRune(r)
			}
		case '\t', '\n', '\r':
			sb.WriteRune(r)
		default:
			if r < 0x20 {
				fmt.Fprintf(&sb, "&#x%X;", r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}
