// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "testing"

func decodeBytes(t *testing.T, payload []byte, cfg *Config) *Tree {
	t.Helper()
	cc := NewChunkContext(cfg)
	tree, err := cc.DecodeXML(payload, 0, len(payload))
	if err != nil {
		t.Fatalf("DecodeXML: %v", err)
	}
	return tree
}

func TestDecodeNestedElements(t *testing.T) {
	payload := newBin().elem("Event", nil, func(b *binBuilder) {
		b.elem("System", nil, func(b *binBuilder) {
			b.elem("EventID", nil, func(b *binBuilder) { b.valueString("100") })
		})
	}).bytes()

	tree := decodeBytes(t, payload, nil)
	root := tree.Root()
	if tree.ElementName(root) != "Event" {
		t.Fatalf("root name = %q, want Event", tree.ElementName(root))
	}
	sys, ok := tree.FindChild(root, "System")
	if !ok || tree.ElementName(sys) != "System" {
		t.Fatalf("System child not found")
	}
	eid, ok := tree.FindPath(root, "System/EventID")
	if !ok {
		t.Fatal("System/EventID not found")
	}
	if got := tree.ElementText(eid); got != "100" {
		t.Fatalf("EventID text = %q, want 100", got)
	}
}

func TestDecodeAttributesOrderPreserved(t *testing.T) {
	payload := newBin().elem("Provider", []attrSpec{
		attr("Name", func(b *binBuilder) { b.valueString("A") }),
		attr("Guid", func(b *binBuilder) { b.valueString("B") }),
	}, nil).bytes()

	tree := decodeBytes(t, payload, nil)
	root := tree.Root()
	nameV, ok := tree.Attribute(root, "Name")
	if !ok || nameV.Render() != "A" {
		t.Fatalf("Name attribute = %v, %v", nameV, ok)
	}
	guidV, ok := tree.Attribute(root, "Guid")
	if !ok || guidV.Render() != "B" {
		t.Fatalf("Guid attribute = %v, %v", guidV, ok)
	}
}

func TestDecodeCDataAndPI(t *testing.T) {
	b := newBin()
	b.u8(opOpenStart)
	b.u16(0)
	b.u32(0)
	b.name("Root")
	// PI target+data, then CDATA, then close.
	b.u8(opPITarget)
	b.name("xml-stylesheet")
	b.u8(opPIData)
	b.u16(uint16(len([]rune("type='text/xsl'"))))
	b.raw(utf16LEBytes("type='text/xsl'"))
	b.u8(opCDataSection)
	b.u16(uint16(len([]rune("raw & unescaped"))))
	b.raw(utf16LEBytes("raw & unescaped"))
	b.u8(opEndElement)

	tree := decodeBytes(t, b.bytes(), nil)
	root := tree.Root()
	children := tree.Children(root)
	if len(children) != 2 {
		t.Fatalf("expected 2 children (PI, CData), got %d", len(children))
	}
	pi := tree.at(children[0])
	if pi.Kind != KindPI || pi.PITarget != "xml-stylesheet" || pi.PIData != "type='text/xsl'" {
		t.Fatalf("PI node = %+v", pi)
	}
	cd := tree.at(children[1])
	if cd.Kind != KindCData || cd.Text != "raw & unescaped" {
		t.Fatalf("CData node = %+v", cd)
	}
	xml, err := tree.SerializeUTF8()
	if err != nil {
		t.Fatal(err)
	}
	want := "<Root><?xml-stylesheet type='text/xsl'?><![CDATA[raw & unescaped]]></Root>"
	if string(xml) != want {
		t.Fatalf("xml = %q, want %q", xml, want)
	}
}

func TestDecodeCharRefAndEntityRef(t *testing.T) {
	b := newBin()
	b.u8(opOpenStart)
	b.u16(0)
	b.u32(0)
	b.name("Root")
	b.u8(opCharRef)
	b.u16(0x41) // 'A'
	b.u8(opEntityRef)
	b.name("amp")
	b.u8(opEndElement)

	tree := decodeBytes(t, b.bytes(), nil)
	xml, err := tree.SerializeUTF8()
	if err != nil {
		t.Fatal(err)
	}
	if string(xml) != "<Root>A&amp;</Root>" {
		t.Fatalf("xml = %q", xml)
	}
}

func TestDecodeTemplateInstanceSubstitution(t *testing.T) {
	var guid [16]byte
	for i := range guid {
		guid[i] = byte(i)
	}
	payload := newBin().templateInstance(0x1, guid, func(body *binBuilder) {
		body.elem("Event", nil, func(b *binBuilder) {
			b.elem("System", nil, func(b *binBuilder) {
				b.elem("EventID", nil, func(b *binBuilder) { b.substitution(0, false) })
			})
		})
	}, []templateDescriptor{strDesc("4624")}).bytes()

	tree := decodeBytes(t, payload, nil)
	root := tree.Root()
	if tree.ElementName(root) != "Event" {
		t.Fatalf("root = %q, want Event", tree.ElementName(root))
	}
	eid, ok := tree.FindPath(root, "System/EventID")
	if !ok {
		t.Fatal("System/EventID not found after template substitution")
	}
	if got := tree.ElementText(eid); got != "4624" {
		t.Fatalf("EventID = %q, want 4624", got)
	}
}

func TestDecodeTemplateCachedAcrossInstances(t *testing.T) {
	var guid [16]byte
	cc := NewChunkContext(nil)

	bodyFn := func(body *binBuilder) {
		body.elem("Event", nil, func(b *binBuilder) {
			b.elem("Msg", nil, func(b *binBuilder) { b.substitution(0, false) })
		})
	}

	first := newBin().templateInstance(0xAA, guid, bodyFn, []templateDescriptor{strDesc("one")}).bytes()
	tree1, err := cc.DecodeXML(first, 0, len(first))
	if err != nil {
		t.Fatal(err)
	}
	if got := tree1.ElementText(mustFind(t, tree1, "Msg")); got != "one" {
		t.Fatalf("first instance Msg = %q", got)
	}
	if len(cc.templates) != 1 {
		t.Fatalf("expected 1 cached template, got %d", len(cc.templates))
	}

	second := newBin().templateInstance(0xAA, guid, bodyFn, []templateDescriptor{strDesc("two")}).bytes()
	tree2, err := cc.DecodeXML(second, 0, len(second))
	if err != nil {
		t.Fatal(err)
	}
	if got := tree2.ElementText(mustFind(t, tree2, "Msg")); got != "two" {
		t.Fatalf("second instance Msg = %q", got)
	}
	if len(cc.templates) != 1 {
		t.Fatalf("template cache grew on a repeated template id: %d", len(cc.templates))
	}
}

func mustFind(t *testing.T, tree *Tree, name string) nodeRef {
	t.Helper()
	ref, ok := tree.FindChild(tree.Root(), name)
	if !ok {
		t.Fatalf("%s not found", name)
	}
	return ref
}

func TestDecodeOptionalSubstitutionNull(t *testing.T) {
	var guid [16]byte
	payload := newBin().templateInstance(0x2, guid, func(body *binBuilder) {
		body.elem("Event", nil, func(b *binBuilder) {
			b.elem("Extra", nil, func(b *binBuilder) { b.substitution(0, true) })
		})
	}, []templateDescriptor{nullDesc()}).bytes()

	tree := decodeBytes(t, payload, nil)
	extra := mustFind(t, tree, "Extra")
	if got := tree.ElementText(extra); got != "" {
		t.Fatalf("optional-null substitution text = %q, want empty", got)
	}
}

func TestDecodeArraySubstitutionJoinedBySpace(t *testing.T) {
	var guid [16]byte
	arrDesc := templateDescriptor{
		typ:  TypeUInt32 | arrayFlag,
		size: 12,
		val: func(b *binBuilder) {
			b.u32(1)
			b.u32(2)
			b.u32(3)
		},
	}
	payload := newBin().templateInstance(0x3, guid, func(body *binBuilder) {
		body.elem("Event", nil, func(b *binBuilder) {
			b.elem("Nums", nil, func(b *binBuilder) { b.substitution(0, false) })
		})
	}, []templateDescriptor{arrDesc}).bytes()

	tree := decodeBytes(t, payload, nil)
	nums := mustFind(t, tree, "Nums")
	if got := tree.ElementText(nums); got != "1 2 3" {
		t.Fatalf("array substitution text = %q, want %q", got, "1 2 3")
	}
}

func TestDecodeUnmatchedEndElementFails(t *testing.T) {
	// Opcode 0x03 (CloseEmpty) outside any open element is malformed:
	// the low nibble addresses all 16 defined opcodes (spec §4.2's
	// table is itself exhaustive over 0x00-0x0F), so this is a
	// TruncatedStream/structural error rather than an unknown opcode.
	bad := []byte{0x03}
	cc := NewChunkContext(nil)
	_, err := cc.DecodeXML(bad, 0, len(bad))
	if err == nil {
		t.Fatal("expected an error decoding a lone CloseEmpty byte")
	}
	var ee *Error
	if !asError(err, &ee) || ee.Kind != DecodeError || ee.Decode != TruncatedStream {
		t.Fatalf("err = %v, want DecodeError/TruncatedStream", err)
	}
}

func TestDecodeNestingTooDeepIsBounded(t *testing.T) {
	cfg := &Config{MaxNestingDepth: 3}
	b := newBin()
	depth := 6
	for i := 0; i < depth; i++ {
		b.u8(opOpenStart)
		b.u16(0)
		b.u32(0)
		b.name("E")
	}
	for i := 0; i < depth; i++ {
		b.u8(opEndElement)
	}
	cc := NewChunkContext(cfg)
	_, err := cc.DecodeXML(b.bytes(), 0, len(b.bytes()))
	if err == nil {
		t.Fatal("expected NestingTooDeep error")
	}
	var ee *Error
	if !asError(err, &ee) || ee.Kind != DecodeError || ee.Decode != NestingTooDeep {
		t.Fatalf("err = %v, want DecodeError/NestingTooDeep", err)
	}
}
