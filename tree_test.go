// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

import "testing"

func TestTreeFindChildAndPath(t *testing.T) {
	payload := newBin().elem("Event", nil, func(b *binBuilder) {
		b.elem("System", nil, func(b *binBuilder) {
			b.elem("EventID", nil, func(b *binBuilder) { b.valueString("42") })
		})
	}).bytes()

	tree := decodeBytes(t, payload, nil)
	root := tree.Root()

	if _, ok := tree.FindChild(root, "Nope"); ok {
		t.Fatal("FindChild found a child that doesn't exist")
	}
	eid, ok := tree.FindPath(root, "System/EventID")
	if !ok || tree.ElementText(eid) != "42" {
		t.Fatalf("FindPath(System/EventID) failed")
	}
	if _, ok := tree.FindPath(root, "System/Missing"); ok {
		t.Fatal("FindPath resolved a missing path segment")
	}
}

func TestTreeChildElementsSkipsNonElements(t *testing.T) {
	b := newBin()
	b.u8(opOpenStart)
	b.u16(0)
	b.u32(0)
	b.name("Root")
	b.u8(opCharRef)
	b.u16(0x41)
	b.u8(opOpenStart)
	b.u16(0)
	b.u32(0)
	b.name("Child")
	b.u8(opCloseEmpty)
	b.u8(opEndElement)

	tree := decodeBytes(t, b.bytes(), nil)
	root := tree.Root()
	els := tree.ChildElements(root)
	if len(els) != 1 || tree.ElementName(els[0]) != "Child" {
		t.Fatalf("ChildElements = %v, want single Child", els)
	}
	if len(tree.Children(root)) != 2 {
		t.Fatalf("Children should still include the CharData node")
	}
}

func TestTreeAttributeLookup(t *testing.T) {
	payload := newBin().elem("Provider", []attrSpec{
		attr("Name", func(b *binBuilder) { b.valueString("X") }),
	}, nil).bytes()

	tree := decodeBytes(t, payload, nil)
	root := tree.Root()
	if _, ok := tree.Attribute(root, "Missing"); ok {
		t.Fatal("Attribute found a name that doesn't exist")
	}
	v, ok := tree.Attribute(root, "Name")
	if !ok || v.Render() != "X" {
		t.Fatalf("Attribute(Name) = %v, %v", v, ok)
	}
}

func TestTreeSerializeSizeRoundTrip(t *testing.T) {
	payload := newBin().elem("Event", nil, func(b *binBuilder) {
		b.elem("A", nil, func(b *binBuilder) { b.valueString("1") })
	}).bytes()

	tree := decodeBytes(t, payload, nil)
	u8, err := tree.SerializeUTF8()
	if err != nil {
		t.Fatal(err)
	}
	n8, err := tree.SizeUTF8()
	if err != nil {
		t.Fatal(err)
	}
	if n8 != len(u8)+1 {
		t.Fatalf("SizeUTF8 = %d, want %d", n8, len(u8)+1)
	}

	u16, err := tree.SerializeUTF16()
	if err != nil {
		t.Fatal(err)
	}
	n16, err := tree.SizeUTF16()
	if err != nil {
		t.Fatal(err)
	}
	if n16 != len(u16)/2+1 {
		t.Fatalf("SizeUTF16 = %d, want %d", n16, len(u16)/2+1)
	}
}

func TestEscapeXMLControlCharacters(t *testing.T) {
	got := escapeXML("a\x01b\tc\nd\re&f<g>h'i\"j", false)
	want := "a&#x1;b\tc\nd\re&amp;f&lt;g&gt;h'i\"j"
	if got != want {
		t.Fatalf("escapeXML(elem) = %q, want %q", got, want)
	}
	gotAttr := escapeXML("'\"", true)
	if gotAttr != "&apos;&quot;" {
		t.Fatalf("escapeXML(attr) = %q", gotAttr)
	}
}

func TestTreeCloneIndependence(t *testing.T) {
	payload := newBin().elem("Event", nil, func(b *binBuilder) {
		b.elem("A", nil, func(b *binBuilder) { b.valueString("1") })
	}).bytes()

	tree := decodeBytes(t, payload, nil)
	clone := tree.Clone()

	clone.nodes[0].Name.Value = "Mutated"
	if tree.nodes[0].Name.Value == "Mutated" {
		t.Fatal("Clone shares node storage with the source tree")
	}

	clone.nodes[0].Children = append(clone.nodes[0].Children, nilRef)
	if len(tree.nodes[0].Children) == len(clone.nodes[0].Children) {
		t.Fatal("Clone shares the Children slice backing array")
	}
}

func TestTreeCloneNil(t *testing.T) {
	var tree *Tree
	if tree.Clone() != nil {
		t.Fatal("Clone of a nil Tree must be nil")
	}
}
