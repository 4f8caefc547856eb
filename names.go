// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

// name is an interned element or attribute name: the UTF-16 string
// plus the 16-bit hash the binary-XML format stores alongside it to
// accelerate equality checks (spec §4.2, "Name references").
type name struct {
	Hash  uint16
	Value string
}

// Equal compares two names the way spec §4.2's tie-break rule
// requires: the hash is only an acceleration, never a substitute for
// full UTF-16 (here, decoded-string) equality, so two different
// strings that happen to collide on hash are never treated as equal.
func (n name) Equal(other name) bool {
	if n.Hash != other.Hash {
		return false
	}
	return n.Value == other.Value
}

// nameCache resolves binary-XML name references within one chunk.
// A name reference is either inline (the definition sits at the
// current stream position) or a back-reference to an earlier
// definition addressed by its absolute chunk offset; the cache is
// keyed by that offset so repeated back-references to the same
// definition never need to be re-decoded (spec §4.2, "Name
// references": "an element/attribute name is either inline ... or a
// back-reference to an earlier name").
type nameCache struct {
	byOffset map[int]name
}

func newNameCache() *nameCache {
	return &nameCache{byOffset: make(map[int]name)}
}

// resolveName reads a name reference at the cursor's current
// position: a 4-byte absolute offset into the chunk, followed
// in-place (if offset == the position right after that 4-byte field)
// by the name's own definition, or nothing at all when offset points
// elsewhere (a definition served from the cache, or decoded out of
// line at that offset when not yet cached).
//
// Name definition layout at `offset`: uint32 unused/next-in-hash-
// bucket pointer, uint16 hash, uint16 character count, that many
// UTF-16LE code units, and a trailing UTF-16 NUL terminator.
func (nc *nameCache) resolveName(c *cursor, chunk *cursor) (name, error) {
	refOffset, err := c.Uint32()
	if err != nil {
		return name{}, err
	}
	here := c.Pos()
	if int(refOffset) == here {
		n, err := decodeNameDefinition(c)
		if err != nil {
			return name{}, err
		}
		nc.byOffset[here] = n
		return n, nil
	}
	if n, ok := nc.byOffset[int(refOffset)]; ok {
		return n, nil
	}
	// Not yet seen: decode it out of line, at its own offset, without
	// disturbing the caller's cursor position.
	defCur := newCursor(chunk.buf)
	defCur.Seek(int(refOffset))
	n, err := decodeNameDefinition(defCur)
	if err != nil {
		return name{}, newDecodeErr(BadNameRef, "name reference at %d: %v", refOffset, err)
	}
	nc.byOffset[int(refOffset)] = n
	return n, nil
}

func decodeNameDefinition(c *cursor) (name, error) {
	if _, err := c.Uint32(); err != nil { // unused / hash-bucket chain pointer
		return name{}, err
	}
	hash, err := c.Uint16()
	if err != nil {
		return name{}, err
	}
	count, err := c.Uint16()
	if err != nil {
		return name{}, err
	}
	s, err := c.UTF16String(int(count))
	if err != nil {
		return name{}, err
	}
	if _, err := c.Uint16(); err != nil { // NUL terminator
		return name{}, err
	}
	return name{Hash: hash, Value: s}, nil
}
