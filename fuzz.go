// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package evtx

// Fuzz exercises header parsing and XML materialisation against an
// arbitrary byte slice, treating it as a single record sitting at
// offset 0 of its own chunk (mirroring saferwall/pe's fuzz.go, which
// feeds a whole file to NewBytes/Parse the same way).
func Fuzz(data []byte) int {
	r := NewRecord(nil)
	if err := r.ReadHeader(data, 0); err != nil {
		return 0
	}
	cc := NewChunkContext(nil)
	if err := r.ReadXML(data, cc); err != nil {
		return 0
	}
	if _, err := r.FullXMLUTF8(); err != nil {
		return 0
	}
	return 1
}
