// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
)

// EVTX file/chunk layout constants. This walker is deliberately thin:
// it locates chunk and record boundaries by signature and declared
// size alone, with no CRC check and no attempt to recover from a
// malformed chunk.
const (
	fileHeaderSize  = 0x1000
	chunkSize       = 0x10000
	chunkHeaderSize = 0x200
)

var fileSignature = [8]byte{'E', 'l', 'f', 'F', 'i', 'l', 'e', 0}
var chunkSignature = [8]byte{'E', 'l', 'f', 'C', 'h', 'n', 'k', 0}

// recordSignatureBytes mirrors the evtx package's own unexported
// record magic; it is a format constant, not internal state, so
// duplicating the four bytes here keeps this walker from needing a
// package-private hook into evtx.
var recordSignatureBytes = [4]byte{0x2A, 0x2A, 0x00, 0x00}

func hasSignature(data []byte, off int, sig []byte) bool {
	if off < 0 || off+len(sig) > len(data) {
		return false
	}
	for i, b := range sig {
		if data[off+i] != b {
			return false
		}
	}
	return true
}

// walkChunks calls fn with the absolute offset of every chunk header
// in data whose signature is intact, in file order. The walk ends at
// the first offset that doesn't start a chunk.
func walkChunks(data []byte, fn func(chunkOffset int) error) error {
	if len(data) < fileHeaderSize || !hasSignature(data, 0, fileSignature[:]) {
		return fmt.Errorf("evtxdump: not an EVTX file (missing ElfFile signature)")
	}
	for off := fileHeaderSize; off+chunkHeaderSize <= len(data); off += chunkSize {
		if !hasSignature(data, off, chunkSignature[:]) {
			break
		}
		if err := fn(off); err != nil {
			return err
		}
	}
	return nil
}

// walkRecords calls fn with the offset of every well-formed record in
// the chunk starting at chunkOffset, stopping at the first offset that
// doesn't carry a valid record signature and declared size (typically
// the chunk's free space).
func walkRecords(data []byte, chunkOffset int, fn func(recordOffset int) error) error {
	off := chunkOffset + chunkHeaderSize
	end := chunkOffset + chunkSize
	for off+8 <= end && off+8 <= len(data) {
		if !hasSignature(data, off, recordSignatureBytes[:]) {
			break
		}
		size := binary.LittleEndian.Uint32(data[off+4:])
		if size == 0 || off+int(size) > end || off+int(size) > len(data) {
			break
		}
		if err := fn(off); err != nil {
			return err
		}
		off += int(size)
	}
	return nil
}
