// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package writer

import (
	"encoding/binary"
)

// RelocEntry is one output relocation-section entry: Sym is already
// the symbol's final index into whichever symbol table the section's
// sh_link names (the writer has no symbol-table knowledge of its own;
// the driver resolves that index before building this entry).
type RelocEntry struct {
	Offset uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

// EncodeRelocs packs entries into a relocation section's content
// (4.I: "Relocation sections serialize their dynamic/static reloc
// list with endianness-correct sym << shift | type packing"). rela
// selects RELA (with Addend) over REL; shift is 32 for a 64-bit
// target's packed r_info, 8 for a 32-bit target's.
func EncodeRelocs(entries []RelocEntry, wordSize int, rela bool, order binary.ByteOrder) []byte {
	entSize := relocEntSize(wordSize, rela)
	buf := make([]byte, entSize*len(entries))
	for i, e := range entries {
		off := i * entSize
		dst := buf[off : off+entSize]
		if wordSize == 8 {
			info := uint64(e.Sym)<<32 | uint64(e.Type)
			order.PutUint64(dst[0:8], e.Offset)
			order.PutUint64(dst[8:16], info)
			if rela {
				order.PutUint64(dst[16:24], uint64(e.Addend))
			}
		} else {
			info := e.Sym<<8 | (e.Type & 0xff)
			order.PutUint32(dst[0:4], uint32(e.Offset))
			order.PutUint32(dst[4:8], info)
			if rela {
				order.PutUint32(dst[8:12], uint32(e.Addend))
			}
		}
	}
	return buf
}

func relocEntSize(wordSize int, rela bool) int {
	switch {
	case wordSize == 8 && rela:
		return 24 // Rela64: Off+Info+Addend = 8+8+8
	case wordSize == 8:
		return 16 // Rel64: Off+Info = 8+8
	case rela:
		return 12 // Rela32: Off+Info+Addend = 4+4+4
	default:
		return 8 // Rel32: Off+Info = 4+4
	}
}

// EncodeGroup packs a SHT_GROUP section's content: a leading flags
// word (GRP_COMDAT or 0) followed by the section header indices of
// every group member, in order (4.I: "Group sections write their
// member indices").
func EncodeGroup(flags uint32, members []uint32, order binary.ByteOrder) []byte {
	buf := make([]byte, 4*(len(members)+1))
	order.PutUint32(buf[0:4], flags)
	for i, m := range members {
		order.PutUint32(buf[4*(i+1):4*(i+2)], m)
	}
	return buf
}
