// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package writer

import (
	"debug/elf"
	"encoding/binary"
)

// SymEntry is one symbol table entry's worth of already-resolved
// state: Name is interned into a StrTab by the caller (the driver,
// once every output section has an address) before EncodeSymbols
// runs, so this package never needs symbol.NamePool itself.
type SymEntry struct {
	NameOff uint32
	Value   uint64
	Size    uint64
	Info    uint8 // elf.ST_INFO(bind, typ)
	Other   uint8 // elf.ST_VISIBILITY(vis)
	Shndx   uint16
}

// EncodeSymbols packs syms into a .symtab/.dynsym section's content,
// Sym32 or Sym64 depending on wordSize, in order (entry 0 is always
// the implicit STN_UNDEF null entry every ELF symbol table starts
// with — callers should not include it in syms).
func EncodeSymbols(syms []SymEntry, wordSize int, order binary.ByteOrder) []byte {
	entSize := symEntSize(wordSize)
	buf := make([]byte, entSize*(len(syms)+1))
	for i, s := range syms {
		off := (i + 1) * entSize
		if wordSize == 8 {
			var e elf.Sym64
			e.Name, e.Info, e.Other, e.Shndx, e.Value, e.Size = s.NameOff, s.Info, s.Other, s.Shndx, s.Value, s.Size
			putSym64(buf[off:off+entSize], e, order)
		} else {
			var e elf.Sym32
			e.Name, e.Info, e.Other, e.Shndx = s.NameOff, s.Info, s.Other, s.Shndx
			e.Value, e.Size = uint32(s.Value), uint32(s.Size)
			putSym32(buf[off:off+entSize], e, order)
		}
	}
	return buf
}

func symEntSize(wordSize int) int {
	if wordSize == 8 {
		return int(elf.Sym64Size)
	}
	return int(elf.Sym32Size)
}

func putSym64(dst []byte, e elf.Sym64, order binary.ByteOrder) {
	order.PutUint32(dst[0:4], e.Name)
	dst[4] = e.Info
	dst[5] = e.Other
	order.PutUint16(dst[6:8], e.Shndx)
	order.PutUint64(dst[8:16], e.Value)
	order.PutUint64(dst[16:24], e.Size)
}

func putSym32(dst []byte, e elf.Sym32, order binary.ByteOrder) {
	order.PutUint32(dst[0:4], e.Name)
	order.PutUint32(dst[4:8], e.Value)
	order.PutUint32(dst[8:12], e.Size)
	dst[12] = e.Info
	dst[13] = e.Other
	order.PutUint16(dst[14:16], e.Shndx)
}
