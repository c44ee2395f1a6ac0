// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package writer

import (
	"debug/elf"
	"encoding/binary"
	"testing"
)

func TestEncodeSymbolsReservesNullEntry(t *testing.T) {
	got := EncodeSymbols(nil, 8, binary.LittleEndian)
	if len(got) != int(elf.Sym64Size) {
		t.Fatalf("len = %d, want one null entry (%d bytes)", len(got), elf.Sym64Size)
	}
	for _, b := range got {
		if b != 0 {
			t.Fatalf("null entry not all-zero: %v", got)
		}
	}
}

func TestEncodeSymbols64RoundTrips(t *testing.T) {
	syms := []SymEntry{
		{NameOff: 5, Value: 0x401000, Size: 16, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: 1},
	}
	got := EncodeSymbols(syms, 8, binary.LittleEndian)
	if len(got) != 2*int(elf.Sym64Size) {
		t.Fatalf("len = %d, want 2 entries", len(got))
	}
	entry := got[elf.Sym64Size:]
	if name := binary.LittleEndian.Uint32(entry[0:4]); name != 5 {
		t.Errorf("Name = %d, want 5", name)
	}
	if val := binary.LittleEndian.Uint64(entry[8:16]); val != 0x401000 {
		t.Errorf("Value = %#x, want 0x401000", val)
	}
	if shndx := binary.LittleEndian.Uint16(entry[6:8]); shndx != 1 {
		t.Errorf("Shndx = %d, want 1", shndx)
	}
}

func TestEncodeSymbols32(t *testing.T) {
	syms := []SymEntry{{NameOff: 3, Value: 0x1000, Size: 4, Shndx: 2}}
	got := EncodeSymbols(syms, 4, binary.LittleEndian)
	if len(got) != 2*int(elf.Sym32Size) {
		t.Fatalf("len = %d, want 2 entries of Sym32Size", len(got))
	}
}
