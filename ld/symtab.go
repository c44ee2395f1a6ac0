// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/symbol"
	"github.com/aclements/go-ld/writer"
)

// dynRelocType maps a scanned fragment.DynKind to the concrete psABI
// relocation-type number .rela.dyn/.rela.plt entries carry. writer
// only serializes already-resolved writer.RelocEntry values (see
// DESIGN.md's writer entry); this table is what turns a Relocator's
// abstract classification back into an ELF constant for one.
func (t *target) dynRelocType(kind fragment.DynKind) (uint32, bool) {
	switch t.elfMach {
	case elf.EM_X86_64:
		switch kind {
		case fragment.DynRelative:
			return uint32(elf.R_X86_64_RELATIVE), true
		case fragment.DynGlobDat:
			return uint32(elf.R_X86_64_GLOB_DAT), true
		case fragment.DynCopy:
			return uint32(elf.R_X86_64_COPY), true
		case fragment.DynTLSDTPMod:
			return uint32(elf.R_X86_64_DTPMOD64), true
		}
	case elf.EM_AARCH64:
		switch kind {
		case fragment.DynRelative:
			return uint32(elf.R_AARCH64_RELATIVE), true
		case fragment.DynGlobDat:
			return uint32(elf.R_AARCH64_GLOB_DAT), true
		case fragment.DynCopy:
			return uint32(elf.R_AARCH64_COPY), true
		case fragment.DynTLSDTPMod:
			return uint32(elf.R_AARCH64_TLS_DTPMOD64), true
		}
	}
	return 0, false
}

// symtabBuilder accumulates the .symtab/.strtab content 4.J's finalize
// phase needs to build from the NamePool's globals and locals — a
// plain helper over writer.StrTab/writer.EncodeSymbols (writer itself
// never touches symbol.ResolveInfo, per its package scope boundary).
type symtabBuilder struct {
	strtab *writer.StrTab
	syms   []writer.SymEntry

	// localCount is how many entries of syms are local (4.I convention:
	// locals must precede globals, and sh_info on .symtab records the
	// index of the first non-local).
	localCount int
}

func newSymtabBuilder() *symtabBuilder {
	return &symtabBuilder{strtab: writer.NewStrTab()}
}

// addLocal appends a local's entry. Callers must add every local
// before any global (ELF's STB_LOCAL-entries-first rule).
func (b *symtabBuilder) addLocal(ri *symbol.ResolveInfo, shndx uint16) {
	b.syms = append(b.syms, b.entry(ri, symbol.Local, shndx))
	b.localCount++
}

func (b *symtabBuilder) addGlobal(ri *symbol.ResolveInfo, shndx uint16) {
	b.syms = append(b.syms, b.entry(ri, ri.Binding(), shndx))
}

func (b *symtabBuilder) entry(ri *symbol.ResolveInfo, bind symbol.Binding, shndx uint16) writer.SymEntry {
	return writer.SymEntry{
		NameOff: b.strtab.Add(ri.Name),
		Value:   ri.Value,
		Size:    ri.Size,
		Info:    elfSymInfo(bind, ri.Type()),
		Other:   elfSymOther(ri.Visibility()),
		Shndx:   shndx,
	}
}

// sttGNUIFunc is STT_GNU_IFUNC (10), an OS-specific extension debug/elf
// doesn't name directly; it shares its value with the reserved
// STT_LOOS/STT_HIOS range debug/elf does define.
const sttGNUIFunc = elf.STT_LOOS

// elfSymInfo packs ELF64_ST_INFO(bind, type) from this core's own
// Binding/Type enums.
func elfSymInfo(bind symbol.Binding, typ symbol.Type) uint8 {
	var b elf.SymBind
	switch bind {
	case symbol.Local:
		b = elf.STB_LOCAL
	case symbol.Weak:
		b = elf.STB_WEAK
	default:
		b = elf.STB_GLOBAL
	}
	var t elf.SymType
	switch typ {
	case symbol.Function:
		t = elf.STT_FUNC
	case symbol.Object, symbol.CommonBlock:
		t = elf.STT_OBJECT
	case symbol.Section:
		t = elf.STT_SECTION
	case symbol.File:
		t = elf.STT_FILE
	case symbol.ThreadLocal:
		t = elf.STT_TLS
	case symbol.IndirectFunc:
		t = sttGNUIFunc
	default:
		t = elf.STT_NOTYPE
	}
	return uint8(b)<<4 | uint8(t)&0xf
}

func elfSymOther(vis symbol.Visibility) uint8 {
	switch vis {
	case symbol.Protected:
		return uint8(elf.STV_PROTECTED)
	case symbol.Hidden:
		return uint8(elf.STV_HIDDEN)
	case symbol.Internal:
		return uint8(elf.STV_INTERNAL)
	}
	return uint8(elf.STV_DEFAULT)
}

// dynrelBuilder accumulates .rela.dyn/.rela.plt entries as plain
// writer.RelocEntry values, keyed by which dynamic symbol table index
// each entry's symbol resolves to (supplied by the caller, since that
// numbering depends on which symbols the driver decided belong in
// .dynsym — out of writer's and this builder's own scope).
type dynrelBuilder struct {
	dyn []writer.RelocEntry
	plt []writer.RelocEntry
}

func (b *dynrelBuilder) addDyn(offset uint64, dynSym uint32, typ uint32, addend int64) {
	b.dyn = append(b.dyn, writer.RelocEntry{Offset: offset, Sym: dynSym, Type: typ, Addend: addend})
}

func (b *dynrelBuilder) addPLT(offset uint64, dynSym uint32, typ uint32, addend int64) {
	b.plt = append(b.plt, writer.RelocEntry{Offset: offset, Sym: dynSym, Type: typ, Addend: addend})
}
