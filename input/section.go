// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package input

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aclements/go-ld/arch"
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/obj"
)

// RawReloc is one relocation read from an input section, still
// addressed in the input file's own (section, byte-offset) space; it
// hasn't yet been bound to a Fragment target (4.C's deferred second
// pass, done by BindRelocations once every section in the file has
// been translated).
type RawReloc struct {
	Sec    ir.SecID // the input section whose bytes this relocation patches
	Offset uint64   // byte offset within that section
	Type   uint32
	Symbol obj.SymID // file-local symbol index; the caller maps this to an ir.SymID/ir.LDSymID
	Addend int64
}

// translateSections builds one fragment.Section per obj.Section,
// splitting each into Fragments by the rules of 4.C: a plain
// PROGBITS/NOBITS region becomes a single Region or Fill fragment;
// SHF_MERGE|SHF_STRINGS becomes one MergeStringFragment per
// entsize-delimited string; .eh_frame is parsed into CIE/FDE pieces.
// Relocations are returned as a flat, unbound list of RawRelocs;
// binding them to a target FragRef happens in a second pass once every
// section in the file has been translated (4.C: "bound by looking up
// the section-offset pair"), which is BindRelocations' job, not this
// function's.
func translateSections(layout arch.Layout, f obj.File, firstSecID ir.SecID) ([]*fragment.Section, []RawReloc, error) {
	objSections := f.Sections()
	out := make([]*fragment.Section, len(objSections))
	var allRelocs []RawReloc

	for i, os := range objSections {
		secID := firstSecID + ir.SecID(i)
		fs := &fragment.Section{
			ID:   secID,
			Name: os.Name,
		}
		fs.Flags.Set(fragment.FlagAlloc, os.Mapped() || os.ReadOnly() || os.ZeroInitialize())
		fs.Flags.Set(fragment.FlagWrite, !os.ReadOnly())
		if os.ZeroInitialize() {
			fs.Type = uint32(elf.SHT_NOBITS)
		} else if fs.Flags.Alloc() {
			fs.Type = uint32(elf.SHT_PROGBITS)
		}

		var err error
		var relocs []obj.Reloc
		switch {
		case strings.HasPrefix(os.Name, ".eh_frame"):
			relocs, err = translateEhFrame(layout.Order(), os, fs)
		case isMergeStrings(os.Name):
			relocs, err = translateMergeStrings(os, fs)
		default:
			relocs, err = translatePlain(os, fs)
		}
		if err != nil {
			return nil, nil, err
		}
		base := os.Addr
		for _, r := range relocs {
			off := r.Addr - base
			allRelocs = append(allRelocs, RawReloc{
				Sec: secID, Offset: off, Type: r.Type.Raw(),
				Symbol: r.Symbol, Addend: r.Addend,
			})
		}

		out[i] = fs
	}
	return out, allRelocs, nil
}

// isMergeStrings is a conservative stand-in for consulting the raw ELF
// section flags directly (SHF_MERGE|SHF_STRINGS): the obj package
// doesn't plumb those two bits through to Section, so this package
// recognizes the conventional merge-string sections instead, the same
// way a reader without flag access would have to.
func isMergeStrings(name string) bool {
	switch name {
	case ".comment", ".debug_str", ".rodata.str1.1", ".rodata.str1.4", ".rodata.str1.8":
		return true
	}
	return strings.HasSuffix(name, ".str")
}

func translatePlain(os *obj.Section, fs *fragment.Section) ([]obj.Reloc, error) {
	if os.Size == 0 {
		return nil, nil
	}
	if os.ZeroInitialize() {
		fs.AddFragment(fragment.NewFill(os.Size, 0, true))
		return nil, nil
	}
	d, err := os.Data(os.Addr, os.Size)
	if err != nil {
		return nil, fmt.Errorf("input: reading section %s: %w", os.Name, err)
	}
	fs.AddFragment(fragment.NewRegion(append([]byte(nil), d.P...)))
	return d.R, nil
}

func translateMergeStrings(os *obj.Section, fs *fragment.Section) ([]obj.Reloc, error) {
	fs.Flags.Set(fragment.FlagMerge, true)
	fs.Flags.Set(fragment.FlagStrings, true)
	if os.Size == 0 {
		return nil, nil
	}
	d, err := os.Data(os.Addr, os.Size)
	if err != nil {
		return nil, fmt.Errorf("input: reading section %s: %w", os.Name, err)
	}
	entsize := fs.EntSize
	if entsize == 0 {
		entsize = 1
	}
	bytesData := d.P
	for off := 0; off < len(bytesData); {
		end := nulTerminated(bytesData[off:], int(entsize))
		piece := bytesData[off : off+end]
		fs.AddFragment(fragment.NewMergeString(append([]byte(nil), piece...)))
		off += end
	}
	return d.R, nil
}

// nulTerminated finds the length, including its terminating NUL
// entsize-run, of the string piece starting at data[0]. It mirrors
// how an SHF_STRINGS section is conventionally NUL-delimited
// regardless of entsize (entsize just constrains the NUL's
// alignment).
func nulTerminated(data []byte, entsize int) int {
	for i := 0; i+entsize <= len(data); i += entsize {
		allZero := true
		for j := 0; j < entsize; j++ {
			if data[i+j] != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			return i + entsize
		}
	}
	return len(data)
}

func translateEhFrame(order binary.ByteOrder, os *obj.Section, fs *fragment.Section) ([]obj.Reloc, error) {
	if os.Size == 0 {
		return nil, nil
	}
	d, err := os.Data(os.Addr, os.Size)
	if err != nil {
		return nil, fmt.Errorf("input: reading section %s: %w", os.Name, err)
	}
	frags, err := fragment.ParseEhFrame(order, d.P)
	if err != nil {
		return nil, fmt.Errorf("input: %s: %w", os.Name, err)
	}
	byOffset := make(map[uint32]*fragment.Fragment, len(frags))
	var off uint32
	for _, frag := range frags {
		byOffset[off] = frag
		off += uint32(frag.Size())
	}
	if err := fragment.LinkEhFrameCIEs(frags, byOffset); err != nil {
		return nil, fmt.Errorf("input: %s: %w", os.Name, err)
	}
	for _, frag := range frags {
		fs.AddFragment(frag)
	}
	return d.R, nil
}
