// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package writer implements the ELF Writer (4.I): given the linked
// module's final sections and segments, it serializes the fixed
// output buffer — ELF header, program headers, section contents in
// file-offset order, .shstrtab, and the section header table.
package writer

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/segment"
)

// Kind selects how an OutputSection's content is rendered. Most
// sections are Regular (their bytes come straight from their
// fragments, the same Payload.Emit dispatch 4.C already defines —
// Regular/Merge/Debug/EhFrame/Common all look identical from here
// since Fragment.Emit already abstracts the per-kind behavior); only
// Relocation and Group sections need the writer's own encoding, since
// their content isn't a fragment payload at all (3. DATA MODEL has no
// Fragment kind for "list of relocations" or "list of section
// indices").
type Kind uint8

const (
	KindRegular Kind = iota
	KindRelocation
	KindGroup
)

// OutputSection is one entry the writer places in the final section
// header table. The embedded *fragment.Section supplies the name,
// flags, and (for Regular content) the fragments to emit; everything
// else here is section-header bookkeeping the layout engine and
// fragment graph don't model (4.I is the first point sh_link/sh_info/
// sh_type/sh_entsize matter).
type OutputSection struct {
	*fragment.Section

	Kind Kind

	ShType  uint32
	ShFlags uint64
	Link    uint32
	Info    uint32
	EntSize uint64

	// Rela selects RELA (explicit Addend) over REL for a Relocation
	// section; Wordsize/ByteOrder come from the owning Image.
	Rela    bool
	Relocs  []RelocEntry
	Group   []uint32
	GroupFlags uint32
}

// content returns sec's final on-disk bytes, dispatching on Kind.
// SHT_NOBITS sections (.bss and friends) occupy virtual space but
// contribute zero file bytes (4.H); returning nil here is what keeps
// writeTo from both bloating the output with a zero-filled .bss and
// from advancing fileEnd past whatever section the segment assigner
// placed at the same file offset right after it.
func (sec *OutputSection) content(wordSize int, order binary.ByteOrder) []byte {
	if sec.ShType == uint32(elf.SHT_NOBITS) {
		return nil
	}
	switch sec.Kind {
	case KindRelocation:
		return EncodeRelocs(sec.Relocs, wordSize, sec.Rela, order)
	case KindGroup:
		return EncodeGroup(sec.GroupFlags, sec.Group, order)
	default:
		return emitRegular(sec.Section)
	}
}

// emitRegular renders a Regular section's fragments into one
// contiguous buffer, the writer never re-deriving padding since each
// live Fragment's Offset() (assigned by AssignOffsets, 4.D step 5) is
// already relative to the section's start.
func emitRegular(sec *fragment.Section) []byte {
	var size uint64
	for _, f := range sec.Fragments {
		if f.Ignore() {
			continue
		}
		if end := f.Offset() + f.Size(); end > size {
			size = end
		}
	}
	buf := make([]byte, size)
	for _, f := range sec.Fragments {
		if f.Ignore() {
			continue
		}
		f.Emit(buf[f.Offset() : f.Offset()+f.Size()])
	}
	return buf
}

// Image is everything WriteTo needs to serialize one linked output:
// the section and segment lists the earlier pipeline stages (layout,
// segment) already finalized.
type Image struct {
	Class   elf.Class
	Data    elf.Data
	Machine elf.Machine
	Type    elf.Type
	Entry   uint64

	Segments []*segment.Segment
	// Sections lists every output section in final section-header
	// order, starting with index 1 (index 0 is the implicit SHN_UNDEF
	// null entry WriteTo always emits and callers must not include).
	Sections []*OutputSection
}

func (img *Image) wordSize() int {
	if img.Class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

func (img *Image) order() binary.ByteOrder {
	if img.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (img *Image) ehsize() int {
	if img.wordSize() == 8 {
		return 64
	}
	return 52
}

func (img *Image) phentsize() int {
	if img.wordSize() == 8 {
		return 56
	}
	return 32
}

func (img *Image) shentsize() int {
	if img.wordSize() == 8 {
		return 64
	}
	return 40
}

// Bytes serializes img in the order 4.I specifies: ELF header,
// program headers, section contents in file-offset order, .shstrtab,
// section header table.
func (img *Image) Bytes() ([]byte, error) {
	var w bytes.Buffer
	if err := img.writeTo(&w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (img *Image) writeTo(w *bytes.Buffer) error {
	wordSize, order := img.wordSize(), img.order()

	shstrtab := NewStrTab()
	names := make([]uint32, len(img.Sections))
	for i, sec := range img.Sections {
		names[i] = shstrtab.Add(sec.Name)
	}
	shstrtabIdx := uint16(len(img.Sections) + 1)
	shstrtabNameOff := shstrtab.Add(".shstrtab")

	headerSize := uint64(img.ehsize() + len(img.Segments)*img.phentsize())

	type placed struct {
		off, size uint64
		content   []byte
	}
	var fileEnd uint64 = headerSize
	plan := make([]placed, len(img.Sections))
	for i, sec := range img.Sections {
		content := sec.content(wordSize, order)
		var off uint64
		if sec.Flags.Alloc() {
			// Already positioned by the segment assigner (4.H); trust
			// its Offset rather than repacking.
			off = sec.Offset
		} else {
			off = fileEnd
		}
		plan[i] = placed{off: off, size: uint64(len(content)), content: content}
		if end := off + uint64(len(content)); end > fileEnd {
			fileEnd = end
		}
	}
	shstrtabOff := fileEnd
	shstrtabContent := shstrtab.Bytes()
	fileEnd += uint64(len(shstrtabContent))

	shoff := roundUp(fileEnd, uint64(wordSize))

	// -- ELF header --
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(img.Class)
	ident[elf.EI_DATA] = byte(img.Data)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	shnum := uint16(len(img.Sections) + 2) // null entry + sections + .shstrtab

	if wordSize == 8 {
		hdr := elf.Header64{
			Ident:     ident,
			Type:      uint16(img.Type),
			Machine:   uint16(img.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     img.Entry,
			Phoff:     uint64(img.ehsize()),
			Shoff:     shoff,
			Ehsize:    uint16(img.ehsize()),
			Phentsize: uint16(img.phentsize()),
			Phnum:     uint16(len(img.Segments)),
			Shentsize: uint16(img.shentsize()),
			Shnum:     shnum,
			Shstrndx:  shstrtabIdx,
		}
		if err := writeHeader64(w, hdr, order); err != nil {
			return err
		}
	} else {
		hdr := elf.Header32{
			Ident:     ident,
			Type:      uint16(img.Type),
			Machine:   uint16(img.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     uint32(img.Entry),
			Phoff:     uint32(img.ehsize()),
			Shoff:     uint32(shoff),
			Ehsize:    uint16(img.ehsize()),
			Phentsize: uint16(img.phentsize()),
			Phnum:     uint16(len(img.Segments)),
			Shentsize: uint16(img.shentsize()),
			Shnum:     shnum,
			Shstrndx:  shstrtabIdx,
		}
		if err := writeHeader32(w, hdr, order); err != nil {
			return err
		}
	}

	// -- program headers --
	for _, seg := range img.Segments {
		if err := writePhdr(w, seg.Phdr(), wordSize, order); err != nil {
			return err
		}
	}

	// -- section contents, in file-offset order --
	buf := make([]byte, fileEnd)
	for i := range img.Sections {
		copy(buf[plan[i].off:], plan[i].content)
	}
	copy(buf[shstrtabOff:], shstrtabContent)
	if _, err := w.Write(buf[headerSize:]); err != nil {
		return err
	}
	if pad := int64(shoff) - int64(len(buf)); pad > 0 {
		w.Write(make([]byte, pad))
	}

	// -- section header table --
	if err := writeShdr(w, &elf.Section64{}, wordSize, order); err != nil { // null entry
		return err
	}
	for i, sec := range img.Sections {
		sh := elf.Section64{
			Name:      names[i],
			Type:      sec.ShType,
			Flags:     sec.ShFlags,
			Addr:      sec.Addr,
			Off:       plan[i].off,
			Size:      plan[i].size,
			Link:      sec.Link,
			Info:      sec.Info,
			Addralign: sectionShAlign(sec.Section),
			Entsize:   sec.EntSize,
		}
		if sec.Kind == KindRegular && !sec.Flags.Alloc() && sec.ShType == 0 {
			sh.Type = uint32(elf.SHT_PROGBITS)
		}
		if sec.ShType == uint32(elf.SHT_NOBITS) {
			// No file content, but sh_size is still the virtual size.
			sh.Size = sec.Size()
		}
		if err := writeShdr(w, &sh, wordSize, order); err != nil {
			return err
		}
	}
	shstrtabSh := elf.Section64{
		Name: shstrtabNameOff, Type: uint32(elf.SHT_STRTAB),
		Off: shstrtabOff, Size: uint64(len(shstrtabContent)), Addralign: 1,
	}
	return writeShdr(w, &shstrtabSh, wordSize, order)
}

// HeaderSize is the total on-disk size of the ELF header plus program
// header table img.Bytes will emit — the value every upstream
// segment.Config.HeaderSize must match so alloc sections' Offset
// fields (assigned by segment.Assigner, 4.H) land right after it.
func (img *Image) HeaderSize() uint64 {
	return uint64(img.ehsize() + len(img.Segments)*img.phentsize())
}

func sectionShAlign(sec *fragment.Section) uint64 {
	var align uint64 = 1
	for _, f := range sec.Fragments {
		if uint64(f.Align) > align {
			align = uint64(f.Align)
		}
	}
	return align
}

func roundUp(x, align uint64) uint64 {
	if align <= 1 {
		return x
	}
	return (x + align - 1) &^ (align - 1)
}

func writeHeader64(w *bytes.Buffer, hdr elf.Header64, order binary.ByteOrder) error {
	return binary.Write(w, order, hdr)
}

func writeHeader32(w *bytes.Buffer, hdr elf.Header32, order binary.ByteOrder) error {
	return binary.Write(w, order, hdr)
}

func writePhdr(w *bytes.Buffer, p elf.ProgHeader, wordSize int, order binary.ByteOrder) error {
	if wordSize == 8 {
		return binary.Write(w, order, elf.Prog64{
			Type: uint32(p.Type), Flags: uint32(p.Flags),
			Off: p.Off, Vaddr: p.Vaddr, Paddr: p.Paddr,
			Filesz: p.Filesz, Memsz: p.Memsz, Align: p.Align,
		})
	}
	return binary.Write(w, order, elf.Prog32{
		Type: uint32(p.Type),
		Off:  uint32(p.Off), Vaddr: uint32(p.Vaddr), Paddr: uint32(p.Paddr),
		Filesz: uint32(p.Filesz), Memsz: uint32(p.Memsz),
		Flags: uint32(p.Flags), Align: uint32(p.Align),
	})
}

func writeShdr(w *bytes.Buffer, sh *elf.Section64, wordSize int, order binary.ByteOrder) error {
	if wordSize == 8 {
		return binary.Write(w, order, sh)
	}
	return binary.Write(w, order, &elf.Section32{
		Name: sh.Name, Type: sh.Type, Flags: uint32(sh.Flags),
		Addr: uint32(sh.Addr), Off: uint32(sh.Off), Size: uint32(sh.Size),
		Link: sh.Link, Info: sh.Info,
		Addralign: uint32(sh.Addralign), Entsize: uint32(sh.Entsize),
	})
}
