// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package segment implements the Segment Assigner (4.H): it reads the
// layout engine's finalized output sections and groups them into ELF
// load segments, assigning the file offsets and virtual addresses that
// keep offset and address congruent modulo the page size (the
// loader's mapping requirement) and producing the PT_PHDR/PT_INTERP/
// PT_DYNAMIC/PT_GNU_STACK/PT_GNU_RELRO special segments a link needs.
package segment

import (
	"debug/elf"

	"github.com/aclements/go-ld/fragment"
)

// Segment is one ELF program header's worth of state: a contiguous
// run of output sections sharing one set of Flags (4.H's "contiguous
// run of identical-flag sections" rule), or a special single-purpose
// segment (PT_INTERP, PT_DYNAMIC, ...).
type Segment struct {
	Type     elf.ProgType
	Flags    elf.ProgFlag
	Align    uint64
	Sections []*fragment.Section

	Off, Vaddr, Paddr, Filesz, Memsz uint64
}

// Phdr renders s as the debug/elf program-header shape the writer
// (4.I) serializes directly into the output's program header table.
func (s *Segment) Phdr() elf.ProgHeader {
	return elf.ProgHeader{
		Type:   s.Type,
		Flags:  s.Flags,
		Off:    s.Off,
		Vaddr:  s.Vaddr,
		Paddr:  s.Paddr,
		Filesz: s.Filesz,
		Memsz:  s.Memsz,
		Align:  s.Align,
	}
}

// StackFlag selects the PT_GNU_STACK permission `-z execstack` / `-z
// noexecstack` produce (4.H).
type StackFlag int

const (
	StackNoExec StackFlag = iota
	StackExec
)

// Config holds the handful of top-level choices 4.H says come from
// driver flags and target hooks rather than from script rules (PHDRS/
// MEMORY directive evaluation is out of this core's scope — see
// DESIGN.md):
type Config struct {
	// PageSize is the ABI page size every LOAD segment aligns to.
	PageSize uint64

	// Base is the virtual address the first byte of the image (ELF
	// header included) loads at.
	Base uint64

	// HeaderSize is the combined size of the ELF header and the
	// program header table, which the first LOAD segment must cover
	// (so the loader can read phdrs out of the mapped image itself).
	HeaderSize uint64

	// Interp is the dynamic interpreter path for a PT_INTERP entry, or
	// "" for a static link with no PT_INTERP.
	Interp string

	// Stack selects the PT_GNU_STACK permission.
	Stack StackFlag

	// RelroSections names the output sections (e.g. ".data.rel.ro",
	// ".got", ".dynamic") the driver wants mprotected read-only after
	// .init_array runs. A PT_GNU_RELRO segment is emitted spanning
	// their combined address range, or omitted if the slice is empty.
	RelroSections []string
}

// Assigner builds Segments from an Engine's finalized Outputs.
type Assigner struct {
	cfg Config
}

func NewAssigner(cfg Config) *Assigner {
	if cfg.PageSize == 0 {
		cfg.PageSize = 4096
	}
	return &Assigner{cfg}
}

func roundUp(x, align uint64) uint64 {
	if align <= 1 {
		return x
	}
	return (x + align - 1) &^ (align - 1)
}

func flagsOf(sec *fragment.Section) elf.ProgFlag {
	f := elf.PF_R
	if sec.Flags.Write() {
		f |= elf.PF_W
	}
	if sec.Flags.Exec() {
		f |= elf.PF_X
	}
	return f
}

// nobits reports whether sec occupies virtual space but contributes
// no file bytes (SHT_NOBITS — .bss and friends), per 4.H's rule that
// NOBITS sections must not advance the next segment's file offset.
func nobits(sec *fragment.Section) bool {
	return sec.Type == uint32(elf.SHT_NOBITS)
}

// sectionAlign reports the alignment sec's placement must respect:
// the largest alignment any of its live fragments asks for, or 1 if
// none do.
func sectionAlign(sec *fragment.Section) uint64 {
	var align uint64 = 1
	for _, f := range sec.Fragments {
		if f.Ignore() {
			continue
		}
		if a := uint64(f.Align); a > align {
			align = a
		}
	}
	return align
}

// Assign implements 4.H's default-segment rule over sections, which
// must already have been through AssignOffsets (4.D step 5) so each
// Fragment's within-section Offset is set: Assign only positions each
// Section as a whole (Section.Offset, Section.Addr), it does not
// revisit per-fragment offsets.
//
// Sections are consumed in order; only SHF_ALLOC sections occupy a
// LOAD segment, so callers should pass a slice already filtered or
// ordered the way the script placed them (e.g. Engine.Outputs).
func (a *Assigner) Assign(sections []*fragment.Section) []*Segment {
	var segs []*Segment
	var cur *Segment

	off, addr := a.cfg.HeaderSize, a.cfg.Base+a.cfg.HeaderSize

	for _, sec := range sections {
		if !sec.Flags.Alloc() || sec.Discard {
			continue
		}
		flags := flagsOf(sec)
		if cur == nil {
			// The first LOAD segment starts at file offset 0 / Base so
			// it covers the ELF header and phdr table too (HeaderSize
			// is already < one page, so no rounding is needed here).
			cur = &Segment{Type: elf.PT_LOAD, Flags: flags, Align: a.cfg.PageSize, Off: 0, Vaddr: a.cfg.Base, Paddr: a.cfg.Base}
			segs = append(segs, cur)
		} else if cur.Flags != flags {
			off = roundUp(off, a.cfg.PageSize)
			addr = roundUp(addr, a.cfg.PageSize)
			cur = &Segment{Type: elf.PT_LOAD, Flags: flags, Align: a.cfg.PageSize, Off: off, Vaddr: addr, Paddr: addr}
			segs = append(segs, cur)
		}

		align := sectionAlign(sec)
		off = roundUp(off, align)
		addr = roundUp(addr, align)

		sec.Offset = off
		sec.SetAddr(addr)
		cur.Sections = append(cur.Sections, sec)

		size := sec.Size()
		cur.Memsz = addr + size - cur.Vaddr
		addr += size
		if !nobits(sec) {
			cur.Filesz = off + size - cur.Off
			off += size
		}
	}

	segs = append(a.specialSegments(sections), segs...)
	return segs
}

// specialSegments builds the non-LOAD entries 4.H lists: PT_PHDR (the
// phdr table itself, always present since the writer always emits
// one), PT_INTERP, PT_DYNAMIC, PT_GNU_STACK, and PT_GNU_RELRO.
// PT_PHDR is returned first since it must describe an address range
// within the first LOAD segment, which callers conventionally place
// first in the output phdr table.
func (a *Assigner) specialSegments(sections []*fragment.Section) []*Segment {
	var out []*Segment

	phdrOff := uint64(0) // ELF header precedes the phdr table.
	out = append(out, &Segment{
		Type: elf.PT_PHDR, Flags: elf.PF_R,
		Off: phdrOff, Vaddr: a.cfg.Base + phdrOff, Paddr: a.cfg.Base + phdrOff,
		Align: 8,
	})

	if a.cfg.Interp != "" {
		if sec := findSection(sections, ".interp"); sec != nil {
			out = append(out, &Segment{
				Type: elf.PT_INTERP, Flags: elf.PF_R,
				Off: sec.Offset, Vaddr: sec.Addr, Paddr: sec.Addr,
				Filesz: sec.Size(), Memsz: sec.Size(), Align: 1,
				Sections: []*fragment.Section{sec},
			})
		}
	}

	if sec := findSection(sections, ".dynamic"); sec != nil {
		out = append(out, &Segment{
			Type: elf.PT_DYNAMIC, Flags: elf.PF_R | elf.PF_W,
			Off: sec.Offset, Vaddr: sec.Addr, Paddr: sec.Addr,
			Filesz: sec.Size(), Memsz: sec.Size(), Align: 8,
			Sections: []*fragment.Section{sec},
		})
	}

	stackFlags := elf.PF_R | elf.PF_W
	if a.cfg.Stack == StackExec {
		stackFlags |= elf.PF_X
	}
	out = append(out, &Segment{Type: elf.PT_GNU_STACK, Flags: stackFlags, Align: 1})

	if relro := a.relroSegment(sections); relro != nil {
		out = append(out, relro)
	}

	if tls := tlsSections(sections); len(tls) > 0 {
		first := tls[0]
		var memsz, filesz uint64
		for _, sec := range tls {
			end := sec.Addr + sec.Size() - first.Addr
			if end > memsz {
				memsz = end
			}
			if !nobits(sec) {
				if fend := sec.Offset + sec.Size() - first.Offset; fend > filesz {
					filesz = fend
				}
			}
		}
		out = append(out, &Segment{
			Type: elf.PT_TLS, Flags: elf.PF_R,
			Off: first.Offset, Vaddr: first.Addr, Paddr: first.Addr,
			Filesz: filesz, Memsz: memsz, Align: sectionAlign(first),
			Sections: tls,
		})
	}

	return out
}

func findSection(sections []*fragment.Section, name string) *fragment.Section {
	for _, sec := range sections {
		if sec.Name == name && !sec.Discard {
			return sec
		}
	}
	return nil
}

func tlsSections(sections []*fragment.Section) []*fragment.Section {
	var out []*fragment.Section
	for _, sec := range sections {
		if sec.Flags.TLS() && !sec.Discard {
			out = append(out, sec)
		}
	}
	return out
}

// relroSegment builds the PT_GNU_RELRO entry spanning every section
// named in Config.RelroSections, or nil if the list is empty or names
// nothing present in sections.
func (a *Assigner) relroSegment(sections []*fragment.Section) *Segment {
	if len(a.cfg.RelroSections) == 0 {
		return nil
	}
	var first *fragment.Section
	var end uint64
	for _, name := range a.cfg.RelroSections {
		sec := findSection(sections, name)
		if sec == nil {
			continue
		}
		if first == nil || sec.Addr < first.Addr {
			first = sec
		}
		if e := sec.Addr + sec.Size(); e > end {
			end = e
		}
	}
	if first == nil {
		return nil
	}
	return &Segment{
		Type: elf.PT_GNU_RELRO, Flags: elf.PF_R,
		Off: first.Offset, Vaddr: first.Addr, Paddr: first.Addr,
		Filesz: end - first.Addr, Memsz: end - first.Addr, Align: 1,
	}
}
