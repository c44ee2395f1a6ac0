// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segment

import (
	"debug/elf"
	"testing"

	"github.com/aclements/go-ld/fragment"
)

func allocSection(name string, n int, write, exec bool) *fragment.Section {
	sec := &fragment.Section{Name: name}
	sec.Flags.Set(fragment.FlagAlloc, true)
	sec.Flags.Set(fragment.FlagWrite, write)
	sec.Flags.Set(fragment.FlagExec, exec)
	sec.AddFragment(fragment.NewRegion(make([]byte, n)))
	sec.Fragments[0].SetOffset(0)
	return sec
}

func TestAssignStartsNewLoadOnPermissionChange(t *testing.T) {
	text := allocSection(".text", 0x100, false, true)   // R-X
	rodata := allocSection(".rodata", 0x10, false, false) // R--
	data := allocSection(".data", 0x20, true, false)      // RW-

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, HeaderSize: 0x78})
	segs := a.Assign([]*fragment.Section{text, rodata, data})

	var loads []*Segment
	for _, s := range segs {
		if s.Type == elf.PT_LOAD {
			loads = append(loads, s)
		}
	}
	if len(loads) != 3 {
		t.Fatalf("got %d LOAD segments, want 3 (each section has distinct permissions)", len(loads))
	}
}

func TestAssignMergesSamePermRun(t *testing.T) {
	text := allocSection(".text", 0x100, false, true)
	plt := allocSection(".plt", 0x10, false, true) // also R-X: should share text's segment

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, HeaderSize: 0x78})
	segs := a.Assign([]*fragment.Section{text, plt})

	var loads []*Segment
	for _, s := range segs {
		if s.Type == elf.PT_LOAD {
			loads = append(loads, s)
		}
	}
	if len(loads) != 1 {
		t.Fatalf("got %d LOAD segments, want 1 (both R-X)", len(loads))
	}
	if len(loads[0].Sections) != 2 {
		t.Fatalf("LOAD segment has %d sections, want 2", len(loads[0].Sections))
	}
}

func TestAssignPageAlignsSegmentBoundaries(t *testing.T) {
	text := allocSection(".text", 0x10, false, true)
	data := allocSection(".data", 0x10, true, false)

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, HeaderSize: 0x40})
	segs := a.Assign([]*fragment.Section{text, data})

	var loads []*Segment
	for _, s := range segs {
		if s.Type == elf.PT_LOAD {
			loads = append(loads, s)
		}
	}
	if len(loads) != 2 {
		t.Fatalf("got %d LOAD segments, want 2", len(loads))
	}
	if loads[1].Off%0x1000 != 0 {
		t.Errorf("second segment Off = %#x, not page-aligned", loads[1].Off)
	}
	if loads[1].Vaddr%0x1000 != loads[1].Off%0x1000 {
		t.Errorf("second segment Vaddr %#x and Off %#x not congruent mod page size", loads[1].Vaddr, loads[1].Off)
	}
}

func TestAssignFirstLoadCoversHeader(t *testing.T) {
	text := allocSection(".text", 0x10, false, true)

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, HeaderSize: 0x78})
	segs := a.Assign([]*fragment.Section{text})

	var load *Segment
	for _, s := range segs {
		if s.Type == elf.PT_LOAD {
			load = s
		}
	}
	if load == nil {
		t.Fatal("no LOAD segment produced")
	}
	if load.Off != 0 || load.Vaddr != 0x400000 {
		t.Errorf("first LOAD = {Off: %#x, Vaddr: %#x}, want {0, 0x400000}", load.Off, load.Vaddr)
	}
}

func TestAssignNobitsDoesNotAdvanceFileOffset(t *testing.T) {
	data := allocSection(".data", 0x10, true, false)
	bss := allocSection(".bss", 0x20, true, false)
	bss.Type = uint32(elf.SHT_NOBITS)

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, HeaderSize: 0})
	segs := a.Assign([]*fragment.Section{data, bss})

	var load *Segment
	for _, s := range segs {
		if s.Type == elf.PT_LOAD {
			load = s
		}
	}
	if load.Filesz != 0x10 {
		t.Errorf("Filesz = %#x, want 0x10 (bss excluded)", load.Filesz)
	}
	if load.Memsz != 0x30 {
		t.Errorf("Memsz = %#x, want 0x30 (data+bss)", load.Memsz)
	}
	if bss.Offset != data.Offset+0x10 {
		t.Errorf(".bss Offset = %#x, want it to sit right after .data's file bytes even though it occupies no file space itself", bss.Offset)
	}
}

func TestAssignSkipsNonAllocAndDiscardedSections(t *testing.T) {
	text := allocSection(".text", 0x10, false, true)
	debug := &fragment.Section{Name: ".debug_info"}
	debug.AddFragment(fragment.NewRegion(make([]byte, 8)))
	discarded := allocSection(".discarded", 0x10, false, false)
	discarded.Discard = true

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000})
	segs := a.Assign([]*fragment.Section{text, debug, discarded})

	var loads []*Segment
	for _, s := range segs {
		if s.Type == elf.PT_LOAD {
			loads = append(loads, s)
		}
	}
	if len(loads) != 1 {
		t.Fatalf("got %d LOAD segments, want 1", len(loads))
	}
	if len(loads[0].Sections) != 1 {
		t.Fatalf("LOAD segment has %d sections, want 1 (.text only)", len(loads[0].Sections))
	}
}

func TestAssignEmitsPhdrAndGnuStack(t *testing.T) {
	text := allocSection(".text", 0x10, false, true)
	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, Stack: StackNoExec})
	segs := a.Assign([]*fragment.Section{text})

	var phdr, stack *Segment
	for _, s := range segs {
		switch s.Type {
		case elf.PT_PHDR:
			phdr = s
		case elf.PT_GNU_STACK:
			stack = s
		}
	}
	if phdr == nil {
		t.Fatal("no PT_PHDR segment produced")
	}
	if stack == nil {
		t.Fatal("no PT_GNU_STACK segment produced")
	}
	if stack.Flags&elf.PF_X != 0 {
		t.Error("PT_GNU_STACK is executable, want non-exec for StackNoExec")
	}
}

func TestAssignEmitsInterpWhenConfigured(t *testing.T) {
	interp := allocSection(".interp", 13, false, false)
	text := allocSection(".text", 0x10, false, true)

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000, Interp: "/lib64/ld-linux-x86-64.so.2"})
	segs := a.Assign([]*fragment.Section{interp, text})

	var found *Segment
	for _, s := range segs {
		if s.Type == elf.PT_INTERP {
			found = s
		}
	}
	if found == nil {
		t.Fatal("no PT_INTERP segment produced despite Config.Interp set")
	}
	if found.Filesz != 13 {
		t.Errorf("PT_INTERP Filesz = %d, want 13", found.Filesz)
	}
}

func TestAssignEmitsDynamicSegment(t *testing.T) {
	dyn := allocSection(".dynamic", 0x50, true, false)
	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000})
	segs := a.Assign([]*fragment.Section{dyn})

	for _, s := range segs {
		if s.Type == elf.PT_DYNAMIC {
			if s.Flags&elf.PF_W == 0 {
				t.Error("PT_DYNAMIC should be writable")
			}
			return
		}
	}
	t.Fatal("no PT_DYNAMIC segment produced despite a .dynamic section")
}

func TestAssignEmitsTLSSegment(t *testing.T) {
	tdata := allocSection(".tdata", 0x10, true, false)
	tdata.Flags.Set(fragment.FlagTLS, true)
	tbss := allocSection(".tbss", 0x10, true, false)
	tbss.Flags.Set(fragment.FlagTLS, true)
	tbss.Type = uint32(elf.SHT_NOBITS)

	a := NewAssigner(Config{PageSize: 0x1000, Base: 0x400000})
	segs := a.Assign([]*fragment.Section{tdata, tbss})

	for _, s := range segs {
		if s.Type == elf.PT_TLS {
			if s.Memsz != 0x20 {
				t.Errorf("PT_TLS Memsz = %#x, want 0x20 (tdata+tbss)", s.Memsz)
			}
			if s.Filesz != 0x10 {
				t.Errorf("PT_TLS Filesz = %#x, want 0x10 (tbss excluded)", s.Filesz)
			}
			return
		}
	}
	t.Fatal("no PT_TLS segment produced despite TLS-flagged sections")
}

func TestPhdrRendersExpectedFields(t *testing.T) {
	s := &Segment{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Off: 0, Vaddr: 0x400000, Filesz: 0x100, Memsz: 0x100, Align: 0x1000}
	p := s.Phdr()
	if p.Type != elf.PT_LOAD || p.Vaddr != 0x400000 || p.Filesz != 0x100 {
		t.Errorf("Phdr() = %+v, fields don't match Segment", p)
	}
}
