// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

import "github.com/aclements/go-ld/ir"

// SectionFlags packs the ELF SHF_* bits the layout engine and writer
// care about, the same way obj.SectionFlags packs ReadOnly and
// ZeroInitialized: small bitset, accessor methods, nothing fancier.
type SectionFlags struct{ f sectionFlagBits }

type sectionFlagBits uint16

const (
	FlagAlloc sectionFlagBits = 1 << iota
	FlagWrite
	FlagExec
	FlagMerge
	FlagStrings
	FlagTLS
	FlagGroup
	FlagCompressed
	FlagLinkOrder
	FlagInfoLink
)

func (s SectionFlags) Has(bit sectionFlagBits) bool { return s.f&bit != 0 }

func (s *SectionFlags) Set(bit sectionFlagBits, v bool) {
	if v {
		s.f |= bit
	} else {
		s.f &^= bit
	}
}

func (s SectionFlags) Alloc() bool  { return s.Has(FlagAlloc) }
func (s SectionFlags) Write() bool  { return s.Has(FlagWrite) }
func (s SectionFlags) Exec() bool   { return s.Has(FlagExec) }
func (s SectionFlags) Merge() bool  { return s.Has(FlagMerge) }
func (s SectionFlags) TLS() bool    { return s.Has(FlagTLS) }

// Section is a named, typed collection of Fragments (3. DATA MODEL).
// Both input sections (as read from an object file) and output
// sections (as assembled by the layout engine) are Sections; Output
// distinguishes the two roles.
type Section struct {
	ID      ir.SecID
	Name    string
	Flags   SectionFlags
	Type    uint32 // SHT_* value; kept opaque, interpreted by obj/writer
	EntSize uint64
	Input   ir.InputID // owning input file, or 0 for a synthetic/output section

	Fragments []*Fragment

	Addr    uint64
	Offset  uint64 // file offset, assigned by the segment assigner (4.H)
	hasAddr bool

	// Output is the output Section this input Section's live fragments
	// were matched into by the layout engine's rule matching (4.D step
	// 2). It is nil for a Section that is itself an output section, or
	// for one not yet matched.
	Output *Section

	// Discard marks an input section that GC determined is unreached
	// and not KEEP-listed (4.D step 1), or one matched by an explicit
	// /DISCARD/ rule. A discarded section's fragments are all marked
	// Ignore.
	Discard bool
}

// Discardable reports whether s may be dropped entirely when not
// referenced: non-SHF_ALLOC sections (debug info, symtab-adjacent
// metadata) are always eligible; SHF_ALLOC sections are only
// discardable through explicit GC/DISCARD handling.
func (s *Section) Discardable() bool { return !s.Flags.Alloc() }

// AddFragment appends f to s and sets f.Sec.
func (s *Section) AddFragment(f *Fragment) {
	f.Sec = s
	s.Fragments = append(s.Fragments, f)
}

// Size sums every live fragment's size, inserting the alignment
// padding each fragment's Align would need if packed back-to-back.
// Before offset assignment this is an estimate; after it, walking
// Fragments' own Offset()+Size() is authoritative.
func (s *Section) Size() uint64 {
	var total uint64
	for _, f := range s.Fragments {
		if f.Ignore() {
			continue
		}
		total = roundUp2(total, uint64(f.Align))
		total += f.Size()
	}
	return total
}

func (s *Section) SetAddr(addr uint64) {
	s.Addr = addr
	s.hasAddr = true
}

func (s *Section) HasAddr() bool { return s.hasAddr }

// DiscardAll marks every fragment in s as ignored and flags s itself
// discarded, used by GC (4.D step 1) and by /DISCARD/ script rules.
func (s *Section) DiscardAll() {
	s.Discard = true
	for _, f := range s.Fragments {
		f.SetIgnore(true)
	}
}

func roundUp2(x, y uint64) uint64 {
	if y <= 1 {
		return x
	}
	return (x + y - 1) &^ (y - 1)
}

func roundDown2(x, y uint64) uint64 {
	if y <= 1 {
		return x
	}
	return x &^ (y - 1)
}
