// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

import "github.com/aclements/go-ld/ir"

// DynKind classifies the dynamic relocation, if any, a Relocation
// resolved into during scanning (4.E). It is distinct from the
// target-specific relocation Type: many different input Types can all
// resolve to, say, DynRelative.
type DynKind uint8

const (
	DynNone DynKind = iota
	DynRelative
	DynGlobDat
	DynAbsolute
	DynCopy
	DynTLSDTPMod
	DynTLSDTPOff
	DynTLSTPOff
	DynIRelative
)

func (k DynKind) String() string {
	switch k {
	case DynNone:
		return "none"
	case DynRelative:
		return "relative"
	case DynGlobDat:
		return "glob_dat"
	case DynAbsolute:
		return "absolute"
	case DynCopy:
		return "copy"
	case DynTLSDTPMod:
		return "tls_dtpmod"
	case DynTLSDTPOff:
		return "tls_dtpoff"
	case DynTLSTPOff:
		return "tls_tpoff"
	case DynIRelative:
		return "irelative"
	}
	return "unknown"
}

// Relocation is one entry from an input relocation section (3. DATA
// MODEL). Type is a target-specific relocation type number, deferred
// to reloc.Relocator to interpret — this package only models the
// graph structure a relocation participates in, not per-target
// semantics.
type Relocation struct {
	Type   uint32
	Offset uint64 // byte offset within Applies
	Addend int64

	// Symbol names the global symbol this relocation targets, or
	// ir.NoSym if it targets a local fragment directly (Target is then
	// authoritative instead).
	Symbol ir.SymID

	// Target is this relocation's resolved destination, bound in a
	// second pass once every section in the input file has been
	// indexed (4.C: "bound by looking up the section-offset pair").
	// It is ir.NullRef (not the zero FragRef) until bound;
	// NewRelocation sets it.
	Target ir.FragRef

	// Applies is the Fragment whose bytes this relocation patches.
	Applies *Fragment

	// Dynamic records what dynamic relocation, if any, scan_relocation
	// produced for this site (4.E); DynNone until scanned.
	Dynamic DynKind
}

// NewRelocation builds a Relocation with its Target set to
// ir.NullRef. FragID 0 is a legitimate fragment in the arena (ids
// start at 0, like every other arena in this linker), so a
// zero-valued Relocation's Target would otherwise look bound to
// fragment 0 by accident; always build Relocations through this
// constructor rather than a bare struct literal.
func NewRelocation(typ uint32, offset uint64, addend int64, sym ir.SymID, applies *Fragment) *Relocation {
	return &Relocation{
		Type:    typ,
		Offset:  offset,
		Addend:  addend,
		Symbol:  sym,
		Target:  ir.NullRef,
		Applies: applies,
	}
}

// IsBound reports whether Target has been resolved.
func (r *Relocation) IsBound() bool { return !r.Target.IsNull() }

// RelocationIndex resolves a (section, offset) pair to the Fragment
// and within-fragment offset it falls in, the lookup the second pass
// described in 4.C needs to bind raw relocation targets. It is built
// once a Section's Fragments have been assigned byte ranges within
// the section (their original, pre-layout input offsets — this is
// distinct from the output Offset the layout engine assigns later).
type RelocationIndex struct {
	// starts are the cumulative input-section start offsets of each
	// fragment in s.Fragments, parallel to it.
	starts []uint64
	frags  []*Fragment
}

// NewRelocationIndex walks s.Fragments in order, treating their sizes
// as contiguous within the original input section (true before any
// dedup or GC has touched them), and records each one's starting
// offset for Lookup.
func NewRelocationIndex(s *Section) *RelocationIndex {
	idx := &RelocationIndex{
		starts: make([]uint64, 0, len(s.Fragments)),
		frags:  make([]*Fragment, 0, len(s.Fragments)),
	}
	var off uint64
	for _, f := range s.Fragments {
		off = roundUp2(off, uint64(f.Align))
		idx.starts = append(idx.starts, off)
		idx.frags = append(idx.frags, f)
		off += f.Payload.Size()
	}
	return idx
}

// Lookup returns the Fragment containing sectionOffset and the byte
// offset within it, or (nil, 0) if sectionOffset is out of range.
func (idx *RelocationIndex) Lookup(sectionOffset uint64) (*Fragment, uint64) {
	// Linear scan is sufficient here: relocation sections are read
	// once per input section and binary search isn't worth the extra
	// bookkeeping at typical fragment counts. A future profile-guided
	// pass could switch to sort.Search over idx.starts.
	for i, start := range idx.starts {
		f := idx.frags[i]
		end := start + f.Payload.Size()
		if sectionOffset >= start && sectionOffset < end {
			return f, sectionOffset - start
		}
		if f.Payload.Size() == 0 && sectionOffset == start {
			return f, 0
		}
	}
	return nil, 0
}
