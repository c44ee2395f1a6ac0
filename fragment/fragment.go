// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fragment implements the linker's Fragment/Section graph: the
// pieces an input section is split into, the output sections they are
// matched into, and the relocations that connect them (4.C Fragment
// Graph & Section Reading).
package fragment

import "github.com/aclements/go-ld/ir"

// Kind identifies the concrete payload a Fragment carries. It plays
// the same role as obj.RelocType's relocClass tag: a small closed set
// dispatched through an interface rather than a type switch scattered
// across the package.
type Kind uint8

const (
	KindRegion Kind = iota
	KindFill
	KindMergeString
	KindCIE
	KindFDE
	KindStub
	KindTarget
	KindGOT
	KindPLT
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindRegion:
		return "region"
	case KindFill:
		return "fill"
	case KindMergeString:
		return "merge-string"
	case KindCIE:
		return "cie"
	case KindFDE:
		return "fde"
	case KindStub:
		return "stub"
	case KindTarget:
		return "target"
	case KindGOT:
		return "got"
	case KindPLT:
		return "plt"
	case KindNull:
		return "null"
	}
	return "unknown"
}

// Payload is the per-kind behavior of a Fragment. Concrete payloads
// live either in this package (Region, Fill, MergeString, CIE, FDE,
// Null) or in the packages that own the other kinds (gotplt.Slot,
// gotplt.PLTEntry, stub.Stub, a linker-defined Target symbol
// fragment) — Fragment only depends on the interface, so those
// packages can depend on fragment without a cycle.
type Payload interface {
	Kind() Kind
	// Size returns the number of bytes this payload occupies in its
	// output section. A payload whose content has been superseded
	// (merge-string dedup, GC, an FDE whose target didn't survive)
	// returns 0 once that's been recorded, per 4.C/4.D.
	Size() uint64
	// Emit writes this payload's final bytes into dst, which has
	// exactly Size() bytes. Implementations that returned a Size of 0
	// write nothing.
	Emit(dst []byte)
}

// Fragment is one contiguous piece of an input (or synthesized)
// section (3. DATA MODEL). Sections own an ordered slice of
// Fragments; the layout engine assigns each live Fragment a final
// offset within its output section (4.D invariant).
type Fragment struct {
	ID      ir.FragID
	Align   uint32
	Payload Payload

	// Sec is the Section this Fragment currently belongs to. It is
	// reassigned when the layout engine matches an input Fragment into
	// an output Section (4.D step 2).
	Sec *Section

	offset    uint64
	hasOffset bool

	// ignore marks a Fragment dropped by garbage collection or an
	// explicit /DISCARD/ rule (4.D step 1). An ignored Fragment keeps
	// its place in Section.Fragments (for diagnostics) but contributes
	// zero size and is skipped by offset/address assignment and by the
	// writer.
	ignore bool

	// Relocs lists the relocations whose Applies is this Fragment,
	// bound here once the input package's second pass has matched
	// each RawReloc's section-offset to its owning Fragment (4.C).
	// reloc.Relocator walks these during scan/apply (4.E).
	Relocs []*Relocation
}

func (f *Fragment) Kind() Kind { return f.Payload.Kind() }

// Size reports 0 for an ignored Fragment regardless of its payload,
// so callers never need to check Ignore() before summing sizes.
func (f *Fragment) Size() uint64 {
	if f.ignore {
		return 0
	}
	return f.Payload.Size()
}

func (f *Fragment) Emit(dst []byte) {
	if f.ignore {
		return
	}
	f.Payload.Emit(dst)
}

// Offset returns this Fragment's byte offset within its owning
// Section's output, as assigned by the layout engine. It panics if no
// offset has been assigned yet, since every live Fragment must have
// one after layout (4.D invariant) and reading one too early is a
// caller bug.
func (f *Fragment) Offset() uint64 {
	if !f.hasOffset {
		panic("fragment: offset read before assignment")
	}
	return f.offset
}

func (f *Fragment) HasOffset() bool { return f.hasOffset }

func (f *Fragment) SetOffset(off uint64) {
	f.offset = off
	f.hasOffset = true
}

func (f *Fragment) Ignore() bool    { return f.ignore }
func (f *Fragment) SetIgnore(v bool) { f.ignore = v }

// Ref returns a FragRef to the start of this Fragment.
func (f *Fragment) Ref() ir.FragRef { return ir.FragRef{Frag: f.ID, Offset: 0} }
