// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stub implements the branch-island/stub factory (4.G): it
// detects branch and call sites whose target falls outside the
// instruction's encodable displacement once addresses are assigned,
// and synthesizes trampoline fragments ("islands") that extend the
// reach, plus target-specific erratum fixups (Cortex-A53 843419) that
// apply regardless of reach.
package stub

import (
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
)

// Stub is a branch-island fragment.Payload: a short, target-specific
// code sequence (an indirect branch through an absolute literal, or a
// PC-relative ADRP+ADD+BR on arm64) that reaches a destination no
// ordinary branch instruction at this site could reach directly. The
// relocations that patch the destination's address into Template are
// built by the Factory and attached to the owning Fragment's Relocs
// list by Allocator.Island (4.G: "a stub is just another fragment carrying
// relocations against its real target").
type Stub struct {
	Template []byte
}

func (s *Stub) Kind() fragment.Kind { return fragment.KindStub }
func (s *Stub) Size() uint64        { return uint64(len(s.Template)) }
func (s *Stub) Emit(dst []byte)     { copy(dst, s.Template) }

// Factory is the per-architecture branch-island builder 4.G describes.
type Factory interface {
	// Reach returns the largest (inclusive) absolute byte displacement
	// a direct branch/call instruction at this architecture can encode.
	Reach() int64

	// InReach reports whether a branch at pc to target can be encoded
	// directly, without an island.
	InReach(pc, target uint64) bool

	// NewIsland returns a fresh island fragment whose bytes branch to
	// dest, plus the relocations (already pointed at dest) the caller
	// should append to the returned fragment's Relocs.
	NewIsland(dest ir.FragRef) (*fragment.Fragment, []*fragment.Relocation)
}

// Allocator places islands in Sec and reuses one island per
// destination instead of emitting a fresh trampoline per call site
// (4.G: "islands are shared across call sites that can all reach the
// same one").
type Allocator struct {
	Factory Factory
	Sec     *fragment.Section

	byDest map[ir.FragRef]*fragment.Fragment
}

func NewAllocator(factory Factory, sec *fragment.Section) *Allocator {
	return &Allocator{Factory: factory, Sec: sec, byDest: make(map[ir.FragRef]*fragment.Fragment)}
}

// NeedsStub reports whether a direct branch at pc to target needs a
// stub, per the factory's reach.
func (a *Allocator) NeedsStub(pc, target uint64) bool {
	return !a.Factory.InReach(pc, target)
}

// Island returns the shared island fragment for dest, building one
// (and its destination relocations) on first use.
func (a *Allocator) Island(dest ir.FragRef) (island *fragment.Fragment, isNew bool) {
	if f, ok := a.byDest[dest]; ok {
		return f, false
	}
	f, relocs := a.Factory.NewIsland(dest)
	f.Align = 4
	a.Sec.AddFragment(f)
	f.Relocs = append(f.Relocs, relocs...)
	a.byDest[dest] = f
	return f, true
}
