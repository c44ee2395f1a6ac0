// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gotplt implements the GOT/PLT Allocator (4.F): per-symbol
// GOT slot and PLT entry allocation, keyed so reloc.Relocator's
// idempotent scan_relocation can ask for a slot without caring whether
// one already exists.
package gotplt

import (
	"sync"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
)

// SlotKind tags the GOT slot variants 4.F names.
type SlotKind uint8

const (
	Regular SlotKind = iota // an ordinary GOT slot: symbol's resolved address
	GOTPLT0                 // reserved, points at _DYNAMIC
	GOTPLTN                 // points at PLT0, or the resolved address for IRELATIVE
	TLSGD                   // 2 words: module id, offset
	TLSLD                   // 2 words: module id, offset (shared across a module's TLS vars)
	TLSIE                   // 1 word: offset from the thread pointer
	TLSDesc                 // 2 words: TLS descriptor (resolver func ptr, argument)
)

func (k SlotKind) String() string {
	switch k {
	case Regular:
		return "regular"
	case GOTPLT0:
		return "gotplt0"
	case GOTPLTN:
		return "gotpltn"
	case TLSGD:
		return "tls_gd"
	case TLSLD:
		return "tls_ld"
	case TLSIE:
		return "tls_ie"
	case TLSDesc:
		return "tlsdesc"
	}
	return "unknown"
}

// words reports how many target words k's slot occupies (4.F: "TLS_GD
// (2 words), TLS_LD (module id, 2 words), TLS_IE (1 word), TLSDESC (2
// words)"; everything else is a single word).
func (k SlotKind) words() int {
	switch k {
	case TLSGD, TLSLD, TLSDesc:
		return 2
	default:
		return 1
	}
}

// Slot is a GOT entry's fragment.Payload. Its bytes are left zero at
// Emit time; the word a slot ultimately holds is always written by a
// dynamic or static relocation targeting it (4.E), not baked in here.
type Slot struct {
	Variant  SlotKind
	WordSize int // target word size in bytes, from arch.Layout.WordSize()
}

func (s *Slot) Kind() fragment.Kind { return fragment.KindGOT }
func (s *Slot) Size() uint64        { return uint64(s.Variant.words() * s.WordSize) }
func (s *Slot) Emit(dst []byte) {
	for i := range dst {
		dst[i] = 0
	}
}

// GOT is the GOT/.got.plt slot allocator. One GOT serves both the
// regular .got (Regular/TLS slots) and .got.plt (GOTPLT0/GOTPLTN)
// sections, since they're allocated through the same per-symbol,
// per-kind map.
type GOT struct {
	WordSize int
	Got      *fragment.Section
	GotPlt   *fragment.Section

	mu    sync.Mutex
	bySym map[ir.SymID]map[SlotKind]*fragment.Fragment
}

func NewGOT(wordSize int, got, gotPlt *fragment.Section) *GOT {
	return &GOT{
		WordSize: wordSize,
		Got:      got,
		GotPlt:   gotPlt,
		bySym:    make(map[ir.SymID]map[SlotKind]*fragment.Fragment),
	}
}

// Allocate returns sym's existing slot of the given kind, or appends
// a fresh one (first-fit append per 4.F) to the section the kind
// belongs in. The bool result reports whether a new slot was created.
//
// Allocate is safe for concurrent use: scanRelocations (5. CONCURRENCY
// & RESOURCE MODEL) runs one goroutine per input file, and any of them
// can race to allocate the same symbol's slot first.
func (g *GOT) Allocate(sym ir.SymID, kind SlotKind) (*fragment.Fragment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.bySym[sym]
	if m == nil {
		m = make(map[SlotKind]*fragment.Fragment)
		g.bySym[sym] = m
	}
	if f, ok := m[kind]; ok {
		return f, false
	}
	f := &fragment.Fragment{
		Align:   uint32(g.WordSize),
		Payload: &Slot{Variant: kind, WordSize: g.WordSize},
	}
	sec := g.Got
	if kind == GOTPLT0 || kind == GOTPLTN {
		sec = g.GotPlt
	}
	sec.AddFragment(f)
	m[kind] = f
	return f, true
}

// Lookup returns sym's slot of the given kind without allocating one.
func (g *GOT) Lookup(sym ir.SymID, kind SlotKind) (*fragment.Fragment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.bySym[sym][kind]
	return f, ok
}
