// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotplt

import (
	"sync"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
)

// PLTKind distinguishes the one-per-link PLT0 stub from ordinary
// per-symbol PLTN entries (4.F).
type PLTKind uint8

const (
	PLT0 PLTKind = iota
	PLTN
)

// PLTEntry is a PLT slot's fragment.Payload: a target-specific code
// template, copied verbatim at Emit time. Any addresses the template
// needs (the GOTPLTN slot, the runtime resolver) are patched in later
// by ordinary relocations against this fragment, the same as any other
// code fragment (4.F: "carry fixups that become relocations against
// the corresponding GOTPLTN slot").
type PLTEntry struct {
	Variant  PLTKind
	Template []byte
}

func (p *PLTEntry) Kind() fragment.Kind { return fragment.KindPLT }
func (p *PLTEntry) Size() uint64        { return uint64(len(p.Template)) }
func (p *PLTEntry) Emit(dst []byte)     { copy(dst, p.Template) }

// PLT is the PLT entry allocator. It mirrors GOT: a per-symbol map
// plus first-fit append, with PLT0 created lazily on the first
// non-IRELATIVE allocation (4.F).
type PLT struct {
	Sec *fragment.Section

	// PLT0Template, if non-nil, builds the one-per-link PLT0 stub's
	// bytes. PLTNTemplate builds the index'th PLTN entry's bytes
	// (templates usually bake in the GOTPLTN slot index or a lazy
	// binding stub number, hence the index argument).
	PLT0Template func() []byte
	PLTNTemplate func(index int) []byte

	mu    sync.Mutex
	plt0  *fragment.Fragment
	bySym map[ir.SymID]*fragment.Fragment
	n     int
}

func NewPLT(sec *fragment.Section, plt0Template func() []byte, pltNTemplate func(index int) []byte) *PLT {
	return &PLT{
		Sec:          sec,
		PLT0Template: plt0Template,
		PLTNTemplate: pltNTemplate,
		bySym:        make(map[ir.SymID]*fragment.Fragment),
	}
}

// Allocate returns sym's existing PLT entry, or creates one (and, if
// needed, the shared PLT0 stub first). irelative marks an
// IRELATIVE-resolved symbol, which never needs PLT0 or lazy binding.
//
// Allocate is safe for concurrent use; see GOT.Allocate.
func (p *PLT) Allocate(sym ir.SymID, irelative bool) (entry *fragment.Fragment, isNew bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.bySym[sym]; ok {
		return f, false
	}
	if !irelative && p.plt0 == nil && p.PLT0Template != nil {
		p.plt0 = &fragment.Fragment{Align: 16, Payload: &PLTEntry{Variant: PLT0, Template: p.PLT0Template()}}
		p.Sec.AddFragment(p.plt0)
	}
	idx := p.n
	p.n++
	f := &fragment.Fragment{Align: 16, Payload: &PLTEntry{Variant: PLTN, Template: p.PLTNTemplate(idx)}}
	p.Sec.AddFragment(f)
	p.bySym[sym] = f
	return f, true
}

// Lookup returns sym's PLT entry without allocating one.
func (p *PLT) Lookup(sym ir.SymID) (*fragment.Fragment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.bySym[sym]
	return f, ok
}

// PLT0 returns the shared PLT0 stub, or nil if none has been allocated
// yet.
func (p *PLT) PLT0() *fragment.Fragment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plt0
}
