// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/input"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/symbol"
)

// Builder is the thin IRBuilder façade the post-LTO pass and plugin
// callbacks mutate a Module's live graph through (grounded on the
// original linker's IRBuilder.h: "a narrow, additive interface so a
// plugin can't reach into fields it shouldn't"). It only ever adds —
// an input file, a section, a fragment, a symbol — since 4.J is
// explicit that a plugin "may add sections or add symbols but may not
// invalidate already-finalized offsets"; there is deliberately no
// Remove/Replace method.
type Builder struct {
	mod *Module
}

func newBuilder(m *Module) *Builder { return &Builder{mod: m} }

// AddInputFile registers f as a new input, appending it to the
// Module's file list. Used by the post-LTO pass to splice in the
// native object the external assembler produced from bitcode inputs.
func (b *Builder) AddInputFile(f *input.InputFile) {
	f.ID = ir.InputID(len(b.mod.Files))
	b.mod.Files = append(b.mod.Files, f)
}

// AddSection creates (or returns the existing) output section named
// name, the same entry point NewModule itself uses for .got/.plt/etc.
func (b *Builder) AddSection(name string) *fragment.Section {
	return b.mod.Layout.AddOutput(name)
}

// AddFragment appends frag to sec, giving it a fresh global FragID so
// it participates in GC/layout/address-assignment alongside every
// fragment read from an input file.
func (b *Builder) AddFragment(sec *fragment.Section, frag *fragment.Fragment) {
	b.mod.Layout.AssignFragID(frag)
	sec.AddFragment(frag)
}

// AddSymbol resolves a new global symbol against the NamePool, the
// same path ordinary input-file symbol reading drives, for a plugin
// that needs to introduce a symbol no input file defines (e.g. a
// version script alias).
func (b *Builder) AddSymbol(params symbol.InsertGlobalParams, occurrence symbol.LDSymbol) (ir.SymID, error) {
	ldSym := b.mod.Names.NewLDSymbol(occurrence)
	id, _, err := b.mod.Names.InsertGlobal(params, ldSym)
	return id, err
}
