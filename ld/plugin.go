// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

// Plugin observes a link at the well-defined boundaries 4.J names:
// once every input's sections are known, once every input's symbols
// are resolved, and once more immediately before the image is
// written. A Plugin may use its Builder to add sections, fragments,
// or symbols at any of these points, but by the time VisitSymbols
// runs, layout has not yet assigned a single offset — and by
// BeforeWrite, every offset and address is already final, so a
// Plugin reaching that hook may still append (a build-ID note, a
// synthesized .comment) but must never resize or move anything
// Driver has already placed.
//
// Method order within one link is always VisitSections, then
// VisitSymbols, then BeforeWrite; a Driver with no plugins skips
// straight through. Returning a non-nil error aborts the link the
// same way a diag.Engine fatal error would.
type Plugin interface {
	// VisitSections runs once every input file's sections have been
	// read but before any symbol is resolved. b.AddInputFile is most
	// useful here — e.g. splicing in the native object an external
	// assembler produced from a bitcode input before resolution sees
	// any of its symbols.
	VisitSections(b *Builder) error

	// VisitSymbols runs once every input's symbols have resolved
	// against the NamePool, before relocation scanning or layout. A
	// Plugin typically uses b.AddSymbol here to introduce an alias or
	// synthetic definition no input file itself provides.
	VisitSymbols(b *Builder) error

	// BeforeWrite runs once layout, the relax loop, and symbol value
	// finalization have all completed, immediately before the image
	// is serialized. Nothing added here can affect any
	// already-finalized offset or address.
	BeforeWrite(b *Builder) error
}

// NopPlugin implements Plugin with no-op hooks, so a Plugin
// implementation only needs to define the callbacks it cares about by
// embedding this and overriding the rest.
type NopPlugin struct{}

func (NopPlugin) VisitSections(b *Builder) error { return nil }
func (NopPlugin) VisitSymbols(b *Builder) error   { return nil }
func (NopPlugin) BeforeWrite(b *Builder) error    { return nil }
