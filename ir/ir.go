// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir defines the cross-package node identifiers shared by the
// linker's symbol table, fragment graph, relocator, and writer.
//
// The core graph (Fragment, Section, Relocation, ResolveInfo, LDSymbol)
// is naturally cyclic: a symbol points at the fragment that defines it,
// a fragment's relocations point back at symbols, and so on. Rather
// than modeling that with pointers across package boundaries (which
// would force an import cycle), every node is addressed by a small
// stable ID and the owning arena is looked up through the Module that
// holds it. IDs are valid for the lifetime of a link; nothing here is
// ever freed before the image is emitted.
package ir

import "fmt"

// InputID identifies an InputFile within a Module's input list.
type InputID uint32

// NoInput is a placeholder InputID meaning "no input file".
const NoInput = ^InputID(0)

// SecID identifies a Section within a Module's section list.
type SecID uint32

// NoSec is a placeholder SecID meaning "no section".
const NoSec = ^SecID(0)

// FragID identifies a Fragment within a Module's fragment arena.
type FragID uint32

const (
	// NoFrag is the sentinel for "no location" (the Null FragmentRef of
	// the spec's data model).
	NoFrag FragID = ^FragID(0)
	// DiscardFrag is the sentinel for a location whose owning fragment
	// was dropped by garbage collection or /DISCARD/.
	DiscardFrag FragID = ^FragID(1)
)

// SymID identifies a resolved global symbol (a ResolveInfo) within a
// Module's NamePool. Local symbols are addressed by LDSymID instead,
// since they never share a ResolveInfo.
type SymID uint32

// NoSym is a placeholder SymID meaning "no symbol".
const NoSym = ^SymID(0)

// LDSymID identifies one concrete LDSymbol occurrence (there may be
// many per ResolveInfo, and many more locals than globals).
type LDSymID uint32

// NoLDSym is a placeholder LDSymID.
const NoLDSym = ^LDSymID(0)

// FragRef names a location inside a fragment: (Fragment, offset). This
// is used by both relocations and symbols to name where they live.
type FragRef struct {
	Frag   FragID
	Offset uint64
}

// NullRef is the FragmentRef sentinel for "no location".
var NullRef = FragRef{NoFrag, 0}

// DiscardRef is the FragmentRef sentinel for "location dropped by GC
// or /DISCARD/".
var DiscardRef = FragRef{DiscardFrag, 0}

// IsNull reports whether r names no location at all.
func (r FragRef) IsNull() bool { return r.Frag == NoFrag }

// IsDiscarded reports whether r names a location whose fragment was
// discarded.
func (r FragRef) IsDiscarded() bool { return r.Frag == DiscardFrag }

func (r FragRef) String() string {
	switch r.Frag {
	case NoFrag:
		return "<null>"
	case DiscardFrag:
		return "<discard>"
	}
	return fmt.Sprintf("frag#%d+%#x", r.Frag, r.Offset)
}
