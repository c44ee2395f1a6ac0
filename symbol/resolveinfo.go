// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbol implements the linker's symbol resolution state
// machine: one ResolveInfo per global name, a NamePool that owns the
// lookup, and the override lattice that decides which definition wins
// when the same name is seen more than once (4.B Symbol Resolver).
package symbol

import (
	"fmt"
	"strings"

	"github.com/aclements/go-ld/ir"
)

// Type is what a symbol stands for.
type Type uint8

const (
	NoType Type = iota
	Object
	Function
	Section
	File
	CommonBlock
	ThreadLocal
	IndirectFunc
)

// Desc describes a symbol's definedness.
type Desc uint8

const (
	Undef Desc = iota
	Define
	Common
	Unused
)

// Binding is a symbol's linkage.
type Binding uint8

const (
	Global Binding = iota
	Weak
	Local
	Absolute
)

// Visibility is ordered from least to most restrictive: Default <
// Protected < Hidden < Internal, matching rule 8 of 4.B (visibility is
// always tightened, never loosened, on override).
type Visibility uint8

const (
	Default Visibility = iota
	Protected
	Hidden
	Internal
)

func (v Visibility) String() string {
	switch v {
	case Default:
		return "default"
	case Protected:
		return "protected"
	case Hidden:
		return "hidden"
	case Internal:
		return "internal"
	}
	return "unknown"
}

// Reserved is the per-symbol bitmap of already-allocated GOT/PLT/Rel
// slots (4.F), named exactly as the Relocator::ReservedEntryType the
// spec's data model refers to: idempotent scanning relies on these
// bits never being cleared once set.
type Reserved uint8

const (
	ReserveRel Reserved = 1 << iota
	ReserveGOT
	ReservePLT
)

// flags packs the boolean attributes of a ResolveInfo that aren't part
// of the Type/Desc/Binding/Visibility lattice.
type flags uint8

const (
	flagIsDyn flags = 1 << iota
	flagInBitcode
	flagPreserve
	flagPatchable
	flagExportToDyn
	flagNeeded // an undef was satisfied by a dyn-define; dyn input is "needed"
)

// ResolveInfo is the one-per-name record describing a symbol's current
// resolved state (3. DATA MODEL). Its attributes are bit-packed, as in
// the original linker's ResolveInfo (see original_source's
// SymbolResolver/ResolveInfo.h), which keeps override comparisons and
// --trace-symbol formatting cheap.
type ResolveInfo struct {
	Name string
	Size uint64
	// Value mirrors the "pointer to another LDSymbol" semantics from
	// 3. DATA MODEL loosely: it tracks the winning definition's value
	// so that readers that don't need the full LDSymbol (e.g. the GOT
	// allocator) can consult it directly. setValue's "is this a common
	// symbol taking the bigger of two sizes" clamp lives in the
	// resolver, not here, since it needs both the old and new value.
	Value uint64

	typ  Type
	desc Desc
	bind Binding
	vis  Visibility
	f    flags

	Reserved Reserved

	// Alias, when non-NoSym, names another ResolveInfo this symbol is
	// an alias of (e.g. a symbol-versioning collapse upstream of this
	// core). NoSym means "not an alias".
	Alias ir.SymID

	// ResolvedOrigin is the input file (by InputID) that currently owns
	// the winning definition.
	ResolvedOrigin ir.InputID

	// OutSymbol is the LDSymbol that will be emitted to the output
	// symbol table; it is the back-pointer the spec's Lifecycle
	// summary calls "the one pointed to by ResolveInfo::OutSymbol".
	OutSymbol ir.LDSymID
}

func (r *ResolveInfo) Type() Type             { return r.typ }
func (r *ResolveInfo) SetType(t Type)         { r.typ = t }
func (r *ResolveInfo) Desc() Desc             { return r.desc }
func (r *ResolveInfo) SetDesc(d Desc)         { r.desc = d }
func (r *ResolveInfo) Binding() Binding       { return r.bind }
func (r *ResolveInfo) SetBinding(b Binding)   { r.bind = b }
func (r *ResolveInfo) Visibility() Visibility { return r.vis }
func (r *ResolveInfo) SetVisibility(v Visibility) { r.vis = v }

func (r *ResolveInfo) IsDyn() bool          { return r.f&flagIsDyn != 0 }
func (r *ResolveInfo) SetDyn(v bool)        { r.setFlag(flagIsDyn, v) }
func (r *ResolveInfo) InBitcode() bool      { return r.f&flagInBitcode != 0 }
func (r *ResolveInfo) SetInBitcode(v bool)  { r.setFlag(flagInBitcode, v) }
func (r *ResolveInfo) Preserve() bool       { return r.f&flagPreserve != 0 }
func (r *ResolveInfo) SetPreserve(v bool)   { r.setFlag(flagPreserve, v) }
func (r *ResolveInfo) Patchable() bool      { return r.f&flagPatchable != 0 }
func (r *ResolveInfo) SetPatchable(v bool)  { r.setFlag(flagPatchable, v) }
func (r *ResolveInfo) ExportToDyn() bool     { return r.f&flagExportToDyn != 0 }
func (r *ResolveInfo) SetExportToDyn(v bool) { r.setFlag(flagExportToDyn, v) }
func (r *ResolveInfo) Needed() bool          { return r.f&flagNeeded != 0 }
func (r *ResolveInfo) SetNeeded(v bool)       { r.setFlag(flagNeeded, v) }

func (r *ResolveInfo) setFlag(bit flags, v bool) {
	if v {
		r.f |= bit
	} else {
		r.f &^= bit
	}
}

func (r *ResolveInfo) IsGlobal() bool   { return r.bind == Global }
func (r *ResolveInfo) IsWeak() bool     { return r.bind == Weak }
func (r *ResolveInfo) IsLocal() bool    { return r.bind == Local }
func (r *ResolveInfo) IsAbsolute() bool { return r.bind == Absolute }
func (r *ResolveInfo) IsUndef() bool    { return r.desc == Undef }
func (r *ResolveInfo) IsDefine() bool   { return r.desc == Define }
func (r *ResolveInfo) IsCommon() bool   { return r.desc == Common }
func (r *ResolveInfo) IsWeakUndef() bool { return r.IsWeak() && r.IsUndef() }
func (r *ResolveInfo) IsThreadLocal() bool { return r.typ == ThreadLocal }

// Preemptible reports whether a dynamic loader may override this
// symbol's definition at load time. It affects dynamic relocation
// selection in 4.E: a non-preemptible, hidden-or-non-exec symbol gets
// a RELATIVE relocation; everything else gets a GLOB_DAT/word-deposit
// relocation.
func (r *ResolveInfo) Preemptible() bool {
	if r.vis == Hidden || r.vis == Internal {
		return false
	}
	if r.IsLocal() || r.IsAbsolute() {
		return false
	}
	return true
}

func (r *ResolveInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", r.Name)
	switch r.bind {
	case Global:
		b.WriteString("global ")
	case Weak:
		b.WriteString("weak ")
	case Local:
		b.WriteString("local ")
	case Absolute:
		b.WriteString("absolute ")
	}
	switch r.desc {
	case Undef:
		b.WriteString("undef")
	case Define:
		b.WriteString("define")
	case Common:
		b.WriteString("common")
	case Unused:
		b.WriteString("unused")
	}
	if r.IsDyn() {
		b.WriteString(" dyn")
	}
	if r.vis != Default {
		fmt.Fprintf(&b, " %s", r.vis)
	}
	return b.String()
}
