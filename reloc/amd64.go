// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reloc

import (
	"debug/elf"
	"fmt"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/symbol"
)

// amd64Types is the x86-64 psABI relocation-type table, the per-target
// formula table 4.E describes. Only the subset this core's Classes
// cover is populated; entry rejects anything else with an unsupported-type error.
var amd64Types = map[uint32]*typeEntry{
	uint32(elf.R_X86_64_64): {
		name: "R_X86_64_64", class: ClassAbsolute, size: 8, signed: false,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_X86_64_32): {
		name: "R_X86_64_32", class: ClassAbsolute, size: 4, signed: false,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_X86_64_32S): {
		name: "R_X86_64_32S", class: ClassAbsolute, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_X86_64_16): {
		name: "R_X86_64_16", class: ClassAbsolute, size: 2, signed: false,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_X86_64_8): {
		name: "R_X86_64_8", class: ClassAbsolute, size: 1, signed: false,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_X86_64_PC32): {
		name: "R_X86_64_PC32", class: ClassPCRelBranch, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_PC64): {
		name: "R_X86_64_PC64", class: ClassPCRelBranch, size: 8, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_PLT32): {
		name: "R_X86_64_PLT32", class: ClassPLT, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.PLT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_GOTPCREL): {
		name: "R_X86_64_GOTPCREL", class: ClassGOT, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.GOT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_REX_GOTPCRELX): {
		name: "R_X86_64_REX_GOTPCRELX", class: ClassGOT, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.GOT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_TLSGD): {
		name: "R_X86_64_TLSGD", class: ClassTLSGD, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.GOT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_TLSLD): {
		name: "R_X86_64_TLSLD", class: ClassTLSLD, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.GOT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_GOTTPOFF): {
		name: "R_X86_64_GOTTPOFF", class: ClassTLSIE, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.GOT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_X86_64_TPOFF32): {
		name: "R_X86_64_TPOFF32", class: ClassTLSLE, size: 4, signed: true,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.TLSBase) },
	},
	uint32(elf.R_X86_64_COPY): {
		name: "R_X86_64_COPY", class: ClassCopy, size: 0,
		compute: func(ctx Context) int64 { return 0 },
	},
}

// AMD64 implements Relocator for the x86-64 psABI (4.E).
type AMD64 struct {
	Target
}

func NewAMD64(got *gotplt.GOT, plt *gotplt.PLT, pie bool) *AMD64 {
	return &AMD64{Target{WordSize: 8, GOT: got, PLT: plt, PIE: pie}}
}

func (a *AMD64) entry(r *fragment.Relocation) (*typeEntry, error) {
	e, ok := amd64Types[r.Type]
	if !ok {
		return nil, unsupportedType("amd64", r.Type)
	}
	return e, nil
}

// ScanRelocation reserves whatever GOT/PLT/copy-reloc resources r's
// class requires, and records the dynamic relocation (if any)
// scan_relocation would emit for it (4.E).
func (a *AMD64) ScanRelocation(r *fragment.Relocation, info *symbol.ResolveInfo, applies *fragment.Fragment) error {
	e, err := a.entry(r)
	if err != nil {
		return err
	}

	switch e.class {
	case ClassGOT, ClassTLSIE:
		kind := gotplt.Regular
		if e.class == ClassTLSIE {
			kind = gotplt.TLSIE
		}
		a.GOT.Allocate(r.Symbol, kind)
		if info.IsDyn() && !a.relative(info) {
			r.Dynamic = fragment.DynGlobDat
		} else {
			r.Dynamic = fragment.DynRelative
		}
	case ClassTLSGD:
		a.GOT.Allocate(r.Symbol, gotplt.TLSGD)
		r.Dynamic = fragment.DynTLSDTPMod
	case ClassTLSLD:
		a.GOT.Allocate(r.Symbol, gotplt.TLSLD)
		r.Dynamic = fragment.DynTLSDTPMod
	case ClassPLT:
		a.PLT.Allocate(r.Symbol, false)
		r.Dynamic = fragment.DynNone
	case ClassAbsolute:
		if info.IsDyn() {
			if a.relative(info) {
				r.Dynamic = fragment.DynRelative
			} else {
				r.Dynamic = fragment.DynGlobDat
			}
		}
	case ClassCopy:
		if !a.NoCopyReloc {
			a.queueCopyReloc(r.Symbol)
			r.Dynamic = fragment.DynCopy
		}
	case ClassTLSLE, ClassPCRelBranch:
		// Resolved entirely at link time; no dynamic resources needed.
	default:
		return fmt.Errorf("reloc: amd64: unhandled class %d for type %d", e.class, r.Type)
	}
	return nil
}

// ApplyRelocation computes r's formula from ctx and splices it into
// dst (4.E).
func (a *AMD64) ApplyRelocation(r *fragment.Relocation, dst []byte, place uint64, ctx Context) (Result, error) {
	e, err := a.entry(r)
	if err != nil {
		return Unsupported, err
	}
	if e.size == 0 {
		return OK, nil
	}
	ctx.P = place
	val := e.compute(ctx)
	return e.encodeField(dst, val), nil
}

// EncodedSize reports r's table entry's declared field width.
func (a *AMD64) EncodedSize(r *fragment.Relocation) (int, error) {
	e, err := a.entry(r)
	if err != nil {
		return 0, err
	}
	return e.size, nil
}
