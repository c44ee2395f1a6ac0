// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reloc

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/symbol"
)

// armEntry is arm64's formula-table row. Unlike amd64, most AArch64
// relocations deposit their immediate into a sub-field of a 32-bit
// instruction word rather than occupying the whole encoded field, so
// this table carries a mask/shift pair instead of typeEntry's plain
// byte width.
type armEntry struct {
	name  string
	class Class
	// instBits is 0 for a plain little-endian word (ABS64, PREL32, ...)
	// and the count of immediate bits packed into the instruction
	// otherwise (e.g. 26 for CALL26/JUMP26, 19 for a page-relative
	// LD_PREL).
	instBits int
	signed   bool
	shift    uint // right-shift applied before the value is packed
	compute  func(ctx Context) int64
	// width is the encoded field's byte width for an instBits==0 entry
	// (8 for the 64-bit word types, 4 for the 32-bit ones); ABS64 and
	// PREL64 are otherwise indistinguishable from ABS32 and PREL32 in
	// this table. Ignored (always 4) when instBits != 0; 0 for a
	// relocation with no encoded field at all (TLSDESC_CALL, COPY).
	width int
}

var arm64Types = map[uint32]*armEntry{
	uint32(elf.R_AARCH64_ABS64): {
		name: "R_AARCH64_ABS64", class: ClassAbsolute, width: 8,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_AARCH64_ABS32): {
		name: "R_AARCH64_ABS32", class: ClassAbsolute, width: 4,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A },
	},
	uint32(elf.R_AARCH64_PREL64): {
		name: "R_AARCH64_PREL64", class: ClassPCRelBranch, signed: true, width: 8,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_AARCH64_PREL32): {
		name: "R_AARCH64_PREL32", class: ClassPCRelBranch, signed: true, width: 4,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_AARCH64_CALL26): {
		name: "R_AARCH64_CALL26", class: ClassPLT, instBits: 26, signed: true, shift: 2,
		compute: func(ctx Context) int64 { return int64(ctx.PLT) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_AARCH64_JUMP26): {
		name: "R_AARCH64_JUMP26", class: ClassPCRelBranch, instBits: 26, signed: true, shift: 2,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.P) },
	},
	uint32(elf.R_AARCH64_ADR_PREL_PG_HI21): {
		// Generic page-relative ADRP, used by stub islands (4.G) rather
		// than the GOT: unlike ADR_GOT_PAGE, S is the final destination
		// address directly, not a GOT slot's address.
		name: "R_AARCH64_ADR_PREL_PG_HI21", class: ClassPCRelBranch, instBits: 21, signed: true, shift: 12,
		compute: func(ctx Context) int64 {
			return pageOf(int64(ctx.S)+ctx.A) - pageOf(int64(ctx.P))
		},
	},
	uint32(elf.R_AARCH64_ADD_ABS_LO12_NC): {
		name: "R_AARCH64_ADD_ABS_LO12_NC", class: ClassPCRelBranch, instBits: 12,
		compute: func(ctx Context) int64 { return (int64(ctx.S) + ctx.A) & 0xfff },
	},
	uint32(elf.R_AARCH64_ADR_GOT_PAGE): {
		name: "R_AARCH64_ADR_GOT_PAGE", class: ClassGOT, instBits: 21, signed: true, shift: 12,
		compute: func(ctx Context) int64 {
			return pageOf(int64(ctx.GOT)+ctx.A) - pageOf(int64(ctx.P))
		},
	},
	uint32(elf.R_AARCH64_LD64_GOT_LO12_NC): {
		name: "R_AARCH64_LD64_GOT_LO12_NC", class: ClassGOT, instBits: 12, shift: 3,
		compute: func(ctx Context) int64 { return (int64(ctx.GOT) + ctx.A) & 0xfff },
	},
	uint32(elf.R_AARCH64_TLSGD_ADR_PAGE21): {
		name: "R_AARCH64_TLSGD_ADR_PAGE21", class: ClassTLSGD, instBits: 21, signed: true, shift: 12,
		compute: func(ctx Context) int64 {
			return pageOf(int64(ctx.GOT)+ctx.A) - pageOf(int64(ctx.P))
		},
	},
	uint32(elf.R_AARCH64_TLSGD_ADD_LO12_NC): {
		name: "R_AARCH64_TLSGD_ADD_LO12_NC", class: ClassTLSGD, instBits: 12,
		compute: func(ctx Context) int64 { return (int64(ctx.GOT) + ctx.A) & 0xfff },
	},
	uint32(elf.R_AARCH64_TLSLD_ADR_PAGE21): {
		name: "R_AARCH64_TLSLD_ADR_PAGE21", class: ClassTLSLD, instBits: 21, signed: true, shift: 12,
		compute: func(ctx Context) int64 {
			return pageOf(int64(ctx.GOT)+ctx.A) - pageOf(int64(ctx.P))
		},
	},
	uint32(elf.R_AARCH64_TLSIE_ADR_GOTTPREL_PAGE21): {
		name: "R_AARCH64_TLSIE_ADR_GOTTPREL_PAGE21", class: ClassTLSIE, instBits: 21, signed: true, shift: 12,
		compute: func(ctx Context) int64 {
			return pageOf(int64(ctx.GOT)+ctx.A) - pageOf(int64(ctx.P))
		},
	},
	uint32(elf.R_AARCH64_TLSIE_LD64_GOTTPREL_LO12_NC): {
		name: "R_AARCH64_TLSIE_LD64_GOTTPREL_LO12_NC", class: ClassTLSIE, instBits: 12, shift: 3,
		compute: func(ctx Context) int64 { return (int64(ctx.GOT) + ctx.A) & 0xfff },
	},
	uint32(elf.R_AARCH64_TLSLE_ADD_TPREL_HI12): {
		name: "R_AARCH64_TLSLE_ADD_TPREL_HI12", class: ClassTLSLE, instBits: 12, shift: 12,
		compute: func(ctx Context) int64 { return int64(ctx.S) + ctx.A - int64(ctx.TLSBase) },
	},
	uint32(elf.R_AARCH64_TLSLE_ADD_TPREL_LO12_NC): {
		name: "R_AARCH64_TLSLE_ADD_TPREL_LO12_NC", class: ClassTLSLE, instBits: 12,
		compute: func(ctx Context) int64 { return (int64(ctx.S) + ctx.A - int64(ctx.TLSBase)) & 0xfff },
	},
	uint32(elf.R_AARCH64_TLSDESC_ADR_PAGE21): {
		name: "R_AARCH64_TLSDESC_ADR_PAGE21", class: ClassTLSDesc, instBits: 21, signed: true, shift: 12,
		compute: func(ctx Context) int64 {
			return pageOf(int64(ctx.GOT)+ctx.A) - pageOf(int64(ctx.P))
		},
	},
	uint32(elf.R_AARCH64_TLSDESC_CALL): {
		name: "R_AARCH64_TLSDESC_CALL", class: ClassTLSDesc,
		compute: func(ctx Context) int64 { return 0 },
	},
	uint32(elf.R_AARCH64_COPY): {
		name: "R_AARCH64_COPY", class: ClassCopy,
		compute: func(ctx Context) int64 { return 0 },
	},
}

// pageOf truncates addr to its containing 4KiB page, the ADRP/ADR_PAGE
// family's shared notion of "page" (4.E).
func pageOf(addr int64) int64 { return addr &^ 0xfff }

// ARM64 implements Relocator for AArch64 (4.E).
type ARM64 struct {
	Target
}

func NewARM64(got *gotplt.GOT, plt *gotplt.PLT, pie bool) *ARM64 {
	return &ARM64{Target{WordSize: 8, GOT: got, PLT: plt, PIE: pie}}
}

func (a *ARM64) entry(r *fragment.Relocation) (*armEntry, error) {
	e, ok := arm64Types[r.Type]
	if !ok {
		return nil, unsupportedType("arm64", r.Type)
	}
	return e, nil
}

func (a *ARM64) ScanRelocation(r *fragment.Relocation, info *symbol.ResolveInfo, applies *fragment.Fragment) error {
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
	case ClassTLSDesc:
		a.GOT.Allocate(r.Symbol, gotplt.TLSDesc)
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
	default:
		return fmt.Errorf("reloc: arm64: unhandled class %d for type %d", e.class, r.Type)
	}
	return nil
}

func (a *ARM64) ApplyRelocation(r *fragment.Relocation, dst []byte, place uint64, ctx Context) (Result, error) {
	e, err := a.entry(r)
	if err != nil {
		return Unsupported, err
	}
	ctx.P = place
	val := e.compute(ctx)

	if e.instBits == 0 {
		// Plain little-endian word: ABS64/32, PREL64/32.
		if len(dst) != 4 && len(dst) != 8 {
			return BadReloc, nil
		}
		return encodeWord(dst, val, e.signed)
	}

	if len(dst) != 4 {
		return BadReloc, fmt.Errorf("reloc: arm64: %s: instruction-field relocation needs a 4-byte site, got %d", e.name, len(dst))
	}
	shifted := val >> e.shift
	bits := uint(e.instBits)
	if e.signed {
		lo, hi := -(int64(1) << (bits - 1)), (int64(1)<<(bits-1))-1
		if shifted < lo || shifted > hi {
			return Overflow, nil
		}
	} else {
		if shifted < 0 || uint64(shifted) > (uint64(1)<<bits)-1 {
			return Overflow, nil
		}
	}

	insn := binary.LittleEndian.Uint32(dst)
	mask := uint32(1)<<bits - 1
	switch {
	case e.name == "R_AARCH64_CALL26" || e.name == "R_AARCH64_JUMP26":
		insn = insn&^mask | uint32(shifted)&mask
	case e.instBits == 21:
		// ADRP-style split immediate: bits[1:0] into insn[30:29]
		// (immlo), bits[20:2] into insn[23:5] (immhi).
		u := uint32(shifted) & mask
		immlo := u & 0x3
		immhi := (u >> 2) & 0x7ffff
		insn = insn&^(0x3<<29) | immlo<<29
		insn = insn&^(0x7ffff<<5) | immhi<<5
	default:
		// LO12-style: immediate packed into insn[21:10].
		insn = insn&^(mask<<10) | (uint32(shifted)&mask)<<10
	}
	binary.LittleEndian.PutUint32(dst, insn)
	return OK, nil
}

// EncodedSize reports the byte width ApplyRelocation needs sliced
// from the relocation site for r.Type: an instruction-field entry
// always needs 4 bytes, a plain-word entry needs its table-declared
// width, and a fieldless entry (TLSDESC_CALL, COPY) needs none.
func (a *ARM64) EncodedSize(r *fragment.Relocation) (int, error) {
	e, err := a.entry(r)
	if err != nil {
		return 0, err
	}
	if e.instBits != 0 {
		return 4, nil
	}
	return e.width, nil
}

func encodeWord(dst []byte, val int64, signed bool) (Result, error) {
	bits := uint(len(dst)) * 8
	if signed {
		lo, hi := -(int64(1) << (bits - 1)), (int64(1)<<(bits-1))-1
		if val < lo || val > hi {
			return Overflow, nil
		}
	} else if bits < 64 {
		if val < 0 || uint64(val) > (uint64(1)<<bits)-1 {
			return Overflow, nil
		}
	}
	u := uint64(val)
	for i := range dst {
		dst[i] = byte(u)
		u >>= 8
	}
	return OK, nil
}
