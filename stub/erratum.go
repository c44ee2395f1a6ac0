// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stub

import (
	"golang.org/x/arch/arm64/arm64asm"

	"github.com/aclements/go-ld/arch"
	"github.com/aclements/go-ld/asm"
)

// Fix describes one site needing the Cortex-A53 erratum 843419
// workaround: an ADRP at PC whose output feeds a following
// load/store/ADD before the next branch, where PC falls in the last
// two words of a 4KiB page — the silicon bug's documented trigger
// condition. A Fix only reports the site; no code in this module
// pads, moves or branches around the affected instruction group.
type Fix struct {
	// PC is the address of the offending ADRP instruction.
	PC uint64
	// Len is the byte span from the ADRP through the consuming
	// instruction, inclusive (8 or 12 bytes: one intervening ADD is
	// allowed between the ADRP and the consumer per the erratum's
	// published trigger condition).
	Len int
}

// erratum843419PageOffsets are the two words within a 4KiB page where
// an ADRP triggers the erratum if its output is consumed by a load,
// store, or ADD within the next instruction or two.
var erratum843419PageOffsets = map[uint64]bool{0xff8: true, 0xffc: true}

// ScanErratum843419 disassembles text (whose first byte is loaded at
// address base) looking for Cortex-A53 erratum 843419 trigger sites
// (4.G). It returns one Fix per affected ADRP, in address order.
//
// Instruction enumeration goes through asm.Disasm, the asm package's
// cross-architecture decoder; this scan recovers the
// concrete arm64asm.Inst per instruction via asm.RawARM64 for the
// register producer/consumer check below, which asm.Inst's
// architecture-independent interface has no way to express.
func ScanErratum843419(text []byte, base uint64) []Fix {
	seq, err := asm.Disasm(arch.ARM64, text, base)
	if err != nil {
		return nil
	}

	insts := make([]arm64asm.Inst, seq.Len())
	pcs := make([]uint64, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		inst := seq.Get(i)
		pcs[i] = inst.PC()
		if raw, ok := inst.(asm.RawARM64); ok {
			insts[i] = raw.RawInst()
		}
	}

	var fixes []Fix
	for i, inst := range insts {
		if inst.Op != arm64asm.ADRP {
			continue
		}
		if !erratum843419PageOffsets[pcs[i]&0xfff] {
			continue
		}
		dest, ok := adrpDest(inst)
		if !ok {
			continue
		}
		// The erratum triggers if a load, store, or ADD within the
		// next instruction (or the one after, with an intervening ADD
		// to the same register) consumes the ADRP's destination.
		for j := i + 1; j < len(insts) && j <= i+2; j++ {
			if consumesReg(insts[j], dest) {
				fixes = append(fixes, Fix{PC: pcs[i], Len: int(pcs[j]-pcs[i]) + 4})
				break
			}
		}
	}
	return fixes
}

func adrpDest(inst arm64asm.Inst) (arm64asm.Reg, bool) {
	if len(inst.Args) == 0 {
		return 0, false
	}
	r, ok := inst.Args[0].(arm64asm.Reg)
	return r, ok
}

func consumesReg(inst arm64asm.Inst, reg arm64asm.Reg) bool {
	switch inst.Op {
	case arm64asm.LDR, arm64asm.STR, arm64asm.LDRB, arm64asm.STRB,
		arm64asm.LDRH, arm64asm.STRH, arm64asm.LDRSW, arm64asm.ADD:
		for _, arg := range inst.Args {
			switch a := arg.(type) {
			case arm64asm.Reg:
				if a == reg {
					return true
				}
			case arm64asm.MemImmediate:
				if arm64asm.Reg(a.Base) == reg {
					return true
				}
			}
		}
	}
	return false
}
