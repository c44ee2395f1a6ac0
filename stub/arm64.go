// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stub

import (
	"debug/elf"
	"encoding/binary"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
)

// armReachBits is log2 of B/BL's reach: their signed word-granular
// immediate (26 bits, shifted left 2) reaches ±2^27 bytes (4.G).
const armReachBits = 27

// ARM64Factory builds arm64 branch islands: a 3-instruction
// ADRP+ADD+BR sequence that reaches any destination within ADRP's
// ±4GiB page range of the island (BR itself is an indirect jump with
// no displacement limit). Destinations farther away than that are
// not reachable through an island.
type ARM64Factory struct{}

func (ARM64Factory) Reach() int64 { return 1 << armReachBits }

func (f ARM64Factory) InReach(pc, target uint64) bool {
	d := int64(target) - int64(pc)
	return d >= -(1<<armReachBits) && d < (1<<armReachBits)
}

// NewIsland returns the island fragment and the two page/lo12
// relocations (against dest) that patch its ADRP+ADD pair; BR x16 in
// the third instruction word needs no relocation at all.
func (f ARM64Factory) NewIsland(dest ir.FragRef) (*fragment.Fragment, []*fragment.Relocation) {
	template := make([]byte, 12)
	binary.LittleEndian.PutUint32(template[0:4], armADRP(16))
	binary.LittleEndian.PutUint32(template[4:8], armADDImm12(16, 16, 0))
	binary.LittleEndian.PutUint32(template[8:12], armBR(16))

	frag := &fragment.Fragment{Payload: &Stub{Template: template}}
	relocs := []*fragment.Relocation{
		fragPageReloc(uint32(elf.R_AARCH64_ADR_PREL_PG_HI21), 0, dest, frag),
		fragPageReloc(uint32(elf.R_AARCH64_ADD_ABS_LO12_NC), 4, dest, frag),
	}
	return frag, relocs
}

func fragPageReloc(typ uint32, offset uint64, dest ir.FragRef, applies *fragment.Fragment) *fragment.Relocation {
	r := fragment.NewRelocation(typ, offset, 0, ir.NoSym, applies)
	r.Target = dest
	return r
}

// armADRP returns ADRP Xd, #0 (immediate patched later by a relocation).
func armADRP(rd uint8) uint32 {
	return 0x90000000 | uint32(rd)
}

// armADDImm12 returns ADD Xd, Xn, #imm12 (imm12 is usually 0 here;
// the real low-12 bits are patched in later by a relocation).
func armADDImm12(rd, rn uint8, imm12 uint16) uint32 {
	return 0x91000000 | uint32(imm12&0xfff)<<10 | uint32(rn)<<5 | uint32(rd)
}

// armBR returns BR Xn.
func armBR(rn uint8) uint32 {
	return 0xd61f0000 | uint32(rn)<<5
}
