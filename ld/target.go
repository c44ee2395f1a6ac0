// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/aclements/go-ld/arch"
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/reloc"
	"github.com/aclements/go-ld/stub"
)

// Machine selects the backend Relocator/stub.Factory pair a link
// targets. Only the two architectures the retrieved pack's reloc/stub
// backends implement are offered here; adding a third means adding a
// case below plus the backend itself, not touching the rest of ld.
type Machine uint8

const (
	MachineAMD64 Machine = iota
	MachineARM64
)

func (m Machine) String() string {
	switch m {
	case MachineAMD64:
		return "amd64"
	case MachineARM64:
		return "arm64"
	}
	return "unknown"
}

// target bundles everything the driver needs that varies per Machine:
// the arch.Arch word layout, the ELF e_machine constant, the
// Relocator, and the stub Factory used for branch-island relaxation.
type target struct {
	arch      *arch.Arch
	elfMach   elf.Machine
	relocator reloc.Relocator
	stub      stub.Factory
}

// pltTemplates returns the PLT0/PLTN code-sequence builders 4.F says
// PLTN entries carry ("a target-specific template blob"), grounded on
// the same indirect-branch-through-a-patched-slot idiom stub's island
// templates use (stub.AMD64Factory.NewIsland, stub.ARM64Factory.NewIsland):
// the bytes are emitted here, but the relocations that patch the
// GOTPLTN address into them are attached by the driver once it knows
// each entry's slot (gotplt.PLT.Allocate itself carries no Relocs hook).
func pltTemplates(m Machine) (plt0 func() []byte, pltn func(index int) []byte) {
	switch m {
	case MachineAMD64:
		return amd64PLT0Template, amd64PLTNTemplate
	case MachineARM64:
		return arm64PLT0Template, arm64PLTNTemplate
	}
	return nil, nil
}

// amd64PLT0Template returns the shared lazy-binding trampoline:
//
//	push qword ptr [rip+0]   ; GOTPLT[1], the link map pointer
//	jmp  qword ptr [rip+0]   ; GOTPLT[2], the resolver entry point
//	nopl 0(%rax)             ; pad to 16 bytes
//
// Both displacements are 0 here; the driver patches them with
// R_X86_64_PC32 relocations against GOTPLT0's two reserved slots.
func amd64PLT0Template() []byte {
	return []byte{
		0xff, 0x35, 0x00, 0x00, 0x00, 0x00, // push [rip+0]
		0xff, 0x25, 0x00, 0x00, 0x00, 0x00, // jmp [rip+0]
		0x0f, 0x1f, 0x40, 0x00, // nopl 0(%rax)
	}
}

// amd64PLTNTemplate returns one lazy-binding stub:
//
//	jmp qword ptr [rip+0]  ; this symbol's GOTPLTN slot
//	push index             ; this entry's relocation index
//	jmp PLT0               ; rel32, patched to the shared PLT0
func amd64PLTNTemplate(index int) []byte {
	t := []byte{
		0xff, 0x25, 0x00, 0x00, 0x00, 0x00, // jmp [rip+0]
		0x68, 0x00, 0x00, 0x00, 0x00, // push imm32
		0xe9, 0x00, 0x00, 0x00, 0x00, // jmp rel32
	}
	binary.LittleEndian.PutUint32(t[7:11], uint32(index))
	return t
}

// arm64PLT0Template returns AArch64's shared lazy-binding trampoline
// (ELF for the ARM 64-bit Architecture, §5.3.2): save the link
// register pair, load the resolver through GOTPLT[1]/[2], and branch
// to it.
func arm64PLT0Template() []byte {
	t := make([]byte, 24)
	binary.LittleEndian.PutUint32(t[0:4], 0xa9bf7bf0)  // stp x16, x30, [sp, #-16]!
	binary.LittleEndian.PutUint32(t[4:8], armADRP(16)) // adrp x16, Page(GOTPLT[2])
	binary.LittleEndian.PutUint32(t[8:12], 0xf9400211) // ldr x17, [x16, Offset(GOTPLT[2])]
	binary.LittleEndian.PutUint32(t[12:16], armADDImm12(16, 16, 0))
	binary.LittleEndian.PutUint32(t[16:20], 0xd61f0220) // br x17
	binary.LittleEndian.PutUint32(t[20:24], 0xd503201f) // nop
	return t
}

// arm64PLTNTemplate returns one PLTN entry: the same ADRP+LDR+BR
// indirection as PLT0's tail, through this symbol's own GOTPLTN slot
// rather than the resolver.
func arm64PLTNTemplate(index int) []byte {
	t := make([]byte, 16)
	binary.LittleEndian.PutUint32(t[0:4], armADRP(16))
	binary.LittleEndian.PutUint32(t[4:8], 0xf9400211) // ldr x17, [x16, Offset(GOTPLTN)]
	binary.LittleEndian.PutUint32(t[8:12], armADDImm12(16, 16, 0))
	binary.LittleEndian.PutUint32(t[12:16], 0xd61f0220) // br x17
	return t
}

// armADRP returns ADRP Xd, #0 (page immediate patched later by a
// relocation), duplicated from stub's unexported helper of the same
// name rather than exporting it across packages for one shared line.
func armADRP(rd uint8) uint32 { return 0x90000000 | uint32(rd) }

// armADDImm12 returns ADD Xd, Xn, #imm12.
func armADDImm12(rd, rn uint8, imm12 uint16) uint32 {
	return 0x91000000 | uint32(imm12&0xfff)<<10 | uint32(rn)<<5 | uint32(rd)
}

// newTarget builds a target for m, wiring its GOT/PLT allocators
// against the sections the driver's Module already created.
func newTarget(m Machine, got *gotplt.GOT, plt *gotplt.PLT, pie bool) (*target, error) {
	switch m {
	case MachineAMD64:
		return &target{
			arch:      arch.AMD64,
			elfMach:   elf.EM_X86_64,
			relocator: reloc.NewAMD64(got, plt, pie),
			stub:      stub.AMD64Factory{},
		}, nil
	case MachineARM64:
		return &target{
			arch:      arch.ARM64,
			elfMach:   elf.EM_AARCH64,
			relocator: reloc.NewARM64(got, plt, pie),
			stub:      stub.ARM64Factory{},
		}, nil
	}
	return nil, fmt.Errorf("ld: unsupported machine %v", m)
}

// isPCRelBranch reports whether r's relocation site is a direct
// branch/call the stub allocator's reach check applies to — the only
// fragment.Relocation field available to ld without re-deriving each
// backend's formula table is r.Type, so this consults the same
// psABI-defined type numbers reloc's own tables key on (4.E §ClassPLT/
// ClassPCRelBranch), duplicated here rather than exporting reloc's
// internal typeEntry/armEntry tables.
func isPCRelBranch(m Machine, r *fragment.Relocation) bool {
	switch m {
	case MachineAMD64:
		switch r.Type {
		case uint32(elf.R_X86_64_PLT32), uint32(elf.R_X86_64_PC32):
			return true
		}
	case MachineARM64:
		switch r.Type {
		case uint32(elf.R_AARCH64_CALL26), uint32(elf.R_AARCH64_JUMP26):
			return true
		}
	}
	return false
}
