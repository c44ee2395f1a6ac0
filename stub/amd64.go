// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stub

import (
	"debug/elf"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
)

// AMD64Factory builds amd64 branch islands. x86-64's CALL/JMP rel32
// already reaches anywhere within a 2GiB-ish window of the call site,
// which covers nearly every realistic link; an island is only ever
// needed for the rare image that exceeds that window, in which case a
// classic "jmp [rip+0]; .quad target" indirect thunk reaches anywhere
// in the 64-bit address space (4.G).
type AMD64Factory struct{}

func (AMD64Factory) Reach() int64 { return 1<<31 - 1 }

func (f AMD64Factory) InReach(pc, target uint64) bool {
	d := int64(target) - int64(pc)
	return d >= -(1<<31) && d <= (1<<31-1)
}

// NewIsland returns "jmp qword ptr [rip+0]" (6 bytes) followed by an
// 8-byte absolute pointer slot, patched by a single R_X86_64_64
// relocation against dest.
func (f AMD64Factory) NewIsland(dest ir.FragRef) (*fragment.Fragment, []*fragment.Relocation) {
	template := []byte{
		0xff, 0x25, 0x00, 0x00, 0x00, 0x00, // jmp qword ptr [rip+0]
		0, 0, 0, 0, 0, 0, 0, 0, // absolute pointer slot
	}
	frag := &fragment.Fragment{Payload: &Stub{Template: template}}
	r := fragment.NewRelocation(uint32(elf.R_X86_64_64), 6, 0, ir.NoSym, frag)
	r.Target = dest
	return frag, []*fragment.Relocation{r}
}
