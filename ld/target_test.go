// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"testing"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
)

func newTestGOTPLT() (*gotplt.GOT, *gotplt.PLT) {
	gotSec := &fragment.Section{Name: ".got"}
	gotPltSec := &fragment.Section{Name: ".got.plt"}
	pltSec := &fragment.Section{Name: ".plt"}
	got := gotplt.NewGOT(8, gotSec, gotPltSec)
	plt := gotplt.NewPLT(pltSec, amd64PLT0Template, amd64PLTNTemplate)
	return got, plt
}

func TestNewTargetSelectsBackendPerMachine(t *testing.T) {
	got, plt := newTestGOTPLT()

	amd64, err := newTarget(MachineAMD64, got, plt, false)
	if err != nil {
		t.Fatalf("newTarget(MachineAMD64): %v", err)
	}
	if amd64.elfMach != elf.EM_X86_64 {
		t.Errorf("amd64.elfMach = %v, want %v", amd64.elfMach, elf.EM_X86_64)
	}

	arm64, err := newTarget(MachineARM64, got, plt, false)
	if err != nil {
		t.Fatalf("newTarget(MachineARM64): %v", err)
	}
	if arm64.elfMach != elf.EM_AARCH64 {
		t.Errorf("arm64.elfMach = %v, want %v", arm64.elfMach, elf.EM_AARCH64)
	}

	if _, err := newTarget(Machine(99), got, plt, false); err == nil {
		t.Errorf("newTarget(99): got nil error, want an error for an unsupported machine")
	}
}

func TestIsPCRelBranch(t *testing.T) {
	cases := []struct {
		m    Machine
		typ  uint32
		want bool
	}{
		{MachineAMD64, uint32(elf.R_X86_64_PLT32), true},
		{MachineAMD64, uint32(elf.R_X86_64_PC32), true},
		{MachineAMD64, uint32(elf.R_X86_64_64), false},
		{MachineARM64, uint32(elf.R_AARCH64_CALL26), true},
		{MachineARM64, uint32(elf.R_AARCH64_JUMP26), true},
		{MachineARM64, uint32(elf.R_AARCH64_ABS64), false},
	}
	for _, c := range cases {
		r := &fragment.Relocation{Type: c.typ}
		if got := isPCRelBranch(c.m, r); got != c.want {
			t.Errorf("isPCRelBranch(%v, type=%d) = %v, want %v", c.m, c.typ, got, c.want)
		}
	}
}
