// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"testing"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/symbol"
)

func newResolveInfo(name string, bind symbol.Binding, typ symbol.Type, value, size uint64) *symbol.ResolveInfo {
	ri := &symbol.ResolveInfo{Name: name, Value: value, Size: size}
	ri.SetBinding(bind)
	ri.SetType(typ)
	ri.SetDesc(symbol.Define)
	return ri
}

func TestSymtabBuilderLocalsThenGlobals(t *testing.T) {
	b := newSymtabBuilder()
	local := newResolveInfo("local.1", symbol.Local, symbol.Object, 0x1000, 4)
	global := newResolveInfo("gfunc", symbol.Global, symbol.Function, 0x2000, 16)

	b.addLocal(local, 1)
	b.addGlobal(global, 1)

	if b.localCount != 1 {
		t.Fatalf("localCount = %d, want 1", b.localCount)
	}
	if len(b.syms) != 2 {
		t.Fatalf("len(syms) = %d, want 2", len(b.syms))
	}
	if got, want := b.syms[0].Value, local.Value; got != want {
		t.Errorf("locals[0].Value = %#x, want %#x", got, want)
	}
	wantInfo := uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_FUNC)
	if got := b.syms[1].Info; got != wantInfo {
		t.Errorf("globals[0].Info = %#x, want %#x", got, wantInfo)
	}

	// Names are interned in add order; offset 0 is always the empty string.
	if off := b.strtab.Add("local.1"); off == 0 {
		t.Errorf("strtab.Add(%q) returned the empty-string offset", "local.1")
	}
}

func TestElfSymInfoEncodesBindAndType(t *testing.T) {
	cases := []struct {
		bind symbol.Binding
		typ  symbol.Type
		want uint8
	}{
		{symbol.Local, symbol.Object, uint8(elf.STB_LOCAL)<<4 | uint8(elf.STT_OBJECT)},
		{symbol.Weak, symbol.Function, uint8(elf.STB_WEAK)<<4 | uint8(elf.STT_FUNC)},
		{symbol.Global, symbol.ThreadLocal, uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_TLS)},
		{symbol.Global, symbol.IndirectFunc, uint8(elf.STB_GLOBAL)<<4 | uint8(sttGNUIFunc)&0xf},
	}
	for _, c := range cases {
		if got := elfSymInfo(c.bind, c.typ); got != c.want {
			t.Errorf("elfSymInfo(%v, %v) = %#x, want %#x", c.bind, c.typ, got, c.want)
		}
	}
}

func TestElfSymOtherEncodesVisibility(t *testing.T) {
	cases := []struct {
		vis  symbol.Visibility
		want uint8
	}{
		{symbol.Default, uint8(elf.STV_DEFAULT)},
		{symbol.Protected, uint8(elf.STV_PROTECTED)},
		{symbol.Hidden, uint8(elf.STV_HIDDEN)},
		{symbol.Internal, uint8(elf.STV_INTERNAL)},
	}
	for _, c := range cases {
		if got := elfSymOther(c.vis); got != c.want {
			t.Errorf("elfSymOther(%v) = %#x, want %#x", c.vis, got, c.want)
		}
	}
}

func TestDynRelocTypePerMachine(t *testing.T) {
	amd64 := &target{elfMach: elf.EM_X86_64}
	arm64 := &target{elfMach: elf.EM_AARCH64}

	if got, ok := amd64.dynRelocType(fragment.DynRelative); !ok || got != uint32(elf.R_X86_64_RELATIVE) {
		t.Errorf("amd64 DynRelative = (%d, %v), want (%d, true)", got, ok, elf.R_X86_64_RELATIVE)
	}
	if got, ok := amd64.dynRelocType(fragment.DynGlobDat); !ok || got != uint32(elf.R_X86_64_GLOB_DAT) {
		t.Errorf("amd64 DynGlobDat = (%d, %v), want (%d, true)", got, ok, elf.R_X86_64_GLOB_DAT)
	}
	if got, ok := arm64.dynRelocType(fragment.DynRelative); !ok || got != uint32(elf.R_AARCH64_RELATIVE) {
		t.Errorf("arm64 DynRelative = (%d, %v), want (%d, true)", got, ok, elf.R_AARCH64_RELATIVE)
	}
	if _, ok := arm64.dynRelocType(fragment.DynTLSTPOff); ok {
		t.Errorf("arm64 DynTLSTPOff: got ok=true, want false (unmapped kind)")
	}
	if _, ok := amd64.dynRelocType(fragment.DynIRelative); ok {
		t.Errorf("amd64 DynIRelative: got ok=true, want false (unmapped kind)")
	}
}

func TestDynrelBuilderAccumulatesDynAndPLT(t *testing.T) {
	b := &dynrelBuilder{}
	b.addDyn(0x1000, 3, uint32(elf.R_X86_64_GLOB_DAT), 0)
	b.addPLT(0x2000, 5, uint32(elf.R_X86_64_JUMP_SLOT), 0)

	if len(b.dyn) != 1 || len(b.plt) != 1 {
		t.Fatalf("len(dyn)=%d len(plt)=%d, want 1, 1", len(b.dyn), len(b.plt))
	}
	if b.dyn[0].Sym != 3 || b.dyn[0].Offset != 0x1000 {
		t.Errorf("dyn[0] = %+v, want Sym=3 Offset=0x1000", b.dyn[0])
	}
	if b.plt[0].Sym != 5 || b.plt[0].Offset != 0x2000 {
		t.Errorf("plt[0] = %+v, want Sym=5 Offset=0x2000", b.plt[0])
	}
}
