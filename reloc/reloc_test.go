// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reloc

import (
	"debug/elf"
	"testing"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/symbol"
)

func TestEncodeFieldRange(t *testing.T) {
	e := &typeEntry{size: 4, signed: true}
	dst := make([]byte, 4)
	if r := e.encodeField(dst, 100); r != OK {
		t.Fatalf("encodeField(100) = %v, want OK", r)
	}
	if r := e.encodeField(dst, int64(1)<<32); r != Overflow {
		t.Fatalf("encodeField(1<<32) = %v, want Overflow", r)
	}

	u := &typeEntry{size: 1, signed: false}
	if r := u.encodeField(dst[:1], -1); r != Overflow {
		t.Fatalf("encodeField(-1) on unsigned field = %v, want Overflow", r)
	}
}

func TestEncodeFieldAlignment(t *testing.T) {
	e := &typeEntry{size: 4, signed: false, align: 4}
	dst := make([]byte, 4)
	if r := e.encodeField(dst, 6); r != Overflow {
		t.Fatalf("encodeField(6) with align 4 = %v, want Overflow", r)
	}
	if r := e.encodeField(dst, 8); r != OK {
		t.Fatalf("encodeField(8) with align 4 = %v, want OK", r)
	}
}

func TestEncodeFieldWrongSize(t *testing.T) {
	e := &typeEntry{size: 4}
	if r := e.encodeField(make([]byte, 2), 1); r != BadReloc {
		t.Fatalf("encodeField on wrong-size dst = %v, want BadReloc", r)
	}
}

func newAMD64Target() (*AMD64, *fragment.Section, *fragment.Section, *fragment.Section) {
	got := &fragment.Section{Name: ".got"}
	gotplt_ := &fragment.Section{Name: ".got.plt"}
	plt := &fragment.Section{Name: ".plt"}
	g := gotplt.NewGOT(8, got, gotplt_)
	p := gotplt.NewPLT(plt, func() []byte { return make([]byte, 16) }, func(idx int) []byte { return make([]byte, 16) })
	return NewAMD64(g, p, false), got, gotplt_, plt
}

func TestAMD64ScanRelocationGOTAllocatesSlot(t *testing.T) {
	a, got, _, _ := newAMD64Target()
	info := &symbol.ResolveInfo{Name: "x"}
	info.SetDyn(true)
	r := fragment.NewRelocation(uint32(elf.R_X86_64_GOTPCREL), 0, 0, ir.SymID(3), &fragment.Fragment{})

	if err := a.ScanRelocation(r, info, r.Applies); err != nil {
		t.Fatal(err)
	}
	if len(got.Fragments) != 1 {
		t.Fatalf(".got fragments = %d, want 1", len(got.Fragments))
	}
	if r.Dynamic != fragment.DynGlobDat {
		t.Fatalf("Dynamic = %v, want DynGlobDat (preemptible dyn symbol)", r.Dynamic)
	}
}

func TestAMD64ScanRelocationHiddenDynIsRelative(t *testing.T) {
	a, got, _, _ := newAMD64Target()
	info := &symbol.ResolveInfo{Name: "x"}
	info.SetDyn(true)
	info.SetVisibility(symbol.Hidden)
	r := fragment.NewRelocation(uint32(elf.R_X86_64_GOTPCREL), 0, 0, ir.SymID(3), &fragment.Fragment{})

	if err := a.ScanRelocation(r, info, r.Applies); err != nil {
		t.Fatal(err)
	}
	if len(got.Fragments) != 1 {
		t.Fatalf(".got fragments = %d, want 1", len(got.Fragments))
	}
	if r.Dynamic != fragment.DynRelative {
		t.Fatalf("Dynamic = %v, want DynRelative (hidden, non-preemptible)", r.Dynamic)
	}
}

func TestAMD64ScanRelocationPLTAllocatesEntry(t *testing.T) {
	a, _, _, plt := newAMD64Target()
	info := &symbol.ResolveInfo{Name: "f"}
	info.SetDyn(true)
	r := fragment.NewRelocation(uint32(elf.R_X86_64_PLT32), 0, 0, ir.SymID(9), &fragment.Fragment{})

	if err := a.ScanRelocation(r, info, r.Applies); err != nil {
		t.Fatal(err)
	}
	// PLT0 + one PLTN entry.
	if len(plt.Fragments) != 2 {
		t.Fatalf(".plt fragments = %d, want 2", len(plt.Fragments))
	}
}

func TestAMD64ScanRelocationCopyQueuesSymbol(t *testing.T) {
	a, _, _, _ := newAMD64Target()
	info := &symbol.ResolveInfo{Name: "errno"}
	info.SetDyn(true)
	r := fragment.NewRelocation(uint32(elf.R_X86_64_COPY), 0, 0, ir.SymID(4), &fragment.Fragment{})

	if err := a.ScanRelocation(r, info, r.Applies); err != nil {
		t.Fatal(err)
	}
	syms := a.CopyRelocSyms()
	if len(syms) != 1 || syms[0] != ir.SymID(4) {
		t.Fatalf("CopyRelocSyms() = %v, want [4]", syms)
	}
}

func TestAMD64ScanRelocationNoCopyRelocSkipsQueue(t *testing.T) {
	a, _, _, _ := newAMD64Target()
	a.NoCopyReloc = true
	info := &symbol.ResolveInfo{Name: "errno"}
	info.SetDyn(true)
	r := fragment.NewRelocation(uint32(elf.R_X86_64_COPY), 0, 0, ir.SymID(4), &fragment.Fragment{})

	if err := a.ScanRelocation(r, info, r.Applies); err != nil {
		t.Fatal(err)
	}
	if len(a.CopyRelocSyms()) != 0 {
		t.Fatal("NoCopyReloc should suppress queuing a copy relocation")
	}
}

func TestAMD64ApplyRelocationAbsolute64(t *testing.T) {
	a, _, _, _ := newAMD64Target()
	r := fragment.NewRelocation(uint32(elf.R_X86_64_64), 0, 5, ir.NoSym, &fragment.Fragment{})
	dst := make([]byte, 8)

	res, err := a.ApplyRelocation(r, dst, 0, Context{S: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	if res != OK {
		t.Fatalf("ApplyRelocation = %v, want OK", res)
	}
	want := uint64(0x1005)
	for i := 0; i < 8; i++ {
		if dst[i] != byte(want>>(8*i)) {
			t.Fatalf("dst = %x, want little-endian %#x", dst, want)
		}
	}
}

func TestAMD64ApplyRelocationPC32(t *testing.T) {
	a, _, _, _ := newAMD64Target()
	r := fragment.NewRelocation(uint32(elf.R_X86_64_PC32), 0, -4, ir.NoSym, &fragment.Fragment{})
	dst := make([]byte, 4)

	res, err := a.ApplyRelocation(r, dst, 0x2000, Context{S: 0x1000})
	if err != nil {
		t.Fatal(err)
	}
	if res != OK {
		t.Fatalf("ApplyRelocation = %v, want OK", res)
	}
}

func TestAMD64ApplyRelocationUnsupportedType(t *testing.T) {
	a, _, _, _ := newAMD64Target()
	r := fragment.NewRelocation(9999, 0, 0, ir.NoSym, &fragment.Fragment{})
	if _, err := a.ApplyRelocation(r, make([]byte, 4), 0, Context{}); err == nil {
		t.Fatal("expected an error for an unknown relocation type")
	}
}

func newARM64Target() (*ARM64, *fragment.Section, *fragment.Section) {
	got := &fragment.Section{Name: ".got"}
	gotplt_ := &fragment.Section{Name: ".got.plt"}
	plt := &fragment.Section{Name: ".plt"}
	g := gotplt.NewGOT(8, got, gotplt_)
	p := gotplt.NewPLT(plt, func() []byte { return make([]byte, 32) }, func(idx int) []byte { return make([]byte, 16) })
	return NewARM64(g, p, false), got, plt
}

func TestARM64ApplyRelocationAbs64(t *testing.T) {
	a, _, _ := newARM64Target()
	r := fragment.NewRelocation(uint32(elf.R_AARCH64_ABS64), 0, 0, ir.NoSym, &fragment.Fragment{})
	dst := make([]byte, 8)

	res, err := a.ApplyRelocation(r, dst, 0, Context{S: 0x4000})
	if err != nil {
		t.Fatal(err)
	}
	if res != OK {
		t.Fatalf("ApplyRelocation = %v, want OK", res)
	}
	if dst[0] != 0 || dst[1] != 0x40 {
		t.Fatalf("dst = %x, want little-endian 0x4000", dst)
	}
}

func TestARM64ApplyRelocationCall26PreservesOpcodeBits(t *testing.T) {
	a, _, _ := newARM64Target()
	r := fragment.NewRelocation(uint32(elf.R_AARCH64_CALL26), 0, 0, ir.NoSym, &fragment.Fragment{})
	// BL opcode (top 6 bits = 100101) with a zero immediate.
	dst := []byte{0x00, 0x00, 0x00, 0x94}

	res, err := a.ApplyRelocation(r, dst, 0x1000, Context{PLT: 0x1008})
	if err != nil {
		t.Fatal(err)
	}
	if res != OK {
		t.Fatalf("ApplyRelocation = %v, want OK", res)
	}
	if dst[3]&0xfc != 0x94 {
		t.Fatalf("opcode bits clobbered: dst[3] = %#x", dst[3])
	}
}

func TestARM64ApplyRelocationOverflow(t *testing.T) {
	a, _, _ := newARM64Target()
	r := fragment.NewRelocation(uint32(elf.R_AARCH64_CALL26), 0, 0, ir.NoSym, &fragment.Fragment{})
	dst := make([]byte, 4)

	res, err := a.ApplyRelocation(r, dst, 0, Context{PLT: 1 << 30})
	if err != nil {
		t.Fatal(err)
	}
	if res != Overflow {
		t.Fatalf("ApplyRelocation = %v, want Overflow", res)
	}
}

func TestARM64ScanRelocationTLSGD(t *testing.T) {
	a, got, _ := newARM64Target()
	info := &symbol.ResolveInfo{Name: "tlsvar"}
	r := fragment.NewRelocation(uint32(elf.R_AARCH64_TLSGD_ADR_PAGE21), 0, 0, ir.SymID(1), &fragment.Fragment{})

	if err := a.ScanRelocation(r, info, r.Applies); err != nil {
		t.Fatal(err)
	}
	if len(got.Fragments) != 1 {
		t.Fatalf(".got fragments = %d, want 1", len(got.Fragments))
	}
	if got.Fragments[0].Size() != 16 {
		t.Fatalf("TLSGD slot size = %d, want 16", got.Fragments[0].Size())
	}
}

func TestResultString(t *testing.T) {
	cases := map[Result]string{OK: "ok", Overflow: "overflow", BadReloc: "bad-reloc", Unsupported: "unsupported"}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", r, got, want)
		}
	}
}

func TestFragAddr(t *testing.T) {
	sec := &fragment.Section{Name: ".text"}
	sec.SetAddr(0x8000)
	f := &fragment.Fragment{Payload: &gotplt.Slot{WordSize: 8}}
	sec.AddFragment(f)
	f.SetOffset(0x10)

	if got := FragAddr(f); got != 0x8010 {
		t.Fatalf("FragAddr = %#x, want 0x8010", got)
	}
}
