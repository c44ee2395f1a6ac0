// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package input

import (
	"testing"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/obj"
)

func TestBindRelocations(t *testing.T) {
	sec := &fragment.Section{ID: 0, Name: ".text"}
	f0 := fragment.NewRegion(make([]byte, 8)) // occupies [0,8)
	f1 := fragment.NewRegion(make([]byte, 4)) // occupies [8,12)
	sec.AddFragment(f0)
	sec.AddFragment(f1)

	in := &InputFile{
		Name:     "test.o",
		Sections: []*fragment.Section{sec},
		Relocs: []RawReloc{
			{Sec: 0, Offset: 2, Type: 1, Symbol: 5, Addend: 0},
			{Sec: 0, Offset: 9, Type: 2, Symbol: 6, Addend: -4},
		},
	}

	toGlobal := func(s obj.SymID) ir.SymID { return ir.SymID(s) + 100 }
	if err := in.BindRelocations(toGlobal); err != nil {
		t.Fatalf("BindRelocations: %v", err)
	}

	if len(f0.Relocs) != 1 {
		t.Fatalf("f0.Relocs = %d, want 1", len(f0.Relocs))
	}
	r0 := f0.Relocs[0]
	if r0.Offset != 2 || r0.Type != 1 || r0.Symbol != 105 {
		t.Errorf("f0.Relocs[0] = %+v, want Offset=2 Type=1 Symbol=105", r0)
	}
	if r0.IsBound() {
		t.Error("freshly bound Relocation.Target should still be unbound")
	}

	if len(f1.Relocs) != 1 {
		t.Fatalf("f1.Relocs = %d, want 1", len(f1.Relocs))
	}
	r1 := f1.Relocs[0]
	if r1.Offset != 1 || r1.Addend != -4 || r1.Symbol != 106 {
		t.Errorf("f1.Relocs[0] = %+v, want Offset=1 Addend=-4 Symbol=106", r1)
	}
}

func TestBindRelocationsUnknownSection(t *testing.T) {
	in := &InputFile{
		Name:     "test.o",
		Sections: []*fragment.Section{{ID: 0, Name: ".text"}},
		Relocs:   []RawReloc{{Sec: 7, Offset: 0}},
	}
	if err := in.BindRelocations(nil); err == nil {
		t.Fatal("BindRelocations with unknown section succeeded; want error")
	}
}

func TestBindRelocationsOutOfRange(t *testing.T) {
	sec := &fragment.Section{ID: 0, Name: ".text"}
	sec.AddFragment(fragment.NewRegion(make([]byte, 4)))
	in := &InputFile{
		Name:     "test.o",
		Sections: []*fragment.Section{sec},
		Relocs:   []RawReloc{{Sec: 0, Offset: 100}},
	}
	if err := in.BindRelocations(nil); err == nil {
		t.Fatal("BindRelocations with out-of-range offset succeeded; want error")
	}
}

func TestNewArchiveIndex(t *testing.T) {
	// Members with no Obj (bitcode, say) contribute nothing to the
	// index but must not panic.
	members := []*InputFile{
		{Name: "a.o"},
		{Name: "b.o"},
	}
	arc := NewArchive(0, "libfoo.a", members)
	if arc.Kind != Archive {
		t.Fatalf("archive Kind = %v, want Archive", arc.Kind)
	}
	for _, m := range arc.Members() {
		if m.Kind != ArchiveMember {
			t.Errorf("member %s Kind = %v, want ArchiveMember", m.Name, m.Kind)
		}
	}
	if _, ok := arc.FindMember("nonexistent"); ok {
		t.Error("FindMember found a symbol that was never defined")
	}
}
