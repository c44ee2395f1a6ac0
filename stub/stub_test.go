// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stub

import (
	"testing"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
)

func TestARM64FactoryInReach(t *testing.T) {
	f := ARM64Factory{}
	if !f.InReach(0, 1<<20) {
		t.Error("1MiB forward branch should be in reach")
	}
	if f.InReach(0, 1<<28) {
		t.Error("256MiB forward branch should be out of reach")
	}
}

func TestAMD64FactoryInReach(t *testing.T) {
	f := AMD64Factory{}
	if !f.InReach(0, 1<<30) {
		t.Error("1GiB forward branch should be in reach")
	}
	if f.InReach(0, 1<<32) {
		t.Error("4GiB forward branch should be out of reach")
	}
}

func TestAllocatorReusesIslandPerDest(t *testing.T) {
	sec := &fragment.Section{Name: ".text.island"}
	a := NewAllocator(ARM64Factory{}, sec)
	dest := ir.FragRef{Frag: 7, Offset: 0}

	f1, isNew1 := a.Island(dest)
	f2, isNew2 := a.Island(dest)
	if !isNew1 || isNew2 {
		t.Fatalf("isNew = (%v, %v), want (true, false)", isNew1, isNew2)
	}
	if f1 != f2 {
		t.Fatal("Island should return the identical fragment for the same destination")
	}
	if len(sec.Fragments) != 1 {
		t.Fatalf("section fragments = %d, want 1", len(sec.Fragments))
	}
	if len(f1.Relocs) != 2 {
		t.Fatalf("arm64 island relocs = %d, want 2 (ADRP page + ADD lo12)", len(f1.Relocs))
	}
	for _, r := range f1.Relocs {
		if r.Target != dest {
			t.Errorf("reloc target = %v, want %v", r.Target, dest)
		}
	}
}

func TestAllocatorDistinctDestsGetDistinctIslands(t *testing.T) {
	sec := &fragment.Section{Name: ".text.island"}
	a := NewAllocator(AMD64Factory{}, sec)

	f1, _ := a.Island(ir.FragRef{Frag: 1})
	f2, _ := a.Island(ir.FragRef{Frag: 2})
	if f1 == f2 {
		t.Fatal("distinct destinations should get distinct islands")
	}
	if len(sec.Fragments) != 2 {
		t.Fatalf("section fragments = %d, want 2", len(sec.Fragments))
	}
}

func TestAMD64IslandSingleAbsoluteReloc(t *testing.T) {
	sec := &fragment.Section{Name: ".text.island"}
	a := NewAllocator(AMD64Factory{}, sec)
	dest := ir.FragRef{Frag: 3, Offset: 8}

	f, _ := a.Island(dest)
	if len(f.Relocs) != 1 {
		t.Fatalf("amd64 island relocs = %d, want 1", len(f.Relocs))
	}
	if f.Relocs[0].Offset != 6 {
		t.Errorf("reloc offset = %d, want 6 (after the 6-byte jmp)", f.Relocs[0].Offset)
	}
}

func TestStubPayload(t *testing.T) {
	s := &Stub{Template: []byte{1, 2, 3, 4}}
	if s.Kind() != fragment.KindStub {
		t.Errorf("Kind() = %v, want KindStub", s.Kind())
	}
	if s.Size() != 4 {
		t.Errorf("Size() = %d, want 4", s.Size())
	}
	dst := make([]byte, 4)
	s.Emit(dst)
	if string(dst) != "\x01\x02\x03\x04" {
		t.Errorf("Emit wrote %v, want [1 2 3 4]", dst)
	}
}
