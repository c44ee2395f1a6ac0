// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gotplt

import (
	"testing"

	"github.com/aclements/go-ld/fragment"
)

func TestPLTAllocateCreatesPLT0Once(t *testing.T) {
	sec := &fragment.Section{Name: ".plt"}
	calls := 0
	p := NewPLT(sec,
		func() []byte { calls++; return []byte{0xff} },
		func(idx int) []byte { return []byte{byte(idx)} },
	)

	p.Allocate(1, false)
	p.Allocate(2, false)

	if calls != 1 {
		t.Fatalf("PLT0Template called %d times, want 1", calls)
	}
	if p.PLT0() == nil {
		t.Fatal("PLT0 should have been created")
	}
	// PLT0 + two PLTN entries.
	if len(sec.Fragments) != 3 {
		t.Fatalf(".plt fragments = %d, want 3", len(sec.Fragments))
	}
}

func TestPLTAllocateIRelativeSkipsPLT0(t *testing.T) {
	sec := &fragment.Section{Name: ".plt"}
	calls := 0
	p := NewPLT(sec,
		func() []byte { calls++; return []byte{0xff} },
		func(idx int) []byte { return []byte{byte(idx)} },
	)

	p.Allocate(1, true)

	if calls != 0 {
		t.Fatal("IRELATIVE allocation should not create PLT0")
	}
	if len(sec.Fragments) != 1 {
		t.Fatalf(".plt fragments = %d, want 1", len(sec.Fragments))
	}
}

func TestPLTAllocateReusesExistingEntry(t *testing.T) {
	sec := &fragment.Section{Name: ".plt"}
	p := NewPLT(sec, nil, func(idx int) []byte { return []byte{byte(idx)} })

	f1, isNew1 := p.Allocate(7, false)
	f2, isNew2 := p.Allocate(7, false)
	if !isNew1 || isNew2 {
		t.Fatalf("isNew = (%v, %v), want (true, false)", isNew1, isNew2)
	}
	if f1 != f2 {
		t.Fatal("Allocate should return the identical fragment on reuse")
	}
}

func TestPLTEntryEmit(t *testing.T) {
	entry := &PLTEntry{Variant: PLTN, Template: []byte{1, 2, 3}}
	dst := make([]byte, entry.Size())
	entry.Emit(dst)
	if string(dst) != "\x01\x02\x03" {
		t.Errorf("Emit wrote %v, want [1 2 3]", dst)
	}
}
