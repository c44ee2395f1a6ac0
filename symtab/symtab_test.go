// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/aclements/go-ld/diag"
	"github.com/aclements/go-ld/symbol"
)

func newGlobal(pool *symbol.NamePool, name string, value, size uint64) *symbol.ResolveInfo {
	id, _, err := pool.InsertGlobal(symbol.InsertGlobalParams{
		Name: name, Desc: symbol.Define, Binding: symbol.Global, Size: size, Value: value,
	}, 0)
	if err != nil {
		panic(err)
	}
	return pool.Info(id)
}

func newNamePool() *symbol.NamePool {
	return symbol.NewNamePool(diag.NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)), false))
}

func TestAddr(t *testing.T) {
	pool := newNamePool()
	a := newGlobal(pool, "a", 1000, 10)
	b := newGlobal(pool, "b", 1050, 10)
	c := newGlobal(pool, "c", 2000, 10)

	tab := NewTable(pool.Globals())
	check := func(label string, addr uint64, want *symbol.ResolveInfo) {
		t.Helper()
		got, ok := tab.Addr(addr)
		if !ok {
			got = nil
		}
		if want != got {
			t.Errorf("%s: looking up %d want %v, got %v", label, addr, want, got)
		}
	}

	check("beginning of symbol", 1000, a)
	check("beginning of symbol", 1050, b)
	check("beginning of symbol", 2000, c)

	check("end of symbol", 1009, a)
	check("end of symbol", 1059, b)
	check("just past end of symbol", 1010, nil)
	check("just past end of symbol", 1060, nil)

	check("before first symbol", 100, nil)
}

func TestZeroSizeNotLookedUp(t *testing.T) {
	pool := newNamePool()
	newGlobal(pool, "zero", 1000, 0)

	tab := NewTable(pool.Globals())
	if _, ok := tab.Addr(1000); ok {
		t.Error("zero-size symbol should never be returned by Addr")
	}
}

func TestOverlap(t *testing.T) {
	const minAddr = 1000
	type span struct{ value, size uint64 }
	spans := []span{
		// Strictly nested.
		{1000, 3},
		{1001, 1},
		// Same beginning. Smaller symbols should be preferred.
		{1010, 5},
		{1010, 4},
		{1010, 3},
		// Same end.
		{1020, 5},
		{1021, 4},
		{1022, 3},
		// Overlap in the middle with same size. Earlier symbol should be preferred.
		{1030, 5},
		{1032, 5},
		// Nested abutting symbols.
		{1040, 5},
		{1041, 1},
		{1042, 1},
		// Same end nested in another symbol.
		{1050, 5},
		{1051, 2},
		{1052, 1},
		// Totally overlapping. Earlier symbol should be preferred.
		{1060, 1},
		{1060, 1},
	}
	const maxAddr = 1070

	pool := newNamePool()
	ris := make([]*symbol.ResolveInfo, len(spans))
	for i, sp := range spans {
		ris[i] = newGlobal(pool, fmt.Sprintf("sym%d", i), sp.value, sp.size)
	}

	// For this test, we compare against a brute-force reference
	// implementation: among every symbol covering addr, prefer the
	// one starting latest, then the smallest, then the earliest
	// listed.
	index := make(map[*symbol.ResolveInfo]int, len(ris))
	for i, ri := range ris {
		index[ri] = i
	}
	prefer := func(a, b *symbol.ResolveInfo) bool {
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.Size != b.Size {
			return a.Size < b.Size
		}
		return index[a] < index[b]
	}
	slow := func(addr uint64) *symbol.ResolveInfo {
		var best *symbol.ResolveInfo
		for _, ri := range ris {
			if ri.Value <= addr && addr < ri.Value+ri.Size {
				if best == nil || prefer(ri, best) {
					best = ri
				}
			}
		}
		return best
	}

	tab := NewTable(pool.Globals())
	for addr := uint64(minAddr); addr < maxAddr; addr++ {
		want := slow(addr)
		got, ok := tab.Addr(addr)
		if !ok {
			got = nil
		}
		if want != got {
			wantName, gotName := "<nil>", "<nil>"
			if want != nil {
				wantName = want.Name
			}
			if got != nil {
				gotName = got.Name
			}
			t.Errorf("at address %d: want symbol %s, got %s", addr, wantName, gotName)
		}
	}
}
