// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements address-to-symbol lookup over a link's
// finalized global symbols, for naming the symbol that contains a raw
// address in diagnostics (e.g. --trace-reloc's resolved-value line).
package symtab

import (
	"sort"

	"github.com/aclements/go-ld/symbol"
)

// Table facilitates fast lookup of the global symbol containing a
// given address, once symbol.ResolveInfo.Value has been finalized
// (ld.Driver.finalizeSymbolValues).
type Table struct {
	// addr contains boundaries of symbols in addr order; see
	// makeAddrIndex for the overlap-disambiguation rules.
	addr []symAddr
}

type symAddr struct {
	// addr is the address of this symbol boundary. Usually this is
	// beginning of the symbol, except in the case of overlapping
	// symbols.
	addr uint64
	ri   *symbol.ResolveInfo // nil marks "no symbol" from here on
}

// NewTable builds a Table over globals. Only defined, non-absolute,
// non-zero-size symbols participate: absolute symbols have no
// containing address range, and zero-size symbols can never be the
// result of a lookup (and would otherwise foul the overlap-boundary
// algorithm below).
func NewTable(globals []*symbol.ResolveInfo) *Table {
	var live []*symbol.ResolveInfo
	for _, ri := range globals {
		if ri == nil || !ri.IsDefine() || ri.IsAbsolute() || ri.Size == 0 {
			continue
		}
		live = append(live, ri)
	}
	return &Table{makeAddrIndex(live)}
}

func makeAddrIndex(ris []*symbol.ResolveInfo) []symAddr {
	// Sort by starting address, then size (larger first, so the
	// smaller/more-specific symbol is processed last and wins the
	// boundary below), then by original position (later first, so
	// that among exact (Value, Size) ties the earliest-listed symbol
	// is processed last and wins) — sort.Slice isn't stable, so a
	// tie with no tiebreaker at all would resolve nondeterministically.
	order := make(map[*symbol.ResolveInfo]int, len(ris))
	for i, ri := range ris {
		order[ri] = i
	}
	sort.Slice(ris, func(i, j int) bool {
		if ris[i].Value != ris[j].Value {
			return ris[i].Value < ris[j].Value
		}
		if ris[i].Size != ris[j].Size {
			return ris[i].Size > ris[j].Size
		}
		return order[ris[i]] > order[ris[j]]
	})

	// Walk symbol *boundaries* (start and end), keeping a stack of
	// symbols covering the current address (lowest end address on
	// top). Symbols can and do overlap (e.g. a section symbol
	// spanning an entire function symbol), so a single sorted-by-start
	// list isn't enough: Addr needs to report the innermost (smallest)
	// covering symbol, which the stack gives for free.
	var out []symAddr
	stack := make([]symAddr, 0, 8) // addr is *end* address here
	drainStack := func(addr uint64) {
		for len(stack) > 0 {
			endAddr := stack[len(stack)-1].addr
			if endAddr > addr {
				return
			}
			for len(stack) > 0 && stack[len(stack)-1].addr == endAddr {
				stack = stack[:len(stack)-1]
			}
			if len(stack) > 0 {
				out = append(out, symAddr{endAddr, stack[len(stack)-1].ri})
			} else {
				out = append(out, symAddr{endAddr, nil})
			}
		}
	}
	for _, ri := range ris {
		if len(stack) == 1 {
			if stack[0].addr <= ri.Value {
				stack = stack[:0]
			}
		} else if len(stack) > 0 {
			drainStack(ri.Value)
		}
		start := symAddr{ri.Value, ri}
		if len(out) > 0 && out[len(out)-1].addr == ri.Value {
			out[len(out)-1] = start
		} else {
			out = append(out, start)
		}
		stack = append(stack, symAddr{ri.Value + ri.Size, ri})
		for i := len(stack) - 1; i >= 1 && stack[i].addr > stack[i-1].addr; i-- {
			stack[i], stack[i-1] = stack[i-1], stack[i]
		}
	}
	drainStack(^uint64(0))

	return out
}

// Addr returns the global symbol containing addr, and reports whether
// one was found. If multiple symbols cover addr, Addr returns the one
// with the smallest size (the innermost, most specific symbol).
func (t *Table) Addr(addr uint64) (*symbol.ResolveInfo, bool) {
	i := sort.Search(len(t.addr), func(i int) bool {
		return addr < t.addr[i].addr
	}) - 1
	if i < 0 || t.addr[i].ri == nil {
		return nil, false
	}
	ri := t.addr[i].ri
	if ri.Value+ri.Size <= addr {
		return nil, false
	}
	return ri, true
}
