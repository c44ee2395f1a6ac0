// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/internal/imap"
)

// SectionAt returns the live, allocated output section whose assigned
// address range contains addr, and reports whether one was found.
// AssignAddresses (4.D step 6) must have run first; callers that only
// have a raw address — not a FragID or ir.SymID to look up directly —
// use this to name the section for a diagnostic (e.g. --trace-reloc's
// "resolved to 0x... in .text").
//
// The index is rebuilt on every call rather than cached, since it's
// only ever consulted off the hot path (diagnostics, tracing) and
// Outputs' addresses can still move during the relax loop's repeated
// AssignAddresses passes.
func (e *Engine) SectionAt(addr uint64) (*fragment.Section, bool) {
	var index imap.Imap
	for _, sec := range e.Outputs {
		if sec.Discard || !sec.Flags.Alloc() {
			continue
		}
		size := sec.Size()
		if size == 0 {
			continue
		}
		index.Insert(imap.Interval{Low: sec.Addr, High: sec.Addr + size}, sec)
	}
	_, v := index.Find(addr)
	sec, ok := v.(*fragment.Section)
	return sec, ok
}
