// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package layout

import (
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/input"
	"github.com/aclements/go-ld/script"
)

// GlueFunc supplies per-target "glue edges" (4.D step 1: "e.g. XXX ->
// .ARM.exidx.XXX") that aren't expressed as ordinary relocations. A
// nil GlueFunc means no glue edges.
type GlueFunc func(f *fragment.Fragment) []*fragment.Fragment

// GC implements 4.D step 1: build the reached-set from seeds (entry
// symbol's fragment, force-undefined symbols, exported symbols) and
// every KEEP-listed input section, then follow bound relocation
// targets and any glue edges. Any fragment never reached is marked
// Ignore; an input section with no reached fragment is marked
// Discard.
//
// seeds and glue are both optional (nil/empty seeds still run GC
// against whatever KEEP marks reach, which is the right behavior for,
// e.g., a -r partial link with no single entry point).
func (e *Engine) GC(files []*input.InputFile, seeds []*fragment.Fragment, glue GlueFunc) {
	reached := make(map[*fragment.Fragment]bool, len(e.frags))
	var queue []*fragment.Fragment
	push := func(f *fragment.Fragment) {
		if f == nil || reached[f] {
			return
		}
		reached[f] = true
		queue = append(queue, f)
	}

	for _, f := range seeds {
		push(f)
	}
	for _, fi := range files {
		for _, sec := range fi.Sections {
			if matchesKeep(sec.Name, e.Script.Keep) {
				for _, f := range sec.Fragments {
					push(f)
				}
			}
		}
	}

	for len(queue) > 0 {
		f := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, r := range f.Relocs {
			if !r.IsBound() || r.Target.IsDiscarded() {
				continue
			}
			push(e.frags[r.Target.Frag])
		}
		if glue != nil {
			for _, g := range glue(f) {
				push(g)
			}
		}
	}

	for _, fi := range files {
		for _, sec := range fi.Sections {
			if sec.Discard || len(sec.Fragments) == 0 {
				continue
			}
			anyReached := false
			for _, f := range sec.Fragments {
				if reached[f] {
					anyReached = true
				} else {
					f.SetIgnore(true)
				}
			}
			if !anyReached {
				sec.Discard = true
			}
		}
	}
}

func matchesKeep(name string, patterns []script.Pattern) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}
