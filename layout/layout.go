// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package layout implements the Layout Engine (4.D): garbage
// collection, script rule matching, merge-string dedup, fragment-order
// stabilization, and offset/address assignment.
package layout

import (
	"sort"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/input"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/script"
)

// Engine drives one link's worth of layout. It owns the global
// FragID arena (assigned here, the first point in the pipeline where
// fragments from every input are gathered into one address space) and
// the set of output sections the Script and the unrecognized-section
// bucket produce.
type Engine struct {
	Script *script.Script

	// Outputs are the output sections, in the order they were first
	// created: Script.Outputs order, then every section added later
	// (through AddOutput, or the unrecognized bucket if any input
	// section needed it) in creation order.
	Outputs []*fragment.Section

	byName map[string]*fragment.Section

	nextFrag ir.FragID
	frags    map[ir.FragID]*fragment.Fragment
}

// unrecognizedName is the implicit bucket 4.D step 2 describes for
// allocatable sections no script rule claims.
const unrecognizedName = ".unrecognized"

func NewEngine(scr *script.Script) *Engine {
	e := &Engine{
		Script: scr,
		byName: make(map[string]*fragment.Section),
		frags:  make(map[ir.FragID]*fragment.Fragment),
	}
	for _, os := range scr.Outputs {
		e.addOutput(os.Name)
	}
	return e
}

func (e *Engine) addOutput(name string) *fragment.Section {
	if sec, ok := e.byName[name]; ok {
		return sec
	}
	sec := &fragment.Section{Name: name}
	e.byName[name] = sec
	e.Outputs = append(e.Outputs, sec)
	return sec
}

// Output returns the output section named name, or nil if layout
// hasn't created one (no script rule and no input section ever routed
// to it).
func (e *Engine) Output(name string) *fragment.Section {
	return e.byName[name]
}

// AddOutput returns the output section named name, creating an empty
// one (in Outputs insertion order) on first request. It's the driver's
// entry point for sections no script rule names but that the pipeline
// itself needs to exist — .got, .plt, and the other synthetic sections
// 4.J's driver owns outright.
func (e *Engine) AddOutput(name string) *fragment.Section {
	return e.addOutput(name)
}

// AssignFragIDs gives every not-yet-numbered fragment in files a
// unique, stable ir.FragID. This is the linker's first point where
// fragments from every input share one address space, so it's where
// the global arena begins (the "arena with stable IDs" pattern ir
// documents: IDs start at 0 like every other arena here).
func (e *Engine) AssignFragIDs(files []*input.InputFile) {
	for _, f := range files {
		for _, sec := range f.Sections {
			for _, frag := range sec.Fragments {
				frag.ID = e.nextFrag
				e.frags[frag.ID] = frag
				e.nextFrag++
			}
		}
	}
}

// AssignFragID numbers a single fragment a Builder adds outside the
// normal per-file walk (4.J: a plugin "may add sections or add
// symbols"), giving it the next ID in the same global arena
// AssignFragIDs fills so it's reachable via Fragment/GC/relocation
// Target lookups exactly like one read from an input file.
func (e *Engine) AssignFragID(frag *fragment.Fragment) {
	frag.ID = e.nextFrag
	e.frags[frag.ID] = frag
	e.nextFrag++
}

// Fragment looks up a fragment by its global ID, or nil if unknown
// (e.g. an unbound or discarded reference).
func (e *Engine) Fragment(id ir.FragID) *fragment.Fragment {
	return e.frags[id]
}

// MatchRules implements 4.D step 2: every live input section is routed
// to the first output section whose rules match (file predicate, then
// section-name glob), in script order. Allocatable sections matching
// no rule fall into the implicit .unrecognized bucket; non-allocatable
// unmatched sections (debug info, etc.) are simply dropped, since
// they're Discardable by definition and nothing claimed them.
//
// An output whose script block is itself marked /DISCARD/ drops every
// section it would otherwise have claimed.
func (e *Engine) MatchRules(files []*input.InputFile) {
	for _, f := range files {
		for _, sec := range f.Sections {
			if sec.Discard {
				continue
			}
			outSpec, matched := e.matchScript(f.Name, sec.Name)
			var outSec *fragment.Section
			switch {
			case matched && outSpec.Discard:
				sec.DiscardAll()
				continue
			case matched:
				outSec = e.addOutput(outSpec.Name)
			case sec.Flags.Alloc():
				outSec = e.addOutput(unrecognizedName)
			default:
				continue
			}
			sec.Output = outSec
			outSec.Flags.Set(fragment.FlagAlloc, outSec.Flags.Alloc() || sec.Flags.Alloc())
			outSec.Flags.Set(fragment.FlagWrite, outSec.Flags.Write() || sec.Flags.Write())
			outSec.Flags.Set(fragment.FlagExec, outSec.Flags.Exec() || sec.Flags.Exec())
			// First contributing section's SHT_* wins; script rules never
			// mix NOBITS (.bss-like) and PROGBITS sections into the same
			// output, so there's nothing to reconcile across contributors.
			if outSec.Type == 0 {
				outSec.Type = sec.Type
			}
			outSec.Fragments = append(outSec.Fragments, sec.Fragments...)
		}
	}
}

func (e *Engine) matchScript(fileName, secName string) (*script.OutputSection, bool) {
	for _, os := range e.Script.Outputs {
		if _, ok := os.Match(fileName, secName); ok {
			return os, true
		}
	}
	return nil, false
}

// Sort implements 4.D step 4's SORT modifiers for every output section
// that has a script-specified sort mode. Fragments within one rule
// already come out of MatchRules in insertion order (the order
// translateSections read them from the input object); Sort only
// reorders when the script asks for it, and Go's stable sort keeps
// that insertion order as the tiebreak.
func (e *Engine) Sort() {
	for _, outSpec := range e.Script.Outputs {
		if outSpec.Sort == script.SortNone {
			continue
		}
		sec := e.byName[outSpec.Name]
		if sec == nil {
			continue
		}
		less := sortLess(outSpec.Sort)
		sort.SliceStable(sec.Fragments, func(i, j int) bool {
			return less(sec.Fragments[i], sec.Fragments[j])
		})
	}
}

func sortLess(mode script.SortMode) func(a, b *fragment.Fragment) bool {
	name := func(f *fragment.Fragment) string {
		if f.Sec != nil {
			return f.Sec.Name
		}
		return ""
	}
	switch mode {
	case script.SortByName:
		return func(a, b *fragment.Fragment) bool { return name(a) < name(b) }
	case script.SortByAlignment:
		return func(a, b *fragment.Fragment) bool { return a.Align < b.Align }
	case script.SortByNameThenAlignment:
		return func(a, b *fragment.Fragment) bool {
			if na, nb := name(a), name(b); na != nb {
				return na < nb
			}
			return a.Align < b.Align
		}
	default:
		return func(a, b *fragment.Fragment) bool { return false }
	}
}

// Dedup implements 4.D step 3: within each output section, merge-string
// fragments are pooled by content and duplicates are collapsed. It's
// safe to call on any output section, merge-string or not — sections
// with no MergeStringData payloads are a no-op.
//
// Collapsing a fragment into its survivor would silently corrupt any
// relocation still bound to the collapsed one (the payload now Emits
// zero bytes, so the relocation would resolve against the wrong
// offset in whatever later fragment backfilled the space). So once a
// section's pool is built, Dedup walks files the same way GC does and
// retargets every bound relocation pointing at a collapsed fragment to
// its survivor directly, clearing Addend since merge-string pieces are
// deduplicated whole (no sub-fragment offset to preserve).
func (e *Engine) Dedup(files []*input.InputFile) {
	survivors := make(map[ir.FragID]*fragment.Fragment)
	for _, sec := range e.Outputs {
		pool := fragment.NewMergeStringPool()
		for _, f := range sec.Fragments {
			if f.Kind() != fragment.KindMergeString || f.Ignore() {
				continue
			}
			if survivor, isNew := pool.Intern(f); !isNew {
				survivors[f.ID] = survivor
			}
		}
	}
	if len(survivors) == 0 {
		return
	}
	for _, fi := range files {
		for _, sec := range fi.Sections {
			for _, f := range sec.Fragments {
				for _, r := range f.Relocs {
					if !r.IsBound() || r.Target.IsDiscarded() {
						continue
					}
					if survivor, ok := survivors[r.Target.Frag]; ok {
						r.Target = survivor.Ref()
						r.Addend = 0
					}
				}
			}
		}
	}
}

// AssignOffsets implements 4.D step 5 for every output section: walk
// live fragments in order, round the running offset up to each
// fragment's alignment, assign it, and accumulate.
func (e *Engine) AssignOffsets() {
	for _, sec := range e.Outputs {
		var off uint64
		for _, f := range sec.Fragments {
			if f.Ignore() {
				continue
			}
			align := uint64(f.Align)
			if align == 0 {
				align = 1
			}
			off = roundUp(off, align)
			f.SetOffset(off)
			off += f.Size()
		}
	}
}

// AssignAddresses implements 4.D step 6: output sections with an
// explicit script address use it; otherwise they flow sequentially
// from base, preserving sectionAlign between sections (a stand-in for
// full linker-script address-expression evaluation, which is out of
// this core's scope — see DESIGN.md). It returns the address one past
// the last output section.
func (e *Engine) AssignAddresses(base, sectionAlign uint64) uint64 {
	addr := base
	for _, sec := range e.Outputs {
		if outSpec := e.scriptFor(sec.Name); outSpec != nil && outSpec.Addr != nil {
			addr = *outSpec.Addr
		} else {
			addr = roundUp(addr, sectionAlign)
		}
		sec.SetAddr(addr)
		addr += sec.Size()
	}
	return addr
}

func (e *Engine) scriptFor(name string) *script.OutputSection {
	for _, os := range e.Script.Outputs {
		if os.Name == name {
			return os
		}
	}
	return nil
}

func roundUp(x, align uint64) uint64 {
	if align <= 1 {
		return x
	}
	return (x + align - 1) &^ (align - 1)
}
