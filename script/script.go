// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package script models the parsed structure of a linker script (4.D
// input). Parsing the script's textual surface is out of this core's
// scope (spec.md §1 assumes "linker-script parsing... into the rule
// structure consumed by the layout engine"); this package only defines
// that structure, so layout has something to walk.
package script

import "path/filepath"

// A Script is an ordered list of output-section descriptions, plus the
// handful of top-level directives the layout engine and driver consult
// directly.
type Script struct {
	// Entry names the script's entry symbol, or "". The ld driver does
	// not read it: GC seeds and the output entry come from ld.Config's
	// Entry (or "_start" when that is empty).
	Entry string

	// Outputs are the OUTPUT { ... } blocks, in script order: rule
	// matching scans them in this order and takes the first match
	// (4.D step 2).
	Outputs []*OutputSection

	// Keep lists KEEP()-wrapped patterns: any input section matching
	// one of these is always retained by GC regardless of reachability.
	Keep []Pattern
}

// OutputSection is one `OUTPUT_NAME { *(.pattern) INPUT_FILE_PREDICATE
// ... }` block.
type OutputSection struct {
	Name string

	// Rules are the input-section selectors inside this block, tried
	// in order for each candidate input section (an OutputSection may
	// gather fragments from more than one rule, e.g. `*(.text) *(.text.*)`).
	Rules []Rule

	// Sort reorders the fragments this section collects after rule
	// matching (4.D step 4); SortNone preserves rule/insertion order.
	Sort SortMode

	// Discard marks an explicit `/DISCARD/` output: every input
	// section matched here is dropped instead of placed.
	Discard bool

	// Addr is an explicit load address expression result, or nil if
	// this section should flow from the current location counter.
	Addr *uint64
}

// Rule is one `pattern` or `file-predicate(pattern)` selector within an
// OutputSection.
type Rule struct {
	// FilePattern restricts this rule to input files whose name
	// matches, or "" to match any input file.
	FilePattern Pattern
	// SectionPattern selects input sections by name within a matching
	// file.
	SectionPattern Pattern
}

// Matches reports whether an input section named secName, belonging to
// an input file named fileName, satisfies r.
func (r Rule) Matches(fileName, secName string) bool {
	if r.FilePattern != "" && !r.FilePattern.Match(fileName) {
		return false
	}
	return r.SectionPattern.Match(secName)
}

// Pattern is a glob pattern in the shell/linker-script sense
// (path.Match semantics: '*', '?', and '[...]' classes).
type Pattern string

// Match reports whether name satisfies p. A malformed pattern never
// matches (mirroring path.Match's own error contract, collapsed to a
// bool since an unparseable script pattern is a script-authoring bug
// the caller should have caught before building the Script, not a
// layout-time error).
func (p Pattern) Match(name string) bool {
	if p == "" || p == "*" {
		return true
	}
	ok, err := filepath.Match(string(p), name)
	return err == nil && ok
}

// SortMode selects how OutputSection.Sort reorders fragments.
type SortMode uint8

const (
	SortNone SortMode = iota
	SortByName
	SortByAlignment
	SortByNameThenAlignment
)

// Match returns the first rule in os whose Matches accepts the input
// section secName of file fileName (both its file and section
// patterns), and whether there was one; an empty rule list matches
// nothing (an
// OutputSection with no rules only ever receives synthetic fragments).
func (os *OutputSection) Match(fileName, secName string) (Rule, bool) {
	for _, r := range os.Rules {
		if r.Matches(fileName, secName) {
			return r, true
		}
	}
	return Rule{}, false
}
