// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package input

import (
	"bytes"
	"fmt"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/obj"
)

// InputFile is a uniform view over one classified input (4.A). Its
// lifetime runs from command-line processing through image emit; an
// ArchiveMember shares its parent Archive's underlying bytes (Parent
// names that relationship) rather than owning a copy.
type InputFile struct {
	ID   ir.InputID
	Name string
	Kind Kind

	// Obj is the decoded object file for an ELF-kind input; nil
	// otherwise.
	Obj obj.File

	// Sections holds one fragment.Section per obj.Section, translated
	// per 4.C, for an ELF-kind input.
	Sections []*fragment.Section

	// Relocs holds every relocation read while translating Sections,
	// still unbound to a target FragRef (4.C's deferred second pass —
	// see BindRelocations).
	Relocs []RawReloc

	// Raw holds the untouched bytes of a Bitcode, Script, SymDef, or
	// Binary input: the LTO assembler invocation, the (externally
	// supplied) linker-script parser, the symdef reader, and the
	// writer's raw-blob emission are all out of this core's scope, so
	// this package just keeps the bytes available for whichever of
	// those a caller wires up.
	Raw []byte

	// Needed marks whether this input has been pulled into the link
	// (always true for non-archive inputs; for an Archive, whether
	// any member has been pulled in; 4.J: "resolve archives lazily
	// until closure").
	Needed bool

	// members and index back Archive inputs; see NewArchive.
	members []*InputFile
	index   map[string]int
}

// Read classifies data and, for an ELF or script/symdef/bitcode/binary
// kind, builds its InputFile. Archives are not handled here: archive
// member demultiplexing happens upstream of this core (a Non-goal —
// see spec.md §1), so archive InputFiles are built from already-split
// members via NewArchive instead.
func Read(id ir.InputID, name string, data []byte, forceBinary bool) (*InputFile, error) {
	kind, err := Classify(data, forceBinary)
	if err != nil {
		return nil, fmt.Errorf("input: %s: %w", name, err)
	}
	in := &InputFile{ID: id, Name: name, Kind: kind}
	switch kind {
	case ObjectELF, SharedELF, ExecutableELF:
		f, err := obj.Open(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("input: %s: %w", name, err)
		}
		in.Obj = f
		layout := f.Info().Arch.Layout
		sections, relocs, err := translateSections(layout, f, 0)
		if err != nil {
			return nil, err
		}
		in.Sections = sections
		in.Relocs = relocs
	case Archive:
		return nil, fmt.Errorf("input: %s: archive members must be supplied via NewArchive", name)
	default: // Bitcode, Script, SymDef, Binary
		in.Raw = data
	}
	return in, nil
}

// BindRelocations runs 4.C's deferred second pass: for each RawReloc
// collected while translating in.Sections, it looks up the Fragment
// that owns the patched byte range (via a fragment.RelocationIndex
// over that section) and attaches a bound fragment.Relocation to it.
// toGlobalSym converts the relocation's file-local obj.SymID to the
// global ir.SymID space; that mapping is owned by whichever package
// builds the combined symbol table across all inputs, not by this
// one, so it's supplied by the caller.
//
// The Relocation's Target (its resolved destination fragment) is left
// unbound: that's a later pipeline stage's job, once symbol
// resolution has picked a winning definition for Symbol.
func (in *InputFile) BindRelocations(toGlobalSym func(obj.SymID) ir.SymID) error {
	bySec := make(map[ir.SecID]*fragment.RelocationIndex, len(in.Sections))
	secByID := make(map[ir.SecID]*fragment.Section, len(in.Sections))
	for _, s := range in.Sections {
		secByID[s.ID] = s
	}
	for _, rr := range in.Relocs {
		idx, ok := bySec[rr.Sec]
		if !ok {
			sec, ok := secByID[rr.Sec]
			if !ok {
				return fmt.Errorf("input: %s: relocation against unknown section %d", in.Name, rr.Sec)
			}
			idx = fragment.NewRelocationIndex(sec)
			bySec[rr.Sec] = idx
		}
		applies, within := idx.Lookup(rr.Offset)
		if applies == nil {
			return fmt.Errorf("input: %s: relocation at section %d offset %#x has no owning fragment", in.Name, rr.Sec, rr.Offset)
		}
		sym := ir.NoSym
		if toGlobalSym != nil && rr.Symbol != obj.NoSym {
			sym = toGlobalSym(rr.Symbol)
		}
		reloc := fragment.NewRelocation(rr.Type, within, rr.Addend, sym, applies)
		applies.Relocs = append(applies.Relocs, reloc)
	}
	return nil
}

// NewArchive builds an Archive InputFile from already-demultiplexed
// members (each itself an ObjectELF or Bitcode InputFile, built by
// Read). It scans each member's globally-visible defined symbols to
// build the "needed-if-defines" index 4.A calls for, so the driver can
// pull a member in lazily the first time an undefined reference
// matches one of its names.
func NewArchive(id ir.InputID, name string, members []*InputFile) *InputFile {
	in := &InputFile{
		ID: id, Name: name, Kind: Archive,
		members: members,
		index:   make(map[string]int, len(members)),
	}
	for i, m := range members {
		m.Kind = ArchiveMember
		for _, symName := range definedGlobalNames(m.Obj) {
			if _, ok := in.index[symName]; !ok {
				in.index[symName] = i
			}
		}
	}
	return in
}

// Members returns the ordered list of members of an Archive InputFile.
func (in *InputFile) Members() []*InputFile { return in.members }

// FindMember looks up which archive member defines name, returning
// its index and true if one does.
func (in *InputFile) FindMember(name string) (int, bool) {
	i, ok := in.index[name]
	return i, ok
}

// definedGlobalNames lists every non-local, defined symbol name in f.
func definedGlobalNames(f obj.File) []string {
	if f == nil {
		return nil
	}
	var names []string
	n := f.NumSyms()
	for i := obj.SymID(0); i < n; i++ {
		s := f.Sym(i)
		if s.Local() {
			continue
		}
		if s.Kind == obj.SymUndef {
			continue
		}
		names = append(names, s.Name)
	}
	return names
}
