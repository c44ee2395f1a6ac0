// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/aclements/go-ld/diag"
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/input"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/obj"
	"github.com/aclements/go-ld/reloc"
	"github.com/aclements/go-ld/segment"
	"github.com/aclements/go-ld/symbol"
	"github.com/aclements/go-ld/symtab"
	"github.com/aclements/go-ld/writer"
)

// Driver sequences one link end to end (4.J): enumerate inputs, read
// headers/symbols/sections, resolve archives lazily until closure,
// run any registered Plugins at their fixed callback points, scan
// relocations, lay out sections, relax (insert stubs) to a fixed
// point, finalize symbol values, assign segments, and emit the image.
type Driver struct {
	mod     *Module
	plugins []Plugin

	// roots lists the InputFiles supplied before Link runs, in
	// command-line order — archives included, not yet expanded into
	// their members (5. CONCURRENCY & RESOURCE MODEL: "resolution
	// order equals command-line order").
	roots []*input.InputFile
}

// NewDriver builds a Driver around a fresh Module for cfg.
func NewDriver(cfg *Config, diagEngine *diag.Engine) (*Driver, error) {
	mod, err := NewModule(cfg, diagEngine)
	if err != nil {
		return nil, err
	}
	return &Driver{mod: mod}, nil
}

// Module returns the Driver's live link state, for a caller that wants
// to inspect it after Link (tests, mainly).
func (d *Driver) Module() *Module { return d.mod }

// AddInput registers f as a root input, in the order inputs should
// resolve.
func (d *Driver) AddInput(f *input.InputFile) {
	d.roots = append(d.roots, f)
}

// AddPlugin registers p to run at every callback point for this link.
// Plugins run in registration order.
func (d *Driver) AddPlugin(p Plugin) {
	d.plugins = append(d.plugins, p)
}

// Link runs the full pipeline and returns the final image's bytes.
// Callers that only want the bytes (e.g. to write somewhere other
// than Config.OutputPath) can call Link directly instead of Run.
func (d *Driver) Link() ([]byte, error) {
	m := d.mod
	b := newBuilder(m)

	if err := d.resolveArchives(); err != nil {
		return nil, err
	}
	if m.Diag.Failed() {
		return nil, errAborted
	}

	for _, p := range d.plugins {
		if err := p.VisitSections(b); err != nil {
			return nil, err
		}
	}

	m.Layout.AssignFragIDs(m.Files)

	if err := d.readSymbols(); err != nil {
		return nil, err
	}
	if m.Diag.Failed() {
		return nil, errAborted
	}

	for _, p := range d.plugins {
		if err := p.VisitSymbols(b); err != nil {
			return nil, err
		}
	}

	d.initTargetSymbols()

	if err := d.scanRelocations(); err != nil {
		return nil, err
	}
	if m.Diag.Failed() {
		return nil, errAborted
	}

	d.layout()

	if err := d.relax(); err != nil {
		return nil, err
	}

	d.finalizeSymbolValues()

	if err := d.applyRelocations(); err != nil {
		return nil, err
	}
	if m.Diag.Failed() {
		return nil, errAborted
	}

	segs := d.assignSegments()

	for _, p := range d.plugins {
		if err := p.BeforeWrite(b); err != nil {
			return nil, err
		}
	}

	img, err := d.buildImage(segs)
	if err != nil {
		return nil, err
	}
	return img.Bytes()
}

// Run calls Link and writes the result to Config.OutputPath.
func (d *Driver) Run() error {
	data, err := d.Link()
	if err != nil {
		return err
	}
	return os.WriteFile(d.mod.Config.OutputPath, data, 0o777)
}

var errAborted = fmt.Errorf("ld: link aborted after fatal diagnostic")

// resolveArchives implements 4.J's "resolve archives lazily until
// closure": sweep the root inputs repeatedly, pulling in any archive
// member whose name satisfies an undefined reference seen so far,
// until a full pass pulls in nothing new. Non-archive roots are
// appended to m.Files on the first sweep, in command-line order.
func (d *Driver) resolveArchives() error {
	m := d.mod
	undefined := make(map[string]bool)

	// First pass: bring in every non-archive root and record every
	// name it leaves undefined.
	for _, f := range d.roots {
		if f.Kind == input.Archive {
			continue
		}
		f.ID = ir.InputID(len(m.Files))
		m.Files = append(m.Files, f)
		for _, name := range undefinedNames(f) {
			undefined[name] = true
		}
	}

	for {
		progress := false
		for _, ar := range d.roots {
			if ar.Kind != input.Archive {
				continue
			}
			for name := range undefined {
				idx, ok := ar.FindMember(name)
				if !ok {
					continue
				}
				mem := ar.Members()[idx]
				if mem.Needed {
					continue
				}
				mem.Needed = true
				ar.Needed = true
				mem.ID = ir.InputID(len(m.Files))
				m.Files = append(m.Files, mem)
				for _, n := range undefinedNames(mem) {
					if !undefined[n] {
						undefined[n] = true
					}
				}
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return nil
}

// undefinedNames lists f's undefined symbol names, the set
// resolveArchives matches archive members against.
func undefinedNames(f *input.InputFile) []string {
	if f.Obj == nil {
		return nil
	}
	var names []string
	n := f.Obj.NumSyms()
	for i := obj.SymID(0); i < n; i++ {
		s := f.Obj.Sym(i)
		if s.Kind == obj.SymUndef && !s.Local() {
			names = append(names, s.Name)
		}
	}
	return names
}

// readSymbols implements 4.J's "read headers/symbols/sections": every
// InputFile in m.Files (roots plus whatever resolveArchives pulled in)
// contributes its symbols to the NamePool, in file order, and each
// file's relocations are bound to a global ir.SymID space via
// BindRelocations.
func (d *Driver) readSymbols() error {
	m := d.mod
	for _, f := range m.Files {
		if f.Obj == nil {
			continue
		}
		localToGlobal := make(map[obj.SymID]ir.SymID, f.Obj.NumSyms())
		n := f.Obj.NumSyms()
		for i := obj.SymID(0); i < n; i++ {
			if m.Diag.Failed() {
				return nil
			}
			s := f.Obj.Sym(i)
			id, gerr := d.insertSymbol(f, i, s)
			if gerr != nil {
				return gerr
			}
			localToGlobal[i] = id
		}
		if err := f.BindRelocations(func(sym obj.SymID) ir.SymID {
			return localToGlobal[sym]
		}); err != nil {
			return err
		}
	}
	return nil
}

// insertSymbol resolves one raw obj.Sym against the NamePool (locals
// bypass the global pool per 4.B) and returns the ir.SymID a
// relocation referencing this symbol by its local index should use:
// ir.NoSym for a local (Target binds it by fragment, not by symbol).
func (d *Driver) insertSymbol(f *input.InputFile, idx obj.SymID, s obj.Sym) (ir.SymID, error) {
	m := d.mod
	occ := symbol.LDSymbol{SymbolIndex: int(idx)}
	if s.Section != nil {
		occ.SectionIndex = int(s.Section.ID)
	}

	if s.Local() {
		ri := m.Names.InsertLocal(s.Name, symTypeOf(s.Kind), s.Size, s.Value, f.ID)
		_ = ri
		occ.Info = ir.NoSym
		m.Names.NewLDSymbol(occ)
		return ir.NoSym, nil
	}

	params := symbol.InsertGlobalParams{
		Name:       s.Name,
		Type:       symTypeOf(s.Kind),
		Desc:       symDescOf(s.Kind),
		Binding:    symBindOf(s.Bind),
		Visibility: symVisOf(s.Vis),
		Size:       s.Size,
		Value:      s.Value,
		Origin:     f.ID,
	}
	ldID := m.Names.NewLDSymbol(occ)
	id, result, err := m.Names.InsertGlobal(params, ldID)
	if err != nil {
		if de, ok := err.(*diag.Diagnostic); ok {
			de = de.WithOrigin(f.Name, "", 0)
			m.Diag.Emit(de)
			return id, nil
		}
		return id, err
	}
	_ = result
	ld := m.Names.LDSymbol(ldID)
	ld.Info = id
	return id, nil
}

func symTypeOf(k obj.SymKind) symbol.Type {
	switch k {
	case obj.SymText:
		return symbol.Function
	case obj.SymData, obj.SymBSS, obj.SymROData:
		return symbol.Object
	case obj.SymSection:
		return symbol.Section
	default:
		return symbol.NoType
	}
}

func symDescOf(k obj.SymKind) symbol.Desc {
	if k == obj.SymUndef {
		return symbol.Undef
	}
	return symbol.Define
}

func symBindOf(raw uint8) symbol.Binding {
	switch elfSymBind(raw) {
	case 1: // STB_GLOBAL
		return symbol.Global
	case 2: // STB_WEAK
		return symbol.Weak
	default:
		return symbol.Global
	}
}

// elfSymBind narrows obj.Sym's raw elf.STB_* byte without importing
// debug/elf into a function this small; the three values it
// discriminates (LOCAL=0, GLOBAL=1, WEAK=2) are part of the stable ELF
// ABI.
func elfSymBind(raw uint8) uint8 { return raw }

func symVisOf(raw uint8) symbol.Visibility {
	switch raw {
	case 1: // STV_INTERNAL
		return symbol.Internal
	case 2: // STV_HIDDEN
		return symbol.Hidden
	case 3: // STV_PROTECTED
		return symbol.Protected
	default:
		return symbol.Default
	}
}

// initTargetSymbols implements 4.J's "initialize target symbols":
// linker-defined globals every backend conventionally provides, such
// as _GLOBAL_OFFSET_TABLE_ pointing at the base of .got.plt. Only
// symbols an input actually referenced are created, since InsertGlobal
// with no prior reference would otherwise manufacture a definition no
// one asked for.
func (d *Driver) initTargetSymbols() {
	m := d.mod
	define := func(name string, sec *fragment.Section, value uint64) {
		id, ok := m.Names.FindInfo(name)
		if !ok {
			return
		}
		ri := m.Names.Info(id)
		if !ri.IsUndef() {
			return
		}
		ri.SetDesc(symbol.Define)
		ri.SetBinding(symbol.Global)
		ri.Value = value
		ri.ResolvedOrigin = ir.NoInput
		_ = sec
	}
	define("_GLOBAL_OFFSET_TABLE_", m.GOT.GotPlt, 0)
}

// scanRelocations implements 4.J's "scan relocations" phase and "embar-
// rassingly-parallel" note from 5. CONCURRENCY & RESOURCE MODEL: every
// input file's relocations are scanned concurrently (one worker per
// file), since scan_relocation's side effects (GOT/PLT allocation,
// queued copy relocations) are all internally synchronized by the
// packages that own them.
func (d *Driver) scanRelocations() error {
	m := d.mod
	var wg sync.WaitGroup
	errs := make(chan error, len(m.Files))
	for _, f := range m.Files {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, sec := range f.Sections {
				if m.Diag.Failed() {
					return
				}
				for _, frag := range sec.Fragments {
					for _, r := range frag.Relocs {
						info := m.Names.Info(r.Symbol)
						if err := m.relocator.ScanRelocation(r, info, frag); err != nil {
							errs <- err
							return
						}
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// layout implements 4.J's "layout" phase by sequencing 4.D's steps in
// order: GC, rule matching, sort, dedup, offset assignment. Address
// assignment is left to the segment assigner (4.H), which performs it
// together with segment grouping.
func (d *Driver) layout() {
	m := d.mod
	if m.Config.GCSections {
		seeds := d.gcSeeds()
		m.Layout.GC(m.Files, seeds, nil)
	}
	m.Layout.MatchRules(m.Files)
	m.Layout.Sort()
	m.Layout.Dedup(m.Files)
	m.Layout.AssignOffsets()
}

// gcSeeds returns the entry symbol's fragment (if resolved) as GC's
// initial reached set; a -r partial link or a script with no
// recognizable entry point runs GC with no seeds at all, relying
// entirely on KEEP.
func (d *Driver) gcSeeds() []*fragment.Fragment {
	m := d.mod
	name := m.Config.Entry
	if name == "" {
		name = "_start"
	}
	id, ok := m.Names.FindInfo(name)
	if !ok {
		return nil
	}
	ri := m.Names.Info(id)
	ld := m.Names.LDSymbol(ri.OutSymbol)
	if ld.Ref.IsNull() || ld.Ref.IsDiscarded() {
		return nil
	}
	f := m.Layout.Fragment(ld.Ref.Frag)
	if f == nil {
		return nil
	}
	return []*fragment.Fragment{f}
}

// relax implements 4.J's "mayBeRelax loop": repeatedly scan every
// direct branch/call relocation against its (now laid-out) target, and
// insert a stub for any site the factory says is out of reach, until a
// pass inserts none. Layout only assigns offsets within a section; a
// stub changes section sizes, so addresses must be assigned before
// each reach check can mean anything and re-assigned after any stub is
// added.
func (d *Driver) relax() error {
	m := d.mod
	if m.Config.NoTrampolines {
		return nil
	}
	for {
		d.assignProvisionalAddresses()
		inserted := false
		for _, f := range m.Files {
			for _, sec := range f.Sections {
				for _, frag := range sec.Fragments {
					if frag.Ignore() {
						continue
					}
					for _, r := range frag.Relocs {
						if !isPCRelBranch(m.Config.Machine, r) || !r.IsBound() || r.Target.IsDiscarded() {
							continue
						}
						dest := m.Layout.Fragment(r.Target.Frag)
						if dest == nil || !dest.HasOffset() {
							continue
						}
						pc := reloc.FragAddr(frag) + r.Offset
						target := reloc.FragAddr(dest) + r.Target.Offset
						if m.Stubs.NeedsStub(pc, target) {
							island, isNew := m.Stubs.Island(r.Target)
							r.Target = island.Ref()
							if isNew {
								inserted = true
							}
						}
					}
				}
			}
		}
		if !inserted {
			return nil
		}
		m.Layout.AssignOffsets()
	}
}

// assignProvisionalAddresses gives every output section a byte address
// good enough for the relax loop's reach checks (sequential, page-
// aligned flow from Config.Base); the segment assigner later overwrites
// these with the final, loader-accurate ones once relaxation has
// stopped changing section sizes.
func (d *Driver) assignProvisionalAddresses() {
	m := d.mod
	m.Layout.AssignAddresses(m.Config.Base, m.Config.pageSize())
}

// finalizeSymbolValues implements 4.J's "finalize symbol values":
// every global whose OutSymbol names a live, bound location gets its
// ResolveInfo.Value set to that location's final absolute address, the
// value scan/apply and the symbol table both read from here on.
func (d *Driver) finalizeSymbolValues() {
	m := d.mod
	for _, ri := range m.Names.Globals() {
		if !ri.IsDefine() || ri.IsAbsolute() {
			continue
		}
		ld := m.Names.LDSymbol(ri.OutSymbol)
		if ld.Ref.IsNull() || ld.Ref.IsDiscarded() {
			continue
		}
		f := m.Layout.Fragment(ld.Ref.Frag)
		if f == nil || f.Ignore() || !f.HasOffset() {
			continue
		}
		ri.Value = reloc.FragAddr(f) + ld.Ref.Offset
	}
	m.Symtab = symtab.NewTable(m.Names.Globals())
}

// applyRelocations implements 4.J's final relocation pass: every bound
// relocation's formula is computed against the now-final symbol values
// and spliced into its Applies fragment's bytes. Like scanning, this is
// embarrassingly parallel across input files (5. CONCURRENCY & RESOURCE
// MODEL).
func (d *Driver) applyRelocations() error {
	m := d.mod
	var wg sync.WaitGroup
	errs := make(chan error, len(m.Files))
	for _, f := range m.Files {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, sec := range f.Sections {
				for _, frag := range sec.Fragments {
					if frag.Ignore() {
						continue
					}
					buf := make([]byte, frag.Size())
					frag.Emit(buf)
					for _, r := range frag.Relocs {
						if !r.IsBound() {
							continue
						}
						field, err := m.relocator.EncodedSize(r)
						if err != nil {
							errs <- err
							return
						}
						if field == 0 || int(r.Offset)+field > len(buf) {
							continue
						}
						ctx := d.relocContext(r, frag)
						res, err := m.relocator.ApplyRelocation(r, buf[r.Offset:int(r.Offset)+field], ctx.P, ctx)
						if err != nil {
							errs <- err
							return
						}
						if res != reloc.OK {
							m.Diag.Emit(diag.New(diag.Error, diag.KindRelocOutOfRange, r.Type, res).
								WithOrigin(f.Name, frag.Sec.Name, r.Offset))
							continue
						}
						d.traceReloc(r, frag, ctx)
					}
					patchFragment(frag, buf)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// traceReloc emits a --trace-reloc line for r if it targets a traced
// symbol, naming the output section its resolved value (ctx.S) falls
// in via the layout engine's address index, and — when ctx.S lands
// inside a different symbol than the one r.Symbol names directly
// (e.g. a reference resolved through a merge-string survivor, or an
// addend that walks off the end of its symbol) — the containing
// symbol from the module's finalized Symtab, the one piece of this
// message nothing else in the pipeline already has a direct lookup
// for, since a symbol's finalized Value is just an address, not a
// FragID.
func (d *Driver) traceReloc(r *fragment.Relocation, applies *fragment.Fragment, ctx reloc.Context) {
	m := d.mod
	if r.Symbol == ir.NoSym || !m.traceReloc[m.Names.Info(r.Symbol).Name] {
		return
	}
	name := m.Names.Info(r.Symbol).Name
	loc := ""
	if sec, ok := m.Layout.SectionAt(ctx.S); ok {
		loc = " in " + sec.Name
	}
	if m.Symtab != nil {
		if ri, ok := m.Symtab.Addr(ctx.S); ok && ri.Name != name {
			loc += fmt.Sprintf(" (%s+%#x)", ri.Name, ctx.S-ri.Value)
		}
	}
	if loc == "" {
		m.Diag.Tracef(diag.KindTraceReloc, "%s+%#x: relocation type %d against %s resolved to %#x",
			applies.Sec.Name, r.Offset, r.Type, name, ctx.S)
	} else {
		m.Diag.Tracef(diag.KindTraceReloc, "%s+%#x: relocation type %d against %s resolved to %#x%s",
			applies.Sec.Name, r.Offset, r.Type, name, ctx.S, loc)
	}
}

// relocContext gathers the S/A/P/GOT/PLT inputs apply_relocation's
// formula table needs (4.E): S from the target's finalized value (a
// global's ResolveInfo.Value, or a local fragment's own address when r
// has no Symbol), P from the relocation site's own finalized address.
func (d *Driver) relocContext(r *fragment.Relocation, applies *fragment.Fragment) reloc.Context {
	m := d.mod
	ctx := reloc.Context{A: r.Addend, P: reloc.FragAddr(applies) + r.Offset}
	if r.Symbol != ir.NoSym {
		if info := m.Names.Info(r.Symbol); info != nil {
			ctx.S = info.Value
		}
	} else if r.IsBound() && !r.Target.IsDiscarded() {
		if f := m.Layout.Fragment(r.Target.Frag); f != nil && f.HasOffset() {
			ctx.S = reloc.FragAddr(f) + r.Target.Offset
		}
	}
	if r.Symbol != ir.NoSym {
		if slot, ok := m.GOT.Lookup(r.Symbol, gotplt.Regular); ok && slot.HasOffset() {
			ctx.GOT = reloc.FragAddr(slot)
		}
		if entry, ok := m.PLT.Lookup(r.Symbol); ok && entry.HasOffset() {
			ctx.PLT = reloc.FragAddr(entry)
		}
	}
	return ctx
}

// patchFragment writes buf back into frag's payload. Only a
// RegionData payload (input code/data) is ever a relocation's
// Applies, so this is narrowly scoped to that one concrete type
// rather than extending fragment.Payload with a Patch method every
// other kind would have to implement as a no-op.
func patchFragment(frag *fragment.Fragment, buf []byte) {
	if r, ok := frag.Payload.(*fragment.RegionData); ok {
		r.Bytes = buf
	}
}

// assignSegments implements 4.J's "create segments" phase: once layout
// and relaxation have stopped moving anything, 4.H's Assigner builds
// the final program header list and (as a side effect) each output
// section's definitive Offset/Addr.
func (d *Driver) assignSegments() []*segment.Segment {
	m := d.mod
	headerSize := (&writer.Image{Segments: provisionalSegmentCount(m)}).HeaderSize()
	cfg := segment.Config{
		PageSize:   m.Config.pageSize(),
		Base:       m.Config.Base,
		HeaderSize: headerSize,
		Stack:      stackFlagOf(m.Config.ExecStack),
	}
	assigner := segment.NewAssigner(cfg)
	return assigner.Assign(m.Layout.Outputs)
}

// provisionalSegmentCount estimates the phdr count Assign will produce
// (PT_PHDR, one PT_LOAD per run of consecutive alloc sections sharing
// the same write/exec flags, PT_GNU_STACK) so HeaderSize can be computed before Assign
// itself runs — Assign needs HeaderSize to place the first LOAD
// segment, so this has to be a prediction, not a readback.
func provisionalSegmentCount(m *Module) []*segment.Segment {
	var flags uint8
	first := true
	segs := []*segment.Segment{{}} // PT_PHDR
	for _, sec := range m.Layout.Outputs {
		if !sec.Flags.Alloc() || sec.Discard {
			continue
		}
		f := flagBits(sec)
		if first || f != flags {
			segs = append(segs, &segment.Segment{})
			flags = f
			first = false
		}
	}
	segs = append(segs, &segment.Segment{}) // PT_GNU_STACK
	return segs
}

func flagBits(sec *fragment.Section) uint8 {
	var f uint8
	if sec.Flags.Write() {
		f |= 1
	}
	if sec.Flags.Exec() {
		f |= 2
	}
	return f
}

func stackFlagOf(exec bool) segment.StackFlag {
	if exec {
		return segment.StackExec
	}
	return segment.StackNoExec
}

// buildImage implements 4.J's "emit" phase: translate the layout
// engine's finalized Outputs plus the segments the assigner built into
// the writer's Image shape, including the .symtab/.strtab/.dynsym/
// .dynstr/.rela.dyn/.rela.plt content the symtabBuilder/dynrelBuilder
// helpers accumulate.
func (d *Driver) buildImage(segs []*segment.Segment) (*writer.Image, error) {
	m := d.mod
	img := &writer.Image{
		Class:    elfClass(m.Config.Machine),
		Data:     elfData(m.Config.Machine),
		Machine:  m.Target.elfMach,
		Type:     elfType(m.Config.Output, m.Config.PIE),
		Segments: segs,
	}

	symtab := newSymtabBuilder()
	for _, ri := range m.Names.Locals() {
		symtab.addLocal(ri, shndxOf(m, ri))
	}
	for _, ri := range m.Names.Globals() {
		symtab.addGlobal(ri, shndxOf(m, ri))
	}
	if e := m.Config.Entry; e != "" {
		if id, ok := m.Names.FindInfo(e); ok {
			img.Entry = m.Names.Info(id).Value
		}
	}

	for _, sec := range m.Layout.Outputs {
		if sec.Discard {
			continue
		}
		img.Sections = append(img.Sections, &writer.OutputSection{
			Section: sec,
			Kind:    writer.KindRegular,
			ShType:  sec.Type,
			ShFlags: shFlagsOf(sec),
			EntSize: sec.EntSize,
		})
	}

	strtabSec := regionSection(secStrtab, uint32(elf.SHT_STRTAB), symtab.strtab.Bytes())
	img.Sections = append(img.Sections, strtabSec)
	strtabIdx := uint32(len(img.Sections))

	symtabSec := regionSection(secSymtab, uint32(elf.SHT_SYMTAB), writer.EncodeSymbols(symtab.syms, 8, binary.LittleEndian))
	symtabSec.EntSize = uint64(elf.Sym64Size)
	symtabSec.Link = strtabIdx
	symtabSec.Info = uint32(symtab.localCount + 1)
	img.Sections = append(img.Sections, symtabSec)

	dynsym, dynSymIdx := d.buildDynSym()
	if dynsym != nil {
		dynstrSec := regionSection(".dynstr", uint32(elf.SHT_STRTAB), dynsym.strtab.Bytes())
		img.Sections = append(img.Sections, dynstrSec)
		dynstrIdx := uint32(len(img.Sections))

		dynsymSec := regionSection(".dynsym", uint32(elf.SHT_DYNSYM), writer.EncodeSymbols(dynsym.syms, 8, binary.LittleEndian))
		dynsymSec.EntSize = uint64(elf.Sym64Size)
		dynsymSec.Link = dynstrIdx
		dynsymSec.Info = uint32(dynsym.localCount + 1)
		img.Sections = append(img.Sections, dynsymSec)
		dynsymIdx := uint32(len(img.Sections))

		dynrel := d.buildDynRelocs(dynSymIdx)
		if len(dynrel.dyn) > 0 {
			img.Sections = append(img.Sections, &writer.OutputSection{
				Section: &fragment.Section{Name: secRelaDyn},
				Kind:    writer.KindRelocation,
				ShType:  uint32(elf.SHT_RELA),
				EntSize: 24,
				Link:    dynsymIdx,
				Rela:    true,
				Relocs:  dynrel.dyn,
			})
		}
		if len(dynrel.plt) > 0 {
			img.Sections = append(img.Sections, &writer.OutputSection{
				Section: &fragment.Section{Name: secRelaPLT},
				Kind:    writer.KindRelocation,
				ShType:  uint32(elf.SHT_RELA),
				EntSize: 24,
				Link:    dynsymIdx,
				Rela:    true,
				Relocs:  dynrel.plt,
			})
		}
	}

	return img, nil
}

// buildDynSym collects every global scan_relocation marked IsDyn
// (4.E) into a .dynsym symbol table distinct from .symtab's full
// local+global one, returning the index each symbol's ResolveInfo.
// Info (its ir.SymID) lands at within that table so
// buildDynRelocs can fill in a dynamic relocation's r_sym field. It
// returns (nil, nil) when no symbol needs one, the common case for a
// link with no imported or exported dynamic symbols.
func (d *Driver) buildDynSym() (*symtabBuilder, map[ir.SymID]uint32) {
	m := d.mod
	b := newSymtabBuilder()
	idx := make(map[ir.SymID]uint32)
	for i, ri := range m.Names.Globals() {
		if !ri.IsDyn() {
			continue
		}
		b.addGlobal(ri, shndxOf(m, ri))
		idx[ir.SymID(i)] = uint32(len(b.syms)) // entry 0 is EncodeSymbols' implicit null
	}
	if len(idx) == 0 {
		return nil, nil
	}
	return b, idx
}

// buildDynRelocs walks every bound relocation's Dynamic classification
// (set by scan_relocation) into the .rela.dyn/.rela.plt entries 4.J's
// emit phase needs, translating each DynKind into its target's
// concrete relocation-type number via target.dynRelocType. A
// relocation whose DynKind that table doesn't map (this core's
// TLS-offset classes, resolved entirely statically) is left out.
func (d *Driver) buildDynRelocs(dynSymIdx map[ir.SymID]uint32) *dynrelBuilder {
	m := d.mod
	b := &dynrelBuilder{}
	for _, f := range m.Files {
		for _, sec := range f.Sections {
			for _, frag := range sec.Fragments {
				if frag.Ignore() {
					continue
				}
				for _, r := range frag.Relocs {
					if r.Dynamic == fragment.DynNone {
						continue
					}
					typ, ok := m.Target.dynRelocType(r.Dynamic)
					if !ok {
						continue
					}
					var sym uint32
					if r.Dynamic == fragment.DynGlobDat || r.Dynamic == fragment.DynCopy {
						sym = dynSymIdx[r.Symbol]
					}
					b.addDyn(reloc.FragAddr(frag)+r.Offset, sym, typ, r.Addend)
				}
			}
		}
	}
	return b
}

// regionSection wraps content in a single RegionData fragment inside a
// fresh, non-alloc Section, the shape writer.OutputSection's Regular
// Kind needs for synthetic content (.symtab, .strtab, .dynsym,
// .dynstr) that has no fragment of its own anywhere in the link.
func regionSection(name string, shType uint32, content []byte) *writer.OutputSection {
	sec := &fragment.Section{Name: name}
	frag := fragment.NewRegion(content)
	sec.AddFragment(frag)
	frag.SetOffset(0)
	return &writer.OutputSection{Section: sec, Kind: writer.KindRegular, ShType: shType}
}

func shndxOf(m *Module, ri *symbol.ResolveInfo) uint16 {
	if ri.IsUndef() {
		return 0
	}
	ld := m.Names.LDSymbol(ri.OutSymbol)
	if ld.Ref.IsNull() || ld.Ref.IsDiscarded() {
		return 0
	}
	f := m.Layout.Fragment(ld.Ref.Frag)
	if f == nil || f.Sec == nil {
		return 0
	}
	for i, sec := range m.Layout.Outputs {
		if sec == f.Sec {
			return uint16(i + 1)
		}
	}
	return 0
}

func shFlagsOf(sec *fragment.Section) uint64 {
	var f uint64
	if sec.Flags.Alloc() {
		f |= 0x2 // SHF_ALLOC
	}
	if sec.Flags.Write() {
		f |= 0x1 // SHF_WRITE
	}
	if sec.Flags.Exec() {
		f |= 0x4 // SHF_EXECINSTR
	}
	return f
}

func elfClass(m Machine) elf.Class { return elf.ELFCLASS64 } // both supported machines are 64-bit.

func elfData(m Machine) elf.Data { return elf.ELFDATA2LSB } // both supported machines are little-endian.

func elfType(kind OutputKind, pie bool) elf.Type {
	switch kind {
	case OutputObject:
		return elf.ET_REL
	case OutputDynObj:
		return elf.ET_DYN
	case OutputExec:
		if pie {
			return elf.ET_DYN
		}
		return elf.ET_EXEC
	}
	return elf.ET_EXEC
}
