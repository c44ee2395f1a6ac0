// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ld

import (
	"debug/elf"

	"github.com/aclements/go-ld/diag"
	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/input"
	"github.com/aclements/go-ld/layout"
	"github.com/aclements/go-ld/reloc"
	"github.com/aclements/go-ld/stub"
	"github.com/aclements/go-ld/symbol"
	"github.com/aclements/go-ld/symtab"
)

// synthetic output section names the driver creates itself, outside
// whatever Config.Script names (4.J: the driver "initializes target
// symbols" and owns the GOT/PLT/stub/dynamic-reloc sections no script
// rule could route input sections into, since nothing in any input
// file ever carries these names).
const (
	secGOT     = ".got"
	secGOTPLT  = ".got.plt"
	secPLT     = ".plt"
	secStub    = ".text.stub"
	secRelaDyn = ".rela.dyn"
	secRelaPLT = ".rela.plt"
	secSymtab  = ".symtab"
	secStrtab  = ".strtab"
)

// Module is the live state of one link: every package this core
// exposes has its own piece of it, bundled here the way 4.J's Driver
// owns "the pipeline" rather than any single phase's data. A Module is
// built once per link by NewModule and is not reused across links.
type Module struct {
	Config *Config
	Diag   *diag.Engine
	Names  *symbol.NamePool
	Layout *layout.Engine
	Target *target

	Files []*input.InputFile

	GOT   *gotplt.GOT
	PLT   *gotplt.PLT
	Stubs *stub.Allocator

	// Symtab indexes finalized global symbol values for address-to-
	// symbol lookup (diagnostics only); nil until
	// Driver.finalizeSymbolValues has run.
	Symtab *symtab.Table

	relocator reloc.Relocator

	// traceReloc is the --trace-reloc name set, checked once per bound
	// relocation in applyRelocations rather than re-scanning
	// Config.TraceReloc's slice every time.
	traceReloc map[string]bool
}

// NewModule wires together one link's worth of state: the NamePool,
// layout Engine, GOT/PLT allocators, and the Machine-specific target
// (4.E's Relocator, 4.G's stub Factory), following the GOT-before-
// Relocator dependency order reloc.NewAMD64/NewARM64 require (the
// allocators must exist before the Relocator that references them).
func NewModule(cfg *Config, diagEngine *diag.Engine) (*Module, error) {
	m := &Module{
		Config: cfg,
		Diag:   diagEngine,
		Names:  symbol.NewNamePool(diagEngine),
		Layout: layout.NewEngine(cfg.Script),
	}

	got := m.Layout.AddOutput(secGOT)
	got.Flags.Set(fragment.FlagAlloc, true)
	got.Flags.Set(fragment.FlagWrite, true)
	got.Type = uint32(elf.SHT_PROGBITS)
	gotPlt := m.Layout.AddOutput(secGOTPLT)
	gotPlt.Flags.Set(fragment.FlagAlloc, true)
	gotPlt.Flags.Set(fragment.FlagWrite, true)
	gotPlt.Type = uint32(elf.SHT_PROGBITS)
	plt := m.Layout.AddOutput(secPLT)
	plt.Flags.Set(fragment.FlagAlloc, true)
	plt.Flags.Set(fragment.FlagExec, true)
	plt.Type = uint32(elf.SHT_PROGBITS)
	stubSec := m.Layout.AddOutput(secStub)
	stubSec.Flags.Set(fragment.FlagAlloc, true)
	stubSec.Flags.Set(fragment.FlagExec, true)
	stubSec.Type = uint32(elf.SHT_PROGBITS)

	plt0Template, pltNTemplate := pltTemplates(cfg.Machine)
	m.GOT = gotplt.NewGOT(8, got, gotPlt)
	m.PLT = gotplt.NewPLT(plt, plt0Template, pltNTemplate)

	t, err := newTarget(cfg.Machine, m.GOT, m.PLT, cfg.PIE || cfg.Output == OutputDynObj)
	if err != nil {
		return nil, err
	}
	m.Target = t
	m.relocator = t.relocator
	m.Stubs = stub.NewAllocator(t.stub, stubSec)

	for _, name := range cfg.TraceSymbol {
		m.Names.Trace(name)
	}
	if len(cfg.TraceReloc) > 0 {
		m.traceReloc = make(map[string]bool, len(cfg.TraceReloc))
		for _, name := range cfg.TraceReloc {
			m.traceReloc[name] = true
		}
	}
	return m, nil
}

