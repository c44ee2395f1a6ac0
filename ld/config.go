// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ld implements the Driver (4.J): it sequences the other
// packages' phases into one link — enumerate inputs, resolve symbols,
// scan relocations, lay out sections, run the stub-insertion relax
// loop, assign segments, and emit the final image — and exposes the
// handful of well-defined plugin callback points 4.J names. Parsing a
// command line or a linker-script's text into a Config/script.Script
// is out of this core's scope (1. PURPOSE & SCOPE); Config is the
// already-parsed surface the core consumes.
package ld

import (
	"github.com/aclements/go-ld/script"
)

// OutputKind selects the ELF type the driver produces (6. EXTERNAL
// INTERFACES: "code-gen type (exec|dynobj|object|binary)").
type OutputKind uint8

const (
	OutputExec   OutputKind = iota // ET_EXEC or ET_DYN (PIE), a final executable
	OutputDynObj                   // ET_DYN, a shared object
	OutputObject                   // ET_REL, a partial link (-r)
	OutputBinary                   // raw binary, no ELF container
)

// Target2 selects how the arm64 backend resolves R_AARCH64_TARGET2,
// mirroring --target2=rel|abs|got-rel.
type Target2 uint8

const (
	Target2Rel Target2 = iota
	Target2Abs
	Target2GotRel
)

// Config bundles every driver flag 6. EXTERNAL INTERFACES lists. The
// caller (a CLI, a build system integration, a test) builds one of
// these directly; ld never parses flags itself.
type Config struct {
	Machine Machine
	Output  OutputKind

	// PIE additionally requests a position-independent executable when
	// Output is OutputExec; it's meaningless for the other OutputKinds.
	PIE bool

	// Entry names the entry symbol (e.g. "_start"), or "". With "",
	// GC seeds from "_start" and the output's entry address is left 0;
	// the linker script is not consulted for an entry symbol.
	Entry string

	OutputPath  string
	SearchPaths []string

	Script *script.Script

	// TraceSymbol/TraceReloc name the identifiers --trace-symbol and
	// --trace-reloc report on; wired to symbol.NamePool.Trace (via
	// Module.Names) and to the driver's traceReloc respectively.
	TraceSymbol []string
	TraceReloc  []string

	// -z flags.
	Now         bool // -z now: no lazy PLT binding (BIND_NOW)
	NoCopyReloc bool // -z nocopyreloc
	NoText      bool // -z notext: allow text relocations in PIC output
	ExecStack   bool // -z execstack

	GCSections   bool
	WholeArchive bool
	BuildID      bool
	EmitRelocs   bool

	// TText/TData are explicit -Ttext/-Tdata load addresses, or nil to
	// let AssignAddresses flow sequentially from Base.
	TText *uint64
	TData *uint64

	Target2 Target2

	FixCortexA53843419 bool
	NoTrampolines      bool

	Base     uint64
	PageSize uint64

	// WarnOnce mirrors --warn-once, deduplicating repeated warnings in
	// diag.Engine.
	WarnOnce bool
}

func (c *Config) pageSize() uint64 {
	if c.PageSize != 0 {
		return c.PageSize
	}
	return 4096
}
