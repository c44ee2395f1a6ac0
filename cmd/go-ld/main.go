// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command go-ld is a thin CLI wrapper around the ld.Driver pipeline:
// it classifies each positional argument as an input file, wires up a
// Config from a handful of flags, and runs one link.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aclements/go-ld/diag"
	"github.com/aclements/go-ld/input"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/ld"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "go-ld: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		flagOutput   = flag.String("o", "a.out", "output `path`")
		flagEntry    = flag.String("e", "", "entry symbol `name`")
		flagArch     = flag.String("m", "amd64", "target architecture: amd64 or arm64")
		flagPIE      = flag.Bool("pie", false, "build a position-independent executable")
		flagShared   = flag.Bool("shared", false, "build a shared object")
		flagGC       = flag.Bool("gc-sections", false, "garbage-collect unreferenced sections")
		flagNow      = flag.Bool("z-now", false, "bind all dynamic symbols at load time (-z now)")
		flagNoCopy   = flag.Bool("z-nocopyreloc", false, "never emit copy relocations (-z nocopyreloc)")
		flagVerbose  = flag.Bool("v", false, "log debug diagnostics")
		flagBase     = flag.Uint64("base", 0x400000, "base load address")
		flagPageSize = flag.Uint64("page-size", 4096, "target page size")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] input...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	machine, err := parseMachine(*flagArch)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if *flagVerbose {
		level = slog.LevelDebug
	}
	log := diag.NewFanoutLogger(os.Stderr, level, nil)
	diagEngine := diag.NewEngine(log, false)

	output := ld.OutputExec
	if *flagShared {
		output = ld.OutputDynObj
	}

	cfg := &ld.Config{
		Machine:     machine,
		Output:      output,
		PIE:         *flagPIE,
		Entry:       *flagEntry,
		OutputPath:  *flagOutput,
		Now:         *flagNow,
		NoCopyReloc: *flagNoCopy,
		GCSections:  *flagGC,
		Base:        *flagBase,
		PageSize:    *flagPageSize,
	}

	driver, err := ld.NewDriver(cfg, diagEngine)
	if err != nil {
		return fmt.Errorf("initializing driver: %w", err)
	}

	for i, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		f, err := input.Read(ir.InputID(i), path, data, false)
		if err != nil {
			return fmt.Errorf("classifying %s: %w", path, err)
		}
		driver.AddInput(f)
	}

	if err := driver.Run(); err != nil {
		return fmt.Errorf("linking: %w", err)
	}
	return nil
}

func parseMachine(name string) (ld.Machine, error) {
	switch name {
	case "amd64":
		return ld.MachineAMD64, nil
	case "arm64":
		return ld.MachineARM64, nil
	}
	return 0, fmt.Errorf("unsupported -m %q (want amd64 or arm64)", name)
}
