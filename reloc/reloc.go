// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reloc implements the per-target Relocator (4.E): scanning a
// relocation to classify it and reserve whatever GOT/PLT/dynamic-reloc
// resources it needs, and applying a relocation's formula to splice a
// computed value into a fragment's bytes.
package reloc

import (
	"fmt"
	"sync"

	"github.com/aclements/go-ld/fragment"
	"github.com/aclements/go-ld/gotplt"
	"github.com/aclements/go-ld/ir"
	"github.com/aclements/go-ld/symbol"
)

// Result is the outcome of applying a relocation (4.E).
type Result uint8

const (
	OK Result = iota
	Overflow
	BadReloc
	Unsupported
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Overflow:
		return "overflow"
	case BadReloc:
		return "bad-reloc"
	case Unsupported:
		return "unsupported"
	}
	return "unknown"
}

// Class buckets a relocation type by what kind of reference it makes
// (4.E: "classify by type into buckets").
type Class uint8

const (
	ClassAbsolute Class = iota
	ClassPCRelBranch
	ClassGOT
	ClassPLT
	ClassTLSGD
	ClassTLSLD
	ClassTLSIE
	ClassTLSLE
	ClassTLSDesc
	ClassCopy
	ClassUnsupported
)

// Context carries the inputs apply_relocation's formula table needs:
// S (symbol value), A (addend), P (place), and the resolved addresses
// of whatever GOT/PLT/TLS resources scan_relocation reserved (4.E).
type Context struct {
	S       uint64
	A       int64
	P       uint64
	GOT     uint64
	PLT     uint64
	TLSBase uint64 // target-specific static-TLS base for LE/IE formulas
}

// FragAddr returns a bound Fragment's absolute address: its output
// Section's address plus its assigned offset. It panics if the
// Fragment hasn't been placed by the layout engine yet, the same
// invariant Fragment.Offset documents.
func FragAddr(f *fragment.Fragment) uint64 {
	return f.Sec.Addr + f.Offset()
}

// typeEntry is one row of a target's relocation-type table: the tag
// dispatch pattern fragment.Payload and obj.RelocType both use,
// applied here to a per-type formula instead of a per-kind behavior
// set.
type typeEntry struct {
	name   string
	class  Class
	size   int // encoded field size, in bytes
	signed bool
	align  uint64
	shift  uint
	// compute returns the full-width value this type encodes, before
	// shifting/range-checking into its field.
	compute func(ctx Context) int64
}

// Relocator is the per-target component 4.E describes. One
// implementation exists per Machine (amd64, arm64).
type Relocator interface {
	// ScanRelocation classifies r and reserves whatever GOT/PLT/
	// dynamic-relocation resources its class requires. It's safe to
	// call more than once for the same r (scan_relocation is
	// idempotent per 4.E), since the underlying gotplt allocators are.
	ScanRelocation(r *fragment.Relocation, info *symbol.ResolveInfo, applies *fragment.Fragment) error

	// ApplyRelocation computes r's formula and splices the result into
	// dst, which must be r's encoded field's worth of bytes starting
	// at the relocation site.
	ApplyRelocation(r *fragment.Relocation, dst []byte, place uint64, ctx Context) (Result, error)

	// EncodedSize reports how many bytes of the relocation site
	// ApplyRelocation's dst must cover for r.Type: the slice width a
	// caller needs to carve out of the fragment's bytes before
	// calling ApplyRelocation. It returns 0 for a relocation with no
	// encoded field of its own (e.g. TLSDESC_CALL, COPY), in which
	// case ApplyRelocation need not be called at all.
	EncodedSize(r *fragment.Relocation) (int, error)
}

// Target bundles the GOT/PLT allocators and target parameters every
// Relocator implementation needs; each backend embeds one.
type Target struct {
	WordSize int
	GOT      *gotplt.GOT
	PLT      *gotplt.PLT

	// PIE reports whether the link is producing a position-independent
	// executable or shared object: 4.E's RELATIVE-vs-GLOB_DAT tie-break
	// ("non-preemptible AND either hidden or we are not producing a
	// normal executable") needs this.
	PIE bool

	// NoCopyReloc mirrors -z nocopyreloc (4.E: copy-relocs are skipped
	// when set).
	NoCopyReloc bool

	// copyRelocs accumulates symbols needing a .bss/.bss.rel.ro copy
	// relocation (4.E), keyed by symbol so repeated scans don't queue
	// the same symbol twice.
	copyRelocsMu sync.Mutex
	copyRelocs   map[ir.SymID]bool
}

// queueCopyReloc is called from ScanRelocation, which scanRelocations
// (5. CONCURRENCY & RESOURCE MODEL) runs one goroutine per input file.
func (t *Target) queueCopyReloc(sym ir.SymID) bool {
	t.copyRelocsMu.Lock()
	defer t.copyRelocsMu.Unlock()
	if t.copyRelocs == nil {
		t.copyRelocs = make(map[ir.SymID]bool)
	}
	if t.copyRelocs[sym] {
		return false
	}
	t.copyRelocs[sym] = true
	return true
}

// CopyRelocSyms returns every symbol queued for a copy relocation.
func (t *Target) CopyRelocSyms() []ir.SymID {
	t.copyRelocsMu.Lock()
	defer t.copyRelocsMu.Unlock()
	syms := make([]ir.SymID, 0, len(t.copyRelocs))
	for s := range t.copyRelocs {
		syms = append(syms, s)
	}
	return syms
}

// relative reports whether, per 4.E's tie-break, a relocation against
// info should be resolved with a RELATIVE dynamic relocation rather
// than a GLOB_DAT/word-deposit one: "non-preemptible AND either hidden
// or we are not producing a normal executable".
func (t *Target) relative(info *symbol.ResolveInfo) bool {
	if info.Preemptible() {
		return false
	}
	return info.Visibility() >= symbol.Hidden || t.PIE
}

// encodeField splices val into dst (exactly e.size bytes, little
// endian) after range-checking it against e's signedness and bit
// width, and verifying e.align divides val. This is the "shared
// verifier [that] checks range and alignment uniformly" 4.E names.
func (e *typeEntry) encodeField(dst []byte, val int64) Result {
	if len(dst) != e.size {
		return BadReloc
	}
	if e.align > 1 && uint64(val)&(e.align-1) != 0 {
		return Overflow
	}
	shifted := val >> e.shift
	bits := uint(e.size) * 8
	if e.signed {
		lo, hi := -(int64(1) << (bits - 1)), (int64(1)<<(bits-1))-1
		if shifted < lo || shifted > hi {
			return Overflow
		}
	} else {
		if shifted < 0 || uint64(shifted) > (uint64(1)<<bits)-1 {
			return Overflow
		}
	}
	u := uint64(shifted)
	for i := 0; i < e.size; i++ {
		dst[i] = byte(u)
		u >>= 8
	}
	return OK
}

func unsupportedType(name string, typ uint32) error {
	return fmt.Errorf("reloc: %s: unsupported relocation type %d", name, typ)
}
