// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

import (
	"encoding/binary"
	"fmt"

	"github.com/aclements/go-ld/ir"
)

// CIEData is a Common Information Entry record from a .eh_frame
// section, kept verbatim: the layout engine never rewrites CIE
// content, only the FDEs that refer to it (4.C).
type CIEData struct {
	Bytes []byte
}

func (*CIEData) Kind() Kind       { return KindCIE }
func (c *CIEData) Size() uint64   { return uint64(len(c.Bytes)) }
func (c *CIEData) Emit(dst []byte) { copy(dst, c.Bytes) }

// FDEData is a Frame Description Entry. CIEOffset is the byte offset
// of the owning CIE within the raw .eh_frame section this FDE was
// parsed from; the section reader resolves it to a *Fragment (CIE
// field) once every record in the section has been indexed, the same
// two-pass approach used for ordinary relocation targets (4.C:
// "Relocation sections keep a raw vector and do not yet connect
// targets; after all sections are indexed, each relocation's target
// ... is bound").
type FDEData struct {
	Bytes     []byte
	CIEOffset uint32
	CIE       *Fragment

	// Target is the FDE's PC-begin relocation target, once the
	// relocation reader has bound it. Live is computed from it: an
	// FDE is live iff Target resolves into a section that is not
	// discarded/ignored and the target symbol is not should-ignore
	// (4.C).
	Target ir.FragRef

	live      bool
	liveKnown bool
}

func (*FDEData) Kind() Kind { return KindFDE }

func (f *FDEData) Size() uint64 {
	if f.liveKnown && !f.live {
		return 0
	}
	return uint64(len(f.Bytes))
}

func (f *FDEData) Emit(dst []byte) {
	if f.liveKnown && !f.live {
		return
	}
	copy(dst, f.Bytes)
}

// SetLive records the outcome of the liveness predicate described on
// Target; it is idempotent so multiple GC passes converge.
func (f *FDEData) SetLive(v bool) {
	f.live = v
	f.liveKnown = true
}

func (f *FDEData) Live() bool { return f.liveKnown && f.live }

// ParseEhFrame splits the raw bytes of one .eh_frame section into CIE
// and FDE fragments using the length-prefixed CFI record framing
// (4.C): a 4-byte length (0xFFFFFFFF marks an unsupported 64-bit
// extended-length record), followed by a 4-byte id that is 0 for a
// CIE or a nonzero "cie_pointer" for an FDE, where the owning CIE's
// absolute offset is offset_of_this - cie_pointer. A zero-length
// record terminates the section.
func ParseEhFrame(order binary.ByteOrder, data []byte) ([]*Fragment, error) {
	var out []*Fragment
	off := 0
	for off < len(data) {
		if len(data)-off < 4 {
			return nil, fmt.Errorf("eh_frame: truncated length field at offset %d", off)
		}
		length := order.Uint32(data[off:])
		if length == 0 {
			break
		}
		if length == 0xFFFFFFFF {
			return nil, fmt.Errorf("eh_frame: 64-bit extended-length record unsupported at offset %d", off)
		}
		recEnd := off + 4 + int(length)
		if recEnd > len(data) || len(data)-off < 8 {
			return nil, fmt.Errorf("eh_frame: record at offset %d overruns section", off)
		}
		id := order.Uint32(data[off+4:])
		rec := data[off:recEnd]
		if id == 0 {
			out = append(out, &Fragment{Align: 1, Payload: &CIEData{Bytes: rec}})
		} else {
			cieOffset := uint32(off+4) - id
			out = append(out, &Fragment{Align: 1, Payload: &FDEData{Bytes: rec, CIEOffset: cieOffset}})
		}
		off = recEnd
	}
	return out, nil
}

// LinkEhFrameCIEs resolves every FDEData.CIEOffset in frags to the
// CIE fragment that starts at that offset within the same section,
// the second pass ParseEhFrame defers. byOffset maps a record's
// starting byte offset (within the original section bytes) to the
// Fragment ParseEhFrame produced for it.
func LinkEhFrameCIEs(frags []*Fragment, byOffset map[uint32]*Fragment) error {
	for _, f := range frags {
		fde, ok := f.Payload.(*FDEData)
		if !ok {
			continue
		}
		cie, ok := byOffset[fde.CIEOffset]
		if !ok {
			return fmt.Errorf("eh_frame: FDE refers to missing CIE at offset %d", fde.CIEOffset)
		}
		fde.CIE = cie
	}
	return nil
}
