// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

// RegionData is a plain byte-for-byte copy of an input SHT_PROGBITS
// region: code, initialized data, debug info, anything with real file
// content (4.C).
type RegionData struct {
	Bytes []byte
}

func NewRegion(b []byte) *Fragment {
	return &Fragment{Align: 1, Payload: &RegionData{Bytes: b}}
}

func (*RegionData) Kind() Kind      { return KindRegion }
func (r *RegionData) Size() uint64  { return uint64(len(r.Bytes)) }
func (r *RegionData) Emit(dst []byte) { copy(dst, r.Bytes) }

// FillData represents a run of bytes with no input content: either a
// zero-initialized SHT_NOBITS region (.bss) or an explicit padding
// fill inserted by the layout engine between fragments. ZeroInit
// fragments occupy virtual address space but contribute no file bytes
// (4.H: "NOBITS sections occupy virtual space but zero file bytes").
type FillData struct {
	FillSize uint64
	Value    byte
	ZeroInit bool
}

func NewFill(size uint64, value byte, zeroInit bool) *Fragment {
	return &Fragment{Align: 1, Payload: &FillData{FillSize: size, Value: value, ZeroInit: zeroInit}}
}

func (*FillData) Kind() Kind     { return KindFill }
func (f *FillData) Size() uint64 { return f.FillSize }

func (f *FillData) Emit(dst []byte) {
	if f.ZeroInit {
		// Callers must not ask a NOBITS fragment for file bytes; the
		// writer skips these entirely, but zero the region anyway in
		// case a non-writer caller materializes it for inspection.
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	for i := range dst {
		dst[i] = f.Value
	}
}

// NullData is a zero-size placeholder: a merge-string duplicate, a
// garbage-collected fragment kept only so other structures can still
// reference its ID, or a discarded section rewritten to contribute
// nothing to its output.
type NullData struct{}

func NewNull() *Fragment { return &Fragment{Align: 1, Payload: NullData{}} }

func (NullData) Kind() Kind       { return KindNull }
func (NullData) Size() uint64     { return 0 }
func (NullData) Emit(dst []byte) {}
