// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

import (
	"encoding/binary"
	"testing"
)

// buildEhFrame assembles a minimal two-record .eh_frame section: one
// CIE, one FDE pointing back at it, and a terminating zero-length
// record.
func buildEhFrame() []byte {
	order := binary.LittleEndian
	buf := make([]byte, 28)

	// CIE at offset 0: length=8 (covers id + 4 bytes payload).
	order.PutUint32(buf[0:], 8)
	order.PutUint32(buf[4:], 0) // id == 0 marks a CIE
	order.PutUint32(buf[8:], 0xCAFEBABE)

	// FDE at offset 12: length=8 (covers cie_pointer + 4 bytes payload).
	// cie_pointer = offset_of_its_own_id_field - cie_offset = 16 - 0.
	order.PutUint32(buf[12:], 8)
	order.PutUint32(buf[16:], 16)
	order.PutUint32(buf[20:], 0xDEADBEEF)

	// Terminator.
	order.PutUint32(buf[24:], 0)

	return buf
}

func TestParseEhFrame(t *testing.T) {
	data := buildEhFrame()
	frags, err := ParseEhFrame(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("want 2 records (CIE + FDE), got %d", len(frags))
	}
	cie, ok := frags[0].Payload.(*CIEData)
	if !ok {
		t.Fatalf("want first record to be a CIE, got %T", frags[0].Payload)
	}
	if len(cie.Bytes) != 12 {
		t.Fatalf("want CIE record length 12, got %d", len(cie.Bytes))
	}
	fde, ok := frags[1].Payload.(*FDEData)
	if !ok {
		t.Fatalf("want second record to be an FDE, got %T", frags[1].Payload)
	}
	if fde.CIEOffset != 0 {
		t.Fatalf("want FDE's cie_pointer to resolve to offset 0, got %d", fde.CIEOffset)
	}
}

func TestLinkEhFrameCIEs(t *testing.T) {
	data := buildEhFrame()
	frags, err := ParseEhFrame(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byOffset := map[uint32]*Fragment{0: frags[0]}
	if err := LinkEhFrameCIEs(frags, byOffset); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fde := frags[1].Payload.(*FDEData)
	if fde.CIE != frags[0] {
		t.Fatalf("want FDE's CIE linked to frags[0]")
	}
}

func TestLinkEhFrameCIEsMissingCIE(t *testing.T) {
	data := buildEhFrame()
	frags, err := ParseEhFrame(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := LinkEhFrameCIEs(frags, map[uint32]*Fragment{}); err == nil {
		t.Fatalf("want an error when the referenced CIE is missing")
	}
}

func TestParseEhFrameRejects64BitLength(t *testing.T) {
	order := binary.LittleEndian
	buf := make([]byte, 4)
	order.PutUint32(buf, 0xFFFFFFFF)
	if _, err := ParseEhFrame(order, buf); err == nil {
		t.Fatalf("want error for unsupported 64-bit extended length")
	}
}

func TestFDELivenessGatesSize(t *testing.T) {
	data := buildEhFrame()
	frags, err := ParseEhFrame(binary.LittleEndian, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fde := frags[1].Payload.(*FDEData)
	if fde.Size() == 0 {
		t.Fatalf("want nonzero size before liveness is determined")
	}
	fde.SetLive(false)
	if fde.Size() != 0 {
		t.Fatalf("want size 0 once marked dead")
	}
	dst := make([]byte, len(fde.Bytes))
	fde.Emit(dst)
	for _, b := range dst {
		if b != 0 {
			t.Fatalf("want dead FDE's Emit to write nothing")
		}
	}
}
