// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package input

import "testing"

func elfHeader(little bool, eType uint16) []byte {
	h := make([]byte, 18)
	copy(h, elfMagic)
	if little {
		h[5] = 1
		h[16] = byte(eType)
		h[17] = byte(eType >> 8)
	} else {
		h[5] = 2
		h[16] = byte(eType >> 8)
		h[17] = byte(eType)
	}
	return h
}

func TestClassifyForceBinary(t *testing.T) {
	k, err := Classify([]byte("!<arch>\n"), true)
	if err != nil || k != Binary {
		t.Fatalf("Classify(forceBinary) = %v, %v; want Binary, nil", k, err)
	}
}

func TestClassifyEmpty(t *testing.T) {
	if _, err := Classify(nil, false); err == nil {
		t.Fatal("Classify(nil) succeeded; want error")
	}
}

func TestClassifyELFRel(t *testing.T) {
	k, err := Classify(elfHeader(true, etRel), false)
	if err != nil || k != ObjectELF {
		t.Fatalf("Classify(ET_REL) = %v, %v; want ObjectELF, nil", k, err)
	}
}

func TestClassifyELFDynBigEndian(t *testing.T) {
	k, err := Classify(elfHeader(false, etDyn), false)
	if err != nil || k != SharedELF {
		t.Fatalf("Classify(ET_DYN, big endian) = %v, %v; want SharedELF, nil", k, err)
	}
}

func TestClassifyELFExec(t *testing.T) {
	k, err := Classify(elfHeader(true, etExec), false)
	if err != nil || k != ExecutableELF {
		t.Fatalf("Classify(ET_EXEC) = %v, %v; want ExecutableELF, nil", k, err)
	}
}

func TestClassifyELFUnsupportedType(t *testing.T) {
	if _, err := Classify(elfHeader(true, 99), false); err == nil {
		t.Fatal("Classify(unsupported e_type) succeeded; want error")
	}
}

func TestClassifyELFTruncated(t *testing.T) {
	if _, err := Classify(elfMagic, false); err == nil {
		t.Fatal("Classify(truncated ELF) succeeded; want error")
	}
}

func TestClassifyELFBadEIData(t *testing.T) {
	h := elfHeader(true, etRel)
	h[5] = 0
	if _, err := Classify(h, false); err == nil {
		t.Fatal("Classify(invalid EI_DATA) succeeded; want error")
	}
}

func TestClassifyArchive(t *testing.T) {
	k, err := Classify([]byte("!<arch>\nextra"), false)
	if err != nil || k != Archive {
		t.Fatalf("Classify(archive) = %v, %v; want Archive, nil", k, err)
	}
}

func TestClassifyBitcode(t *testing.T) {
	k, err := Classify([]byte{0x42, 0x43, 0xC0, 0xDE, 0, 0}, false)
	if err != nil || k != Bitcode {
		t.Fatalf("Classify(bitcode) = %v, %v; want Bitcode, nil", k, err)
	}
}

func TestClassifySymDef(t *testing.T) {
	k, err := Classify([]byte("#<SYMDEFS>\nfoo\n"), false)
	if err != nil || k != SymDef {
		t.Fatalf("Classify(symdef) = %v, %v; want SymDef, nil", k, err)
	}
}

func TestClassifyScriptFallback(t *testing.T) {
	k, err := Classify([]byte("OUTPUT_FORMAT(elf64-x86-64)\n"), false)
	if err != nil || k != Script {
		t.Fatalf("Classify(script) = %v, %v; want Script, nil", k, err)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		ObjectELF:     "object-elf",
		SharedELF:     "shared-elf",
		ExecutableELF: "executable-elf",
		Archive:       "archive",
		ArchiveMember: "archive-member",
		Bitcode:       "bitcode",
		Script:        "script",
		SymDef:        "symdef",
		Binary:        "binary",
		Internal:      "internal",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
