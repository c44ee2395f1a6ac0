// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package input

import "testing"

func TestIsMergeStrings(t *testing.T) {
	cases := map[string]bool{
		".comment":         true,
		".debug_str":       true,
		".rodata.str1.1":   true,
		".rodata.str1.8":   true,
		"foo.str":          true,
		".text":            false,
		".data":            false,
		".rodata":          false,
	}
	for name, want := range cases {
		if got := isMergeStrings(name); got != want {
			t.Errorf("isMergeStrings(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNulTerminated(t *testing.T) {
	data := []byte("abc\x00def\x00")
	n := nulTerminated(data, 1)
	if n != 4 {
		t.Fatalf("nulTerminated(entsize=1) = %d, want 4", n)
	}
	rest := nulTerminated(data[4:], 1)
	if rest != 4 {
		t.Fatalf("nulTerminated(entsize=1) second piece = %d, want 4", rest)
	}
}

func TestNulTerminatedNoTerminator(t *testing.T) {
	data := []byte("abc")
	if n := nulTerminated(data, 1); n != len(data) {
		t.Fatalf("nulTerminated(no NUL) = %d, want %d", n, len(data))
	}
}

func TestNulTerminatedEntsize4(t *testing.T) {
	// Four-byte (UTF-32-ish) strings: the terminator must be an entire
	// zero entsize-run, not just a single zero byte.
	data := []byte{'a', 0, 0, 0, 'b', 0, 0, 0, 0, 0, 0, 0}
	n := nulTerminated(data, 4)
	if n != 12 {
		t.Fatalf("nulTerminated(entsize=4) = %d, want 12", n)
	}
}
