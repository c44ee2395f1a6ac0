// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

import "testing"

func TestMergeStringPoolDedupsByContent(t *testing.T) {
	pool := NewMergeStringPool()

	f1 := NewMergeString([]byte("hello\x00"))
	f2 := NewMergeString([]byte("world\x00"))
	f3 := NewMergeString([]byte("hello\x00")) // duplicate of f1

	s1, new1 := pool.Intern(f1)
	if !new1 || s1 != f1 {
		t.Fatalf("want f1 to be the survivor for its own content")
	}
	s2, new2 := pool.Intern(f2)
	if !new2 || s2 != f2 {
		t.Fatalf("want f2 to be a distinct survivor")
	}
	s3, new3 := pool.Intern(f3)
	if new3 || s3 != f1 {
		t.Fatalf("want f3 to dedup into f1, got survivor=%p isNew=%v", s3, new3)
	}

	if f3.Size() != 0 {
		t.Fatalf("want deduped fragment to report size 0, got %d", f3.Size())
	}
	if f1.Size() == 0 {
		t.Fatalf("want survivor to keep its size")
	}
}

func TestMergeStringEmitNoopWhenDeduped(t *testing.T) {
	pool := NewMergeStringPool()
	f1 := NewMergeString([]byte("abc"))
	f2 := NewMergeString([]byte("abc"))
	pool.Intern(f1)
	pool.Intern(f2)

	dst := []byte{9, 9, 9}
	f2.Emit(dst)
	if dst[0] != 9 {
		t.Fatalf("want deduped fragment's Emit to write nothing")
	}
}
