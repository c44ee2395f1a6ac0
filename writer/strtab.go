// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package writer

// StrTab builds an ELF string table: a leading NUL byte (so offset 0
// means "no name", the SHN_UNDEF-style convention every ELF string
// table shares) followed by each added name, NUL-terminated. Repeated
// names are interned to the same offset, the same way
// fragment.MergeStringPool dedups merge-string content — a different
// content kind, the same pooling idea.
type StrTab struct {
	buf     []byte
	offsets map[string]uint32
}

// NewStrTab returns a StrTab with its implicit empty-string entry
// already written at offset 0.
func NewStrTab() *StrTab {
	return &StrTab{buf: []byte{0}, offsets: map[string]uint32{"": 0}}
}

// Add interns name and returns its offset within Bytes().
func (t *StrTab) Add(name string) uint32 {
	if off, ok := t.offsets[name]; ok {
		return off
	}
	off := uint32(len(t.buf))
	t.buf = append(t.buf, name...)
	t.buf = append(t.buf, 0)
	t.offsets[name] = off
	return off
}

// Bytes returns the table's final content. The result is only stable
// once every name has been added — appending after calling Bytes still
// works, but invalidates any slice a caller retained from an earlier
// call.
func (t *StrTab) Bytes() []byte { return t.buf }

// Len reports the current size of Bytes(), useful for a caller sizing
// a Region fragment before content is final.
func (t *StrTab) Len() int { return len(t.buf) }
