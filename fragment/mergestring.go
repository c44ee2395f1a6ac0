// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragment

// MergeStringData is one entsize-delimited piece of an
// SHF_MERGE|SHF_STRINGS section, kept as a candidate for deduplication
// against every other piece with identical bytes (4.C, 4.D step 3).
type MergeStringData struct {
	Bytes []byte

	// Survivor is the Fragment this piece was deduplicated into, or
	// nil if this Fragment is itself the survivor (the one that
	// actually gets emitted). SurvivorOffset is always 0 today since
	// merge-string pieces are whole-piece deduplicated, but is kept
	// distinct from relocation retargeting, which also needs an
	// offset within the survivor for prefix/suffix merging schemes a
	// future target may add.
	Survivor       *Fragment
	SurvivorOffset uint64
}

func NewMergeString(b []byte) *Fragment {
	return &Fragment{Align: 1, Payload: &MergeStringData{Bytes: b}}
}

func (*MergeStringData) Kind() Kind { return KindMergeString }

func (m *MergeStringData) Size() uint64 {
	if m.Survivor != nil {
		return 0
	}
	return uint64(len(m.Bytes))
}

func (m *MergeStringData) Emit(dst []byte) {
	if m.Survivor == nil {
		copy(dst, m.Bytes)
	}
}

// MergeStringPool deduplicates MergeString fragments by content
// within one output section (4.D step 3). There is one pool per
// output section that receives SHF_MERGE|SHF_STRINGS input.
type MergeStringPool struct {
	byBytes map[string]*Fragment
}

func NewMergeStringPool() *MergeStringPool {
	return &MergeStringPool{byBytes: make(map[string]*Fragment)}
}

// Intern registers f (which must wrap a *MergeStringData) with the
// pool. If an identical-content piece was already interned, f is
// rewritten to point its Survivor at it and Intern returns
// (survivor, false); otherwise f becomes the survivor for its content
// and Intern returns (f, true).
func (p *MergeStringPool) Intern(f *Fragment) (survivor *Fragment, isNew bool) {
	md := f.Payload.(*MergeStringData)
	key := string(md.Bytes)
	if existing, ok := p.byBytes[key]; ok {
		md.Survivor = existing
		return existing, false
	}
	p.byBytes[key] = f
	return f, true
}
