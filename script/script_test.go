// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package script

import "testing"

func TestPatternMatch(t *testing.T) {
	cases := []struct {
		pat  Pattern
		name string
		want bool
	}{
		{"*", "anything", true},
		{"", "anything", true},
		{".text", ".text", true},
		{".text", ".text.foo", false},
		{".text.*", ".text.foo", true},
		{".text.*", ".data.foo", false},
	}
	for _, c := range cases {
		if got := c.pat.Match(c.name); got != c.want {
			t.Errorf("Pattern(%q).Match(%q) = %v, want %v", c.pat, c.name, got, c.want)
		}
	}
}

func TestRuleMatches(t *testing.T) {
	r := Rule{FilePattern: "libfoo.a", SectionPattern: ".text.*"}
	if !r.Matches("libfoo.a", ".text.hot") {
		t.Error("expected match")
	}
	if r.Matches("libbar.a", ".text.hot") {
		t.Error("expected file pattern to reject libbar.a")
	}
	if r.Matches("libfoo.a", ".data") {
		t.Error("expected section pattern to reject .data")
	}
}

func TestOutputSectionMatch(t *testing.T) {
	os := &OutputSection{
		Name: ".text",
		Rules: []Rule{
			{SectionPattern: ".text"},
			{SectionPattern: ".text.*"},
		},
	}
	if _, ok := os.Match("a.o", ".text.hot"); !ok {
		t.Error("expected .text.hot to match the second rule")
	}
	if _, ok := os.Match("a.o", ".rodata"); ok {
		t.Error(".rodata unexpectedly matched")
	}
}

func TestEmptyOutputSectionMatchesNothing(t *testing.T) {
	os := &OutputSection{Name: ".synthetic"}
	if _, ok := os.Match("a.o", ".text"); ok {
		t.Error("output section with no rules should match nothing")
	}
}
